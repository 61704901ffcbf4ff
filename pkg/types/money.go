package types

// LineItem is one row of a priced breakdown. Amounts are integer minor
// currency units.
type LineItem struct {
	Label       string `json:"label"`
	AmountCents int64  `json:"amount_cents"`
}
