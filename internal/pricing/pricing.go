package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bcolabs/fightcards-backend/pkg/config"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/types"
)

// Calculator produces quote breakdowns. Fees are fixed at construction so a
// quote computed at checkout matches the one recomputed at finalize.
type Calculator struct {
	platformFeeBps  decimal.Decimal
	networkFeeCents int64
}

// NewCalculator builds a calculator from pricing configuration.
func NewCalculator(cfg config.PricingConfig) (*Calculator, error) {
	if cfg.PlatformFeeBps < 0 || cfg.PlatformFeeBps > 10_000 {
		return nil, fmt.Errorf("platform fee bps must be within [0, 10000], got %d", cfg.PlatformFeeBps)
	}
	if cfg.NetworkFeeCents < 0 {
		return nil, fmt.Errorf("network fee cents must not be negative, got %d", cfg.NetworkFeeCents)
	}
	return &Calculator{
		platformFeeBps:  decimal.NewFromInt(int64(cfg.PlatformFeeBps)),
		networkFeeCents: cfg.NetworkFeeCents,
	}, nil
}

// Quote is a full price breakdown in integer cents.
type Quote struct {
	UnitPriceCents   int64 `json:"unit_price_cents"`
	Quantity         int   `json:"quantity"`
	SubtotalCents    int64 `json:"subtotal_cents"`
	PlatformFeeCents int64 `json:"platform_fee_cents"`
	NetworkFeeCents  int64 `json:"network_fee_cents"`
	TotalCents       int64 `json:"total_cents"`
}

// Compute builds the quote for quantity units at the given unit price. The
// platform fee rounds half up on the cent.
func (c *Calculator) Compute(unitPriceCents int64, quantity int) (*Quote, error) {
	if unitPriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must be positive")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	subtotal := decimal.NewFromInt(unitPriceCents).Mul(decimal.NewFromInt(int64(quantity)))
	platformFee := subtotal.
		Mul(c.platformFeeBps).
		Div(decimal.NewFromInt(10_000)).
		Round(0)

	quote := &Quote{
		UnitPriceCents:   unitPriceCents,
		Quantity:         quantity,
		SubtotalCents:    subtotal.IntPart(),
		PlatformFeeCents: platformFee.IntPart(),
		NetworkFeeCents:  c.networkFeeCents,
	}
	quote.TotalCents = quote.SubtotalCents + quote.PlatformFeeCents + quote.NetworkFeeCents
	return quote, nil
}

// LineItems renders the breakdown for receipts and API responses.
func (q *Quote) LineItems() []types.LineItem {
	return []types.LineItem{
		{Label: fmt.Sprintf("Fighter card x%d", q.Quantity), AmountCents: q.SubtotalCents},
		{Label: "Platform fee", AmountCents: q.PlatformFeeCents},
		{Label: "Network fee", AmountCents: q.NetworkFeeCents},
	}
}
