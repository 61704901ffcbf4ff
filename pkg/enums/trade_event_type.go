package enums

import "fmt"

// TradeEventType categorizes entries on the public trade feed.
type TradeEventType string

const (
	TradeEventTypeMint TradeEventType = "MINT"
)

var validTradeEventTypes = []TradeEventType{
	TradeEventTypeMint,
}

// String implements fmt.Stringer.
func (t TradeEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TradeEventType.
func (t TradeEventType) IsValid() bool {
	for _, candidate := range validTradeEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTradeEventType converts raw input into a TradeEventType.
func ParseTradeEventType(value string) (TradeEventType, error) {
	for _, candidate := range validTradeEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trade event type %q", value)
}
