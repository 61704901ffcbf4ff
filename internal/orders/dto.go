package orders

import "github.com/google/uuid"

// CreateOrderInput captures what a new checkout attempt requires. The unit
// price is resolved from the catalog, never taken from the client.
type CreateOrderInput struct {
	UserID    uuid.UUID
	FighterID int64
	Quantity  int
}
