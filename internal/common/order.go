package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID        string          `json:"id"`        // Order tracked uuid
	Side      Side            `json:"side"`      // Book side
	Price     decimal.Decimal `json:"price"`     // Limit price in the reference currency
	Quantity  uint64          `json:"quantity"`  // Resting tokens
	Seq       uint64          `json:"seq"`       // Arrival sequence, breaks price ties
	Timestamp time.Time       `json:"timestamp"` // Time of arrival into the book
}

// Notional is price times quantity.
func (order Order) Notional() decimal.Decimal {
	return order.Price.Mul(decimal.NewFromInt(int64(order.Quantity)))
}

func (order Order) String() string {
	return fmt.Sprintf(
		`ID:        %s
Side:      %v
Price:     %s
Quantity:  %d
Seq:       %d
Timestamp: %v`,
		order.ID,
		order.Side,
		order.Price.String(),
		order.Quantity,
		order.Seq,
		order.Timestamp.Format(time.RFC3339),
	)
}

// MaxQuantity bounds a single order so that depth sums over any number of
// levels cannot overflow.
const MaxQuantity = 1_000_000_000

// OrderRequest is a limit order as submitted from the order-entry surface.
type OrderRequest struct {
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity uint64          `json:"quantity"`
}

// Validate reports ErrInvalidOrder when the side is unknown, the price is
// not positive or the quantity is outside [1, MaxQuantity]. Fees and minimum notional are not
// enforced.
func (r OrderRequest) Validate() error {
	if r.Side != Ask && r.Side != Bid {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, r.Side)
	}
	if !r.Price.IsPositive() {
		return fmt.Errorf("%w: price %s must be positive", ErrInvalidOrder, r.Price)
	}
	if r.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidOrder)
	}
	if r.Quantity > MaxQuantity {
		return fmt.Errorf("%w: quantity %d exceeds %d", ErrInvalidOrder, r.Quantity, uint64(MaxQuantity))
	}
	return nil
}
