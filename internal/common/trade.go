package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ClockLayout is the display form of a trade time (24-hour).
const ClockLayout = "15:04:05"

// Trade is a synthetic print on the tape. It does not reference any
// resting order.
type Trade struct {
	ID        string          `json:"id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  uint64          `json:"quantity"`
	Timestamp time.Time       `json:"timestamp"`
	Direction Direction       `json:"direction"`
}

// Clock returns the local wall-clock time of the print.
func (t Trade) Clock() string {
	return t.Timestamp.Local().Format(ClockLayout)
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`ID:        %s
Direction: %v
Price:     %s
Quantity:  %d
Time:      %s`,
		t.ID,
		t.Direction,
		t.Price.String(),
		t.Quantity,
		t.Clock(),
	)
}
