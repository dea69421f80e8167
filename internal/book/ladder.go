package book

import (
	"bricktok/internal/common"

	"github.com/shopspring/decimal"
)

// DefaultLadderRows is the number of rows shown per side.
const DefaultLadderRows = 14

// LadderRow is one display row of a book side.
type LadderRow struct {
	ID       string          `json:"id"`
	Price    decimal.Decimal `json:"price"`
	Quantity uint64          `json:"quantity"`
	Notional decimal.Decimal `json:"notional"`
	// BarPct is the row quantity relative to the largest quantity on the
	// whole side, capped at 100.
	BarPct float64 `json:"barPct"`
}

// Ladder projects the first n orders of a side (already in priority order)
// into display rows. n <= 0 uses DefaultLadderRows.
func Ladder(orders []common.Order, n int) []LadderRow {
	if n <= 0 {
		n = DefaultLadderRows
	}
	var maxQty uint64 = 1
	for _, o := range orders {
		maxQty = max(maxQty, o.Quantity)
	}

	rows := make([]LadderRow, 0, min(n, len(orders)))
	for _, o := range orders {
		if len(rows) == n {
			break
		}
		rows = append(rows, LadderRow{
			ID:       o.ID,
			Price:    o.Price,
			Quantity: o.Quantity,
			Notional: o.Notional(),
			BarPct:   min(100, float64(o.Quantity)/float64(maxQty)*100),
		})
	}
	return rows
}
