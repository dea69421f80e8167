// Package tape keeps the bounded log of printed trades, newest first.
package tape

import "bricktok/internal/common"

// DefaultCapacity is the number of prints kept on the tape.
const DefaultCapacity = 40

type Tape struct {
	capacity int
	trades   []common.Trade
}

// New returns an empty tape. A non-positive capacity uses DefaultCapacity.
func New(capacity int) *Tape {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tape{
		capacity: capacity,
		trades:   make([]common.Trade, 0, capacity),
	}
}

// Push prepends a trade and drops the oldest entries beyond capacity.
func (t *Tape) Push(trade common.Trade) {
	if len(t.trades) < t.capacity {
		t.trades = append(t.trades, common.Trade{})
	}
	copy(t.trades[1:], t.trades[:len(t.trades)-1])
	t.trades[0] = trade
}

// Trades returns a copy of the tape, newest first.
func (t *Tape) Trades() []common.Trade {
	out := make([]common.Trade, len(t.trades))
	copy(out, t.trades)
	return out
}

func (t *Tape) Len() int      { return len(t.trades) }
func (t *Tape) Capacity() int { return t.capacity }
