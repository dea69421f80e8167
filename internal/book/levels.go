package book

import (
	"bricktok/internal/common"

	"github.com/tidwall/btree"
)

// Levels holds one side of the book, ordered by priority.
type Levels = btree.BTreeG[*common.Order]

// Ordering function for asks: lowest price first, earliest arrival first
// within a price.
// The market page this replaces put the newest order first among equal
// prices; here arrival order wins.
func askLess(a, b *common.Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return a.Seq < b.Seq
}

// Ordering function for bids: use greater than so that the highest bid is
// first, earliest arrival first within a price.
func bidLess(a, b *common.Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return a.Seq < b.Seq
}

func newLevels(side common.Side) *Levels {
	if side == common.Bid {
		return btree.NewBTreeG(bidLess)
	}
	return btree.NewBTreeG(askLess)
}

// collect copies up to n orders off the front of levels. n < 0 copies all.
func collect(levels *Levels, n int) []common.Order {
	size := levels.Len()
	if n >= 0 && n < size {
		size = n
	}
	out := make([]common.Order, 0, size)
	levels.Scan(func(o *common.Order) bool {
		if len(out) == size {
			return false
		}
		out = append(out, *o)
		return true
	})
	return out
}
