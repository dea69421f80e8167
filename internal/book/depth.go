package book

import (
	"math"

	"bricktok/internal/common"

	"github.com/shopspring/decimal"
)

// DefaultDepthLevels is the number of levels per side summed by Depth.
const DefaultDepthLevels = 10

// Depth is the split of resting quantity across the top levels of each side.
// Shares are percentages of the combined quantity and are not normalized
// beyond floating point division.
type Depth struct {
	Levels   int     `json:"levels"`
	BidSum   uint64  `json:"bidSum"`
	AskSum   uint64  `json:"askSum"`
	BidShare float64 `json:"bidShare"`
	AskShare float64 `json:"askShare"`
}

// Depth sums quantity over the first levels orders of each side. A side with
// fewer orders contributes what it has; an empty book yields 0/0.
func (book *Book) Depth(levels int) Depth {
	if levels <= 0 {
		levels = DefaultDepthLevels
	}
	askSum := sumQuantity(book.asks, levels)
	bidSum := sumQuantity(book.bids, levels)
	total := max(1, float64(askSum)+float64(bidSum))
	return Depth{
		Levels:   levels,
		BidSum:   bidSum,
		AskSum:   askSum,
		BidShare: float64(bidSum) / total * 100,
		AskShare: float64(askSum) / total * 100,
	}
}

func sumQuantity(levels *Levels, n int) uint64 {
	var sum uint64
	var seen int
	levels.Scan(func(o *common.Order) bool {
		if seen == n {
			return false
		}
		// Saturate so that an oversized order cannot wrap the sum.
		if o.Quantity > math.MaxUint64-sum {
			sum = math.MaxUint64
		} else {
			sum += o.Quantity
		}
		seen++
		return true
	})
	return sum
}

// TopOfBook is the best level on each side and the spread between them.
type TopOfBook struct {
	BestBid *common.Order    `json:"bestBid"`
	BestAsk *common.Order    `json:"bestAsk"`
	Spread  *decimal.Decimal `json:"spread"`
}

// Top reports the best bid and ask. Spread is nil unless both sides rest
// at least one order; it is negative when the book is crossed.
func (book *Book) Top() TopOfBook {
	var top TopOfBook
	if bid, ok := book.Best(common.Bid); ok {
		top.BestBid = &bid
	}
	if ask, ok := book.Best(common.Ask); ok {
		top.BestAsk = &ask
	}
	if top.BestBid != nil && top.BestAsk != nil {
		spread := top.BestAsk.Price.Sub(top.BestBid.Price)
		top.Spread = &spread
	}
	return top
}
