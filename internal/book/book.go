// Package book is the order book store: two sorted sides of resting limit
// orders for the single listed asset.
//
// Every mutation leaves both sides fully sorted. The book does no matching;
// inserted orders rest until the session ends. A Book is not safe for
// concurrent use, the engine serializes access to it.
package book

import (
	"math"
	"time"

	"bricktok/internal/common"
	"bricktok/internal/random"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DefaultSeedLevels is the number of levels seeded on each side.
	DefaultSeedLevels = 16

	// PerturbStep is the quantity change applied to a best level per tick.
	PerturbStep = 5

	// MinQuantity is the floor a perturbed quantity is clamped to.
	MinQuantity = 1

	seedMinQty = 20
	seedMaxQty = 140
)

type Book struct {
	asks *Levels
	bids *Levels

	// Arrival counter, used to break ties between equal prices.
	seq uint64

	now func() time.Time
}

func New() *Book {
	return &Book{
		asks: newLevels(common.Ask),
		bids: newLevels(common.Bid),
		now:  time.Now,
	}
}

// Seed creates a book with levels asks at reference+1+2i and levels bids at
// reference-1-2i, each holding a uniform quantity in [20, 140).
func Seed(reference decimal.Decimal, levels int, rng random.Source) *Book {
	book := New()
	for i := range levels {
		offset := decimal.NewFromInt(int64(1 + 2*i))
		book.Insert(common.Order{
			ID:       uuid.New().String(),
			Side:     common.Ask,
			Price:    reference.Add(offset),
			Quantity: uint64(random.Between(rng, seedMinQty, seedMaxQty)),
		})
		book.Insert(common.Order{
			ID:       uuid.New().String(),
			Side:     common.Bid,
			Price:    reference.Sub(offset),
			Quantity: uint64(random.Between(rng, seedMinQty, seedMaxQty)),
		})
	}
	return book
}

// SetClock replaces the function used to stamp arriving orders.
func (book *Book) SetClock(now func() time.Time) {
	book.now = now
}

func (book *Book) side(side common.Side) *Levels {
	if side == common.Bid {
		return book.bids
	}
	return book.asks
}

// Insert rests an order on its side and returns it as stored, with its
// arrival sequence and timestamp set. The caller is responsible for
// validating the order. The opposite side is never touched, even when the
// new price crosses it.
func (book *Book) Insert(order common.Order) common.Order {
	book.seq++
	order.Seq = book.seq
	if order.Timestamp.IsZero() {
		order.Timestamp = book.now()
	}
	stored := order
	book.side(order.Side).Set(&stored)
	return stored
}

// Perturb moves the best level of a randomly chosen side by ±PerturbStep,
// clamped to MinQuantity. If the chosen side is empty the other side is used.
// Returns false when both sides are empty. Only the best level's quantity
// changes, so no resort is needed.
func (book *Book) Perturb(rng random.Source) (common.Side, bool) {
	side := common.Bid
	if random.Coin(rng, 0.5) {
		side = common.Ask
	}
	if book.side(side).Len() == 0 {
		side = side.Opposite()
	}

	best, ok := book.side(side).MinMut()
	if !ok {
		return side, false
	}

	if random.Coin(rng, 0.5) {
		best.Quantity = decrease(best.Quantity)
	} else {
		best.Quantity = increase(best.Quantity)
	}
	return side, true
}

func decrease(q uint64) uint64 {
	if q <= MinQuantity+PerturbStep {
		return MinQuantity
	}
	return q - PerturbStep
}

// increase saturates rather than wrapping.
func increase(q uint64) uint64 {
	if q > math.MaxUint64-PerturbStep {
		return math.MaxUint64
	}
	return q + PerturbStep
}

// Best returns the first (highest priority) order of a side.
func (book *Book) Best(side common.Side) (common.Order, bool) {
	best, ok := book.side(side).Min()
	if !ok {
		return common.Order{}, false
	}
	return *best, true
}

// Len returns the number of resting orders on a side.
func (book *Book) Len(side common.Side) int {
	return book.side(side).Len()
}

// Asks returns a copy of the ask side, lowest price first.
func (book *Book) Asks() []common.Order {
	return collect(book.asks, -1)
}

// Bids returns a copy of the bid side, highest price first.
func (book *Book) Bids() []common.Order {
	return collect(book.bids, -1)
}

// Levels returns a copy of the first n orders of a side.
func (book *Book) Levels(side common.Side, n int) []common.Order {
	return collect(book.side(side), n)
}
