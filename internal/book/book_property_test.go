package book_test

import (
	"testing"

	"bricktok/internal/book"
	. "bricktok/internal/common"
	"bricktok/internal/random"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

// bookMachine drives a Book with random inserts and perturbations and checks
// the ordering and quantity invariants after every step.
type bookMachine struct {
	book *book.Book
	rng  random.Source

	// Expected resting order count per side.
	count map[Side]int
}

func (m *bookMachine) Init(t *rapid.T) {
	seed := rapid.Uint64Range(1, 1<<32).Draw(t, "seed").(uint64)
	m.rng = random.New(seed)
	m.book = book.Seed(decimal.NewFromInt(1000), book.DefaultSeedLevels, m.rng)
	m.count = map[Side]int{Ask: book.DefaultSeedLevels, Bid: book.DefaultSeedLevels}
}

func (m *bookMachine) Insert(t *rapid.T) {
	side := Side(rapid.IntRange(0, 1).Draw(t, "side").(int))
	cents := rapid.Int64Range(1, 200000).Draw(t, "cents").(int64)
	qty := rapid.Uint64Range(1, 1000).Draw(t, "qty").(uint64)

	m.book.Insert(Order{
		ID:       "prop",
		Side:     side,
		Price:    decimal.New(cents, -2),
		Quantity: qty,
	})
	m.count[side]++
}

func (m *bookMachine) Perturb(t *rapid.T) {
	_, ok := m.book.Perturb(m.rng)
	if !ok {
		t.Fatalf("perturb reported empty book with %d asks and %d bids", m.count[Ask], m.count[Bid])
	}
}

func (m *bookMachine) Check(t *rapid.T) {
	asks, bids := m.book.Asks(), m.book.Bids()
	if len(asks) != m.count[Ask] || len(bids) != m.count[Bid] {
		t.Fatalf("expected %d/%d orders, got %d/%d", m.count[Ask], m.count[Bid], len(asks), len(bids))
	}

	for i, o := range asks {
		if o.Side != Ask {
			t.Fatalf("ask %d has side %v", i, o.Side)
		}
		if o.Quantity < book.MinQuantity {
			t.Fatalf("ask %d quantity %d below floor", i, o.Quantity)
		}
		if i > 0 {
			prev := asks[i-1]
			if c := prev.Price.Cmp(o.Price); c > 0 || (c == 0 && prev.Seq > o.Seq) {
				t.Fatalf("asks out of order at %d: %s/%d before %s/%d", i, prev.Price, prev.Seq, o.Price, o.Seq)
			}
		}
	}
	for i, o := range bids {
		if o.Side != Bid {
			t.Fatalf("bid %d has side %v", i, o.Side)
		}
		if o.Quantity < book.MinQuantity {
			t.Fatalf("bid %d quantity %d below floor", i, o.Quantity)
		}
		if i > 0 {
			prev := bids[i-1]
			if c := prev.Price.Cmp(o.Price); c < 0 || (c == 0 && prev.Seq > o.Seq) {
				t.Fatalf("bids out of order at %d: %s/%d before %s/%d", i, prev.Price, prev.Seq, o.Price, o.Seq)
			}
		}
	}

	depth := m.book.Depth(book.DefaultDepthLevels)
	if sum := depth.AskShare + depth.BidShare; sum < 99.999 || sum > 100.001 {
		t.Fatalf("depth shares sum to %f", sum)
	}
}

func TestBook_Properties(t *testing.T) {
	rapid.Check(t, rapid.Run(&bookMachine{}))
}
