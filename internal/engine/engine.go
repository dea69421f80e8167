// Package engine owns a trading session: the book, the tape and the random
// source that drives the synthetic feed. All writers go through
// Engine.Update, which serializes them under an exclusive lock.
package engine

import (
	"sync"
	"time"

	"bricktok/internal/book"
	"bricktok/internal/common"
	"bricktok/internal/metrics"
	"bricktok/internal/random"
	"bricktok/internal/tape"
	"bricktok/internal/utils"
)

type Engine struct {
	mu sync.RWMutex

	asset common.Asset
	book  *book.Book
	tape  *tape.Tape

	// Only used under the write lock.
	rng random.Source

	clock    utils.Clock
	reporter Reporter

	seedLevels   int
	tapeCapacity int
	depthLevels  int
}

type Option func(*Engine)

// WithSource injects the random source used for seeding and the feed.
func WithSource(rng random.Source) Option {
	return func(e *Engine) { e.rng = rng }
}

func WithClock(clock utils.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithSeedLevels(n int) Option {
	return func(e *Engine) { e.seedLevels = n }
}

func WithTapeCapacity(n int) Option {
	return func(e *Engine) { e.tapeCapacity = n }
}

// WithDepthLevels sets the levels summed into snapshot depth.
func WithDepthLevels(n int) Option {
	return func(e *Engine) { e.depthLevels = n }
}

// New starts a session for asset and seeds its book around the asset's
// reference price. The tape starts empty.
func New(asset common.Asset, opts ...Option) *Engine {
	engine := &Engine{
		asset:        asset,
		clock:        utils.RealClock{},
		seedLevels:   book.DefaultSeedLevels,
		tapeCapacity: tape.DefaultCapacity,
		depthLevels:  book.DefaultDepthLevels,
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.rng == nil {
		engine.rng = random.New(0)
	}

	engine.book = book.Seed(asset.ReferencePrice, engine.seedLevels, engine.rng)
	engine.book.SetClock(engine.clock.Now)
	engine.tape = tape.New(engine.tapeCapacity)

	engine.mu.Lock()
	engine.observeLocked()
	engine.mu.Unlock()
	return engine
}

// SetReporter replaces the sink notified after each mutation.
func (engine *Engine) SetReporter(reporter Reporter) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.reporter = reporter
}

// Update runs fn with exclusive access to the session state. Reporters are
// notified after the lock is released, with copies of the new state.
func (engine *Engine) Update(fn func(tx *Tx)) {
	engine.mu.Lock()
	tx := &Tx{engine: engine}
	fn(tx)

	var snapshot Snapshot
	if tx.dirty {
		snapshot = engine.snapshotLocked()
		engine.observeLocked()
	}
	reporter := engine.reporter
	engine.mu.Unlock()

	if reporter == nil || !tx.dirty {
		return
	}
	for _, trade := range tx.printed {
		reporter.ReportTrade(trade)
	}
	reporter.ReportBook(snapshot)
}

// Snapshot is a point-in-time copy of the session state, ready for display.
type Snapshot struct {
	Asks      []common.Order `json:"asks"`
	Bids      []common.Order `json:"bids"`
	Trades    []common.Trade `json:"trades"`
	Depth     book.Depth     `json:"depth"`
	Top       book.TopOfBook `json:"top"`
	Timestamp time.Time      `json:"timestamp"`
}

func (engine *Engine) Snapshot() Snapshot {
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	return engine.snapshotLocked()
}

func (engine *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Asks:      engine.book.Asks(),
		Bids:      engine.book.Bids(),
		Trades:    engine.tape.Trades(),
		Depth:     engine.book.Depth(engine.depthLevels),
		Top:       engine.book.Top(),
		Timestamp: engine.clock.Now(),
	}
}

// Depth aggregates the first levels orders of each side.
func (engine *Engine) Depth(levels int) book.Depth {
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	return engine.book.Depth(levels)
}

// Levels returns a copy of the first n orders of a side; n < 0 returns all.
func (engine *Engine) Levels(side common.Side, n int) []common.Order {
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	return engine.book.Levels(side, n)
}

func (engine *Engine) Best(side common.Side) (common.Order, bool) {
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	return engine.book.Best(side)
}

func (engine *Engine) Top() book.TopOfBook {
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	return engine.book.Top()
}

// Trades returns the tape, newest first.
func (engine *Engine) Trades() []common.Trade {
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	return engine.tape.Trades()
}

func (engine *Engine) Asset() common.Asset {
	return engine.asset
}

func (engine *Engine) observeLocked() {
	metrics.BookLevels.WithLabelValues(common.Ask.String()).Set(float64(engine.book.Len(common.Ask)))
	metrics.BookLevels.WithLabelValues(common.Bid.String()).Set(float64(engine.book.Len(common.Bid)))
	depth := engine.book.Depth(engine.depthLevels)
	metrics.DepthShare.WithLabelValues(common.Ask.String()).Set(depth.AskShare)
	metrics.DepthShare.WithLabelValues(common.Bid.String()).Set(depth.BidShare)
	metrics.TapeLength.Set(float64(engine.tape.Len()))
}
