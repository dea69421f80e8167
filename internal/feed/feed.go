// Package feed drives the session with synthetic market events: on every
// tick it jitters a best level and, with some probability, prints a trade
// that is unrelated to the resting orders.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"bricktok/internal/common"
	"bricktok/internal/engine"
	"bricktok/internal/metrics"
	"bricktok/internal/random"
	"bricktok/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"
)

const (
	DefaultInterval         = 1200 * time.Millisecond
	DefaultTradeProbability = 0.3

	// Synthetic prints land within reference ± [1, maxPriceOffset].
	maxPriceOffset = 3
	minTradeQty    = 1
	maxTradeQty    = 51
)

var ErrAlreadyRunning = errors.New("feed already running")

// SynthesizeTrade draws a print around the reference price: an offset of
// 1 to 3 either way, a quantity in [1, 51) and a uniform direction.
func SynthesizeTrade(rng random.Source, reference decimal.Decimal, now time.Time) common.Trade {
	offset := int64(1 + rng.IntN(maxPriceOffset))
	if random.Coin(rng, 0.5) {
		offset = -offset
	}
	direction := common.Buy
	if random.Coin(rng, 0.5) {
		direction = common.Sell
	}
	return common.Trade{
		ID:        uuid.New().String(),
		Price:     reference.Add(decimal.NewFromInt(offset)),
		Quantity:  uint64(random.Between(rng, minTradeQty, maxTradeQty)),
		Timestamp: now,
		Direction: direction,
	}
}

// Tick describes what a single step did.
type Tick struct {
	Side      common.Side
	Perturbed bool
	Trade     *common.Trade
}

type Generator struct {
	engine           *engine.Engine
	interval         time.Duration
	tradeProbability float64
	clock            utils.Clock

	mu   sync.Mutex
	tomb *tomb.Tomb
}

// New returns a stopped generator. Non-positive interval falls back to
// DefaultInterval; probability is clamped to [0, 1].
func New(eng *engine.Engine, interval time.Duration, tradeProbability float64, clock utils.Clock) *Generator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &Generator{
		engine:           eng,
		interval:         interval,
		tradeProbability: min(1, max(0, tradeProbability)),
		clock:            clock,
	}
}

// Step applies one tick to the engine in a single exclusive update.
func (g *Generator) Step() Tick {
	var tick Tick
	g.engine.Update(func(tx *engine.Tx) {
		tick.Side, tick.Perturbed = tx.Perturb()
		if random.Coin(tx.Rand(), g.tradeProbability) {
			trade := SynthesizeTrade(tx.Rand(), tx.Asset().ReferencePrice, tx.Now())
			tx.Print(trade)
			tick.Trade = &trade
		}
	})
	metrics.FeedTicksTotal.Inc()
	return tick
}

// Start launches the tick loop. The loop ends when ctx is done or Stop is
// called; after a ctx-ended loop has exited the generator may be started
// again without calling Stop. The next wait only starts once the previous tick has returned, so
// ticks never overlap.
func (g *Generator) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tomb != nil {
		return ErrAlreadyRunning
	}
	t, _ := tomb.WithContext(ctx)
	g.tomb = t
	t.Go(func() error {
		err := g.run(t)
		g.release(t)
		return err
	})
	log.Info().Dur("interval", g.interval).Msg("feed started")
	return nil
}

func (g *Generator) run(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case <-g.clock.After(g.interval):
		}

		// A stop that raced the timer wins over the pending tick.
		select {
		case <-t.Dying():
			return nil
		default:
		}

		tick := g.Step()
		ev := log.Trace().Stringer("side", tick.Side).Bool("perturbed", tick.Perturbed)
		if tick.Trade != nil {
			ev = ev.Str("price", tick.Trade.Price.String()).Uint64("qty", tick.Trade.Quantity)
		}
		ev.Msg("tick")
	}
}

// release forgets t if it is still the current loop.
func (g *Generator) release(t *tomb.Tomb) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tomb == t {
		g.tomb = nil
	}
}

// Stop halts the loop and waits for it. Once Stop returns no further tick
// is applied. Stopping a stopped generator is a no-op.
func (g *Generator) Stop() error {
	g.mu.Lock()
	t := g.tomb
	g.tomb = nil
	g.mu.Unlock()
	if t == nil {
		return nil
	}

	t.Kill(nil)
	err := t.Wait()
	log.Info().Msg("feed stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
