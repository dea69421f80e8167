package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"bricktok/internal/common"
	"bricktok/internal/engine"
	"bricktok/internal/random"
	"bricktok/internal/random/randomtest"
	"bricktok/internal/tape"
	"bricktok/internal/utils"

	"github.com/fortytw2/leaktest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 2, 14, 30, 0, 0, time.UTC)

func newEngine(clock utils.Clock, opts ...engine.Option) *engine.Engine {
	asset := common.Asset{Symbol: "BTK-TEST-001", ReferencePrice: decimal.NewFromInt(1000)}
	opts = append([]engine.Option{engine.WithSource(random.New(7)), engine.WithClock(clock)}, opts...)
	return engine.New(asset, opts...)
}

type bookCounter struct {
	mu    sync.Mutex
	books int
}

func (c *bookCounter) ReportBook(engine.Snapshot) {
	c.mu.Lock()
	c.books++
	c.mu.Unlock()
}

func (c *bookCounter) ReportTrade(common.Trade) {}

func (c *bookCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.books
}

func waitParked(t *testing.T, clock *utils.ManualClock) {
	t.Helper()
	select {
	case <-clock.Waiting():
	case <-time.After(2 * time.Second):
		t.Fatal("feed loop never waited on the clock")
	}
}

func TestSynthesizeTrade_Ranges(t *testing.T) {
	rng := random.New(11)
	reference := decimal.NewFromInt(1000)
	directions := map[common.Direction]int{}

	for range 2000 {
		trade := SynthesizeTrade(rng, reference, epoch)
		offset := trade.Price.Sub(reference).Abs()
		assert.True(t, offset.GreaterThanOrEqual(decimal.NewFromInt(1)), "offset %s", offset)
		assert.True(t, offset.LessThanOrEqual(decimal.NewFromInt(3)), "offset %s", offset)
		assert.GreaterOrEqual(t, trade.Quantity, uint64(1))
		assert.Less(t, trade.Quantity, uint64(51))
		assert.Equal(t, epoch, trade.Timestamp)
		assert.NotEmpty(t, trade.ID)
		directions[trade.Direction]++
	}
	assert.Positive(t, directions[common.Buy])
	assert.Positive(t, directions[common.Sell])
}

func TestSynthesizeTrade_Scripted(t *testing.T) {
	// Offset index 2, negated, sell, quantity index 9.
	rng := &randomtest.Script{Ints: []int{2, 9}, Floats: []float64{0.1, 0.2}}
	trade := SynthesizeTrade(rng, decimal.NewFromInt(1000), epoch)
	assert.Equal(t, "997", trade.Price.String())
	assert.Equal(t, common.Sell, trade.Direction)
	assert.Equal(t, uint64(10), trade.Quantity)
}

func TestStep_AlwaysPrints(t *testing.T) {
	eng := newEngine(utils.NewManualClock(epoch))
	gen := New(eng, time.Second, 1, nil)

	tick := gen.Step()
	assert.True(t, tick.Perturbed)
	require.NotNil(t, tick.Trade)

	trades := eng.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, *tick.Trade, trades[0])
}

func TestStep_NeverPrints(t *testing.T) {
	eng := newEngine(utils.NewManualClock(epoch))
	before := eng.Snapshot()
	gen := New(eng, time.Second, 0, nil)

	tick := gen.Step()
	assert.True(t, tick.Perturbed)
	assert.Nil(t, tick.Trade)
	assert.Empty(t, eng.Trades())

	// Exactly one best level moved by the step size.
	after := eng.Snapshot()
	var side []common.Order
	var prev []common.Order
	if tick.Side == common.Ask {
		side, prev = after.Asks, before.Asks
		assert.Equal(t, before.Bids, after.Bids)
	} else {
		side, prev = after.Bids, before.Bids
		assert.Equal(t, before.Asks, after.Asks)
	}
	delta := int64(side[0].Quantity) - int64(prev[0].Quantity)
	assert.Contains(t, []int64{-5, 5}, delta)
	assert.Equal(t, prev[1:], side[1:])
}

func TestStep_TapeBounded(t *testing.T) {
	eng := newEngine(utils.NewManualClock(epoch))
	gen := New(eng, time.Second, 1, nil)

	var printed []common.Trade
	for range 45 {
		printed = append(printed, *gen.Step().Trade)
	}

	trades := eng.Trades()
	require.Len(t, trades, tape.DefaultCapacity)
	for i, trade := range trades {
		assert.Equal(t, printed[44-i].ID, trade.ID)
	}
}

func TestStep_EmptyBook(t *testing.T) {
	eng := newEngine(utils.NewManualClock(epoch), engine.WithSeedLevels(0))
	gen := New(eng, time.Second, 0, nil)

	tick := gen.Step()
	assert.False(t, tick.Perturbed)
	assert.Empty(t, eng.Levels(common.Ask, -1))
}

func TestNew_Defaults(t *testing.T) {
	gen := New(nil, 0, 3, nil)
	assert.Equal(t, DefaultInterval, gen.interval)
	assert.Equal(t, 1.0, gen.tradeProbability)
	assert.Equal(t, utils.RealClock{}, gen.clock)
	assert.Equal(t, 0.0, New(nil, time.Second, -1, nil).tradeProbability)
}

func TestStartStop(t *testing.T) {
	defer leaktest.Check(t)()

	clock := utils.NewManualClock(epoch)
	eng := newEngine(clock)
	counter := &bookCounter{}
	eng.SetReporter(counter)
	gen := New(eng, time.Second, 0, clock)

	require.NoError(t, gen.Start(context.Background()))
	assert.ErrorIs(t, gen.Start(context.Background()), ErrAlreadyRunning)

	for range 3 {
		waitParked(t, clock)
		clock.Advance(time.Second)
	}
	// The fourth wait means the third tick has completed.
	waitParked(t, clock)
	assert.Equal(t, 3, counter.count())

	require.NoError(t, gen.Stop())
	clock.Advance(time.Second)
	assert.Equal(t, 3, counter.count())

	// Stopping twice is fine, and the generator can be restarted.
	require.NoError(t, gen.Stop())
	require.NoError(t, gen.Start(context.Background()))
	require.NoError(t, gen.Stop())
}

func TestStart_ContextCancel(t *testing.T) {
	defer leaktest.Check(t)()

	clock := utils.NewManualClock(epoch)
	eng := newEngine(clock)
	gen := New(eng, time.Second, 0.5, clock)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, gen.Start(ctx))
	waitParked(t, clock)
	cancel()

	// Once the cancelled loop has exited the generator can start again.
	assert.Eventually(t, func() bool {
		return gen.Start(context.Background()) == nil
	}, 2*time.Second, time.Millisecond)
	waitParked(t, clock)
	clock.Advance(time.Second)
	waitParked(t, clock)
	assert.NoError(t, gen.Stop())
	assert.NoError(t, gen.Stop())
}

func TestStart_RealClock(t *testing.T) {
	defer leaktest.Check(t)()

	eng := newEngine(utils.RealClock{})
	counter := &bookCounter{}
	eng.SetReporter(counter)
	gen := New(eng, 5*time.Millisecond, 0.5, nil)

	require.NoError(t, gen.Start(context.Background()))
	assert.Eventually(t, func() bool { return counter.count() >= 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, gen.Stop())

	stopped := counter.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, counter.count())
}
