package engine

import (
	"math"
	"sync"
	"testing"
	"time"

	"bricktok/internal/common"
	"bricktok/internal/metrics"
	"bricktok/internal/random"
	"bricktok/internal/utils"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

var epoch = time.Date(2024, 5, 2, 14, 30, 0, 0, time.UTC)

func testAsset() common.Asset {
	return common.Asset{
		Symbol:         "BTK-TEST-001",
		Name:           "Test Property",
		ReferencePrice: decimal.NewFromInt(1000),
		Supply:         7000,
	}
}

func newTestEngine(opts ...Option) *Engine {
	opts = append([]Option{
		WithSource(random.New(42)),
		WithClock(utils.NewManualClock(epoch)),
	}, opts...)
	return New(testAsset(), opts...)
}

func request(side common.Side, price int64, qty uint64) common.OrderRequest {
	return common.OrderRequest{Side: side, Price: decimal.NewFromInt(price), Quantity: qty}
}

type recorder struct {
	mu     sync.Mutex
	books  []Snapshot
	trades []common.Trade
}

func (r *recorder) ReportBook(snapshot Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books = append(r.books, snapshot)
}

func (r *recorder) ReportTrade(trade common.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, trade)
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.books), len(r.trades)
}

// --- Tests ------------------------------------------------------------------

func TestNew_SeedsBook(t *testing.T) {
	eng := newTestEngine()

	snapshot := eng.Snapshot()
	assert.Len(t, snapshot.Asks, 16)
	assert.Len(t, snapshot.Bids, 16)
	assert.Empty(t, snapshot.Trades)
	assert.Equal(t, epoch, snapshot.Timestamp)

	require.NotNil(t, snapshot.Top.Spread)
	assert.Equal(t, "2", snapshot.Top.Spread.String())
	assert.InDelta(t, 100, snapshot.Depth.AskShare+snapshot.Depth.BidShare, 1e-6)
	assert.Equal(t, "BTK-TEST-001", eng.Asset().Symbol)
}

func TestNew_Options(t *testing.T) {
	eng := newTestEngine(WithSeedLevels(3), WithTapeCapacity(2), WithDepthLevels(1))

	assert.Len(t, eng.Levels(common.Ask, -1), 3)
	assert.Equal(t, 1, eng.Snapshot().Depth.Levels)

	for range 5 {
		eng.Update(func(tx *Tx) {
			tx.Print(common.Trade{ID: "x", Price: decimal.NewFromInt(1000), Quantity: 1})
		})
	}
	assert.Len(t, eng.Trades(), 2)
}

func TestSubmit_BidAboveBestBid(t *testing.T) {
	eng := newTestEngine()
	bestAsk, ok := eng.Best(common.Ask)
	require.True(t, ok)
	asksBefore := eng.Levels(common.Ask, -1)

	order, ok := eng.Submit(request(common.Bid, 1005, 50))
	require.True(t, ok)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, epoch, order.Timestamp)

	bestBid, ok := eng.Best(common.Bid)
	require.True(t, ok)
	assert.Equal(t, order.ID, bestBid.ID)
	assert.Equal(t, "1005", bestBid.Price.String())
	assert.Equal(t, uint64(50), bestBid.Quantity)

	// Crossing the spread does not match.
	afterAsk, _ := eng.Best(common.Ask)
	assert.Equal(t, bestAsk, afterAsk)
	assert.Equal(t, "1001", afterAsk.Price.String())
	assert.Equal(t, asksBefore, eng.Levels(common.Ask, -1))
	assert.Len(t, eng.Levels(common.Bid, -1), 17)
	assert.Empty(t, eng.Trades())
}

func TestSubmit_AskRestsInOrder(t *testing.T) {
	eng := newTestEngine()

	_, ok := eng.Submit(request(common.Ask, 1004, 3))
	require.True(t, ok)

	asks := eng.Levels(common.Ask, 4)
	require.Len(t, asks, 4)
	assert.Equal(t, "1001", asks[0].Price.String())
	assert.Equal(t, "1003", asks[1].Price.String())
	assert.Equal(t, "1004", asks[2].Price.String())
	assert.Equal(t, uint64(3), asks[2].Quantity)
	assert.Equal(t, "1005", asks[3].Price.String())
}

func TestSubmit_InvalidIsSilentNoop(t *testing.T) {
	eng := newTestEngine()
	rec := &recorder{}
	eng.SetReporter(rec)
	before := eng.Snapshot()
	dropped := testutil.ToFloat64(metrics.OrdersDroppedTotal)

	for _, req := range []common.OrderRequest{
		request(common.Bid, 0, 10),
		request(common.Ask, -1, 10),
		request(common.Ask, 1000, 0),
		{Side: common.Side(9), Price: decimal.NewFromInt(1000), Quantity: 1},
		request(common.Bid, 1000, math.MaxUint64),
	} {
		_, ok := eng.Submit(req)
		assert.False(t, ok)
	}

	after := eng.Snapshot()
	assert.Equal(t, before.Asks, after.Asks)
	assert.Equal(t, before.Bids, after.Bids)
	books, trades := rec.counts()
	assert.Zero(t, books)
	assert.Zero(t, trades)
	assert.Equal(t, dropped+5, testutil.ToFloat64(metrics.OrdersDroppedTotal))
}

func TestUpdate_Reports(t *testing.T) {
	eng := newTestEngine()
	rec := &recorder{}
	eng.SetReporter(Reporters{rec})

	trade := common.Trade{ID: "t1", Price: decimal.NewFromInt(1002), Quantity: 7, Direction: common.Sell}
	eng.Update(func(tx *Tx) {
		tx.Perturb()
		tx.Print(trade)
	})

	books, trades := rec.counts()
	require.Equal(t, 1, books)
	require.Equal(t, 1, trades)
	assert.Equal(t, trade, rec.trades[0])
	assert.Equal(t, []common.Trade{trade}, rec.books[0].Trades)

	// Read-only updates are not reported.
	eng.Update(func(tx *Tx) {})
	books, _ = rec.counts()
	assert.Equal(t, 1, books)
}

func TestUpdate_ReporterMayReadEngine(t *testing.T) {
	eng := newTestEngine()
	var seen int
	eng.SetReporter(reporterFunc(func(Snapshot) {
		// Would deadlock if called under the lock.
		seen = len(eng.Levels(common.Bid, -1))
	}))

	_, ok := eng.Submit(request(common.Bid, 900, 1))
	require.True(t, ok)
	assert.Equal(t, 17, seen)
}

type reporterFunc func(Snapshot)

func (f reporterFunc) ReportBook(s Snapshot)     { f(s) }
func (reporterFunc) ReportTrade(common.Trade) {}

func TestTx_PerturbEmptyBook(t *testing.T) {
	eng := newTestEngine(WithSeedLevels(0))
	rec := &recorder{}
	eng.SetReporter(rec)
	skipped := testutil.ToFloat64(metrics.PerturbSkippedTotal)

	eng.Update(func(tx *Tx) {
		_, ok := tx.Perturb()
		assert.False(t, ok)
	})

	books, _ := rec.counts()
	assert.Zero(t, books)
	assert.Equal(t, skipped+1, testutil.ToFloat64(metrics.PerturbSkippedTotal))
}

func TestConcurrentSubmitAndPerturb(t *testing.T) {
	eng := newTestEngine()
	rec := &recorder{}
	eng.SetReporter(rec)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 25 {
				side := common.Side((i + j) % 2)
				_, ok := eng.Submit(request(side, int64(990+i+j), uint64(1+j)))
				assert.True(t, ok)
				eng.Update(func(tx *Tx) { tx.Perturb() })
				_ = eng.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	snapshot := eng.Snapshot()
	assert.Equal(t, 32+200, len(snapshot.Asks)+len(snapshot.Bids))
	for i := 1; i < len(snapshot.Asks); i++ {
		assert.True(t, snapshot.Asks[i-1].Price.LessThanOrEqual(snapshot.Asks[i].Price))
	}
	for i := 1; i < len(snapshot.Bids); i++ {
		assert.True(t, snapshot.Bids[i-1].Price.GreaterThanOrEqual(snapshot.Bids[i].Price))
	}
	books, _ := rec.counts()
	assert.Equal(t, 400, books)
}
