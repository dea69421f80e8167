package engine

import (
	"time"

	"bricktok/internal/common"
	"bricktok/internal/metrics"
	"bricktok/internal/random"

	"github.com/rs/zerolog/log"
)

// Tx is exclusive access to a session for the duration of Engine.Update.
// It must not be retained after the update function returns.
type Tx struct {
	engine  *Engine
	printed []common.Trade
	dirty   bool
}

// Rand returns the session's random source.
func (tx *Tx) Rand() random.Source {
	return tx.engine.rng
}

func (tx *Tx) Now() time.Time {
	return tx.engine.clock.Now()
}

func (tx *Tx) Asset() common.Asset {
	return tx.engine.asset
}

// Insert rests an already validated order on its side.
func (tx *Tx) Insert(order common.Order) common.Order {
	tx.dirty = true
	return tx.engine.book.Insert(order)
}

// Perturb jitters the best level of a random side. It reports false when
// the book has no resting orders at all.
func (tx *Tx) Perturb() (common.Side, bool) {
	side, ok := tx.engine.book.Perturb(tx.engine.rng)
	if !ok {
		log.Debug().Err(common.ErrEmptySide).Msg("perturb skipped")
		metrics.PerturbSkippedTotal.Inc()
		return side, false
	}
	tx.dirty = true
	return side, true
}

// Print prepends a trade to the tape.
func (tx *Tx) Print(trade common.Trade) {
	tx.dirty = true
	tx.engine.tape.Push(trade)
	tx.printed = append(tx.printed, trade)
	metrics.TradesPrintedTotal.Inc()
}
