package engine

import (
	"bricktok/internal/common"
	"bricktok/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Submit rests a limit order in the book. The order is never matched, even
// when its price crosses the opposite best level.
//
// An order failing OrderRequest.Validate is dropped without touching the
// book and Submit returns false. Callers that need to tell the user why
// must run Validate themselves first.
func (engine *Engine) Submit(req common.OrderRequest) (common.Order, bool) {
	if err := req.Validate(); err != nil {
		log.Debug().Err(err).Msg("order dropped")
		metrics.OrdersDroppedTotal.Inc()
		return common.Order{}, false
	}

	order := common.Order{
		ID:       uuid.New().String(),
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
	}
	engine.Update(func(tx *Tx) {
		order = tx.Insert(order)
	})

	metrics.OrdersAcceptedTotal.WithLabelValues(order.Side.String()).Inc()
	log.Info().
		Str("id", order.ID).
		Stringer("side", order.Side).
		Str("price", order.Price.String()).
		Uint64("qty", order.Quantity).
		Msg("order rested")
	return order, true
}
