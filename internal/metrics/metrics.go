package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "bricktok"

var (
	FeedTicksTotal      = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "feed_ticks_total", Help: "Synthetic feed ticks applied"})
	PerturbSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "perturb_skipped_total", Help: "Ticks where both book sides were empty"})
	TradesPrintedTotal  = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "trades_printed_total", Help: "Synthetic trades appended to the tape"})
	OrdersAcceptedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "orders_accepted_total", Help: "Submitted orders rested in the book"}, []string{"side"})
	OrdersDroppedTotal  = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "orders_dropped_total", Help: "Submitted orders dropped by validation"})
	BookLevels          = prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "book_levels", Help: "Resting orders per side"}, []string{"side"})
	DepthShare          = prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "depth_share", Help: "Share of top-level depth per side, percent"}, []string{"side"})
	TapeLength          = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "tape_length", Help: "Trades currently on the tape"})
	WSClients           = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_clients", Help: "Connected websocket clients"})
	WSPublishDrops      = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "ws_publish_drops_total", Help: "Websocket messages dropped for slow consumers"})
	GatewaySessions     = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "gateway_sessions", Help: "Open TCP gateway sessions"})
	GatewayErrorsTotal  = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "gateway_errors_total", Help: "TCP gateway errors by stage"}, []string{"stage"})
)

// Init registers the collectors on a fresh registry.
func Init(logger zerolog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		FeedTicksTotal, PerturbSkippedTotal, TradesPrintedTotal,
		OrdersAcceptedTotal, OrdersDroppedTotal,
		BookLevels, DepthShare, TapeLength,
		WSClients, WSPublishDrops,
		GatewaySessions, GatewayErrorsTotal,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		if err := reg.Register(c); err != nil {
			logger.Warn().Err(err).Msg("metric registration failed")
		}
	}
	logger.Info().Msg("prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
