package engine

import "bricktok/internal/common"

// Reporter receives session updates. Calls are made outside the engine lock,
// from the goroutine that performed the mutation, and must not block.
type Reporter interface {
	ReportBook(snapshot Snapshot)
	ReportTrade(trade common.Trade)
}

// Reporters fans updates out to several sinks in order.
type Reporters []Reporter

func (rs Reporters) ReportBook(snapshot Snapshot) {
	for _, r := range rs {
		r.ReportBook(snapshot)
	}
}

func (rs Reporters) ReportTrade(trade common.Trade) {
	for _, r := range rs {
		r.ReportTrade(trade)
	}
}
