package api

import (
	"time"

	"bricktok/internal/book"
	"bricktok/internal/common"
	"bricktok/internal/engine"

	"github.com/shopspring/decimal"
)

// BookView is the display form of the book: ladder rows per side plus the
// top of book and depth split.
type BookView struct {
	Asks      []book.LadderRow `json:"asks"`
	Bids      []book.LadderRow `json:"bids"`
	Top       book.TopOfBook   `json:"top"`
	Depth     book.Depth       `json:"depth"`
	Timestamp int64            `json:"ts"` // unix ms
}

func newBookView(snapshot engine.Snapshot, rows int) BookView {
	return BookView{
		Asks:      book.Ladder(snapshot.Asks, rows),
		Bids:      book.Ladder(snapshot.Bids, rows),
		Top:       snapshot.Top,
		Depth:     snapshot.Depth,
		Timestamp: snapshot.Timestamp.UnixMilli(),
	}
}

type TradeView struct {
	ID        string           `json:"id"`
	Price     decimal.Decimal  `json:"price"`
	Quantity  uint64           `json:"quantity"`
	Direction common.Direction `json:"direction"`
	Time      string           `json:"time"` // local HH:MM:SS
	Timestamp int64            `json:"ts"`   // unix ms
}

func newTradeView(trade common.Trade) TradeView {
	return TradeView{
		ID:        trade.ID,
		Price:     trade.Price,
		Quantity:  trade.Quantity,
		Direction: trade.Direction,
		Time:      trade.Clock(),
		Timestamp: trade.Timestamp.UnixMilli(),
	}
}

func newTradeViews(trades []common.Trade) []TradeView {
	views := make([]TradeView, len(trades))
	for i, t := range trades {
		views[i] = newTradeView(t)
	}
	return views
}

// Envelope is the websocket message frame.
type Envelope struct {
	Type  string     `json:"type"` // "book" | "trade"
	Book  *BookView  `json:"book,omitempty"`
	Trade *TradeView `json:"trade,omitempty"`
}

// SubmitOrderRequest is the order-entry payload. Side accepts buy/sell as
// well as bid/ask.
type SubmitOrderRequest struct {
	Side     string          `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity uint64          `json:"quantity"`
}

type StatusResponse struct {
	Symbol    string    `json:"symbol"`
	WSClients int       `json:"wsClients"`
	WSDrops   uint64    `json:"wsDrops"`
	AskLevels int       `json:"askLevels"`
	BidLevels int       `json:"bidLevels"`
	TapeSize  int       `json:"tapeSize"`
	Time      time.Time `json:"time"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func ptr[T any](v T) *T { return &v }
