package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidOrder = errors.New("invalid order")
	ErrEmptySide    = errors.New("empty book side")
	ErrUnknownSide  = errors.New("unknown side")
)

// Side is the book side a resting order lives on.
type Side int

const (
	Ask Side = iota
	Bid
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Ask {
		return Bid
	}
	return Ask
}

func (s Side) String() string {
	switch s {
	case Ask:
		return "ask"
	case Bid:
		return "bid"
	}
	return fmt.Sprintf("side(%d)", int(s))
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	side, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// ParseSide accepts both the book vocabulary (ask/bid) and the order-entry
// vocabulary (sell/buy).
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ask", "sell":
		return Ask, nil
	case "bid", "buy":
		return Bid, nil
	}
	return Ask, fmt.Errorf("%w: %q", ErrUnknownSide, s)
}

// Direction classifies a printed trade.
type Direction int

const (
	Buy Direction = iota
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "buy":
		*d = Buy
	case "sell":
		*d = Sell
	default:
		return fmt.Errorf("unknown direction %q", text)
	}
	return nil
}
