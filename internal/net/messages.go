package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	. "bricktok/internal/common"
	"bricktok/internal/book"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrInvalidUUID        = errors.New("invalid uuid")
	ErrInvalidSide        = errors.New("invalid side")
	ErrInvalidPrice       = errors.New("invalid price")
)

type MessageType int

const (
	Heartbeat MessageType = iota
	NewOrder
	DepthRequest
)

type ReportMessageType int

const (
	AckReport ReportMessageType = iota
	ErrorReport
	TradeReport
	DepthReport
)

type Message interface {
	GetType() MessageType
}

// Message format constants
const (
	BaseMessageHeaderLen         = 2
	NewOrderMessageHeaderLen     = 1 + 8 + 8
	DepthRequestMessageHeaderLen = 2
)

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

// readMessage reads one framed message: a 2 byte type header followed by
// the fixed-size body for that type.
func readMessage(r io.Reader) (Message, error) {
	header := make([]byte, BaseMessageHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	typeOf := MessageType(binary.BigEndian.Uint16(header))
	var bodyLen int
	switch typeOf {
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	case NewOrder:
		bodyLen = NewOrderMessageHeaderLen
	case DepthRequest:
		bodyLen = DepthRequestMessageHeaderLen
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidMessageType, typeOf)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	switch typeOf {
	case NewOrder:
		return parseNewOrder(body)
	default:
		return parseDepthRequest(body)
	}
}

type NewOrderMessage struct {
	BaseMessage
	Side       Side    // 1 byte
	LimitPrice float64 // 8 bytes
	Quantity   uint64  // 8 bytes
}

// Request converts the wire message into an order request. The price is
// finite for any parsed message; positivity and quantity are not checked.
func (o *NewOrderMessage) Request() OrderRequest {
	return OrderRequest{
		Side:     o.Side,
		Price:    decimal.NewFromFloat(o.LimitPrice),
		Quantity: o.Quantity,
	}
}

func parseNewOrder(msg []byte) (*NewOrderMessage, error) {
	if len(msg) < NewOrderMessageHeaderLen {
		return nil, ErrMessageTooShort
	}
	m := &NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	m.Side = Side(msg[0])
	if m.Side != Ask && m.Side != Bid {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, msg[0])
	}
	m.LimitPrice = math.Float64frombits(binary.BigEndian.Uint64(msg[1:9]))
	// Only finite prices convert to a decimal.
	if math.IsNaN(m.LimitPrice) || math.IsInf(m.LimitPrice, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, m.LimitPrice)
	}
	m.Quantity = binary.BigEndian.Uint64(msg[9:17])
	return m, nil
}

// EncodeNewOrder builds the wire form of a new order message.
func EncodeNewOrder(side Side, price float64, quantity uint64) []byte {
	buf := make([]byte, BaseMessageHeaderLen+NewOrderMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	buf[2] = byte(side)
	binary.BigEndian.PutUint64(buf[3:11], math.Float64bits(price))
	binary.BigEndian.PutUint64(buf[11:19], quantity)
	return buf
}

type DepthRequestMessage struct {
	BaseMessage
	Levels uint16 // 2 bytes
}

func parseDepthRequest(msg []byte) (*DepthRequestMessage, error) {
	if len(msg) < DepthRequestMessageHeaderLen {
		return nil, ErrMessageTooShort
	}
	return &DepthRequestMessage{
		BaseMessage: BaseMessage{TypeOf: DepthRequest},
		Levels:      binary.BigEndian.Uint16(msg[0:2]),
	}, nil
}

// EncodeDepthRequest builds the wire form of a depth request.
func EncodeDepthRequest(levels uint16) []byte {
	buf := make([]byte, BaseMessageHeaderLen+DepthRequestMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(DepthRequest))
	binary.BigEndian.PutUint16(buf[2:4], levels)
	return buf
}

// EncodeHeartbeat builds the wire form of a heartbeat.
func EncodeHeartbeat() []byte {
	buf := make([]byte, BaseMessageHeaderLen)
	binary.BigEndian.PutUint16(buf, uint16(Heartbeat))
	return buf
}

type Report struct {
	MessageType ReportMessageType // 1 byte
	Side        uint8             // 1 byte, book side or trade direction
	Timestamp   uint64            // 8 bytes, unix ms
	Quantity    uint64            // 8 bytes
	Price       float64           // 8 bytes
	BidShare    float64           // 8 bytes
	AskShare    float64           // 8 bytes
	ErrStrLen   uint32            // 4 bytes
	UUID        uuid.UUID         // 16 bytes
	Err         string            // n bytes
}

const ReportFixedHeaderLen = 1 + 1 + 8 + 8 + 8 + 8 + 8 + 4 + 16

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() []byte {
	buf := make([]byte, ReportFixedHeaderLen+len(r.Err))
	buf[0] = byte(r.MessageType)
	buf[1] = r.Side
	binary.BigEndian.PutUint64(buf[2:10], r.Timestamp)
	binary.BigEndian.PutUint64(buf[10:18], r.Quantity)
	binary.BigEndian.PutUint64(buf[18:26], math.Float64bits(r.Price))
	binary.BigEndian.PutUint64(buf[26:34], math.Float64bits(r.BidShare))
	binary.BigEndian.PutUint64(buf[34:42], math.Float64bits(r.AskShare))
	binary.BigEndian.PutUint32(buf[42:46], uint32(len(r.Err)))
	copy(buf[46:62], r.UUID[:])
	copy(buf[ReportFixedHeaderLen:], r.Err)
	return buf
}

// ReadReport reads one report off the wire.
func ReadReport(rd io.Reader) (Report, error) {
	buf := make([]byte, ReportFixedHeaderLen)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return Report{}, err
	}
	r := Report{
		MessageType: ReportMessageType(buf[0]),
		Side:        buf[1],
		Timestamp:   binary.BigEndian.Uint64(buf[2:10]),
		Quantity:    binary.BigEndian.Uint64(buf[10:18]),
		Price:       math.Float64frombits(binary.BigEndian.Uint64(buf[18:26])),
		BidShare:    math.Float64frombits(binary.BigEndian.Uint64(buf[26:34])),
		AskShare:    math.Float64frombits(binary.BigEndian.Uint64(buf[34:42])),
		ErrStrLen:   binary.BigEndian.Uint32(buf[42:46]),
	}
	copy(r.UUID[:], buf[46:62])
	if r.ErrStrLen > 0 {
		errBuf := make([]byte, r.ErrStrLen)
		if _, err := io.ReadFull(rd, errBuf); err != nil {
			return Report{}, err
		}
		r.Err = string(errBuf)
	}
	return r, nil
}

func generateAckReport(order Order) (Report, error) {
	id, err := uuid.Parse(order.ID)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidUUID, err)
	}
	price, _ := order.Price.Float64()
	return Report{
		MessageType: AckReport,
		Side:        uint8(order.Side),
		Timestamp:   uint64(order.Timestamp.UnixMilli()),
		Quantity:    order.Quantity,
		Price:       price,
		UUID:        id,
	}, nil
}

func generateTradeReport(trade Trade) (Report, error) {
	id, err := uuid.Parse(trade.ID)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidUUID, err)
	}
	price, _ := trade.Price.Float64()
	return Report{
		MessageType: TradeReport,
		Side:        uint8(trade.Direction),
		Timestamp:   uint64(trade.Timestamp.UnixMilli()),
		Quantity:    trade.Quantity,
		Price:       price,
		UUID:        id,
	}, nil
}

func generateDepthReport(depth book.Depth, now time.Time) Report {
	return Report{
		MessageType: DepthReport,
		Timestamp:   uint64(now.UnixMilli()),
		Quantity:    depth.AskSum + depth.BidSum,
		BidShare:    depth.BidShare,
		AskShare:    depth.AskShare,
	}
}

func generateErrorReport(err error, now time.Time) Report {
	return Report{
		MessageType: ErrorReport,
		Timestamp:   uint64(now.UnixMilli()),
		Err:         err.Error(),
	}
}
