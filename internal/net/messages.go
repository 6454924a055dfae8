// Package net is the wire-level adapter the CLI demo server and client use
// to drive an orderbook.Market over a TCP connection. It plays the same
// role as the teacher project's internal/net package — a fixed binary
// framing plus a worker-pool-backed server loop — generalized from the
// teacher's single-asset equity ticker onto this engine's add_order/
// cancel_order/crank surface (§4.1). It is explicitly not part of the core
// spec (§1 lists network transport as a non-goal); it exists only so the
// matching engine has a runnable demonstration harness.
package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
)

type ReportMessageType uint8

const (
	ExecutionReport ReportMessageType = iota
	FinalizeReport
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

const (
	BaseMessageHeaderLen = 2
	// Side(1) + Behavior(1) + Price(8) + Qty(8) + ClientOrderID(8) +
	// MarketBuyMaxCollateral(8) + OwnerLen(1).
	NewOrderMessageHeaderLen = 1 + 1 + 8 + 8 + 8 + 8 + 1
	// OrderID(4).
	CancelOrderMessageHeaderLen = 4
)

type BaseMessage struct {
	TypeOf MessageType
}

func (m BaseMessage) GetType() MessageType { return m.TypeOf }

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(body)
	case CancelOrder:
		return parseCancelOrder(body)
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// NewOrderMessage is the wire form of add_order's arguments (§4.1). The
// caller identifies themselves purely by an owner name; the server maps
// that onto an AccountKey under its own protocol address.
type NewOrderMessage struct {
	BaseMessage
	Side                   common.Side
	Behavior               common.Behavior
	Price                  uint64
	Qty                    uint64
	ClientOrderID          uint64
	MarketBuyMaxCollateral uint64
	Owner                  string
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < NewOrderMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	m.Side = common.Side(msg[0])
	m.Behavior = common.Behavior(msg[1])
	m.Price = binary.BigEndian.Uint64(msg[2:10])
	m.Qty = binary.BigEndian.Uint64(msg[10:18])
	m.ClientOrderID = binary.BigEndian.Uint64(msg[18:26])
	m.MarketBuyMaxCollateral = binary.BigEndian.Uint64(msg[26:34])
	ownerLen := int(msg[34])
	if len(msg) < NewOrderMessageHeaderLen+ownerLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Owner = string(msg[35 : 35+ownerLen])
	return m, nil
}

// EncodeNewOrder builds the wire bytes for a NewOrderMessage; used by the
// CLI client.
func EncodeNewOrder(side common.Side, behavior common.Behavior, price, qty fixedpoint.FP, clientOrderID uint64, marketBuyMaxCollateral fixedpoint.FP, owner string) []byte {
	buf := make([]byte, BaseMessageHeaderLen+NewOrderMessageHeaderLen+len(owner))
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	buf[2] = byte(side)
	buf[3] = byte(behavior)
	binary.BigEndian.PutUint64(buf[4:12], price.Raw)
	binary.BigEndian.PutUint64(buf[12:20], qty.Raw)
	binary.BigEndian.PutUint64(buf[20:28], clientOrderID)
	binary.BigEndian.PutUint64(buf[28:36], marketBuyMaxCollateral.Raw)
	buf[36] = uint8(len(owner))
	copy(buf[37:], owner)
	return buf
}

// CancelOrderMessage is the wire form of cancel_order's arguments.
type CancelOrderMessage struct {
	BaseMessage
	OrderID uint32
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	if len(msg) < CancelOrderMessageHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	return CancelOrderMessage{
		BaseMessage: BaseMessage{TypeOf: CancelOrder},
		OrderID:     binary.BigEndian.Uint32(msg[0:4]),
	}, nil
}

// EncodeCancelOrder builds the wire bytes for a CancelOrderMessage.
func EncodeCancelOrder(orderID uint32) []byte {
	buf := make([]byte, BaseMessageHeaderLen+CancelOrderMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	binary.BigEndian.PutUint32(buf[2:6], orderID)
	return buf
}

// Report is the wire form of the three §6 indexing/price events, flattened
// into one envelope the demo client can decode without knowing which
// concrete event produced it.
type Report struct {
	MessageType   ReportMessageType
	Price         uint64
	Qty           uint64
	TimestampSecs int64
	Err           string
}

const reportFixedHeaderLen = 1 + 8 + 8 + 8 + 4

func (r *Report) Serialize() []byte {
	buf := make([]byte, reportFixedHeaderLen+len(r.Err))
	buf[0] = byte(r.MessageType)
	binary.BigEndian.PutUint64(buf[1:9], r.Price)
	binary.BigEndian.PutUint64(buf[9:17], r.Qty)
	binary.BigEndian.PutUint64(buf[17:25], uint64(r.TimestampSecs))
	binary.BigEndian.PutUint32(buf[25:29], uint32(len(r.Err)))
	copy(buf[29:], r.Err)
	return buf
}

func ParseReport(buf []byte) (Report, error) {
	if len(buf) < reportFixedHeaderLen {
		return Report{}, ErrMessageTooShort
	}
	r := Report{
		MessageType:   ReportMessageType(buf[0]),
		Price:         binary.BigEndian.Uint64(buf[1:9]),
		Qty:           binary.BigEndian.Uint64(buf[9:17]),
		TimestampSecs: int64(binary.BigEndian.Uint64(buf[17:25])),
	}
	errLen := int(binary.BigEndian.Uint32(buf[25:29]))
	if len(buf) < reportFixedHeaderLen+errLen {
		return Report{}, ErrMessageTooShort
	}
	r.Err = string(buf[29 : 29+errLen])
	return r, nil
}

func executionReport(e common.IndexingExecutionEvent) Report {
	return Report{MessageType: ExecutionReport, Price: e.Price, Qty: e.Qty, TimestampSecs: e.TimestampSecs}
}

func finalizeReport(e common.IndexingFinalizeEvent) Report {
	return Report{MessageType: FinalizeReport, Price: e.Price, Qty: e.OriginalQty, TimestampSecs: e.TimestampSecs}
}

func errorReport(err error) Report {
	return Report{MessageType: ErrorReport, TimestampSecs: time.Now().Unix(), Err: fmt.Sprint(err)}
}
