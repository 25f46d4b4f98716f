// Package market holds the feed-level data types shared by ingestion, order
// books and analytics.
package market

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

type UpdateType uint8

const (
	Add UpdateType = iota
	Modify
	Delete
)

func (t UpdateType) String() string {
	switch t {
	case Add:
		return "add"
	case Modify:
		return "modify"
	default:
		return "delete"
	}
}

// Update is one market data event. Timestamp is nanoseconds since the epoch;
// Sequence is strictly increasing per feed.
type Update struct {
	Timestamp  int64
	Symbol     string
	Price      float64
	Size       float64
	Side       Side
	Type       UpdateType
	Sequence   uint64
	ExchangeID string
}

func (u Update) Time() time.Time { return time.Unix(0, u.Timestamp) }

// Wire format: fixed 62-byte big-endian frame.
//
//	offset size field
//	     0    8 timestamp (ns)
//	     8    8 price (IEEE 754)
//	    16    8 size (IEEE 754)
//	    24    8 sequence
//	    32    1 side
//	    33    1 update type
//	    34   12 symbol (NUL padded)
//	    46   16 exchange id (NUL padded)
const (
	frameSize      = 62
	symbolWidth    = 12
	exchangeWidth  = 16
	symbolOffset   = 34
	exchangeOffset = symbolOffset + symbolWidth
)

// MarshalBinary encodes the update into the fixed wire frame.
func (u Update) MarshalBinary() ([]byte, error) {
	if len(u.Symbol) > symbolWidth {
		return nil, fmt.Errorf("market: symbol %q exceeds %d bytes", u.Symbol, symbolWidth)
	}
	if len(u.ExchangeID) > exchangeWidth {
		return nil, fmt.Errorf("market: exchange id %q exceeds %d bytes", u.ExchangeID, exchangeWidth)
	}
	b := make([]byte, frameSize)
	binary.BigEndian.PutUint64(b[0:], uint64(u.Timestamp))
	binary.BigEndian.PutUint64(b[8:], math.Float64bits(u.Price))
	binary.BigEndian.PutUint64(b[16:], math.Float64bits(u.Size))
	binary.BigEndian.PutUint64(b[24:], u.Sequence)
	b[32] = byte(u.Side)
	b[33] = byte(u.Type)
	copy(b[symbolOffset:symbolOffset+symbolWidth], u.Symbol)
	copy(b[exchangeOffset:exchangeOffset+exchangeWidth], u.ExchangeID)
	return b, nil
}

// UnmarshalBinary decodes a wire frame produced by MarshalBinary.
func (u *Update) UnmarshalBinary(b []byte) error {
	if len(b) != frameSize {
		return fmt.Errorf("market: frame is %d bytes, want %d", len(b), frameSize)
	}
	side := Side(b[32])
	if side != Bid && side != Ask {
		return fmt.Errorf("market: invalid side %d", b[32])
	}
	typ := UpdateType(b[33])
	if typ > Delete {
		return fmt.Errorf("market: invalid update type %d", b[33])
	}
	u.Timestamp = int64(binary.BigEndian.Uint64(b[0:]))
	u.Price = math.Float64frombits(binary.BigEndian.Uint64(b[8:]))
	u.Size = math.Float64frombits(binary.BigEndian.Uint64(b[16:]))
	u.Sequence = binary.BigEndian.Uint64(b[24:])
	u.Side = side
	u.Type = typ
	u.Symbol = trimNUL(b[symbolOffset : symbolOffset+symbolWidth])
	u.ExchangeID = trimNUL(b[exchangeOffset : exchangeOffset+exchangeWidth])
	return nil
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
