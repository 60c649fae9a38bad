package pairing

import (
	"encoding/binary"

	"github.com/msoodb/nrf24"
)

// Magic prefixes every pairing frame.
const Magic uint16 = 0xABCD

// FrameLen is the encoded size: magic, type, board id, address.
const FrameLen = 2 + 1 + 4 + 5

type MsgType uint8

const (
	Request MsgType = iota + 1
	Accept
	Confirm
)

func (t MsgType) String() string {
	switch t {
	case Request:
		return "request"
	case Accept:
		return "accept"
	case Confirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// Message is one step of the handshake. Address is the sender's own address.
type Message struct {
	Type    MsgType
	BoardID BoardID
	Address nrf24.Address
}

// Encode returns the over-the-air frame.
func (m Message) Encode() [FrameLen]byte {
	var b [FrameLen]byte
	binary.BigEndian.PutUint16(b[0:2], Magic)
	b[2] = byte(m.Type)
	copy(b[3:7], m.BoardID[:])
	copy(b[7:12], m.Address[:])
	return b
}

// Decode parses the first FrameLen bytes of b. Trailing bytes (padding of
// fixed width payloads) are ignored.
func Decode(b []byte) (Message, bool) {
	if !IsFrame(b) {
		return Message{}, false
	}
	var m Message
	m.Type = MsgType(b[2])
	copy(m.BoardID[:], b[3:7])
	copy(m.Address[:], b[7:12])
	return m, true
}

// IsFrame reports whether b is long enough and starts with Magic.
func IsFrame(b []byte) bool {
	return len(b) >= FrameLen && binary.BigEndian.Uint16(b) == Magic
}
