// Package frame implements the wire format shared by the sender and
// receiver engines: fixed-size DATA frames and cumulative+selective ACK
// frames, each protected by a one-byte XOR header checksum.
package frame

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies the frame type carried in the first wire byte.
type Kind uint8

const (
	KindData Kind = 0x00
	KindAck  Kind = 0x01
)

const (
	// DataHeaderSize is kind(1) + seq(2) + total(2) + xor(1).
	DataHeaderSize = 6
	// AckHeaderSize is kind(1) + base(2) + bitmap(8) + xor(1).
	AckHeaderSize = 12

	// BitmapWidth is the number of selective-ack bits carried by an
	// ACK frame. Bit i is set iff sequence base+i has been buffered
	// out of order; bit 0 is always 0 (that slot is the cumulative
	// base itself).
	BitmapWidth = 64
)

// ErrInvalid is returned for any frame that is too short, carries an
// unrecognized kind byte, or fails its header integrity check. Callers
// treat ErrInvalid as "silently discard" per the protocol's error
// handling design — it is never fatal to a transfer.
var ErrInvalid = fmt.Errorf("frame: invalid")

// Data is a decoded DATA frame.
type Data struct {
	Seq     uint16
	Total   uint16
	Payload []byte
}

// Ack is a decoded ACK frame.
type Ack struct {
	Base   uint16
	Bitmap uint64
}

// EncodeData serializes a DATA frame. Payload bytes are masked to
// their low 8 bits before being copied so a channel that widens octets
// into signed machine words cannot corrupt the frame it builds.
func EncodeData(seq, total uint16, payload []byte) []byte {
	buf := make([]byte, DataHeaderSize+len(payload))
	buf[0] = byte(KindData)
	binary.BigEndian.PutUint16(buf[1:3], seq)
	binary.BigEndian.PutUint16(buf[3:5], total)
	buf[5] = xorHeader(buf[1:5])
	for i, b := range payload {
		buf[DataHeaderSize+i] = b & 0xFF
	}
	return buf
}

// EncodeAck serializes an ACK frame. bitmap bit 0 is cleared
// unconditionally: it would describe the packet at base itself, which
// the cumulative base already covers.
func EncodeAck(base uint16, bitmap uint64) []byte {
	bitmap &^= 1
	buf := make([]byte, AckHeaderSize)
	buf[0] = byte(KindAck)
	binary.BigEndian.PutUint16(buf[1:3], base)
	binary.BigEndian.PutUint64(buf[3:11], bitmap)
	buf[11] = xorHeader(buf[1:11])
	return buf
}

// Decode parses a frame off the wire, returning either a *Data or an
// *Ack. Malformed or corrupted input returns ErrInvalid.
func Decode(b []byte) (interface{}, error) {
	if len(b) < 1 {
		return nil, ErrInvalid
	}
	switch Kind(b[0]) {
	case KindData:
		if len(b) < DataHeaderSize {
			return nil, ErrInvalid
		}
		if xorHeader(b[1:5]) != b[5] {
			return nil, ErrInvalid
		}
		payload := make([]byte, len(b)-DataHeaderSize)
		copy(payload, b[DataHeaderSize:])
		return &Data{
			Seq:     binary.BigEndian.Uint16(b[1:3]),
			Total:   binary.BigEndian.Uint16(b[3:5]),
			Payload: payload,
		}, nil
	case KindAck:
		if len(b) < AckHeaderSize {
			return nil, ErrInvalid
		}
		if xorHeader(b[1:11]) != b[11] {
			return nil, ErrInvalid
		}
		return &Ack{
			Base:   binary.BigEndian.Uint16(b[1:3]),
			Bitmap: binary.BigEndian.Uint64(b[3:11]),
		}, nil
	default:
		return nil, ErrInvalid
	}
}

// xorHeader is the running XOR of the header bytes that follow the
// kind byte — a single byte flipped anywhere in that span changes it.
func xorHeader(fields []byte) byte {
	var x byte
	for _, b := range fields {
		x ^= b
	}
	return x
}
