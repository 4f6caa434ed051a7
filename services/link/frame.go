// Package link carries programmer commands over a byte stream (UART, USB
// CDC, tty). Each message is one frame:
//
//	0x55 | type | len | payload[len] | crc16 (big-endian)
//
// The CRC is CRC-16/CCITT-FALSE over type, len and payload. Payloads are at
// most 8 bytes, the host packet size of the command set.
package link

import (
	"errors"

	"github.com/sigurn/crc16"
)

const (
	Sync       = 0x55
	MaxPayload = 8

	frameOverhead = 5
	maxFrame      = frameOverhead + MaxPayload
)

// FrameType tags a frame. Host-to-programmer types have the top bit clear.
type FrameType byte

const (
	TypeSetup FrameType = 0x01 // 8-byte command header
	TypeIn    FrameType = 0x02 // 1 byte: requested chunk length
	TypeOut   FrameType = 0x03 // up to 8 data bytes

	TypeReply FrameType = 0x81 // immediate reply bytes
	TypeData  FrameType = 0x82 // read chunk
	TypeAck   FrameType = 0x83 // 1 byte: 0 = more, 1 = complete
	TypeErr   FrameType = 0xFF // 1 byte: status
)

func (t FrameType) String() string {
	switch t {
	case TypeSetup:
		return "setup"
	case TypeIn:
		return "in"
	case TypeOut:
		return "out"
	case TypeReply:
		return "reply"
	case TypeData:
		return "data"
	case TypeAck:
		return "ack"
	case TypeErr:
		return "err"
	default:
		return "unknown"
	}
}

// Status bytes carried by TypeErr frames.
const (
	StatusOutOfState     byte = 0xFF
	StatusBadFrame       byte = 0xFE
	StatusCRCMismatch    byte = 0xFD
	StatusUnknownCommand byte = 0xFC
)

var (
	ErrTooLong  = errors.New("link: payload too long")
	ErrBadFrame = errors.New("link: bad frame")
	ErrCRC      = errors.New("link: crc mismatch")
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Frame is one decoded frame. Payload aliases the decoder's buffer and is
// valid until the next Feed.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// AppendFrame encodes one frame onto dst.
func AppendFrame(dst []byte, t FrameType, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return dst, ErrTooLong
	}
	start := len(dst)
	dst = append(dst, Sync, byte(t), byte(len(payload)))
	dst = append(dst, payload...)
	sum := crc16.Checksum(dst[start+1:], crcTable)
	return append(dst, byte(sum>>8), byte(sum)), nil
}

// decoder states
const (
	stHunt = iota
	stType
	stLen
	stPayload
	stCRCHi
	stCRCLo
)

// Decoder reassembles frames from a byte stream. After an error it hunts
// for the next sync byte.
type Decoder struct {
	st   int
	buf  [maxFrame]byte
	n    int // bytes of type|len|payload held in buf
	want int // payload bytes still expected
	crc  uint16
}

// Feed consumes one byte. It returns a frame once one is complete, or an
// error when the bytes so far cannot form a valid frame.
func (d *Decoder) Feed(b byte) (Frame, bool, error) {
	switch d.st {
	case stHunt:
		if b == Sync {
			d.st, d.n = stType, 0
		}
	case stType:
		d.buf[0], d.n = b, 1
		d.st = stLen
	case stLen:
		if int(b) > MaxPayload {
			d.st = stHunt
			return Frame{}, false, ErrBadFrame
		}
		d.buf[1], d.n = b, 2
		d.want = int(b)
		d.st = stPayload
		if d.want == 0 {
			d.st = stCRCHi
		}
	case stPayload:
		d.buf[d.n] = b
		d.n++
		d.want--
		if d.want == 0 {
			d.st = stCRCHi
		}
	case stCRCHi:
		d.crc = uint16(b) << 8
		d.st = stCRCLo
	case stCRCLo:
		d.crc |= uint16(b)
		d.st = stHunt
		if crc16.Checksum(d.buf[:d.n], crcTable) != d.crc {
			return Frame{}, false, ErrCRC
		}
		return Frame{Type: FrameType(d.buf[0]), Payload: d.buf[2:d.n]}, true, nil
	}
	return Frame{}, false, nil
}

// Reset drops any partial frame.
func (d *Decoder) Reset() { d.st = stHunt }
