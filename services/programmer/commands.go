// services/programmer/commands.go
package programmer

import "encoding/binary"

// Host function codes (USBasp numbering).
const (
	FuncConnect         byte = 1
	FuncDisconnect      byte = 2
	FuncTransmit        byte = 3
	FuncReadFlash       byte = 4
	FuncEnableProg      byte = 5
	FuncWriteFlash      byte = 6
	FuncReadEEPROM      byte = 7
	FuncWriteEEPROM     byte = 8
	FuncSetLongAddress  byte = 9
	FuncSetISPSCK       byte = 10
	FuncTPIConnect      byte = 11
	FuncTPIDisconnect   byte = 12
	FuncTPIRawRead      byte = 13
	FuncTPIRawWrite     byte = 14
	FuncTPIReadBlock    byte = 15
	FuncTPIWriteBlock   byte = 16
	FuncGetCapabilities byte = 127
)

// Block flags carried in header byte 5, bits 3..0.
const (
	BlockFirst byte = 1 << 0
	BlockLast  byte = 1 << 1
)

// Capability bits, reply byte 0.
const CapTPI byte = 1 << 0

// ChunkSize is the fixed host packet size bounding one data phase call.
const ChunkSize = 8

// OutOfState is the status byte reported for a data phase with no
// matching streaming command.
const OutOfState byte = 0xFF

// Mode entry status bytes.
const (
	StatusOK       byte = 0
	StatusNoDevice byte = 1
)

// Header is the 8-byte command header. Byte 1 is the function code.
type Header [8]byte

func (h Header) Func() byte { return h[1] }

// ShortAddress is the legacy 16-bit address in bytes 2..3.
func (h Header) ShortAddress() uint32 { return uint32(binary.LittleEndian.Uint16(h[2:4])) }

// LongAddress is the 32-bit address of set-long-address in bytes 2..5.
func (h Header) LongAddress() uint32 { return binary.LittleEndian.Uint32(h[2:6]) }

// PageSize is byte 4 plus the high nibble of byte 5 as bits 11..8.
func (h Header) PageSize() uint16 { return uint16(h[4]) | uint16(h[5]&0xF0)<<4 }

func (h Header) BlockFlags() byte { return h[5] & 0x0F }

// Length is the transfer length in bytes 6..7.
func (h Header) Length() uint16 { return binary.LittleEndian.Uint16(h[6:8]) }

// ISP returns the 4-byte ISP instruction carried by transmit.
func (h Header) ISP() [4]byte { return [4]byte{h[2], h[3], h[4], h[5]} }

// NewHeader builds a header for an addressed or length-bearing command.
func NewHeader(fn byte, addr uint16, pageSize uint16, flags byte, length uint16) Header {
	var h Header
	h[1] = fn
	binary.LittleEndian.PutUint16(h[2:4], addr)
	h[4] = byte(pageSize)
	h[5] = flags&0x0F | byte(pageSize>>4)&0xF0
	binary.LittleEndian.PutUint16(h[6:8], length)
	return h
}

// LongAddressHeader builds a set-long-address header.
func LongAddressHeader(addr uint32) Header {
	var h Header
	h[1] = FuncSetLongAddress
	binary.LittleEndian.PutUint32(h[2:6], addr)
	return h
}

// State is the streaming state of a session.
type State uint8

const (
	Idle State = iota
	ReadingFlash
	ReadingEEPROM
	WritingFlash
	WritingEEPROM
	TPIReading
	TPIWriting
)

func (s State) String() string {
	switch s {
	case ReadingFlash:
		return "read_flash"
	case ReadingEEPROM:
		return "read_eeprom"
	case WritingFlash:
		return "write_flash"
	case WritingEEPROM:
		return "write_eeprom"
	case TPIReading:
		return "tpi_read"
	case TPIWriting:
		return "tpi_write"
	default:
		return "idle"
	}
}

func (s State) reading() bool { return s == ReadingFlash || s == ReadingEEPROM || s == TPIReading }
func (s State) writing() bool { return s == WritingFlash || s == WritingEEPROM || s == TPIWriting }
