package avrhv

import "errors"

// DeviceType is the programming interface a detected target exposes.
type DeviceType uint8

const (
	DeviceNone DeviceType = iota
	DeviceFullBus
	DeviceShortBus
	DeviceSerialHV
)

func (d DeviceType) String() string {
	switch d {
	case DeviceFullBus:
		return "full_bus"
	case DeviceShortBus:
		return "short_bus"
	case DeviceSerialHV:
		return "serial_hv"
	default:
		return "none"
	}
}

// Errors returned by the engine.
var (
	ErrNoDevice    = errors.New("avrhv: no device detected")
	ErrBusyTimeout = errors.New("avrhv: busy timeout")
)

// Outcome reports how a bounded wait ended.
type Outcome uint8

const (
	Completed Outcome = iota
	TimedOut
)

func (o Outcome) err() error {
	if o == TimedOut {
		return ErrBusyTimeout
	}
	return nil
}

// Transport encodes every register load, address load and data exchange
// for one wire variant. It is chosen once by detection; callers above it
// never branch on the device type.
type Transport interface {
	Type() DeviceType

	ReadSignature(index byte) byte

	// ReadFlash returns the byte at addr. loadExt asks the transport to
	// issue the extended address load for addr's high segment first.
	ReadFlash(addr uint32, loadExt bool) byte
	// BeginPage (re)issues the write-flash command ahead of page loads.
	BeginPage()
	// LoadWord latches one flash word into the target's page buffer.
	LoadWord(addr uint32, lo, hi byte)
	// WritePage commits the page buffer holding addr.
	WritePage(addr uint32, loadExt bool) Outcome

	HasEEPROM() bool
	ReadEEPROM(addr uint16) byte
	WriteEEPROM(addr uint16, b byte) Outcome

	ReadFuse(k FuseKind) byte
	WriteFuse(k FuseKind, v byte) Outcome
	ChipErase() Outcome
}

// noTransport stands in until detection succeeds: reads float high and
// writes go nowhere.
type noTransport struct{}

func (noTransport) Type() DeviceType                 { return DeviceNone }
func (noTransport) ReadSignature(byte) byte          { return 0xFF }
func (noTransport) ReadFlash(uint32, bool) byte      { return 0xFF }
func (noTransport) BeginPage()                       {}
func (noTransport) LoadWord(uint32, byte, byte)      {}
func (noTransport) WritePage(uint32, bool) Outcome   { return Completed }
func (noTransport) HasEEPROM() bool                  { return false }
func (noTransport) ReadEEPROM(uint16) byte           { return 0xFF }
func (noTransport) WriteEEPROM(uint16, byte) Outcome { return Completed }
func (noTransport) ReadFuse(FuseKind) byte           { return 0xFF }
func (noTransport) WriteFuse(FuseKind, byte) Outcome { return Completed }
func (noTransport) ChipErase() Outcome               { return Completed }
