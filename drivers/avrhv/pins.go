// Package avrhv drives AVR targets through their high-voltage programming
// interfaces: the parallel bus (full and short pin-count variants) and the
// bit-banged high-voltage serial link (HVSP).
//
// The package never touches hardware directly. Every line change goes
// through a Pins implementation and every mandated delay through a Clock,
// so the same engine runs against GPIOs, an I²C expander or a simulated
// target:
//
//	e := avrhv.New(pins, avrhv.SystemClock{}, avrhv.DefaultConfig())
//	var s avrhv.Session
//	e.Connect(&s)
//	if _, err := e.EnterProgrammingMode(&s); err != nil { ... }
//	b := e.ReadFlash(&s, 0x0000)
//
// A Session holds all mutable programming state and is owned by exactly one
// caller; the engine itself is stateless between calls.
package avrhv

import "time"

// Line names one control signal between the programmer and the target.
type Line uint8

const (
	LineVDD   Line = iota // target supply enable
	LineVPP               // 12 V onto RESET
	LineXTAL1             // load strobe (parallel)
	LineXA0
	LineXA1
	LineBS1
	LineBS2
	LinePAGEL
	LineWR // active low
	LineOE // active low
	LineSCI
	LineSDI
	LineSII
	LineSDO // target output; read-only from our side after entry

	NumLines
)

var lineNames = [NumLines]string{
	"vdd", "vpp", "xtal1", "xa0", "xa1", "bs1", "bs2", "pagel", "wr", "oe",
	"sci", "sdi", "sii", "sdo",
}

func (l Line) String() string {
	if l < NumLines {
		return lineNames[l]
	}
	return "invalid"
}

// ParseLine maps a line name back to its Line. Used by board configs.
func ParseLine(s string) (Line, bool) {
	for i, n := range lineNames {
		if n == s {
			return Line(i), true
		}
	}
	return 0, false
}

// Pins is the line-level capability the transports drive.
//
// Implementations must apply calls in order and must not coalesce them; the
// protocol timing lives in the caller.
type Pins interface {
	// SetLine drives l as an output at the given level.
	SetLine(l Line, high bool)
	// ReadLine samples l as an input.
	ReadLine(l Line) bool
	// WriteBus switches the 8-bit data bus to output and drives b.
	WriteBus(b byte)
	// ReadBus switches the data bus to input and samples it.
	ReadBus() byte
	// ReleaseBus tri-states the data bus (SDO included where it shares a bus pin).
	ReleaseBus()
	// Release tri-states every line and the data bus.
	Release()
}

// Clock supplies the blocking delays mandated by the electrical timing.
type Clock interface {
	Sleep(d time.Duration)
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
func (SystemClock) Now() time.Time        { return time.Now() }
