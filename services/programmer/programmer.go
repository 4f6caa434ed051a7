// Package programmer is the host command state machine. It owns the single
// programming session, executes immediate commands, and streams flash and
// EEPROM bytes through the avrhv engine in bounded chunks.
//
// The host transport calls Setup once per command header, then Read or
// Write repeatedly while a data phase is open:
//
//	r, err := p.Setup(h)
//	if r.DataPhase {
//		n, err := p.Read(buf[:8]) // a short chunk ends the transfer
//	}
//
// A Programmer is not safe for concurrent use; all calls must come from the
// one goroutine serving the host link.
package programmer

import (
	"errors"
	"time"

	"avrprog-go/drivers/avrhv"
	"avrprog-go/x/mathx"
	"avrprog-go/x/timex"
)

var (
	// ErrOutOfState is returned by a data phase call with no matching
	// streaming command open.
	ErrOutOfState = errors.New("programmer: out of state")
	// ErrUnknownCommand is returned by Setup for unrecognised function codes.
	ErrUnknownCommand = errors.New("programmer: unknown command")
)

// TPI is the collaborator serving the tiny programming interface commands.
type TPI interface {
	Connect(delay uint16)
	Disconnect()
	ReadBlock(addr uint16, p []byte)
	WriteBlock(addr uint16, p []byte)
}

// Session is the programming session: the engine's per-target state plus
// the streaming command in progress.
type Session struct {
	avrhv.Session

	State State
	// Address is the cursor of the streaming operation.
	Address uint32
	// Remaining counts bytes left in the streaming operation.
	Remaining uint32
	// PageCounter counts words left before the next page flush. It never
	// exceeds PageSize.
	PageCounter uint16
	Flags       byte
	// LongAddress is set by set-long-address until the next connect or
	// disconnect.
	LongAddress bool
	// SCK is the clock option (0 = auto, 1..12 = 500 Hz .. 1.5 MHz).
	SCK byte
	// Err is the last engine error of the current command or stream.
	Err error
}

// SetupResult is the reply to one command header.
type SetupResult struct {
	// Reply holds the immediate reply bytes. It aliases an internal buffer
	// valid until the next call.
	Reply []byte
	// DataPhase is set when Read or Write calls follow.
	DataPhase bool
}

// Programmer executes host commands against one engine.
type Programmer struct {
	eng   *avrhv.Engine
	tpi   TPI
	s     Session
	reply [8]byte
}

// New returns an idle programmer. tpi may be nil.
func New(eng *avrhv.Engine, tpi TPI) *Programmer {
	return &Programmer{eng: eng, tpi: tpi}
}

// Session exposes the session for status reporting. Callers must not
// mutate it.
func (p *Programmer) Session() *Session { return &p.s }

// Setup executes one command header.
func (p *Programmer) Setup(h Header) (SetupResult, error) {
	s := &p.s
	s.Err = nil
	switch h.Func() {
	case FuncConnect:
		s.LongAddress = false
		s.BitDelay = halfBitDelay(s.SCK)
		p.eng.Connect(&s.Session)

	case FuncDisconnect:
		p.disconnect()

	case FuncTransmit:
		r := p.transmit(h.ISP())
		return p.replyWith(r[:]...), nil

	case FuncEnableProg:
		if _, err := p.eng.EnterProgrammingMode(&s.Session); err != nil {
			p.note(err)
			return p.replyWith(StatusNoDevice), nil
		}
		return p.replyWith(StatusOK), nil

	case FuncReadFlash:
		p.beginStream(h, ReadingFlash)
		return SetupResult{DataPhase: true}, nil

	case FuncReadEEPROM:
		p.beginStream(h, ReadingEEPROM)
		return SetupResult{DataPhase: true}, nil

	case FuncWriteFlash:
		p.beginStream(h, WritingFlash)
		ps := h.PageSize()
		s.Flags = h.BlockFlags()
		if s.Flags&BlockFirst != 0 {
			p.eng.BeginFlashWrite(&s.Session, ps)
			s.PageCounter = ps
		} else {
			s.PageSize = ps
			s.PageCounter = mathx.Min(s.PageCounter, ps)
		}
		return SetupResult{DataPhase: true}, nil

	case FuncWriteEEPROM:
		p.beginStream(h, WritingEEPROM)
		s.PageSize = 0
		s.PageCounter = 0
		s.Flags = 0
		return SetupResult{DataPhase: true}, nil

	case FuncSetLongAddress:
		s.LongAddress = true
		s.Address = h.LongAddress()

	case FuncSetISPSCK:
		s.SCK = h[2]
		s.BitDelay = halfBitDelay(s.SCK)
		return p.replyWith(0), nil

	case FuncTPIConnect:
		if p.tpi != nil {
			p.tpi.Connect(uint16(h[2]) | uint16(h[3])<<8)
		}

	case FuncTPIDisconnect:
		if p.tpi != nil {
			p.tpi.Disconnect()
		}

	case FuncTPIReadBlock, FuncTPIWriteBlock:
		if p.tpi == nil {
			break
		}
		st := TPIReading
		if h.Func() == FuncTPIWriteBlock {
			st = TPIWriting
		}
		s.Address = h.ShortAddress()
		s.Remaining = uint32(h.Length())
		s.State = st
		return SetupResult{DataPhase: true}, nil

	case FuncGetCapabilities:
		var caps byte
		if p.tpi != nil {
			caps |= CapTPI
		}
		return p.replyWith(caps, 0, 0, 0), nil

	default:
		return SetupResult{}, ErrUnknownCommand
	}
	return SetupResult{}, nil
}

func (p *Programmer) replyWith(b ...byte) SetupResult {
	n := copy(p.reply[:], b)
	return SetupResult{Reply: p.reply[:n]}
}

// beginStream captures the address and length of a streaming command. In
// long-address mode the address set earlier is kept.
func (p *Programmer) beginStream(h Header, st State) {
	s := &p.s
	if !s.LongAddress {
		s.Address = h.ShortAddress()
	}
	s.Remaining = uint32(h.Length())
	s.State = st
}

// disconnect drops the target and every transient field. A pending page is
// abandoned, not flushed.
func (p *Programmer) disconnect() {
	s := &p.s
	p.eng.Disconnect(&s.Session)
	sck := s.SCK
	bd := s.BitDelay
	*s = Session{SCK: sck}
	s.BitDelay = bd
}

// sckHz is the USBasp clock option table.
var sckHz = [...]uint32{
	1:  500,
	2:  1_000,
	3:  2_000,
	4:  4_000,
	5:  8_000,
	6:  16_000,
	7:  32_000,
	8:  93_750,
	9:  187_500,
	10: 375_000,
	11: 750_000,
	12: 1_500_000,
}

// halfBitDelay maps a clock option to the serial half-bit time, floored at
// one microsecond. Auto and unknown options run at the floor.
func halfBitDelay(opt byte) time.Duration {
	if int(opt) >= len(sckHz) || sckHz[opt] == 0 {
		return time.Microsecond
	}
	d := timex.PeriodFromHz(sckHz[opt]) / 2
	return mathx.Max(d, time.Microsecond)
}
