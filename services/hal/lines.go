// services/hal/lines.go
package hal

import (
	"errors"
	"strconv"

	"avrprog-go/drivers/avrhv"
	"avrprog-go/types"
)

const (
	modeUnknown int8 = iota
	modeOut
	modeIn
)

// line is one physical pin. Programming lines that share a pin number share
// the same line, so mode changes stay coherent.
type line struct {
	pin  GPIOPin
	mode int8
}

// output drives the line. A failed configure leaves the mode unknown so the
// next access retries it.
func (ln *line) output(high bool) error {
	if ln.mode != modeOut {
		if err := ln.pin.ConfigureOutput(high); err != nil {
			ln.mode = modeUnknown
			return err
		}
		ln.mode = modeOut
		return nil
	}
	ln.pin.Set(high)
	return nil
}

func (ln *line) input() error {
	if ln.mode != modeIn {
		if err := ln.pin.ConfigureInput(PullNone); err != nil {
			ln.mode = modeUnknown
			return err
		}
		ln.mode = modeIn
	}
	return nil
}

// Lines binds the programming lines of a board to GPIO pins and implements
// avrhv.Pins. Unwired lines ignore writes and read low.
type Lines struct {
	ctl  [avrhv.NumLines]*line
	data [8]*line
	all  []*line

	// Set when D0..D7 are bits 0..7 of one port.
	port Port

	err error
}

var _ avrhv.Pins = (*Lines)(nil)

// NewLines resolves every configured pin through f.
func NewLines(f PinFactory, bc types.BoardConfig) (*Lines, error) {
	ls := &Lines{}
	byNum := make(map[int]*line)
	get := func(n int) (*line, error) {
		if n <= types.PinUnwired {
			return nil, nil
		}
		if ln, ok := byNum[n]; ok {
			return ln, nil
		}
		p, ok := f.ByNumber(n)
		if !ok {
			return nil, detailError{ErrPinUnavailable, strconv.Itoa(n)}
		}
		ln := &line{pin: p}
		byNum[n] = ln
		ls.all = append(ls.all, ln)
		return ln, nil
	}

	for name, n := range bc.Lines {
		l, ok := avrhv.ParseLine(name)
		if !ok {
			return nil, errors.New("hal: unknown line " + strconv.Quote(name))
		}
		ln, err := get(n)
		if err != nil {
			return nil, err
		}
		ls.ctl[l] = ln
	}
	for i, n := range bc.Data {
		ln, err := get(n)
		if err != nil {
			return nil, err
		}
		ls.data[i] = ln
	}
	ls.port = commonPort(ls.data)
	return ls, nil
}

// commonPort returns the port when D0..D7 map in order onto one port.
func commonPort(data [8]*line) Port {
	var port Port
	for i, ln := range data {
		if ln == nil {
			return nil
		}
		pp, ok := ln.pin.(PortPin)
		if !ok || pp.Bit() != uint8(i) {
			return nil
		}
		if i == 0 {
			port = pp.Port()
		} else if pp.Port() != port {
			return nil
		}
	}
	return port
}

// Err returns the first pin or port error seen, if any.
func (ls *Lines) Err() error { return ls.err }

func (ls *Lines) note(err error) {
	if err != nil && ls.err == nil {
		ls.err = err
	}
}

func (ls *Lines) SetLine(l avrhv.Line, high bool) {
	if l >= avrhv.NumLines || ls.ctl[l] == nil {
		return
	}
	ls.note(ls.ctl[l].output(high))
}

func (ls *Lines) ReadLine(l avrhv.Line) bool {
	if l >= avrhv.NumLines || ls.ctl[l] == nil {
		return false
	}
	ln := ls.ctl[l]
	ls.note(ln.input())
	return ln.pin.Get()
}

func (ls *Lines) WriteBus(b byte) {
	if ls.port != nil {
		// Latch first so the bus never drives a stale value.
		ls.note(ls.port.WritePort(b))
		if !ls.dataIn(modeOut) {
			ls.note(ls.port.ConfigurePort(0xFF))
			ls.setDataMode(modeOut)
		}
		return
	}
	for i, ln := range ls.data {
		if ln != nil {
			ls.note(ln.output(b&(1<<i) != 0))
		}
	}
}

func (ls *Lines) ReadBus() byte {
	if ls.port != nil {
		if !ls.dataIn(modeIn) {
			ls.note(ls.port.ConfigurePort(0x00))
			ls.setDataMode(modeIn)
		}
		v, err := ls.port.ReadPort()
		ls.note(err)
		return v
	}
	var v byte
	for i, ln := range ls.data {
		if ln == nil {
			continue
		}
		ls.note(ln.input())
		if ln.pin.Get() {
			v |= 1 << i
		}
	}
	return v
}

func (ls *Lines) dataIn(m int8) bool {
	for _, ln := range ls.data {
		if ln.mode != m {
			return false
		}
	}
	return true
}

func (ls *Lines) setDataMode(m int8) {
	for _, ln := range ls.data {
		ln.mode = m
	}
}

func (ls *Lines) ReleaseBus() {
	if ls.port != nil {
		if !ls.dataIn(modeIn) {
			ls.note(ls.port.ConfigurePort(0x00))
			ls.setDataMode(modeIn)
		}
	} else {
		for _, ln := range ls.data {
			if ln != nil {
				ls.note(ln.input())
			}
		}
	}
	if sdo := ls.ctl[avrhv.LineSDO]; sdo != nil {
		ls.note(sdo.input())
	}
}

func (ls *Lines) Release() {
	ls.ReleaseBus()
	for _, ln := range ls.all {
		ls.note(ln.input())
	}
}
