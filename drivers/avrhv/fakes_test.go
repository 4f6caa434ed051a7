package avrhv

import "time"

// fakeClock advances only when slept on.
type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d); c.slept += d }
func (c *fakeClock) Now() time.Time        { return c.now }

// latch is the bus context captured on a rising XTAL1 edge.
type latch struct {
	xa0, xa1, bs1, bs2 bool
	bus                byte
}

// frameBit holds the SII and SDI levels at one rising SCI edge.
type frameBit struct{ sii, sdi bool }

// recPins records line activity and plays back scripted inputs.
type recPins struct {
	level [NumLines]bool
	bus   byte

	latches []latch
	bits    []frameBit
	sets    []level

	sciFalls int
	busReads int
	releases int

	readBus func() byte
	sdo     func(fall int) bool
}

func (p *recPins) SetLine(l Line, high bool) {
	prev := p.level[l]
	p.level[l] = high
	p.sets = append(p.sets, level{l, high})
	switch {
	case l == LineXTAL1 && high && !prev:
		p.latches = append(p.latches, latch{
			xa0: p.level[LineXA0], xa1: p.level[LineXA1],
			bs1: p.level[LineBS1], bs2: p.level[LineBS2],
			bus: p.bus,
		})
	case l == LineSCI && high && !prev:
		p.bits = append(p.bits, frameBit{p.level[LineSII], p.level[LineSDI]})
	case l == LineSCI && !high && prev:
		p.sciFalls++
	}
}

func (p *recPins) ReadLine(l Line) bool {
	if l == LineSDO && p.sdo != nil {
		return p.sdo(p.sciFalls)
	}
	return p.level[l]
}

func (p *recPins) WriteBus(b byte) { p.bus = b }

func (p *recPins) ReadBus() byte {
	p.busReads++
	if p.readBus != nil {
		return p.readBus()
	}
	return 0xFF
}

func (p *recPins) ReleaseBus() {}
func (p *recPins) Release()    { p.releases++ }

// count returns how many times l was driven to high.
func (p *recPins) count(l Line, high bool) int {
	n := 0
	for _, s := range p.sets {
		if s.l == l && s.high == high {
			n++
		}
	}
	return n
}

// serialReply makes SDO shift out v on every 11-clock frame.
func serialReply(v byte) func(int) bool {
	word := uint16(v) << 3
	return func(fall int) bool {
		bit := uint(frameBits - 1 - (fall-1)%frameBits)
		return word>>bit&1 != 0
	}
}

type call struct {
	op      string
	addr    uint32
	a, b    byte
	loadExt bool
	kind    FuseKind
}

// fakeTransport records access layer calls.
type fakeTransport struct {
	typ    DeviceType
	eeprom bool
	calls  []call
	out    Outcome
}

func (f *fakeTransport) Type() DeviceType { return f.typ }
func (f *fakeTransport) ReadSignature(i byte) byte {
	f.calls = append(f.calls, call{op: "sig", a: i})
	return 0x1E
}
func (f *fakeTransport) ReadFlash(addr uint32, loadExt bool) byte {
	f.calls = append(f.calls, call{op: "read", addr: addr, loadExt: loadExt})
	return byte(addr)
}
func (f *fakeTransport) BeginPage() { f.calls = append(f.calls, call{op: "begin"}) }
func (f *fakeTransport) LoadWord(addr uint32, lo, hi byte) {
	f.calls = append(f.calls, call{op: "load", addr: addr, a: lo, b: hi})
}
func (f *fakeTransport) WritePage(addr uint32, loadExt bool) Outcome {
	f.calls = append(f.calls, call{op: "commit", addr: addr, loadExt: loadExt})
	return f.out
}
func (f *fakeTransport) HasEEPROM() bool { return f.eeprom }
func (f *fakeTransport) ReadEEPROM(addr uint16) byte {
	f.calls = append(f.calls, call{op: "eeread", addr: uint32(addr)})
	return 0x5A
}
func (f *fakeTransport) WriteEEPROM(addr uint16, b byte) Outcome {
	f.calls = append(f.calls, call{op: "eewrite", addr: uint32(addr), a: b})
	return f.out
}
func (f *fakeTransport) ReadFuse(k FuseKind) byte {
	f.calls = append(f.calls, call{op: "fuseread", kind: k})
	return byte(k)
}
func (f *fakeTransport) WriteFuse(k FuseKind, v byte) Outcome {
	f.calls = append(f.calls, call{op: "fusewrite", kind: k, a: v})
	return f.out
}
func (f *fakeTransport) ChipErase() Outcome {
	f.calls = append(f.calls, call{op: "erase"})
	return f.out
}

func (f *fakeTransport) ops(op string) []call {
	var out []call
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}
