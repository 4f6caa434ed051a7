// services/hal/sim/target.go

// Package sim is a behavioural model of an AVR target on the programming
// lines. It implements avrhv.Pins, so the engine can be driven end to end
// without hardware: entry sequences, the parallel latch protocol and the
// HVSP shift register are modelled at the edge level.
package sim

import (
	"avrprog-go/drivers/avrhv"
)

// Variant is the programming interface the simulated chip exposes.
type Variant uint8

const (
	Absent Variant = iota
	FullBus
	ShortBus
	SerialHV
)

func (v Variant) String() string {
	switch v {
	case FullBus:
		return "full_bus"
	case ShortBus:
		return "short_bus"
	case SerialHV:
		return "serial_hv"
	default:
		return "absent"
	}
}

// ParseVariant accepts the names produced by String.
func ParseVariant(s string) (Variant, bool) {
	for _, v := range []Variant{Absent, FullBus, ShortBus, SerialHV} {
		if v.String() == s {
			return v, true
		}
	}
	return Absent, false
}

const (
	minEntryClocks = 6 // XTAL1 edges before VPP for full-bus entry
	busyReads      = 4 // SDO samples reporting busy after a serial write
	eepromSize     = 512
)

// Target is a simulated chip. It is not safe for concurrent use.
type Target struct {
	Variant   Variant
	Signature [3]byte
	// StuckBusy keeps SDO low forever after entry.
	StuckBusy bool

	// Counters for tests.
	PageWrites int
	ExtLoads   int

	flash  map[uint32]uint16 // word address -> word, erased is absent
	eeprom [eepromSize]byte
	fuses  [4]byte // indexed by avrhv.FuseKind

	level   [avrhv.NumLines]bool
	bus     byte
	sdoOut  bool // programmer drives SDO
	clocks  int  // XTAL1 edges since VPP fell
	entered bool

	// parallel and serial shared registers
	cmd            byte
	ext, hi, lo    byte
	dataLo, dataHi byte
	page           map[byte]uint16
	eepromPending  map[uint16]byte

	// serial shift state
	nbits    int
	instr    uint16
	data     uint16
	out      byte
	sdoLevel bool
	busy     int
}

// New returns an erased chip of the given variant with an ATmega-style
// signature and factory fuses.
func New(v Variant) *Target {
	t := &Target{
		Variant:   v,
		Signature: [3]byte{0x1E, 0x95, 0x0F},
		flash:     make(map[uint32]uint16),
		page:      make(map[byte]uint16),
	}
	for i := range t.eeprom {
		t.eeprom[i] = 0xFF
	}
	t.fuses[avrhv.FuseLow] = 0x62
	t.fuses[avrhv.FuseHigh] = 0xD9
	t.fuses[avrhv.FuseExtended] = 0xFF
	t.fuses[avrhv.LockBits] = 0xFF
	return t
}

// ---- inspection ----

// Programming reports whether the chip is in programming mode.
func (t *Target) Programming() bool { return t.entered }

// Flash returns the flash byte at a byte address.
func (t *Target) Flash(addr uint32) byte {
	w, ok := t.flash[addr>>1]
	if !ok {
		return 0xFF
	}
	if addr&1 != 0 {
		return byte(w >> 8)
	}
	return byte(w)
}

// SetFlash stores one flash byte directly.
func (t *Target) SetFlash(addr uint32, b byte) {
	w, ok := t.flash[addr>>1]
	if !ok {
		w = 0xFFFF
	}
	if addr&1 != 0 {
		w = w&0x00FF | uint16(b)<<8
	} else {
		w = w&0xFF00 | uint16(b)
	}
	t.flash[addr>>1] = w
}

func (t *Target) EEPROM(addr uint16) byte { return t.eeprom[addr%eepromSize] }

func (t *Target) SetEEPROM(addr uint16, b byte) { t.eeprom[addr%eepromSize] = b }

func (t *Target) Fuse(k avrhv.FuseKind) byte { return t.fuses[k.Normalize()] }

func (t *Target) SetFuse(k avrhv.FuseKind, v byte) { t.fuses[k.Normalize()] = v }

// ---- avrhv.Pins ----

func (t *Target) SetLine(l avrhv.Line, high bool) {
	prev := t.level[l]
	t.level[l] = high
	if l == avrhv.LineSDO {
		t.sdoOut = true
	}
	rising, falling := high && !prev, !high && prev

	switch l {
	case avrhv.LineVDD:
		if falling {
			t.reset()
		}
	case avrhv.LineVPP:
		if falling {
			t.reset()
			t.clocks = 0
		}
		if rising {
			t.entered = t.entryHolds()
		}
	case avrhv.LineXTAL1:
		if rising {
			t.clocks++
			if t.parallelActive() {
				t.latch()
			}
		}
	case avrhv.LinePAGEL:
		if rising && t.parallelActive() {
			t.loadPage()
		}
	case avrhv.LineWR:
		if falling && t.parallelActive() {
			t.commit(t.fuseContext(false))
		}
	case avrhv.LineSCI:
		if !t.serialActive() {
			return
		}
		if rising {
			t.shiftIn()
		}
		if falling {
			t.shiftOut()
		}
	}
}

func (t *Target) ReadLine(l avrhv.Line) bool {
	if l != avrhv.LineSDO || !t.serialActive() {
		return t.level[l]
	}
	if t.nbits > 0 {
		return t.sdoLevel
	}
	if t.StuckBusy {
		return false
	}
	if t.busy > 0 {
		t.busy--
		return false
	}
	return true
}

func (t *Target) WriteBus(b byte) { t.bus = b }

func (t *Target) ReadBus() byte {
	if !t.parallelActive() || t.level[avrhv.LineOE] {
		return 0xFF
	}
	switch t.cmd {
	case 0x02:
		if t.level[avrhv.LineBS1] {
			return t.Flash(t.wordAddr()<<1 | 1)
		}
		return t.Flash(t.wordAddr() << 1)
	case 0x03:
		return t.EEPROM(uint16(t.hi)<<8 | uint16(t.lo))
	case 0x04:
		return t.fuses[t.fuseContext(true)]
	case 0x08:
		return t.Signature[t.lo%3]
	}
	return 0xFF
}

func (t *Target) ReleaseBus() { t.sdoOut = false }

func (t *Target) Release() {
	t.sdoOut = false
	t.level = [avrhv.NumLines]bool{}
	t.reset()
}

// ---- entry ----

func (t *Target) entryHolds() bool {
	lv := &t.level
	switch t.Variant {
	case FullBus:
		return t.clocks >= minEntryClocks &&
			!lv[avrhv.LinePAGEL] && !lv[avrhv.LineXA0] && !lv[avrhv.LineXA1] && !lv[avrhv.LineBS1]
	case ShortBus:
		return lv[avrhv.LineVDD] &&
			!lv[avrhv.LineXA0] && !lv[avrhv.LineXA1] && !lv[avrhv.LineBS1]
	case SerialHV:
		return lv[avrhv.LineVDD] && t.sdoOut &&
			!lv[avrhv.LineSDI] && !lv[avrhv.LineSII] && !lv[avrhv.LineSDO]
	}
	return false
}

func (t *Target) reset() {
	t.entered = false
	t.cmd, t.ext, t.hi, t.lo, t.dataLo, t.dataHi = 0, 0, 0, 0, 0, 0
	t.page = make(map[byte]uint16)
	t.eepromPending = nil
	t.nbits, t.instr, t.data, t.out, t.busy = 0, 0, 0, 0, 0
}

func (t *Target) parallelActive() bool {
	return t.entered && (t.Variant == FullBus || t.Variant == ShortBus)
}

func (t *Target) serialActive() bool { return t.entered && t.Variant == SerialHV }

func (t *Target) wordAddr() uint32 {
	return uint32(t.ext)<<16 | uint32(t.hi)<<8 | uint32(t.lo)
}

// bs2 is the second byte-select; short-bus parts carry it on XA1.
func (t *Target) bs2() bool {
	if t.Variant == ShortBus {
		return t.level[avrhv.LineXA1]
	}
	return t.level[avrhv.LineBS2]
}

// fuseContext decodes BS1/BS2 into the addressed configuration byte. BS1
// alone selects the lock bits on read and the high fuse on write.
func (t *Target) fuseContext(read bool) avrhv.FuseKind {
	bs1, bs2 := t.level[avrhv.LineBS1], t.bs2()
	switch {
	case bs1 && bs2:
		return avrhv.FuseHigh
	case bs1 && read:
		return avrhv.LockBits
	case bs1:
		return avrhv.FuseHigh
	case bs2:
		return avrhv.FuseExtended
	default:
		return avrhv.FuseLow
	}
}

// ---- parallel ----

func (t *Target) latch() {
	xa0, xa1 := t.level[avrhv.LineXA0], t.level[avrhv.LineXA1]
	switch {
	case xa1 && !xa0:
		t.cmd = t.bus
		if t.cmd == 0x11 && t.eepromPending == nil {
			t.eepromPending = make(map[uint16]byte)
		}
	case !xa1 && !xa0:
		switch {
		case t.Variant == FullBus && t.level[avrhv.LineBS2]:
			t.ext = t.bus
			t.ExtLoads++
		case t.level[avrhv.LineBS1]:
			t.hi = t.bus
		default:
			t.lo = t.bus
		}
	case !xa1 && xa0:
		if t.level[avrhv.LineBS1] {
			t.dataHi = t.bus
		} else {
			t.dataLo = t.bus
		}
	}
}

func (t *Target) loadPage() {
	switch t.cmd {
	case 0x10:
		t.page[t.lo] = uint16(t.dataHi)<<8 | uint16(t.dataLo)
	case 0x11:
		if t.eepromPending == nil {
			t.eepromPending = make(map[uint16]byte)
		}
		t.eepromPending[uint16(t.hi)<<8|uint16(t.lo)] = t.dataLo
	}
}

// commit performs the write selected by the loaded command. kind is the
// configuration byte addressed for fuse writes.
func (t *Target) commit(kind avrhv.FuseKind) {
	switch t.cmd {
	case 0x10:
		base := uint32(t.ext)<<16 | uint32(t.hi)<<8
		for lo, w := range t.page {
			t.flash[base|uint32(lo)] = w
		}
		t.page = make(map[byte]uint16)
		t.PageWrites++
	case 0x11:
		for a, b := range t.eepromPending {
			t.SetEEPROM(a, b)
		}
		t.eepromPending = nil
	case 0x40:
		t.fuses[kind] = t.dataLo
	case 0x20:
		t.fuses[avrhv.LockBits] = t.dataLo
	case 0x80:
		t.erase()
	}
}

func (t *Target) erase() {
	t.flash = make(map[uint32]uint16)
	for i := range t.eeprom {
		t.eeprom[i] = 0xFF
	}
	t.fuses[avrhv.LockBits] = 0xFF
}

// ---- serial ----

func (t *Target) shiftIn() {
	t.instr = t.instr<<1 | b2u(t.level[avrhv.LineSII])
	t.data = t.data<<1 | b2u(t.level[avrhv.LineSDI])
	t.nbits++
}

func (t *Target) shiftOut() {
	if t.nbits == 0 {
		return
	}
	word := uint16(t.out) << 3
	t.sdoLevel = word>>uint(11-t.nbits)&1 != 0
	if t.nbits == 11 {
		t.execute(byte(t.instr>>2), byte(t.data>>2))
		t.nbits, t.instr, t.data = 0, 0, 0
	}
}

func (t *Target) execute(instr, data byte) {
	switch instr {
	case 0x4C:
		t.cmd = data
	case 0x0C:
		t.lo = data
	case 0x1C:
		t.hi = data
	case 0x2C:
		t.dataLo = data
	case 0x3C:
		t.dataHi = data
	case 0x68:
		switch t.cmd {
		case 0x02:
			t.out = t.Flash(t.wordAddr() << 1)
		case 0x04:
			t.out = t.fuses[avrhv.FuseLow]
		case 0x08:
			t.out = t.Signature[t.lo%3]
		}
	case 0x78:
		switch t.cmd {
		case 0x02:
			t.out = t.Flash(t.wordAddr()<<1 | 1)
		case 0x04:
			t.out = t.fuses[avrhv.LockBits]
		}
	case 0x7A:
		t.out = t.fuses[avrhv.FuseHigh]
	case 0x6A:
		t.out = t.fuses[avrhv.FuseExtended]
	case 0x7D:
		if t.cmd == 0x10 {
			t.page[t.lo] = uint16(t.dataHi)<<8 | uint16(t.dataLo)
		}
	case 0x64:
		t.serialCommit(avrhv.FuseLow)
	case 0x74:
		t.serialCommit(avrhv.FuseHigh)
	case 0x66:
		t.serialCommit(avrhv.FuseExtended)
	}
}

func (t *Target) serialCommit(kind avrhv.FuseKind) {
	if t.cmd == 0x40 || t.cmd == 0x20 || t.cmd == 0x10 || t.cmd == 0x80 {
		t.commit(kind)
		t.busy = busyReads
	}
}

func b2u(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
