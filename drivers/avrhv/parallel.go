package avrhv

import "time"

// Parallel bus timing.
const (
	xtalHalfPeriod    = 5 * time.Microsecond
	commandSetup      = 1 * time.Microsecond
	addressSetup      = 5 * time.Microsecond
	signatureAccess   = 1 * time.Millisecond
	dataAccess        = 1 * time.Microsecond
	pagelWidth        = 1 * time.Microsecond
	pageWriteStrobe   = 1 * time.Microsecond
	pageWriteSettle   = 8 * time.Millisecond
	eepromWriteSettle = 10 * time.Millisecond
	fuseSetup         = 10 * time.Microsecond
	fuseWriteStrobe   = 1 * time.Millisecond
	fuseWriteSettle   = 100 * time.Millisecond
	eraseStrobe       = 200 * time.Microsecond
	eraseSettle       = 150 * time.Millisecond
)

// parallel drives the 8-bit bus. Full-bus parts have a dedicated BS2 line;
// on short-bus parts the same context bit is carried by XA1.
type parallel struct {
	p    Pins
	c    Clock
	full bool
}

func newParallel(p Pins, c Clock, full bool) *parallel {
	return &parallel{p: p, c: c, full: full}
}

func (t *parallel) Type() DeviceType {
	if t.full {
		return DeviceFullBus
	}
	return DeviceShortBus
}

// ---- primitives ----

func (t *parallel) pulseXTAL1() {
	t.p.SetLine(LineXTAL1, true)
	t.c.Sleep(xtalHalfPeriod)
	t.p.SetLine(LineXTAL1, false)
	t.c.Sleep(xtalHalfPeriod)
}

func (t *parallel) setBS2(high bool) {
	if t.full {
		t.p.SetLine(LineBS2, high)
		return
	}
	t.p.SetLine(LineXA1, high)
}

// loadCommand latches cmd into the command register (XA1:XA0 = 10).
func (t *parallel) loadCommand(cmd byte) {
	t.p.WriteBus(cmd)
	t.p.SetLine(LineXA1, true)
	t.p.SetLine(LineXA0, false)
	t.p.SetLine(LineBS1, false)
	if t.full {
		t.p.SetLine(LineBS2, false)
	}
	t.c.Sleep(commandSetup)
	t.pulseXTAL1()
}

// loadAddress latches one address byte (XA1:XA0 = 00, BS1 selects high).
func (t *parallel) loadAddress(b byte, high bool) {
	t.p.SetLine(LineXA1, false)
	t.p.SetLine(LineXA0, false)
	t.p.SetLine(LineBS1, high)
	if t.full {
		t.p.SetLine(LineBS2, false)
	}
	t.p.WriteBus(b)
	t.c.Sleep(addressSetup)
	t.pulseXTAL1()
}

// loadExtended latches the extended address byte (XA1:XA0 = 00, BS2 high).
func (t *parallel) loadExtended(seg byte) {
	t.p.SetLine(LineXA0, false)
	t.p.SetLine(LineXA1, false)
	t.p.SetLine(LineBS1, false)
	t.p.SetLine(LineBS2, true)
	t.p.WriteBus(seg)
	t.pulseXTAL1()
}

// loadData latches a data byte (XA1:XA0 = 01).
func (t *parallel) loadData(b byte) {
	t.p.SetLine(LineXA0, true)
	t.p.SetLine(LineXA1, false)
	t.p.WriteBus(b)
	t.pulseXTAL1()
}

// strobeRead samples the bus with OE asserted for d.
func (t *parallel) strobeRead(d time.Duration) byte {
	t.p.ReleaseBus()
	t.p.SetLine(LineOE, false)
	t.c.Sleep(d)
	b := t.p.ReadBus()
	t.p.SetLine(LineOE, true)
	return b
}

func (t *parallel) strobeWrite(width, settle time.Duration) {
	t.p.SetLine(LineWR, false)
	t.c.Sleep(width)
	t.p.SetLine(LineWR, true)
	t.c.Sleep(settle)
}

func (t *parallel) pulsePAGEL() {
	t.p.SetLine(LinePAGEL, true)
	t.c.Sleep(pagelWidth)
	t.p.SetLine(LinePAGEL, false)
	t.c.Sleep(pagelWidth)
}

// ---- Transport ----

func (t *parallel) ReadSignature(index byte) byte {
	t.loadCommand(cmdReadSignature)
	t.loadAddress(index, false)
	return t.strobeRead(signatureAccess)
}

func (t *parallel) ReadFlash(addr uint32, loadExt bool) byte {
	t.loadCommand(cmdReadFlash)
	if loadExt {
		t.loadExtended(byte(addr >> 17))
	}
	t.loadAddress(byte(addr>>9), true)
	t.loadAddress(byte(addr>>1), false)
	t.p.SetLine(LineBS1, addr&1 != 0)
	return t.strobeRead(dataAccess)
}

func (t *parallel) BeginPage() { t.loadCommand(cmdWriteFlash) }

func (t *parallel) LoadWord(addr uint32, lo, hi byte) {
	t.loadAddress(byte(addr>>1), false)
	t.loadData(lo)
	t.p.SetLine(LineBS1, true)
	t.p.WriteBus(hi)
	t.pulseXTAL1()
	t.pulsePAGEL()
}

func (t *parallel) WritePage(addr uint32, loadExt bool) Outcome {
	t.loadAddress(byte(addr>>9), true)
	if loadExt {
		t.loadExtended(byte(addr >> 17))
	}
	t.p.SetLine(LineBS1, false)
	t.strobeWrite(pageWriteStrobe, pageWriteSettle)
	// Park the command register at NOP.
	t.p.SetLine(LineXA1, true)
	t.p.SetLine(LineXA0, false)
	t.p.WriteBus(cmdNOP)
	t.pulseXTAL1()
	return Completed
}

func (t *parallel) HasEEPROM() bool { return true }

func (t *parallel) ReadEEPROM(addr uint16) byte {
	t.loadCommand(cmdReadEEPROM)
	t.loadAddress(byte(addr>>8), true)
	t.loadAddress(byte(addr), false)
	t.p.SetLine(LineBS1, false)
	return t.strobeRead(dataAccess)
}

func (t *parallel) WriteEEPROM(addr uint16, b byte) Outcome {
	t.loadCommand(cmdWriteEEPROM)
	t.loadAddress(byte(addr>>8), true)
	t.loadAddress(byte(addr), false)
	t.loadData(b)
	t.pulsePAGEL()
	t.p.SetLine(LineBS1, false)
	t.strobeWrite(pageWriteStrobe, eepromWriteSettle)
	return Completed
}

func (t *parallel) ReadFuse(k FuseKind) byte {
	ops := fuseTable[k.Normalize()]
	t.loadCommand(cmdReadFuseLock)
	t.p.SetLine(LineBS1, ops.readBS1)
	t.setBS2(ops.readBS2)
	if ops.readXA1 != xa1Keep {
		t.p.SetLine(LineXA1, ops.readXA1 == xa1High)
	}
	return t.strobeRead(signatureAccess)
}

func (t *parallel) WriteFuse(k FuseKind, v byte) Outcome {
	ops := fuseTable[k.Normalize()]
	t.p.SetLine(LinePAGEL, false)
	t.loadCommand(ops.writeCmd)
	t.c.Sleep(fuseSetup)
	t.p.SetLine(LineXA1, false)
	t.p.SetLine(LineXA0, true)
	t.p.WriteBus(v)
	t.c.Sleep(fuseSetup)
	t.pulseXTAL1()
	t.p.SetLine(LineBS1, ops.writeBS1)
	t.setBS2(ops.writeBS2)
	t.c.Sleep(fuseSetup)
	t.strobeWrite(fuseWriteStrobe, fuseWriteSettle)
	return Completed
}

func (t *parallel) ChipErase() Outcome {
	t.loadCommand(cmdChipErase)
	t.strobeWrite(eraseStrobe, eraseSettle)
	return Completed
}
