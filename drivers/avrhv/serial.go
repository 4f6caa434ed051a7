package avrhv

import "time"

// HVSP timing.
const (
	frameBits        = 11
	busyPollDelay    = 50 * time.Microsecond
	serialPageSettle = 8 * time.Millisecond
	resetLowTime     = 10 * time.Millisecond
)

// serialHV bit-bangs the high-voltage serial link. Each exchange shifts an
// 11-bit frame on SII (instruction) and SDI (data), MSB first, framed as
// 0, b7..b0, 0, 0, and samples SDO after every clock.
type serialHV struct {
	p Pins
	c Clock

	half        time.Duration // setup and hold per bit
	busyPoll    time.Duration
	busyTimeout time.Duration
}

func newSerialHV(p Pins, c Clock, half, busyPoll, busyTimeout time.Duration) *serialHV {
	if half < time.Microsecond {
		half = time.Microsecond
	}
	return &serialHV{p: p, c: c, half: half, busyPoll: busyPoll, busyTimeout: busyTimeout}
}

func (t *serialHV) Type() DeviceType { return DeviceSerialHV }

// exchange clocks one frame out and returns the eight response bits captured
// on the first eight clocks, right-justified.
func (t *serialHV) exchange(instr, data byte) byte {
	cmd := uint16(instr) << 2
	dat := uint16(data) << 2
	var resp uint16
	for i := 0; i < frameBits; i++ {
		bit := uint(frameBits - 1 - i)
		t.c.Sleep(t.half)
		t.p.SetLine(LineSII, cmd>>bit&1 != 0)
		t.p.SetLine(LineSDI, dat>>bit&1 != 0)
		t.p.SetLine(LineSCI, true)
		t.c.Sleep(t.half)
		t.p.SetLine(LineSCI, false)
		if t.p.ReadLine(LineSDO) {
			resp |= 1 << bit
		}
	}
	return byte(resp >> 3)
}

func (t *serialHV) run(s pair) byte {
	t.exchange(s.first, 0x00)
	return t.exchange(s.second, 0x00)
}

// waitReady polls SDO until the target reports ready. On timeout the target
// is reset and the caller carries on; the link has no error channel for it.
func (t *serialHV) waitReady() Outcome {
	t.c.Sleep(busyPollDelay)
	deadline := t.c.Now().Add(t.busyTimeout)
	for !t.p.ReadLine(LineSDO) {
		if !t.c.Now().Before(deadline) {
			t.resetTarget()
			return TimedOut
		}
		t.c.Sleep(t.busyPoll)
	}
	return Completed
}

func (t *serialHV) resetTarget() {
	t.p.SetLine(LineVPP, false)
	t.c.Sleep(resetLowTime)
	t.p.SetLine(LineVPP, true)
}

// ---- Transport ----

func (t *serialHV) ReadSignature(index byte) byte {
	t.exchange(instrLoadCommand, cmdReadSignature)
	t.exchange(instrLoadAddrLow, index)
	return t.run(seqReadLow)
}

func (t *serialHV) ReadFlash(addr uint32, _ bool) byte {
	t.exchange(instrLoadCommand, cmdReadFlash)
	t.exchange(instrLoadAddrLow, byte(addr>>1))
	t.exchange(instrLoadAddrHigh, byte(addr>>9))
	t.exchange(seqReadLow.first, 0x00)
	if addr&1 != 0 {
		return t.run(seqReadHigh)
	}
	return t.run(seqReadLow)
}

func (t *serialHV) BeginPage() { t.exchange(instrLoadCommand, cmdWriteFlash) }

func (t *serialHV) LoadWord(addr uint32, lo, hi byte) {
	t.exchange(instrLoadAddrLow, byte(addr>>1))
	t.exchange(instrLoadDataLow, lo)
	t.exchange(instrLoadDataHigh, hi)
	t.run(seqLatchPage)
}

func (t *serialHV) WritePage(addr uint32, _ bool) Outcome {
	t.exchange(instrLoadAddrHigh, byte(addr>>9))
	t.run(seqWritePage)
	t.c.Sleep(serialPageSettle)
	t.exchange(instrLoadCommand, cmdNOP)
	return Completed
}

// The serial-only family in this scheme carries no EEPROM; accesses are
// accepted and do nothing so older hosts keep working.
func (t *serialHV) HasEEPROM() bool                  { return false }
func (t *serialHV) ReadEEPROM(uint16) byte           { return 0xFF }
func (t *serialHV) WriteEEPROM(uint16, byte) Outcome { return Completed }

func (t *serialHV) ReadFuse(k FuseKind) byte {
	t.exchange(instrLoadCommand, cmdReadFuseLock)
	return t.run(fuseTable[k.Normalize()].read)
}

func (t *serialHV) WriteFuse(k FuseKind, v byte) Outcome {
	ops := fuseTable[k.Normalize()]
	t.exchange(instrLoadCommand, ops.writeCmd)
	t.exchange(instrLoadDataLow, v)
	t.run(ops.write)
	return t.waitReady()
}

func (t *serialHV) ChipErase() Outcome {
	t.exchange(instrLoadCommand, cmdChipErase)
	t.run(seqWritePage)
	return t.waitReady()
}
