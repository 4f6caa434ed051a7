package avrhv

import (
	"errors"
	"testing"
	"time"
)

func TestSerialExchangeFrame(t *testing.T) {
	p := &recPins{sdo: serialReply(0xA5)}
	c := newFakeClock()
	s := newSerialHV(p, c, 2*time.Microsecond, 10*time.Microsecond, time.Millisecond)

	got := s.exchange(0x4C, 0x08)
	if got != 0xA5 {
		t.Fatalf("response: got %#02x want 0xa5", got)
	}
	if len(p.bits) != 11 {
		t.Fatalf("clocks: got %d want 11", len(p.bits))
	}
	// 0, b7..b0, 0, 0 on both lines, MSB first.
	wantSII := []bool{false, false, true, false, false, true, true, false, false, false, false}
	wantSDI := []bool{false, false, false, false, false, true, false, false, false, false, false}
	for i, b := range p.bits {
		if b.sii != wantSII[i] || b.sdi != wantSDI[i] {
			t.Fatalf("bit %d: sii=%v sdi=%v want %v %v", i, b.sii, b.sdi, wantSII[i], wantSDI[i])
		}
	}
	if c.slept != 22*2*time.Microsecond {
		t.Fatalf("timing: slept %v", c.slept)
	}
}

func TestSerialHalfBitFloor(t *testing.T) {
	s := newSerialHV(&recPins{}, newFakeClock(), 0, 0, 0)
	if s.half != time.Microsecond {
		t.Fatalf("half: got %v", s.half)
	}
}

func TestSerialReadFlashSequence(t *testing.T) {
	p := &recPins{}
	s := newSerialHV(p, newFakeClock(), time.Microsecond, time.Microsecond, time.Millisecond)

	s.ReadFlash(0x0203, false)

	// Rebuild the instruction bytes from the recorded SII bits.
	var got []byte
	for i := 0; i+frameBits <= len(p.bits); i += frameBits {
		var v byte
		for _, b := range p.bits[i+1 : i+9] {
			v <<= 1
			if b.sii {
				v |= 1
			}
		}
		got = append(got, v)
	}
	want := []byte{0x4C, 0x0C, 0x1C, 0x68, 0x78, 0x7C}
	if len(got) != len(want) {
		t.Fatalf("frames: got % x want % x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames: got % x want % x", got, want)
		}
	}
}

func TestSerialBusyTimeoutResetsTarget(t *testing.T) {
	p := &recPins{sdo: func(int) bool { return false }}
	c := newFakeClock()
	s := newSerialHV(p, c, time.Microsecond, 10*time.Microsecond, 41*time.Millisecond)

	start := c.Now()
	o := s.WriteFuse(FuseLow, 0xE2)
	if o != TimedOut {
		t.Fatalf("outcome: got %v want TimedOut", o)
	}
	if !errors.Is(o.err(), ErrBusyTimeout) {
		t.Fatalf("err: %v", o.err())
	}
	if p.count(LineVPP, false) != 1 || p.count(LineVPP, true) != 1 {
		t.Fatalf("reset pulse not issued: low=%d high=%d", p.count(LineVPP, false), p.count(LineVPP, true))
	}
	if el := c.Now().Sub(start); el > 100*time.Millisecond {
		t.Fatalf("busy wait unbounded: %v", el)
	}
}

func TestSerialBusyCompletes(t *testing.T) {
	p := &recPins{sdo: func(int) bool { return true }}
	s := newSerialHV(p, newFakeClock(), time.Microsecond, 10*time.Microsecond, 41*time.Millisecond)
	if o := s.ChipErase(); o != Completed {
		t.Fatalf("outcome: got %v", o)
	}
	if p.count(LineVPP, false) != 0 {
		t.Fatal("unexpected reset")
	}
}

func TestSerialHasNoEEPROM(t *testing.T) {
	p := &recPins{}
	e := New(p, newFakeClock(), Config{})
	var sess Session
	sess.bind(newSerialHV(p, newFakeClock(), time.Microsecond, time.Microsecond, time.Millisecond))

	if b := e.ReadEEPROM(&sess, 0x10); b != 0xFF {
		t.Fatalf("read: got %#02x", b)
	}
	if err := e.WriteEEPROM(&sess, 0x10, 0x42); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(p.bits) != 0 {
		t.Fatalf("EEPROM access touched the link: %d clocks", len(p.bits))
	}
}
