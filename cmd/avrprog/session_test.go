package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"avrprog-go/drivers/avrhv"
	"avrprog-go/services/hal/sim"
	"avrprog-go/services/link"
	"avrprog-go/services/programmer"
)

// chanLink is one end of an in-memory duplex link.
type chanLink struct {
	rx      <-chan []byte
	tx      chan<- []byte
	pending []byte
}

func newPipe() (*chanLink, *chanLink) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	return &chanLink{rx: ba, tx: ab}, &chanLink{rx: ab, tx: ba}
}

func (l *chanLink) Write(p []byte) (int, error) {
	l.tx <- append([]byte(nil), p...)
	return len(p), nil
}

func (l *chanLink) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	if len(l.pending) == 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case b := <-l.rx:
			l.pending = b
		}
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

type instantClock struct{ now time.Time }

func (c *instantClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }
func (c *instantClock) Now() time.Time        { return c.now }

// newTestSession serves a simulated target over an in-memory link and
// returns a host session on the other end.
func newTestSession(t *testing.T, v sim.Variant) (*session, *sim.Target) {
	t.Helper()
	tgt := sim.New(v)
	cfg := avrhv.DefaultConfig()
	cfg.PollTimeout = 20 * time.Millisecond
	prog := programmer.New(avrhv.New(tgt, &instantClock{now: time.Unix(0, 0)}, cfg), nil)

	host, dev := newPipe()
	srv := link.NewServer(dev, prog, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &session{conn: &serialConn{c: link.NewClient(host)}}, tgt
}

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + 3)
	}
	return p
}

func TestSession_FlashWriteReadBack(t *testing.T) {
	ctx := context.Background()
	s, tgt := newTestSession(t, sim.FullBus)
	if err := s.enter(ctx); err != nil {
		t.Fatalf("enter: %v", err)
	}

	data := pattern(100)
	if err := s.writeFlash(ctx, 0, data, 16); err != nil {
		t.Fatalf("writeFlash: %v", err)
	}
	// Three full 16-word pages plus the partial last page.
	if tgt.PageWrites != 4 {
		t.Fatalf("page writes = %d, want 4", tgt.PageWrites)
	}
	for i, b := range data {
		if got := tgt.Flash(uint32(i)); got != b {
			t.Fatalf("flash[%d] = %#02x, want %#02x", i, got, b)
		}
	}

	back := make([]byte, len(data))
	if err := s.read(ctx, programmer.FuncReadFlash, 0, back); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Fatalf("read back mismatch:\n got % x\nwant % x", back, data)
	}
	if err := s.leave(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
}

func TestSession_FlashWriteSpansBlocks(t *testing.T) {
	ctx := context.Background()
	s, tgt := newTestSession(t, sim.SerialHV)
	if err := s.enter(ctx); err != nil {
		t.Fatalf("enter: %v", err)
	}
	data := pattern(blockSize + 64)
	if err := s.writeFlash(ctx, 0x100, data, 32); err != nil {
		t.Fatalf("writeFlash: %v", err)
	}
	if want := len(data) / 64; tgt.PageWrites != want {
		t.Fatalf("page writes = %d, want %d", tgt.PageWrites, want)
	}
	for i, b := range data {
		if got := tgt.Flash(0x100 + uint32(i)); got != b {
			t.Fatalf("flash[%#x] = %#02x, want %#02x", 0x100+i, got, b)
		}
	}
}

func TestSession_FlashWriteAlignment(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, sim.FullBus)
	if err := s.enter(ctx); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := s.writeFlash(ctx, 1, []byte{1, 2}, 0); err == nil {
		t.Fatal("odd address accepted")
	}
	if err := s.writeFlash(ctx, 0x10, []byte{1, 2}, 32); err == nil {
		t.Fatal("address inside a page accepted")
	}
}

func TestSession_FlashOddLengthPadded(t *testing.T) {
	ctx := context.Background()
	s, tgt := newTestSession(t, sim.FullBus)
	if err := s.enter(ctx); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := s.writeFlash(ctx, 0, []byte{0x11, 0x22, 0x33}, 0); err != nil {
		t.Fatalf("writeFlash: %v", err)
	}
	if tgt.Flash(2) != 0x33 || tgt.Flash(3) != 0xFF {
		t.Fatalf("tail = %#02x %#02x", tgt.Flash(2), tgt.Flash(3))
	}
}

func TestSession_FlashPaddingLeavesCallerBuffer(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, sim.FullBus)
	if err := s.enter(ctx); err != nil {
		t.Fatalf("enter: %v", err)
	}
	backing := []byte{0x11, 0x22, 0x33, 0x5A}
	if err := s.writeFlash(ctx, 0, backing[:3], 0); err != nil {
		t.Fatalf("writeFlash: %v", err)
	}
	if backing[3] != 0x5A {
		t.Fatalf("caller byte overwritten: %#02x", backing[3])
	}
}

func TestSession_EEPROMRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, tgt := newTestSession(t, sim.ShortBus)
	if err := s.enter(ctx); err != nil {
		t.Fatalf("enter: %v", err)
	}
	data := pattern(20)
	if err := s.writeEEPROM(ctx, 0x10, data); err != nil {
		t.Fatalf("writeEEPROM: %v", err)
	}
	for i, b := range data {
		if got := tgt.EEPROM(uint16(0x10 + i)); got != b {
			t.Fatalf("eeprom[%#x] = %#02x, want %#02x", 0x10+i, got, b)
		}
	}
	back := make([]byte, len(data))
	if err := s.read(ctx, programmer.FuncReadEEPROM, 0x10, back); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Fatalf("read back % x, want % x", back, data)
	}
}

func TestSession_SignatureAndFuses(t *testing.T) {
	ctx := context.Background()
	s, tgt := newTestSession(t, sim.FullBus)
	if err := s.enter(ctx); err != nil {
		t.Fatalf("enter: %v", err)
	}
	sig, err := s.signature(ctx)
	if err != nil {
		t.Fatalf("signature: %v", err)
	}
	if sig != [3]byte{0x1E, 0x95, 0x0F} {
		t.Fatalf("signature = % x", sig[:])
	}

	tests := []struct {
		name string
		kind avrhv.FuseKind
		v    byte
	}{
		{"low", avrhv.FuseLow, 0xE2},
		{"high", avrhv.FuseHigh, 0xDF},
		{"ext", avrhv.FuseExtended, 0xFD},
		{"lock", avrhv.LockBits, 0xFC},
	}
	for _, tc := range tests {
		if err := s.writeFuse(ctx, tc.name, tc.v); err != nil {
			t.Fatalf("writeFuse(%s): %v", tc.name, err)
		}
		if got := tgt.Fuse(tc.kind); got != tc.v {
			t.Fatalf("target %s = %#02x, want %#02x", tc.name, got, tc.v)
		}
		got, err := s.readFuse(ctx, tc.name)
		if err != nil {
			t.Fatalf("readFuse(%s): %v", tc.name, err)
		}
		if got != tc.v {
			t.Fatalf("readFuse(%s) = %#02x, want %#02x", tc.name, got, tc.v)
		}
	}

	if _, err := s.readFuse(ctx, "bogus"); err == nil {
		t.Fatal("unknown fuse accepted")
	}
}

func TestSession_Erase(t *testing.T) {
	ctx := context.Background()
	s, tgt := newTestSession(t, sim.FullBus)
	tgt.SetFlash(0, 0x12)
	tgt.SetEEPROM(0, 0x34)
	if err := s.enter(ctx); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := s.erase(ctx); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if tgt.Flash(0) != 0xFF || tgt.EEPROM(0) != 0xFF {
		t.Fatalf("after erase flash=%#02x eeprom=%#02x", tgt.Flash(0), tgt.EEPROM(0))
	}
}

func TestSession_NoTarget(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, sim.Absent)
	if err := s.enter(ctx); !errors.Is(err, errNoTarget) {
		t.Fatalf("enter err = %v, want %v", err, errNoTarget)
	}
	if err := s.erase(ctx); !errors.Is(err, errUnknownISP) {
		t.Fatalf("erase err = %v, want %v", err, errUnknownISP)
	}
}

func TestSession_Capabilities(t *testing.T) {
	s, _ := newTestSession(t, sim.FullBus)
	caps, err := s.capabilities(context.Background())
	if err != nil {
		t.Fatalf("capabilities: %v", err)
	}
	if caps&programmer.CapTPI != 0 {
		t.Fatalf("caps = %#02x, TPI reported without a collaborator", caps)
	}
}

func TestSession_ClockOption(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, sim.SerialHV)
	s.sck = 5
	if err := s.enter(ctx); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if _, err := s.signature(ctx); err != nil {
		t.Fatalf("signature: %v", err)
	}
}

func TestMemoryFunc(t *testing.T) {
	r, w, err := memoryFunc("eeprom")
	if err != nil || r != programmer.FuncReadEEPROM || w != programmer.FuncWriteEEPROM {
		t.Fatalf("eeprom = %d %d %v", r, w, err)
	}
	if _, _, err := memoryFunc("sram"); err == nil {
		t.Fatal("unknown memory accepted")
	}
}
