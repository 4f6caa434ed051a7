package main

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"avrprog-go/services/programmer"
	"avrprog-go/x/mathx"
)

// blockSize bounds one read or write command.
const blockSize = 256

var (
	errNoTarget   = errors.New("no target detected")
	errUnknownISP = errors.New("instruction not recognised by the programmer")
)

// session runs host-side operations on a programmer in programming mode.
type session struct {
	conn programmerConn
	sck  uint8
}

func newSession(c programmerConn) *session {
	return &session{conn: c, sck: flagSCK}
}

// enter connects and enables programming mode.
func (s *session) enter(ctx context.Context) error {
	if _, err := s.conn.Command(ctx, programmer.NewHeader(programmer.FuncConnect, 0, 0, 0, 0)); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if s.sck != 0 {
		if _, err := s.conn.Command(ctx, programmer.NewHeader(programmer.FuncSetISPSCK, uint16(s.sck), 0, 0, 0)); err != nil {
			return fmt.Errorf("set clock: %w", err)
		}
	}
	reply, err := s.conn.Command(ctx, programmer.NewHeader(programmer.FuncEnableProg, 0, 0, 0, 0))
	if err != nil {
		return fmt.Errorf("enable programming: %w", err)
	}
	if len(reply) == 0 || reply[0] != programmer.StatusOK {
		return errNoTarget
	}
	log.Debug("programming mode entered")
	return nil
}

func (s *session) leave(ctx context.Context) error {
	_, err := s.conn.Command(ctx, programmer.NewHeader(programmer.FuncDisconnect, 0, 0, 0, 0))
	return err
}

func (s *session) capabilities(ctx context.Context) (byte, error) {
	reply, err := s.conn.Command(ctx, programmer.NewHeader(programmer.FuncGetCapabilities, 0, 0, 0, 0))
	if err != nil {
		return 0, err
	}
	if len(reply) == 0 {
		return 0, errors.New("empty capabilities reply")
	}
	return reply[0], nil
}

// transmit sends one 4-byte ISP instruction and returns its result byte.
func (s *session) transmit(ctx context.Context, isp [4]byte) (byte, error) {
	var h programmer.Header
	h[1] = programmer.FuncTransmit
	copy(h[2:6], isp[:])
	reply, err := s.conn.Command(ctx, h)
	if err != nil {
		return 0, err
	}
	if len(reply) < 4 {
		return 0, fmt.Errorf("short transmit reply: % x", reply)
	}
	return reply[3], nil
}

func (s *session) signature(ctx context.Context) ([3]byte, error) {
	var sig [3]byte
	for i := range sig {
		b, err := s.transmit(ctx, [4]byte{0x30, 0x00, byte(i), 0x00})
		if err != nil {
			return sig, err
		}
		sig[i] = b
	}
	return sig, nil
}

func (s *session) erase(ctx context.Context) error {
	r, err := s.transmit(ctx, [4]byte{0xAC, 0x80, 0x00, 0x00})
	if err != nil {
		return err
	}
	if r != 0x00 {
		return errUnknownISP
	}
	return nil
}

// read fills p from memory starting at addr. fn selects flash or EEPROM.
func (s *session) read(ctx context.Context, fn byte, addr uint32, p []byte) error {
	for off := 0; off < len(p); {
		n := mathx.Min(blockSize, len(p)-off)
		a := addr + uint32(off)
		if _, err := s.conn.Command(ctx, programmer.LongAddressHeader(a)); err != nil {
			return fmt.Errorf("set address %#x: %w", a, err)
		}
		got, err := s.conn.ReadBlock(ctx, programmer.NewHeader(fn, uint16(a), 0, 0, uint16(n)), p[off:off+n])
		if err != nil {
			return fmt.Errorf("read at %#x: %w", a, err)
		}
		if got < n {
			return fmt.Errorf("short read at %#x: %d of %d bytes", a, got, n)
		}
		log.WithFields(log.Fields{"addr": a, "len": n}).Debug("block read")
		off += n
	}
	return nil
}

// writeFlash programs data at addr. pageWords is the target page size in
// words; 0 writes an unpaged target word by word. Paged writes must start
// on a page boundary.
func (s *session) writeFlash(ctx context.Context, addr uint32, data []byte, pageWords uint16) error {
	if addr&1 != 0 {
		return fmt.Errorf("flash address %#x is not word aligned", addr)
	}
	pageBytes := uint32(pageWords) * 2
	if pageBytes != 0 && addr%pageBytes != 0 {
		return fmt.Errorf("flash address %#x is not on a %d byte page boundary", addr, pageBytes)
	}
	if len(data)&1 != 0 {
		padded := make([]byte, len(data)+1)
		copy(padded, data)
		padded[len(data)] = 0xFF
		data = padded
	}
	block := uint32(blockSize)
	if pageBytes > block {
		block = pageBytes
	} else if pageBytes != 0 {
		block -= block % pageBytes
	}
	blocks := mathx.CeilDiv(uint32(len(data)), block)
	for i := uint32(0); i < blocks; i++ {
		off := i * block
		end := mathx.Min(off+block, uint32(len(data)))
		var flags byte
		if i == 0 {
			flags |= programmer.BlockFirst
		}
		if i == blocks-1 {
			flags |= programmer.BlockLast
		}
		a := addr + off
		if _, err := s.conn.Command(ctx, programmer.LongAddressHeader(a)); err != nil {
			return fmt.Errorf("set address %#x: %w", a, err)
		}
		h := programmer.NewHeader(programmer.FuncWriteFlash, uint16(a), pageWords, flags, uint16(end-off))
		if err := s.conn.WriteBlock(ctx, h, data[off:end]); err != nil {
			return fmt.Errorf("write at %#x: %w", a, err)
		}
		log.WithFields(log.Fields{"addr": a, "len": end - off, "flags": flags}).Debug("block written")
	}
	return nil
}

func (s *session) writeEEPROM(ctx context.Context, addr uint32, data []byte) error {
	for off := 0; off < len(data); {
		n := mathx.Min(blockSize, len(data)-off)
		a := addr + uint32(off)
		if _, err := s.conn.Command(ctx, programmer.LongAddressHeader(a)); err != nil {
			return fmt.Errorf("set address %#x: %w", a, err)
		}
		h := programmer.NewHeader(programmer.FuncWriteEEPROM, uint16(a), 0, 0, uint16(n))
		if err := s.conn.WriteBlock(ctx, h, data[off:off+n]); err != nil {
			return fmt.Errorf("write at %#x: %w", a, err)
		}
		off += n
	}
	return nil
}

// fuseInstr holds the ISP read and write instruction prefixes of one fuse.
type fuseInstr struct {
	read  [2]byte
	write byte
}

var fuses = map[string]fuseInstr{
	"low":  {read: [2]byte{0x50, 0x00}, write: 0xA0},
	"high": {read: [2]byte{0x58, 0x08}, write: 0xA8},
	"ext":  {read: [2]byte{0x50, 0x08}, write: 0xA4},
	"lock": {read: [2]byte{0x58, 0x00}, write: 0xE0},
}

func lookupFuse(name string) (fuseInstr, error) {
	f, ok := fuses[name]
	if !ok {
		return f, fmt.Errorf("unknown fuse %q (want low, high, ext or lock)", name)
	}
	return f, nil
}

func (s *session) readFuse(ctx context.Context, name string) (byte, error) {
	f, err := lookupFuse(name)
	if err != nil {
		return 0, err
	}
	return s.transmit(ctx, [4]byte{f.read[0], f.read[1], 0x00, 0x00})
}

func (s *session) writeFuse(ctx context.Context, name string, v byte) error {
	f, err := lookupFuse(name)
	if err != nil {
		return err
	}
	echo, err := s.transmit(ctx, [4]byte{0xAC, f.write, 0x00, v})
	if err != nil {
		return err
	}
	if echo != v {
		return errUnknownISP
	}
	return nil
}
