package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"avrprog-go/services/hal"
	"avrprog-go/services/link"
	"avrprog-go/services/programmer"
	"avrprog-go/types"
	"avrprog-go/x/mathx"
)

// programmerConn carries the command set to a programmer.
type programmerConn interface {
	// Command runs a command with no data phase and returns its reply.
	Command(ctx context.Context, h programmer.Header) ([]byte, error)
	// ReadBlock runs a read command and fills p from its data phase.
	ReadBlock(ctx context.Context, h programmer.Header, p []byte) (int, error)
	// WriteBlock runs a write command and sends p as its data phase.
	WriteBlock(ctx context.Context, h programmer.Header, p []byte) error
	Close() error
}

func openConn() (programmerConn, error) {
	if flagUSB {
		return openUSB()
	}
	if flagPort == "" {
		return nil, errors.New("no programmer given: use --port or --usb")
	}
	lp, err := hal.OpenLink(types.LinkConfig{Device: flagPort, Baud: flagBaud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", flagPort, err)
	}
	return &serialConn{closer: lp, c: link.NewClient(lp)}, nil
}

// serialConn speaks the framed link. Data phases are split into host packets.
type serialConn struct {
	closer io.Closer
	c      *link.Client
}

func (s *serialConn) Command(ctx context.Context, h programmer.Header) ([]byte, error) {
	return s.c.Setup(ctx, h)
}

func (s *serialConn) ReadBlock(ctx context.Context, h programmer.Header, p []byte) (int, error) {
	if _, err := s.c.Setup(ctx, h); err != nil {
		return 0, err
	}
	n := 0
	for n < len(p) {
		want := mathx.Min(programmer.ChunkSize, len(p)-n)
		chunk, err := s.c.In(ctx, want)
		if err != nil {
			return n, err
		}
		n += copy(p[n:], chunk)
		if len(chunk) < want {
			break
		}
	}
	return n, nil
}

func (s *serialConn) WriteBlock(ctx context.Context, h programmer.Header, p []byte) error {
	if _, err := s.c.Setup(ctx, h); err != nil {
		return err
	}
	for off := 0; off < len(p); {
		n := mathx.Min(programmer.ChunkSize, len(p)-off)
		done, err := s.c.Out(ctx, p[off:off+n])
		if err != nil {
			return err
		}
		off += n
		if done && off < len(p) {
			return fmt.Errorf("programmer completed after %d of %d bytes", off, len(p))
		}
	}
	return nil
}

func (s *serialConn) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
