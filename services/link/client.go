// services/link/client.go
package link

import (
	"context"
	"time"

	"avrprog-go/errcode"
	"avrprog-go/services/hal"
	"avrprog-go/services/programmer"
)

// StatusError is an error frame received from the programmer.
type StatusError struct {
	Status byte
}

func (e *StatusError) Error() string      { return "link: programmer status " + string(e.Code()) }
func (e *StatusError) Code() errcode.Code { return CodeOf(e.Status) }

// Client is the host side of a link. It performs one request/response
// exchange at a time and never retries.
type Client struct {
	link hal.Link
	// Timeout bounds one exchange; zero means wait for ctx only.
	Timeout time.Duration

	dec Decoder
	rx  [64]byte
	// rest holds bytes received past the end of the last frame.
	rest []byte
	tx   []byte
	out  [MaxPayload]byte
}

func NewClient(l hal.Link) *Client {
	return &Client{link: l, Timeout: 2 * time.Second, tx: make([]byte, 0, maxFrame)}
}

// Setup sends a command header and returns the reply bytes.
func (c *Client) Setup(ctx context.Context, h programmer.Header) ([]byte, error) {
	f, err := c.roundTrip(ctx, TypeSetup, h[:], TypeReply)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), f.Payload...), nil
}

// In requests up to n bytes of an open read stream.
func (c *Client) In(ctx context.Context, n int) ([]byte, error) {
	f, err := c.roundTrip(ctx, TypeIn, []byte{byte(n)}, TypeData)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), f.Payload...), nil
}

// Out sends one data chunk of an open write stream and reports whether the
// stream completed.
func (c *Client) Out(ctx context.Context, p []byte) (bool, error) {
	f, err := c.roundTrip(ctx, TypeOut, p, TypeAck)
	if err != nil {
		return false, err
	}
	return len(f.Payload) == 1 && f.Payload[0] == 1, nil
}

func (c *Client) roundTrip(ctx context.Context, t FrameType, payload []byte, want FrameType) (Frame, error) {
	var err error
	if c.tx, err = AppendFrame(c.tx[:0], t, payload); err != nil {
		return Frame{}, err
	}
	if _, err := c.link.Write(c.tx); err != nil {
		return Frame{}, err
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	for {
		f, err := c.next(ctx)
		if err != nil {
			return Frame{}, err
		}
		switch f.Type {
		case want:
			return f, nil
		case TypeErr:
			st := StatusBadFrame
			if len(f.Payload) == 1 {
				st = f.Payload[0]
			}
			return Frame{}, &StatusError{Status: st}
		}
		// Anything else is stale; keep reading.
	}
}

// next returns the next well-formed frame. Corrupt input is skipped.
func (c *Client) next(ctx context.Context) (Frame, error) {
	for {
		for len(c.rest) > 0 {
			b := c.rest[0]
			c.rest = c.rest[1:]
			if f, ok, _ := c.dec.Feed(b); ok {
				return f, nil
			}
		}
		n, err := c.link.RecvSomeContext(ctx, c.rx[:])
		c.rest = c.rx[:n]
		if err != nil && n == 0 {
			return Frame{}, err
		}
	}
}
