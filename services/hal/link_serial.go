// services/hal/link_serial.go
//go:build !rp2040 && !rp2350

package hal

import (
	"context"
	"errors"
	"time"

	"go.bug.st/serial"

	"avrprog-go/types"
)

// readSlice bounds one blocking read so RecvSomeContext can notice ctx.
const readSlice = 50 * time.Millisecond

// OpenLink opens the tty named by c.Device at 8 data bits, 1 stop bit.
func OpenLink(c types.LinkConfig) (LinkPort, error) {
	if c.Device == "" {
		return nil, errors.New("hal: link device not set")
	}
	mode := &serial.Mode{
		BaudRate: int(c.Baud),
		DataBits: 8,
		Parity:   serialParity(c.Parity),
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = 115200
	}
	port, err := serial.Open(c.Device, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readSlice); err != nil {
		port.Close()
		return nil, err
	}
	return &serialLink{port: port}, nil
}

func serialParity(p types.Parity) serial.Parity {
	switch p {
	case types.ParityEven:
		return serial.EvenParity
	case types.ParityOdd:
		return serial.OddParity
	default:
		return serial.NoParity
	}
}

type serialLink struct {
	port serial.Port
}

func (l *serialLink) Write(p []byte) (int, error) { return l.port.Write(p) }
func (l *serialLink) Close() error                { return l.port.Close() }

// RecvSomeContext polls the port in readSlice steps. A zero-byte read is a
// timeout, not EOF.
func (l *serialLink) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := l.port.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
