// services/hal/platform_rp2040.go
//go:build rp2040 || rp2350

package hal

import (
	"context"
	"machine"

	"tinygo.org/x/drivers"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"avrprog-go/types"
)

// -----------------------------------------------------------------------------
// Defaults used on Raspberry Pi Pico / Pico 2 (RP2 family)
// -----------------------------------------------------------------------------

// DefaultI2CFactory configures i2c0 and i2c1 with board-default pins at 400 kHz.
func DefaultI2CFactory() I2CBusFactory {
	f := &rp2I2CFactory{buses: make(map[string]drivers.I2C)}

	b0 := machine.I2C0
	_ = b0.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	})
	f.buses["i2c0"] = b0

	b1 := machine.I2C1
	_ = b1.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C1_SDA_PIN,
		SCL:       machine.I2C1_SCL_PIN,
	})
	f.buses["i2c1"] = b1

	return f
}

// DefaultPinFactory maps logical numbers directly to machine.Pin(n). This
// matches Pico/Pico 2 GP numbering.
func DefaultPinFactory() PinFactory { return rp2PinFactory{} }

// OpenLink configures the UART named by c ("uart0" or "uart1").
func OpenLink(c types.LinkConfig) (LinkPort, error) {
	var hw *uartx.UART
	switch c.Device {
	case "uart0", "":
		hw = uartx.UART0
	case "uart1":
		hw = uartx.UART1
	default:
		return nil, ErrUnsupported
	}
	// Defaults inside uartx apply if zero.
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: c.Baud,
		TX:       machine.Pin(c.TX),
		RX:       machine.Pin(c.RX),
	}); err != nil {
		return nil, err
	}
	if c.Parity != types.ParityNone {
		par := uartx.ParityEven
		if c.Parity == types.ParityOdd {
			par = uartx.ParityOdd
		}
		if err := hw.SetFormat(8, 1, par); err != nil {
			return nil, err
		}
	}
	return &rp2Link{u: hw}, nil
}

// ---- I²C implementation ----

type rp2I2CFactory struct {
	buses map[string]drivers.I2C
}

func (f *rp2I2CFactory) ByID(id string) (drivers.I2C, bool) {
	b, ok := f.buses[id]
	return b, ok
}

// ---- GPIO implementation ----

type rp2PinFactory struct{}

func (rp2PinFactory) ByNumber(n int) (GPIOPin, bool) {
	// Constrain to RP2's user GPIOs (GP0..GP28).
	if n < 0 || n > 28 {
		return nil, false
	}
	return &rp2Pin{p: machine.Pin(n), n: n}, true
}

type rp2Pin struct {
	p machine.Pin
	n int
}

func (r *rp2Pin) ConfigureInput(pull Pull) error {
	var mode machine.PinMode
	switch pull {
	case PullUp:
		mode = machine.PinInputPullup
	case PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) ConfigureOutput(initial bool) error {
	// Preload the level before switching to output.
	r.p.Set(initial)
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2Pin) Set(level bool) { r.p.Set(level) }
func (r *rp2Pin) Get() bool      { return r.p.Get() }

func (r *rp2Pin) Toggle() {
	if r.p.Get() {
		r.p.Low()
	} else {
		r.p.High()
	}
}

func (r *rp2Pin) Number() int { return r.n }

// ---- rp2Link: adapts uartx to Link ----

type rp2Link struct{ u *uartx.UART }

func (l *rp2Link) Write(b []byte) (int, error) { return l.u.Write(b) }
func (l *rp2Link) RecvSomeContext(ctx context.Context, buf []byte) (int, error) {
	return l.u.RecvSomeContext(ctx, buf)
}
func (l *rp2Link) Close() error { return nil }
