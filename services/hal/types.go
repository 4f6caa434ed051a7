// services/hal/types.go
package hal

import (
	"context"
	"errors"

	"tinygo.org/x/drivers"
)

var (
	// ErrUnsupported is returned when a platform lacks a requested resource.
	ErrUnsupported = errors.New("unsupported")
	// ErrPinUnavailable reports a configured pin the factory cannot supply.
	ErrPinUnavailable = errors.New("pin unavailable")
	// ErrUnknownBus reports an expander bus id the factory does not know.
	ErrUnknownBus = errors.New("unknown i2c bus")
)

// detailError names the pin or bus behind one of the sentinels above.
type detailError struct {
	err    error
	detail string
}

func (e detailError) Error() string { return "hal: " + e.err.Error() + ": " + e.detail }
func (e detailError) Unwrap() error { return e.err }

// ---- Buses ----

// I2CBusFactory injects configured I²C instances by id.
// Uses the TinyGo drivers.I2C interface to remain compatible on MCU builds.
type I2CBusFactory interface {
	ByID(id string) (drivers.I2C, bool)
}

// ---- GPIO abstractions ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

type GPIOPin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
	Toggle()
	Number() int
}

// PinFactory supplies GPIO pins by the configured number scheme.
type PinFactory interface {
	ByNumber(n int) (GPIOPin, bool)
}

// PortPin is implemented by pins that sit on an 8-bit port and can be
// driven a whole port at a time.
type PortPin interface {
	GPIOPin
	Port() Port
	Bit() uint8
}

// Port is a group of eight pins written and read in one transaction.
type Port interface {
	ConfigurePort(outputs byte) error
	WritePort(v byte) error
	ReadPort() (byte, error)
}

// ---------------- Link abstractions ----------------

// Link is the byte stream carrying the host control channel.
type Link interface {
	Write(p []byte) (int, error)
	// RecvSomeContext blocks until at least one byte arrives or ctx ends.
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
}

// LinkPort is an opened link the caller must close.
type LinkPort interface {
	Link
	Close() error
}
