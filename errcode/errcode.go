package errcode

import (
	"context"
	"errors"

	"avrprog-go/drivers/avrhv"
	"avrprog-go/services/hal"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK          Code = "ok"
	Unsupported Code = "unsupported"
	UnknownBus  Code = "unknown_bus"
	UnknownPin  Code = "unknown_pin"
	Timeout     Code = "timeout"

	// Programmer engine and control link.
	NoDevice       Code = "no_device"
	OutOfState     Code = "out_of_state"
	BusyTimeout    Code = "busy_timeout"
	BadFrame       Code = "bad_frame"
	CRCMismatch    Code = "crc_mismatch"
	UnknownCommand Code = "unknown_command"

	Error Code = "error" // generic fallback
)

// Of extracts a Code from an error, defaulting to Error. Errors carrying a
// Code() method report that code.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level driver errors to a Code.
// Extend the heuristics per platform/driver.
func MapDriverErr(err error) Code {
	if err == nil {
		return OK
	}
	switch {
	case errors.Is(err, avrhv.ErrNoDevice):
		return NoDevice
	case errors.Is(err, avrhv.ErrBusyTimeout):
		return BusyTimeout
	case errors.Is(err, hal.ErrPinUnavailable):
		return UnknownPin
	case errors.Is(err, hal.ErrUnknownBus):
		return UnknownBus
	case errors.Is(err, hal.ErrUnsupported):
		return Unsupported
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	}
	if c := Of(err); c != Error {
		return c
	}
	return Error
}
