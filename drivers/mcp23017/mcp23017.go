// Package mcp23017 provides a driver for the MCP23017 16-bit I²C GPIO
// expander. Pins 0..7 are port A and 8..15 port B.
//
//	d := mcp23017.New(bus)
//	err := d.Configure()           // all pins inputs, latches cleared
//	err = d.SetPortDir(mcp23017.PortA, 0x00)
//	err = d.WritePort(mcp23017.PortA, 0x5A)
//
// The device is assumed to run with IOCON.BANK = 0 (power-on default).
// Direction, latch and pull-up registers are cached, so single-pin updates
// cost one register write.
package mcp23017

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Address is the base I²C address (A2..A0 tied low).
const Address = 0x20

// Ports.
const (
	PortA = 0
	PortB = 1
)

// Registers (BANK = 0, A/B interleaved).
const (
	regIODIRA = 0x00
	regGPPUA  = 0x0C
	regGPIOA  = 0x12
	regOLATA  = 0x14
)

// Errors returned by the driver.
var (
	ErrPin  = errors.New("mcp23017: pin out of range")
	ErrPort = errors.New("mcp23017: port out of range")
)

// Device wraps an I²C connection to an MCP23017.
type Device struct {
	bus     drivers.I2C
	Address uint16

	iodir [2]byte
	olat  [2]byte
	gppu  [2]byte
	w     [3]byte
	r     [1]byte
}

// New creates a Device. The I²C bus must already be configured; nothing is
// sent until Configure.
func New(bus drivers.I2C) *Device {
	return &Device{
		bus:     bus,
		Address: Address,
		iodir:   [2]byte{0xFF, 0xFF},
	}
}

// Configure makes every pin an input without pull-up and clears the output
// latches.
func (d *Device) Configure() error {
	d.iodir = [2]byte{0xFF, 0xFF}
	d.olat = [2]byte{}
	d.gppu = [2]byte{}
	if err := d.write2(regIODIRA, d.iodir); err != nil {
		return err
	}
	if err := d.write2(regOLATA, d.olat); err != nil {
		return err
	}
	return d.write2(regGPPUA, d.gppu)
}

func (d *Device) write(reg, v byte) error {
	d.w[0], d.w[1] = reg, v
	return d.bus.Tx(d.Address, d.w[:2], nil)
}

// write2 writes the A and B registers in one sequential transfer.
func (d *Device) write2(reg byte, v [2]byte) error {
	d.w[0], d.w[1], d.w[2] = reg, v[0], v[1]
	return d.bus.Tx(d.Address, d.w[:3], nil)
}

func (d *Device) read(reg byte) (byte, error) {
	d.w[0] = reg
	if err := d.bus.Tx(d.Address, d.w[:1], d.r[:]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}

func split(pin int) (port int, mask byte, err error) {
	if pin < 0 || pin > 15 {
		return 0, 0, ErrPin
	}
	return pin >> 3, 1 << (pin & 7), nil
}

// ---- Port access ----

// SetPortDir sets a port's direction; a 1 bit is an input.
func (d *Device) SetPortDir(port int, inputs byte) error {
	if port != PortA && port != PortB {
		return ErrPort
	}
	if d.iodir[port] == inputs {
		return nil
	}
	if err := d.write(regIODIRA+byte(port), inputs); err != nil {
		return err
	}
	d.iodir[port] = inputs
	return nil
}

// WritePort sets a port's output latch.
func (d *Device) WritePort(port int, v byte) error {
	if port != PortA && port != PortB {
		return ErrPort
	}
	if err := d.write(regOLATA+byte(port), v); err != nil {
		return err
	}
	d.olat[port] = v
	return nil
}

// ReadPort samples a port's pins.
func (d *Device) ReadPort(port int) (byte, error) {
	if port != PortA && port != PortB {
		return 0, ErrPort
	}
	return d.read(regGPIOA + byte(port))
}

// ---- Pin access ----

// SetPinDir switches one pin between input and output.
func (d *Device) SetPinDir(pin int, input bool) error {
	port, mask, err := split(pin)
	if err != nil {
		return err
	}
	v := d.iodir[port] &^ mask
	if input {
		v |= mask
	}
	return d.SetPortDir(port, v)
}

// SetPinPull enables or disables the 100 kΩ pull-up on one pin.
func (d *Device) SetPinPull(pin int, up bool) error {
	port, mask, err := split(pin)
	if err != nil {
		return err
	}
	v := d.gppu[port] &^ mask
	if up {
		v |= mask
	}
	if v == d.gppu[port] {
		return nil
	}
	if err := d.write(regGPPUA+byte(port), v); err != nil {
		return err
	}
	d.gppu[port] = v
	return nil
}

// SetPin sets one output latch bit.
func (d *Device) SetPin(pin int, high bool) error {
	port, mask, err := split(pin)
	if err != nil {
		return err
	}
	v := d.olat[port] &^ mask
	if high {
		v |= mask
	}
	return d.WritePort(port, v)
}

// Pin samples one pin.
func (d *Device) Pin(pin int) (bool, error) {
	port, mask, err := split(pin)
	if err != nil {
		return false, err
	}
	v, err := d.ReadPort(port)
	return v&mask != 0, err
}

// Latch returns the cached output latch bit of a pin.
func (d *Device) Latch(pin int) bool {
	port, mask, err := split(pin)
	if err != nil {
		return false
	}
	return d.olat[port]&mask != 0
}
