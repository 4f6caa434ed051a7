// services/hal/expander.go
package hal

import (
	"avrprog-go/drivers/mcp23017"
	"avrprog-go/types"
)

// Expander exposes an MCP23017 as sixteen GPIOPins numbered from Base.
// Pins Base..Base+7 form port A and are PortPins, so an 8-bit data bus
// wired in order there moves in one I²C write.
type Expander struct {
	dev  *mcp23017.Device
	Base int
	pins [16]*expanderPin
	port [2]*expanderPort
}

// NewExpander configures dev and wraps it.
func NewExpander(dev *mcp23017.Device, base int) (*Expander, error) {
	if err := dev.Configure(); err != nil {
		return nil, err
	}
	x := &Expander{dev: dev, Base: base}
	for i := range x.port {
		x.port[i] = &expanderPort{dev: dev, id: i}
	}
	for i := range x.pins {
		x.pins[i] = &expanderPin{dev: dev, bit: i, base: base, port: x.port[i>>3]}
	}
	return x, nil
}

func (x *Expander) ByNumber(n int) (GPIOPin, bool) {
	i := n - x.Base
	if i < 0 || i >= len(x.pins) {
		return nil, false
	}
	return x.pins[i], true
}

type expanderPort struct {
	dev *mcp23017.Device
	id  int
}

func (p *expanderPort) ConfigurePort(outputs byte) error { return p.dev.SetPortDir(p.id, ^outputs) }
func (p *expanderPort) WritePort(v byte) error           { return p.dev.WritePort(p.id, v) }
func (p *expanderPort) ReadPort() (byte, error)          { return p.dev.ReadPort(p.id) }

type expanderPin struct {
	dev  *mcp23017.Device
	bit  int
	base int
	port *expanderPort
}

func (p *expanderPin) ConfigureInput(pull Pull) error {
	if pull == PullDown {
		return ErrUnsupported
	}
	if err := p.dev.SetPinPull(p.bit, pull == PullUp); err != nil {
		return err
	}
	return p.dev.SetPinDir(p.bit, true)
}

func (p *expanderPin) ConfigureOutput(initial bool) error {
	if err := p.dev.SetPin(p.bit, initial); err != nil {
		return err
	}
	return p.dev.SetPinDir(p.bit, false)
}

func (p *expanderPin) Set(level bool) { _ = p.dev.SetPin(p.bit, level) }

func (p *expanderPin) Get() bool {
	v, _ := p.dev.Pin(p.bit)
	return v
}

func (p *expanderPin) Toggle()     { p.Set(!p.dev.Latch(p.bit)) }
func (p *expanderPin) Number() int { return p.base + p.bit }
func (p *expanderPin) Port() Port  { return p.port }
func (p *expanderPin) Bit() uint8  { return uint8(p.bit & 7) }

// splitFactory routes numbers at or above the expander base to the expander.
type splitFactory struct {
	native PinFactory
	x      *Expander
}

func (f splitFactory) ByNumber(n int) (GPIOPin, bool) {
	if n >= f.x.Base {
		return f.x.ByNumber(n)
	}
	if f.native == nil {
		return nil, false
	}
	return f.native.ByNumber(n)
}

// BoardLines builds the line binding for bc, attaching the I²C expander
// when the board has one.
func BoardLines(pins PinFactory, buses I2CBusFactory, bc types.BoardConfig) (*Lines, error) {
	f := pins
	if ec := bc.Expander; ec != nil {
		if buses == nil {
			return nil, ErrUnsupported
		}
		bus, ok := buses.ByID(ec.Bus)
		if !ok {
			return nil, detailError{ErrUnknownBus, ec.Bus}
		}
		dev := mcp23017.New(bus)
		if ec.Address != 0 {
			dev.Address = ec.Address
		}
		x, err := NewExpander(dev, types.ExpanderPinMin)
		if err != nil {
			return nil, err
		}
		f = splitFactory{native: pins, x: x}
	}
	return NewLines(f, bc)
}
