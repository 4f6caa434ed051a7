// services/hal/factories_host.go
//go:build !rp2040 && !rp2350

package hal

import (
	"sync"

	"tinygo.org/x/drivers"
)

// ----------------------------- I²C (host) ------------------------------------

// HostI2C implements tinygo drivers.I2C for host-side tests. It emulates a
// register-addressed device with auto-increment, enough for an MCP23017 in
// BANK = 0 mode: reads of GPIOA/GPIOB return Inputs on input bits and the
// latch on output bits.
type HostI2C struct {
	mu     sync.Mutex
	Regs   [0x16]byte
	Inputs [2]byte
	Writes int
	LastTx struct {
		Addr uint16
		W    []byte
		Rn   int
	}
}

func (h *HostI2C) Tx(addr uint16, w, r []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastTx.Addr = addr
	h.LastTx.W = append([]byte(nil), w...)
	h.LastTx.Rn = len(r)
	if len(w) == 0 {
		return nil
	}
	reg := int(w[0])
	if len(w) > 1 {
		h.Writes++
		for i, v := range w[1:] {
			if reg+i < len(h.Regs) {
				h.Regs[reg+i] = v
			}
		}
	}
	for i := range r {
		rr := reg + i
		switch {
		case rr == 0x12 || rr == 0x13:
			p := rr - 0x12
			dir := h.Regs[p]
			r[i] = h.Inputs[p]&dir | h.Regs[0x14+p]&^dir
		case rr < len(h.Regs):
			r[i] = h.Regs[rr]
		}
	}
	return nil
}

// SetInputs presents levels on port p's input pins.
func (h *HostI2C) SetInputs(p int, v byte) {
	h.mu.Lock()
	h.Inputs[p] = v
	h.mu.Unlock()
}

// Reg returns a register value.
func (h *HostI2C) Reg(r int) byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Regs[r]
}

// HostI2CFactory hands out HostI2C buses by id.
type HostI2CFactory struct {
	mu    sync.Mutex
	buses map[string]*HostI2C
}

func (f *HostI2CFactory) ByID(id string) (drivers.I2C, bool) {
	return f.Get(id), true
}

// Get returns (creating on first use) the bus named id.
func (f *HostI2CFactory) Get(id string) *HostI2C {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buses == nil {
		f.buses = make(map[string]*HostI2C)
	}
	b, ok := f.buses[id]
	if !ok {
		b = &HostI2C{}
		f.buses[id] = b
	}
	return b
}

// ----------------------------- GPIO (host) -----------------------------------

// FakePin implements GPIOPin for host-side tests. Input levels come from
// Drive; outputs read back their own level.
type FakePin struct {
	mu      sync.RWMutex
	number  int
	level   bool
	input   bool
	modeOut bool
	pull    Pull
	changes int
}

func (p *FakePin) ConfigureInput(pull Pull) error {
	p.mu.Lock()
	p.modeOut = false
	p.pull = pull
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.modeOut = true
	p.set(initial)
	p.mu.Unlock()
	return nil
}

func (p *FakePin) set(level bool) {
	if p.level != level {
		p.changes++
	}
	p.level = level
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	p.set(level)
	p.mu.Unlock()
}

func (p *FakePin) Get() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.modeOut {
		return p.level
	}
	return p.input
}

func (p *FakePin) Toggle() {
	p.mu.Lock()
	p.set(!p.level)
	p.mu.Unlock()
}

func (p *FakePin) Number() int { return p.number }

// Drive sets the level an input sees.
func (p *FakePin) Drive(level bool) {
	p.mu.Lock()
	p.input = level
	p.mu.Unlock()
}

// IsOutput reports the configured direction.
func (p *FakePin) IsOutput() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modeOut
}

// Level returns the driven output level.
func (p *FakePin) Level() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

// Changes counts output level transitions.
func (p *FakePin) Changes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.changes
}

// HostPinFactory returns stable *FakePin instances per number. Numbers
// above Max (when set) are refused.
type HostPinFactory struct {
	mu   sync.Mutex
	pins map[int]*FakePin
	Max  int
}

func (f *HostPinFactory) ByNumber(n int) (GPIOPin, bool) {
	if n < 0 || (f.Max > 0 && n > f.Max) {
		return nil, false
	}
	return f.Get(n), true
}

// Get exposes the underlying *FakePin for tests.
func (f *HostPinFactory) Get(n int) *FakePin {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pins == nil {
		f.pins = make(map[int]*FakePin)
	}
	p, ok := f.pins[n]
	if !ok {
		p = &FakePin{number: n}
		f.pins[n] = p
	}
	return p
}
