// services/hal/platform_linux.go
//go:build linux && !(rp2040 || rp2350)

package hal

import (
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

// periph's host drivers are registered once per process.
var hostState struct {
	once sync.Once
	err  error
}

func initHost() error {
	hostState.once.Do(func() {
		if _, err := host.Init(); err != nil {
			hostState.err = err
			logrus.WithError(err).Error("periph host init failed")
		}
	})
	return hostState.err
}

// DefaultPinFactory resolves numbers as BCM GPIO names ("GPIO17").
func DefaultPinFactory() PinFactory { return periphPinFactory{} }

// DefaultI2CFactory opens /dev/i2c-N buses (or periph names) on first use.
func DefaultI2CFactory() I2CBusFactory {
	return &periphI2CFactory{buses: make(map[string]i2c.BusCloser)}
}

// ---- GPIO implementation ----

type periphPinFactory struct{}

func (periphPinFactory) ByNumber(n int) (GPIOPin, bool) {
	if n < 0 || initHost() != nil {
		return nil, false
	}
	p := gpioreg.ByName("GPIO" + strconv.Itoa(n))
	if p == nil {
		logrus.WithField("pin", n).Warn("gpio not found")
		return nil, false
	}
	logrus.WithFields(logrus.Fields{"pin": n, "name": p.Name()}).Debug("gpio acquired")
	return &periphPin{p: p, n: n}, true
}

type periphPin struct {
	p gpio.PinIO
	n int
}

func (r *periphPin) ConfigureInput(pull Pull) error {
	pp := gpio.Float
	switch pull {
	case PullUp:
		pp = gpio.PullUp
	case PullDown:
		pp = gpio.PullDown
	}
	return r.p.In(pp, gpio.NoEdge)
}

func (r *periphPin) ConfigureOutput(initial bool) error { return r.p.Out(gpio.Level(initial)) }
func (r *periphPin) Set(level bool)                     { _ = r.p.Out(gpio.Level(level)) }
func (r *periphPin) Get() bool                          { return r.p.Read() == gpio.High }
func (r *periphPin) Toggle()                            { r.Set(!r.Get()) }
func (r *periphPin) Number() int                        { return r.n }

// ---- I²C implementation ----

type periphI2CFactory struct {
	mu    sync.Mutex
	buses map[string]i2c.BusCloser
}

func (f *periphI2CFactory) ByID(id string) (drivers.I2C, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.buses[id]; ok {
		return b, true
	}
	if initHost() != nil {
		return nil, false
	}
	b, err := i2creg.Open(id)
	if err != nil {
		logrus.WithError(err).WithField("bus", id).Warn("i2c open failed")
		return nil, false
	}
	f.buses[id] = b
	return b, true
}
