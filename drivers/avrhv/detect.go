package avrhv

import "time"

// Config carries the detection and busy-wait bounds.
type Config struct {
	// Signature is the expected value of signature byte 0 (vendor id).
	Signature byte
	// PollInterval spaces signature reads during detection.
	PollInterval time.Duration
	// PollTimeout bounds the signature poll of one entry variant.
	PollTimeout time.Duration
	// BusyPoll spaces serial busy-status samples.
	BusyPoll time.Duration
	// BusyTimeout bounds one serial busy wait before the target is reset.
	BusyTimeout time.Duration
}

// DefaultConfig polls about 1000 times at 1 ms per variant and allows a busy
// wait of roughly 41 ms.
func DefaultConfig() Config {
	return Config{
		Signature:    0x1E,
		PollInterval: time.Millisecond,
		PollTimeout:  time.Second,
		BusyPoll:     10 * time.Microsecond,
		BusyTimeout:  41 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Signature == 0 {
		c.Signature = d.Signature
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.BusyPoll <= 0 {
		c.BusyPoll = d.BusyPoll
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = d.BusyTimeout
	}
	return c
}

// Engine runs programming operations against one set of lines. It holds no
// per-target state; everything mutable lives in the Session passed in.
type Engine struct {
	pins Pins
	clk  Clock
	cfg  Config
}

// New returns an engine over p. Zero Config fields take their defaults.
func New(p Pins, c Clock, cfg Config) *Engine {
	if c == nil {
		c = SystemClock{}
	}
	return &Engine{pins: p, clk: c, cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Connect puts the control lines in their idle state with the target
// unpowered and resets the cached extended address.
func (e *Engine) Connect(s *Session) {
	for _, l := range []Line{LineXTAL1, LineXA0, LineXA1, LineBS1, LineBS2, LinePAGEL, LineWR, LineOE} {
		e.pins.SetLine(l, true)
	}
	e.pins.ReleaseBus()
	e.pins.SetLine(LineVDD, false)
	e.pins.SetLine(LineVPP, false)
	s.HighSegment = 0
}

// Disconnect drops supply and programming voltage, releases every line and
// clears the session. A partially loaded page is abandoned.
func (e *Engine) Disconnect(s *Session) {
	e.pins.ReleaseBus()
	e.pins.SetLine(LineVDD, false)
	e.pins.SetLine(LineVPP, false)
	e.pins.Release()
	s.Reset()
}

// EnterProgrammingMode tries the full parallel bus, the short parallel bus
// and the serial link, in that order, and binds the first one whose
// signature poll matches to s. It returns ErrNoDevice when all three time out.
func (e *Engine) EnterProgrammingMode(s *Session) (DeviceType, error) {
	variants := []struct {
		enter func()
		t     Transport
	}{
		{e.enterFullBus, newParallel(e.pins, e.clk, true)},
		{e.enterShortBus, newParallel(e.pins, e.clk, false)},
		{e.enterSerial, newSerialHV(e.pins, e.clk, s.BitDelay, e.cfg.BusyPoll, e.cfg.BusyTimeout)},
	}
	for _, p := range variants {
		p.enter()
		if e.pollSignature(p.t) {
			s.bind(p.t)
			return s.Device, nil
		}
	}
	s.bind(nil)
	return DeviceNone, ErrNoDevice
}

// pollSignature reads signature byte 0 until it matches or the deadline passes.
func (e *Engine) pollSignature(t Transport) bool {
	deadline := e.clk.Now().Add(e.cfg.PollTimeout)
	for {
		if t.ReadSignature(0) == e.cfg.Signature {
			return true
		}
		if !e.clk.Now().Before(deadline) {
			return false
		}
		e.clk.Sleep(e.cfg.PollInterval)
	}
}

type level struct {
	l    Line
	high bool
}

func (e *Engine) drive(ls []level) {
	for _, v := range ls {
		e.pins.SetLine(v.l, v.high)
	}
}

func (e *Engine) enterFullBus() {
	e.drive([]level{{LineVPP, true}, {LineXTAL1, false}, {LineXA0, true}, {LineXA1, true}})
	e.clk.Sleep(10 * time.Millisecond)
	e.pins.SetLine(LineVPP, false)
	e.clk.Sleep(10 * time.Millisecond)
	for i := 0; i < 10; i++ {
		e.pins.SetLine(LineXTAL1, true)
		e.clk.Sleep(xtalHalfPeriod)
		e.pins.SetLine(LineXTAL1, false)
		e.clk.Sleep(xtalHalfPeriod)
		e.clk.Sleep(10 * time.Microsecond)
	}
	e.drive([]level{{LinePAGEL, false}, {LineXA0, false}, {LineXA1, false}, {LineBS1, false}})
	e.clk.Sleep(20 * time.Millisecond)
	e.pins.SetLine(LineVPP, true)
	e.clk.Sleep(50 * time.Millisecond)
}

func (e *Engine) enterShortBus() {
	e.pins.SetLine(LineVDD, false)
	e.clk.Sleep(200 * time.Millisecond)
	e.drive([]level{{LineXA0, false}, {LineXA1, false}, {LineBS1, false}, {LineWR, false}, {LineOE, false}, {LineVPP, false}})
	e.clk.Sleep(20 * time.Millisecond)
	e.pins.SetLine(LineVDD, true)
	e.clk.Sleep(10 * time.Millisecond)
	e.pins.SetLine(LineVPP, true)
	e.clk.Sleep(500 * time.Millisecond)
	e.drive([]level{{LineWR, true}, {LineOE, true}})
}

func (e *Engine) enterSerial() {
	e.drive([]level{{LineVDD, false}, {LineSCI, false}, {LineSDI, false}, {LineSII, false}, {LineSDO, false}, {LineVPP, false}})
	e.clk.Sleep(10 * time.Millisecond)
	e.drive([]level{{LineVDD, true}, {LineVPP, true}})
	e.clk.Sleep(20 * time.Millisecond)
	e.pins.ReleaseBus()
	e.clk.Sleep(500 * time.Microsecond)
}
