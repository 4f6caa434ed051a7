package hal

import (
	"errors"
	"testing"

	"tinygo.org/x/drivers"

	"avrprog-go/drivers/avrhv"
	"avrprog-go/types"
)

func picoLikeBoard() types.BoardConfig {
	return types.BoardConfig{
		Name: "test",
		Data: [8]int{2, 3, 4, 5, 6, 7, 8, 9},
		Lines: map[string]int{
			"vdd": 10, "vpp": 11, "xtal1": 12, "oe": 13,
			"sci": 20, "sdo": 4, // SDO shares D2
			"bs2": types.PinUnwired,
		},
	}
}

func TestLinesSetAndRead(t *testing.T) {
	f := &HostPinFactory{}
	ls, err := NewLines(f, picoLikeBoard())
	if err != nil {
		t.Fatalf("NewLines: %v", err)
	}

	ls.SetLine(avrhv.LineVPP, true)
	if p := f.Get(11); !p.IsOutput() || !p.Level() {
		t.Fatalf("vpp not driven high")
	}
	ls.SetLine(avrhv.LineVPP, false)
	if f.Get(11).Level() {
		t.Fatalf("vpp still high")
	}

	f.Get(4).Drive(true)
	if !ls.ReadLine(avrhv.LineSDO) {
		t.Fatalf("sdo read low")
	}
	if f.Get(4).IsOutput() {
		t.Fatalf("sdo left as output")
	}
}

func TestLinesUnwiredIsNoop(t *testing.T) {
	f := &HostPinFactory{}
	ls, err := NewLines(f, picoLikeBoard())
	if err != nil {
		t.Fatal(err)
	}
	ls.SetLine(avrhv.LineBS2, true)
	ls.SetLine(avrhv.LinePAGEL, true)
	if ls.ReadLine(avrhv.LineSII) {
		t.Fatalf("unwired line read high")
	}
	if ls.ReadLine(avrhv.NumLines) {
		t.Fatalf("invalid line read high")
	}
}

func TestLinesBusPerPin(t *testing.T) {
	f := &HostPinFactory{}
	ls, _ := NewLines(f, picoLikeBoard())

	ls.WriteBus(0xA5)
	for i := 0; i < 8; i++ {
		p := f.Get(2 + i)
		if !p.IsOutput() || p.Level() != (0xA5&(1<<i) != 0) {
			t.Fatalf("D%d wrong", i)
		}
	}

	for i := 0; i < 8; i++ {
		f.Get(2 + i).Drive(0x3C&(1<<i) != 0)
	}
	if v := ls.ReadBus(); v != 0x3C {
		t.Fatalf("ReadBus=%02x", v)
	}

	ls.WriteBus(0xFF)
	ls.ReleaseBus()
	for i := 0; i < 8; i++ {
		if f.Get(2 + i).IsOutput() {
			t.Fatalf("D%d not released", i)
		}
	}
}

func TestLinesSharedPinKeepsOneMode(t *testing.T) {
	f := &HostPinFactory{}
	ls, _ := NewLines(f, picoLikeBoard())

	ls.WriteBus(0x04) // D2 high as output
	f.Get(4).Drive(false)
	if ls.ReadLine(avrhv.LineSDO) {
		t.Fatalf("sdo must sample the input, not the latch")
	}
	ls.WriteBus(0x04)
	if !f.Get(4).IsOutput() {
		t.Fatalf("D2 must return to output after sharing")
	}
}

func TestLinesReleaseAll(t *testing.T) {
	f := &HostPinFactory{}
	ls, _ := NewLines(f, picoLikeBoard())
	ls.SetLine(avrhv.LineVDD, true)
	ls.SetLine(avrhv.LineSCI, true)
	ls.WriteBus(0x00)
	ls.Release()
	for _, n := range []int{2, 9, 10, 11, 12, 13, 20} {
		if f.Get(n).IsOutput() {
			t.Fatalf("pin %d still output", n)
		}
	}
}

func TestNewLinesErrors(t *testing.T) {
	bad := picoLikeBoard()
	bad.Lines = map[string]int{"vcc": 1}
	if _, err := NewLines(&HostPinFactory{}, bad); err == nil {
		t.Fatalf("unknown line accepted")
	}

	_, err := NewLines(&HostPinFactory{Max: 8}, picoLikeBoard())
	if !errors.Is(err, ErrPinUnavailable) {
		t.Fatalf("unavailable pin: %v", err)
	}
}

var errStuck = errors.New("stuck")

// stuckPin refuses every mode change.
type stuckPin struct{ n int }

func (p stuckPin) ConfigureInput(Pull) error  { return errStuck }
func (p stuckPin) ConfigureOutput(bool) error { return errStuck }
func (p stuckPin) Set(bool)                   {}
func (p stuckPin) Get() bool                  { return false }
func (p stuckPin) Toggle()                    {}
func (p stuckPin) Number() int                { return p.n }

type stuckFactory struct{}

func (stuckFactory) ByNumber(n int) (GPIOPin, bool) { return stuckPin{n}, true }

func TestLinesRecordConfigureErrors(t *testing.T) {
	ls, err := NewLines(stuckFactory{}, picoLikeBoard())
	if err != nil {
		t.Fatalf("NewLines: %v", err)
	}
	ls.SetLine(avrhv.LineVPP, true)
	if !errors.Is(ls.Err(), errStuck) {
		t.Fatalf("output error dropped: %v", ls.Err())
	}

	ls, _ = NewLines(stuckFactory{}, picoLikeBoard())
	ls.ReleaseBus()
	if !errors.Is(ls.Err(), errStuck) {
		t.Fatalf("input error dropped: %v", ls.Err())
	}
}

func expanderBoard() types.BoardConfig {
	bc := picoLikeBoard()
	bc.Data = [8]int{100, 101, 102, 103, 104, 105, 106, 107}
	bc.Lines = map[string]int{"vpp": 6, "oe": 108}
	bc.Expander = &types.ExpanderConfig{Bus: "i2c0", Address: 0x21}
	return bc
}

func TestBoardLinesExpanderPort(t *testing.T) {
	pins := &HostPinFactory{}
	buses := &HostI2CFactory{}
	ls, err := BoardLines(pins, buses, expanderBoard())
	if err != nil {
		t.Fatalf("BoardLines: %v", err)
	}
	if ls.port == nil {
		t.Fatalf("ordered port A data bus should use the port path")
	}
	bus := buses.Get("i2c0")

	before := bus.Writes
	ls.WriteBus(0x5A)
	if got := bus.Reg(0x14); got != 0x5A {
		t.Fatalf("OLATA=%02x", got)
	}
	if got := bus.Reg(0x00); got != 0x00 {
		t.Fatalf("IODIRA=%02x, want all outputs", got)
	}
	if bus.LastTx.Addr != 0x21 {
		t.Fatalf("addr=%#x", bus.LastTx.Addr)
	}
	ls.WriteBus(0x11)
	if w := bus.Writes - before; w != 3 {
		t.Fatalf("port writes=%d, want latch+dir then latch", w)
	}

	bus.SetInputs(0, 0xC3)
	if v := ls.ReadBus(); v != 0xC3 {
		t.Fatalf("ReadBus=%02x", v)
	}
	if got := bus.Reg(0x00); got != 0xFF {
		t.Fatalf("IODIRA=%02x after read", got)
	}

	// OE on port B bit 0 and VPP natively.
	ls.SetLine(avrhv.LineOE, true)
	if bus.Reg(0x15)&1 == 0 || bus.Reg(0x01)&1 != 0 {
		t.Fatalf("OE not driven on GPB0")
	}
	ls.SetLine(avrhv.LineVPP, true)
	if !pins.Get(6).Level() {
		t.Fatalf("vpp not driven natively")
	}
	if ls.Err() != nil {
		t.Fatalf("unexpected error: %v", ls.Err())
	}
}

func TestBoardLinesUnknownBus(t *testing.T) {
	bc := expanderBoard()
	bc.Expander.Bus = "i2c9"
	_, err := BoardLines(&HostPinFactory{}, noBuses{}, bc)
	if !errors.Is(err, ErrUnknownBus) {
		t.Fatalf("unknown bus: %v", err)
	}
}

type noBuses struct{}

func (noBuses) ByID(string) (drivers.I2C, bool) { return nil, false }
