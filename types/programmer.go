package types

// ---- Programmer status (retained on programmer/status) ----

type ProgrammerStatus struct {
	Device    string `json:"device"`    // "none", "full_bus", "short_bus", "serial_hv"
	State     string `json:"state"`     // "idle", "read_flash", ...
	Address   uint32 `json:"address"`   // cursor
	Remaining uint32 `json:"remaining"` // bytes left in the streaming operation
	LastCode  string `json:"last_code,omitempty"`
	TS        int64  `json:"ts_ms"`
}

// ---- Board configuration (embedded JSON, see services/config) ----

// Pin numbers: -1 is not wired, 0..99 are native GPIOs and 100+ are I²C
// expander pins (100 + expander bit).
const (
	PinUnwired     = -1
	ExpanderPinMin = 100
)

type BoardConfig struct {
	Name     string          `json:"name"`
	Data     [8]int          `json:"data"`  // D0..D7
	Lines    map[string]int  `json:"lines"` // line name -> pin
	Detect   DetectConfig    `json:"detect"`
	Link     LinkConfig      `json:"link"`
	Expander *ExpanderConfig `json:"expander,omitempty"`
}

type DetectConfig struct {
	PollIntervalUS int `json:"poll_interval_us"`
	PollTimeoutMS  int `json:"poll_timeout_ms"`
	BusyTimeoutMS  int `json:"busy_timeout_ms,omitempty"`
	Signature      int `json:"signature"`
}

type LinkConfig struct {
	Device string `json:"device"` // "uart0" on the MCU, a tty path on Linux
	Baud   uint32 `json:"baud"`
	TX     int    `json:"tx,omitempty"`
	RX     int    `json:"rx,omitempty"`
	Parity Parity `json:"parity,omitempty"`
}

type ExpanderConfig struct {
	Bus     string `json:"bus"` // "i2c0", "/dev/i2c-1"
	Address uint16 `json:"address"`
}
