package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
//
// Pins: -1 is not wired, 100+ addresses the I²C expander (100 + bit).
// -----------------------------------------------------------------------------

// Raspberry Pi Pico: data bus on GP2..GP9, control on GP10..GP19, HVSP on
// GP20..GP22/GP26, host link on UART0.
const cfgPico = `{
  "board": {
    "name": "pico",
    "data": [2, 3, 4, 5, 6, 7, 8, 9],
    "lines": {
      "vdd": 10, "vpp": 11, "xtal1": 12, "xa0": 13, "xa1": 14,
      "bs1": 15, "bs2": 16, "pagel": 17, "wr": 18, "oe": 19,
      "sci": 20, "sdi": 21, "sii": 22, "sdo": 26
    },
    "detect": {"poll_interval_us": 1000, "poll_timeout_ms": 1000, "signature": 30},
    "link": {"device": "uart0", "baud": 115200, "tx": 0, "rx": 1}
  },
  "heartbeat": {
      "interval": 5
  }
}`

// Raspberry Pi (Linux, BCM numbering): control lines on the header, data bus
// on an MCP23017 at 0x20 (port A), host link on the USB gadget serial port.
const cfgRPi = `{
  "board": {
    "name": "rpi",
    "data": [100, 101, 102, 103, 104, 105, 106, 107],
    "lines": {
      "vdd": 5, "vpp": 6, "xtal1": 12, "xa0": 13, "xa1": 16,
      "bs1": 17, "bs2": 19, "pagel": 20, "wr": 21, "oe": 22,
      "sci": 23, "sdi": 24, "sii": 25, "sdo": 26
    },
    "detect": {"poll_interval_us": 1000, "poll_timeout_ms": 1000, "signature": 30},
    "link": {"device": "/dev/ttyGS0", "baud": 115200},
    "expander": {"bus": "/dev/i2c-1", "address": 32}
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"rpi":  []byte(cfgRPi),
}
