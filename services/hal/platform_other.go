// services/hal/platform_other.go
//go:build !linux && !rp2040 && !rp2350

package hal

// No GPIO or I²C access on this platform; hand out host fakes so the
// simulator and tests still run.
func DefaultPinFactory() PinFactory    { return &HostPinFactory{} }
func DefaultI2CFactory() I2CBusFactory { return &HostI2CFactory{} }
