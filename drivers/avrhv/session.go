package avrhv

import "time"

// Session is the state of one programming session. The zero value is a
// disconnected session. It is owned by a single caller and is not safe for
// concurrent use.
type Session struct {
	// Device is set by EnterProgrammingMode and cleared by Disconnect.
	Device DeviceType
	// HighSegment is the last extended address byte (addr >> 17) loaded
	// into the target.
	HighSegment byte
	// PageSize is the flash page size in words; 0 means unpaged.
	PageSize uint16
	// BitDelay is the serial half-bit time applied at the next detection.
	BitDelay time.Duration

	t          Transport
	pendingLow byte
	fill       uint16
}

// Reset clears everything except BitDelay.
func (s *Session) Reset() {
	*s = Session{BitDelay: s.BitDelay}
}

// Transport returns the transport bound by detection, or a stand-in that
// reads 0xFF when no device is bound.
func (s *Session) Transport() Transport {
	if s.t == nil {
		return noTransport{}
	}
	return s.t
}

// Detected reports whether a device is bound.
func (s *Session) Detected() bool { return s.t != nil }

// bind records the transport found by detection. Entry power-cycles the
// target, which clears its extended address register.
func (s *Session) bind(t Transport) {
	s.t = t
	s.HighSegment = 0
	if t == nil {
		s.Device = DeviceNone
		return
	}
	s.Device = t.Type()
}

// segmentChanged records addr's extended segment and reports whether it
// differs from the one last loaded.
func (s *Session) segmentChanged(addr uint32) bool {
	seg := byte(addr >> 17)
	if s.HighSegment^seg == 0 {
		return false
	}
	s.HighSegment = seg
	return true
}
