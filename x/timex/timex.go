// Package timex converts between clock rates and periods.
package timex

import "time"

// NowMs returns Unix milliseconds, the timestamp unit of bus payloads.
func NowMs() int64 { return time.Now().UnixMilli() }

// PeriodFromHz returns the period of freqHz. Zero is treated as 1 Hz.
func PeriodFromHz(freqHz uint32) time.Duration {
	if freqHz == 0 {
		freqHz = 1
	}
	return time.Second / time.Duration(freqHz)
}
