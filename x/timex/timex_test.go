package timex

import (
	"testing"
	"time"
)

func TestPeriodFromHz(t *testing.T) {
	tests := []struct {
		hz   uint32
		want time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{500, 2 * time.Millisecond},
		{8000, 125 * time.Microsecond},
		{1500000, 666 * time.Nanosecond},
	}
	for _, tc := range tests {
		if got := PeriodFromHz(tc.hz); got != tc.want {
			t.Fatalf("PeriodFromHz(%d) = %v, want %v", tc.hz, got, tc.want)
		}
	}
}
