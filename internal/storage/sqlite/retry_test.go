package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/pointsemantic/internal/timeutil"
)

func TestIsSQLiteBusy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"other error", errors.New("some other error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSQLiteBusy(tt.err); got != tt.expected {
				t.Errorf("isSQLiteBusy(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryOnBusy(t *testing.T) {
	busy := errors.New("database is locked (5) (SQLITE_BUSY)")

	t.Run("success after retry", func(t *testing.T) {
		clock := timeutil.NewMockClock(time.Time{})
		calls := 0
		err := retryOnBusy(clock, func() error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("err = %v, calls = %d; want nil, 3", err, calls)
		}
		if got := clock.Sleeps(); len(got) != 2 || got[0] != initialBusyDelay || got[1] != 2*initialBusyDelay {
			t.Errorf("sleeps = %v, want [%v %v]", got, initialBusyDelay, 2*initialBusyDelay)
		}
	})

	t.Run("non-busy error fails immediately", func(t *testing.T) {
		clock := timeutil.NewMockClock(time.Time{})
		calls := 0
		want := errors.New("constraint failed")
		err := retryOnBusy(clock, func() error {
			calls++
			return want
		})
		if err != want || calls != 1 {
			t.Errorf("err = %v, calls = %d; want %v, 1", err, calls, want)
		}
		if len(clock.Sleeps()) != 0 {
			t.Errorf("slept %v before a non-busy error", clock.Sleeps())
		}
	})

	t.Run("gives up", func(t *testing.T) {
		clock := timeutil.NewMockClock(time.Time{})
		calls := 0
		err := retryOnBusy(clock, func() error {
			calls++
			return busy
		})
		if err == nil || calls != maxBusyAttempts {
			t.Errorf("err = %v, calls = %d; want busy, %d", err, calls, maxBusyAttempts)
		}
		if got := len(clock.Sleeps()); got != maxBusyAttempts-1 {
			t.Errorf("slept %d times, want %d", got, maxBusyAttempts-1)
		}
	})
}
