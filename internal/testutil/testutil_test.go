package testutil

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	t.Parallel()
	AssertError(t, errors.New("boom"))
}

func TestAssertErrorIs(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("sentinel")
	AssertErrorIs(t, fmt.Errorf("wrapped: %w", sentinel), sentinel)
}

func TestNear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		got, want, tol float64
		ok             bool
	}{
		{1.0, 1.0, 0, true},
		{1.0, 1.0 + 1e-9, 1e-6, true},
		{1.0, 1.1, 1e-6, false},
		{math.NaN(), 0, 1, false},
	}
	for _, tt := range tests {
		if got := Near(tt.got, tt.want, tt.tol); got != tt.ok {
			t.Errorf("Near(%v, %v, %v) = %v, want %v", tt.got, tt.want, tt.tol, got, tt.ok)
		}
	}
	AssertNear(t, 0.3, 0.1+0.2, 1e-12)
}
