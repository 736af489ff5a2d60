// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"errors"
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertErrorIs fails the test unless errors.Is(err, target).
func AssertErrorIs(t testing.TB, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

// Near reports whether got and want differ by at most tol.
func Near(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

// AssertNear fails the test if got and want differ by more than tol.
func AssertNear(t testing.TB, got, want, tol float64) {
	t.Helper()
	if !Near(got, want, tol) {
		t.Errorf("got %v, want %v (tol %v)", got, want, tol)
	}
}
