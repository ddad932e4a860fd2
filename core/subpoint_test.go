package core

import (
	"errors"
	"testing"
	"time"
)

// ISS sample TLE.
const (
	issTLE1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issTLE2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

func TestSubPointWithinInclinationBand(t *testing.T) {
	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	first, err := SubPoint(issTLE1, issTLE2, t1)
	if err != nil {
		t.Fatalf("SubPoint error: %v", err)
	}
	if first.Lat < -52 || first.Lat > 52 {
		t.Fatalf("sub-point latitude %v outside the ISS inclination band", first.Lat)
	}

	second, err := SubPoint(issTLE1, issTLE2, t1.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("SubPoint error: %v", err)
	}
	if first == second {
		t.Fatalf("expected the sub-point to move over ten minutes, got %v twice", first)
	}
	if _, err := Project(second, DefaultGlobeRadius); err != nil {
		t.Fatalf("sub-point %v does not project: %v", second, err)
	}
}

func TestSubPointRejectsMalformedTLE(t *testing.T) {
	if _, err := SubPoint("", issTLE2, time.Now()); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("empty line 1 error = %v, want ErrInvalidParameter", err)
	}
	if _, err := SubPoint(issTLE1, "2 25544", time.Now()); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("short line 2 error = %v, want ErrInvalidParameter", err)
	}
	if _, err := SubPoint(issTLE2, issTLE1, time.Now()); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("swapped lines error = %v, want ErrInvalidParameter", err)
	}
}
