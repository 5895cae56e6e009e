package clock_test

import (
	"testing"
	"time"

	"github.com/mapmeter/mapmeter/adapters/clock"
)

func TestFake(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)

	if !fake.Now().Equal(start) {
		t.Errorf("Now = %v, want %v", fake.Now(), start)
	}

	fake.Advance(48 * time.Hour)
	if want := start.Add(48 * time.Hour); !fake.Now().Equal(want) {
		t.Errorf("Now = %v, want %v", fake.Now(), want)
	}

	reset := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	fake.Set(reset)
	if !fake.Now().Equal(reset) {
		t.Errorf("Now = %v, want %v", fake.Now(), reset)
	}
}

func TestReal(t *testing.T) {
	before := time.Now()
	got := clock.Real{}.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("Now = %v, want between %v and %v", got, before, after)
	}
}
