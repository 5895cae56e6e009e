package memory_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mapmeter/mapmeter/adapters/memory"
	"github.com/mapmeter/mapmeter/ports"
)

func bump(product, monthKey string, amount int64) ports.BumpEvent {
	return ports.BumpEvent{
		MonthKey:  monthKey,
		Product:   product,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCounterStore_ConcurrentIncreases(t *testing.T) {
	store := memory.NewCounterStore([]string{"Places API"})
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Increase(ctx, bump("Places API", "2026-07", 1))
		}()
	}
	wg.Wait()

	counts, err := store.GetMonth(ctx, "2026-07")
	if err != nil {
		t.Fatalf("GetMonth: %v", err)
	}
	if counts["Places API"] != n {
		t.Errorf("Places API = %d, want %d", counts["Places API"], n)
	}
}

func TestCounterStore_ZeroFillAndIsolation(t *testing.T) {
	store := memory.NewCounterStore([]string{"Places API", "Roads API"})
	ctx := context.Background()

	store.Increase(ctx, bump("Places API", "2026-06", 4))
	store.Increase(ctx, bump("Places API", "2026-07", 0)) // coerced to 1

	june, _ := store.GetMonth(ctx, "2026-06")
	if june["Places API"] != 4 || june["Roads API"] != 0 {
		t.Errorf("june = %v, want Places 4 and Roads zero-filled", june)
	}
	july, _ := store.GetMonth(ctx, "2026-07")
	if july["Places API"] != 1 {
		t.Errorf("july = %v, want coerced bump of 1", july)
	}
}

func TestCounterStore_Reset(t *testing.T) {
	store := memory.NewCounterStore([]string{"Places API"})
	ctx := context.Background()

	store.Increase(ctx, bump("Places API", "2026-06", 2))
	store.Increase(ctx, bump("Places API", "2026-07", 3))

	if err := store.Reset(ctx, "2026-07"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	june, _ := store.GetMonth(ctx, "2026-06")
	july, _ := store.GetMonth(ctx, "2026-07")
	if june["Places API"] != 2 {
		t.Errorf("june = %d, want untouched", june["Places API"])
	}
	if july["Places API"] != 0 {
		t.Errorf("july = %d, want 0 after reset", july["Places API"])
	}
	events, _ := store.GetEvents(ctx, "2026-07", 0)
	if len(events) != 0 {
		t.Errorf("events after reset = %d, want 0", len(events))
	}
}

func TestCounterStore_EventsNewestFirst(t *testing.T) {
	store := memory.NewCounterStore([]string{"Roads API"})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := bump("Roads API", "2026-06", 1)
		e.ID = strconv.Itoa(i)
		store.Increase(ctx, e)
	}

	events, err := store.GetEvents(ctx, "2026-06", 3)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want limit of 3", len(events))
	}
	if events[0].ID != "4" || events[2].ID != "2" {
		t.Errorf("event order = %q..%q, want newest first", events[0].ID, events[2].ID)
	}
}
