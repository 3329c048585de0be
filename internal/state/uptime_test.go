package state

import (
	"testing"
	"time"

	"fleetwatch/statusclient/internal/logging"
	"fleetwatch/statusclient/internal/protocol"
)

func TestTickUptimeExtrapolatesFromBaseline(t *testing.T) {
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore(logging.NewTestLogger(), WithClock(func() time.Time { return current }))

	store.ApplyFullSync(&protocol.FullSync{RunningTime: 100, TotalRunningTime: 1000})

	current = current.Add(7 * time.Second)
	running, total, ok := store.TickUptime()
	if !ok {
		t.Fatalf("expected armed baseline")
	}
	if running != 107 || total != 1007 {
		t.Fatalf("expected 107/1007, got %d/%d", running, total)
	}
}

func TestTickUptimeNoBaselineIsNoOp(t *testing.T) {
	store := NewStore(logging.NewTestLogger())
	if _, _, ok := store.TickUptime(); ok {
		t.Fatalf("expected no extrapolation without a baseline")
	}
}

func TestMaintenanceClearsAndRestoresBaseline(t *testing.T) {
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore(logging.NewTestLogger(), WithClock(func() time.Time { return current }))
	store.ApplyFullSync(&protocol.FullSync{RunningTime: 50, TotalRunningTime: 500})

	store.SetMaintenance(true, nil)
	current = current.Add(time.Minute)
	if _, _, ok := store.TickUptime(); ok {
		t.Fatalf("expected no extrapolation during maintenance")
	}

	//1.- Exiting maintenance re-arms the baseline from the last displayed values.
	store.SetMaintenance(false, nil)
	current = current.Add(3 * time.Second)
	running, total, ok := store.TickUptime()
	if !ok {
		t.Fatalf("expected baseline re-armed after maintenance exit")
	}
	if running != 53 || total != 503 {
		t.Fatalf("expected 53/503, got %d/%d", running, total)
	}
}

func TestUptimeTickerLifecycle(t *testing.T) {
	store := NewStore(logging.NewTestLogger())
	store.ApplyFullSync(&protocol.FullSync{RunningTime: 10, TotalRunningTime: 20})

	ticker := NewUptimeTicker(store, 5*time.Millisecond, logging.NewTestLogger())
	ticker.Start()
	ticker.Start()
	time.Sleep(25 * time.Millisecond)
	ticker.Stop()
	ticker.Stop()

	running, total := store.Uptime()
	if running < 10 || total < 20 {
		t.Fatalf("expected counters at or above baseline, got %d/%d", running, total)
	}

	//1.- The ticker may be restarted after a stop.
	ticker.Start()
	ticker.Stop()
}
