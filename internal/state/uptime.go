package state

import (
	"sync"
	"time"

	"fleetwatch/statusclient/internal/logging"
)

// DefaultUptimeInterval is the cadence at which uptime counters are extrapolated.
const DefaultUptimeInterval = time.Second

// UptimeTicker advances the store's uptime counters between authoritative
// pushes so displayed values move smoothly. It owns its goroutine with an
// explicit start/stop lifecycle and may be restarted after Stop.
type UptimeTicker struct {
	store    *Store
	interval time.Duration
	log      *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewUptimeTicker constructs a ticker bound to the store.
func NewUptimeTicker(store *Store, interval time.Duration, logger *logging.Logger) *UptimeTicker {
	if interval <= 0 {
		interval = DefaultUptimeInterval
	}
	if logger == nil {
		logger = logging.L()
	}
	return &UptimeTicker{store: store, interval: interval, log: logger}
}

// Start launches the extrapolation loop. Calling Start on a running ticker is a no-op.
func (t *UptimeTicker) Start() {
	if t == nil || t.store == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.loop(t.stopCh, t.doneCh)
}

func (t *UptimeTicker) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	defer close(doneCh)
	for {
		select {
		case <-ticker.C:
			//1.- TickUptime is a no-op while the store holds no baseline, so the
			// loop stays idle through maintenance windows without racing Stop.
			t.store.TickUptime()
		case <-stopCh:
			return
		}
	}
}

// Stop cancels the loop and waits for it to exit. Safe to call repeatedly.
func (t *UptimeTicker) Stop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	stopCh, doneCh := t.stopCh, t.doneCh
	t.mu.Unlock()

	close(stopCh)
	<-doneCh
}
