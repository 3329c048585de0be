package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FLEET_WS_URL", "")
	t.Setenv("FLEET_CONNECT_TIMEOUT", "")
	t.Setenv("FLEET_RECONNECT_DELAYS", "")
	t.Setenv("FLEET_MAX_RECONNECT_ATTEMPTS", "")
	t.Setenv("FLEET_RECONNECT_ENABLED", "")
	t.Setenv("FLEET_METAINFO_INTERVAL", "")
	t.Setenv("FLEET_EXCLUDED_SERVER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Fatalf("expected default connect timeout %v, got %v", DefaultConnectTimeout, cfg.ConnectTimeout)
	}
	if len(cfg.ReconnectDelays) != 3 || cfg.ReconnectDelays[0] != time.Second || cfg.ReconnectDelays[2] != 15*time.Second {
		t.Fatalf("unexpected reconnect delays: %v", cfg.ReconnectDelays)
	}
	if cfg.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Fatalf("expected default max attempts %d, got %d", DefaultMaxReconnectAttempts, cfg.MaxReconnectAttempts)
	}
	if !cfg.ReconnectEnabled {
		t.Fatalf("expected reconnection enabled by default")
	}
	if cfg.MetaInfoInterval != DefaultMetaInfoInterval {
		t.Fatalf("expected default meta-info interval %v, got %v", DefaultMetaInfoInterval, cfg.MetaInfoInterval)
	}
	if cfg.ExcludedServerID != DefaultExcludedServerID {
		t.Fatalf("expected excluded server %q, got %q", DefaultExcludedServerID, cfg.ExcludedServerID)
	}
	if cfg.ResyncOnUnresolved {
		t.Fatalf("expected resync-on-unresolved disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FLEET_WS_URL", "wss://fleet.example.com/ws")
	t.Setenv("FLEET_CONNECT_TIMEOUT", "2s")
	t.Setenv("FLEET_RECONNECT_DELAYS", "250ms, 1s, 4s")
	t.Setenv("FLEET_MAX_RECONNECT_ATTEMPTS", "3")
	t.Setenv("FLEET_RECONNECT_ENABLED", "false")
	t.Setenv("FLEET_METAINFO_INTERVAL", "10s")
	t.Setenv("FLEET_EXCLUDED_SERVER", "lobby-dev")
	t.Setenv("FLEET_RESYNC_ON_UNRESOLVED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.URL != "wss://fleet.example.com/ws" {
		t.Fatalf("unexpected URL: %q", cfg.URL)
	}
	if cfg.ConnectTimeout != 2*time.Second {
		t.Fatalf("expected connect timeout 2s, got %v", cfg.ConnectTimeout)
	}
	if len(cfg.ReconnectDelays) != 3 || cfg.ReconnectDelays[0] != 250*time.Millisecond || cfg.ReconnectDelays[2] != 4*time.Second {
		t.Fatalf("unexpected reconnect delays: %v", cfg.ReconnectDelays)
	}
	if cfg.MaxReconnectAttempts != 3 {
		t.Fatalf("expected max attempts 3, got %d", cfg.MaxReconnectAttempts)
	}
	if cfg.ReconnectEnabled {
		t.Fatalf("expected reconnection disabled")
	}
	if cfg.ExcludedServerID != "lobby-dev" {
		t.Fatalf("unexpected excluded server %q", cfg.ExcludedServerID)
	}
	if !cfg.ResyncOnUnresolved {
		t.Fatalf("expected resync-on-unresolved enabled")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("FLEET_WS_URL", "http://not-a-websocket")
	t.Setenv("FLEET_CONNECT_TIMEOUT", "-1s")
	t.Setenv("FLEET_RECONNECT_DELAYS", "soon")
	t.Setenv("FLEET_MAX_RECONNECT_ATTEMPTS", "0")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected Load() to fail")
	}
	for _, fragment := range []string{"FLEET_WS_URL", "FLEET_CONNECT_TIMEOUT", "FLEET_RECONNECT_DELAYS", "FLEET_MAX_RECONNECT_ATTEMPTS"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected error to mention %s, got %v", fragment, err)
		}
	}
}
