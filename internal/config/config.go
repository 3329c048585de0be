package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultConnectTimeout bounds how long a single dial attempt may stay half-open.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultMaxReconnectAttempts caps consecutive automatic reconnection attempts.
	DefaultMaxReconnectAttempts = 10
	// DefaultReconnectEnabled controls whether dropped connections are retried at all.
	DefaultReconnectEnabled = true
	// DefaultMetaInfoInterval controls how often runtime meta-info is requested.
	DefaultMetaInfoInterval = 30 * time.Second
	// DefaultExcludedServerID names the internal test server that is hidden from aggregates.
	DefaultExcludedServerID = "test"
	// DefaultResyncOnUnresolved re-requests a full sync after an unresolvable removal.
	DefaultResyncOnUnresolved = false

	// DefaultRequestRate is the sustained outbound request budget in requests per second.
	DefaultRequestRate = 1.0
	// DefaultRequestBurst is how many outbound requests may be sent back to back.
	DefaultRequestBurst = 4

	// DefaultLogLevel controls verbosity for client logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "statusclient.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// DefaultReconnectDelays is the backoff sequence between reconnection attempts.
// The last value repeats once the attempt count runs past the end.
var DefaultReconnectDelays = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}

// Config captures all runtime tunables for the fleet status client.
type Config struct {
	URL                  string
	ConnectTimeout       time.Duration
	ReconnectDelays      []time.Duration
	MaxReconnectAttempts int
	ReconnectEnabled     bool
	MetaInfoInterval     time.Duration
	RequestRate          float64
	RequestBurst         int
	ExcludedServerID     string
	ResyncOnUnresolved   bool
	Logging              LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the client configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		URL:                  strings.TrimSpace(os.Getenv("FLEET_WS_URL")),
		ConnectTimeout:       DefaultConnectTimeout,
		ReconnectDelays:      append([]time.Duration(nil), DefaultReconnectDelays...),
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectEnabled:     DefaultReconnectEnabled,
		MetaInfoInterval:     DefaultMetaInfoInterval,
		RequestRate:          DefaultRequestRate,
		RequestBurst:         DefaultRequestBurst,
		ExcludedServerID:     getString("FLEET_EXCLUDED_SERVER", DefaultExcludedServerID),
		ResyncOnUnresolved:   DefaultResyncOnUnresolved,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("FLEET_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("FLEET_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("FLEET_CONNECT_TIMEOUT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("FLEET_CONNECT_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			cfg.ConnectTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLEET_RECONNECT_DELAYS")); raw != "" {
		delays, err := parseDelays(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("FLEET_RECONNECT_DELAYS must be a comma-separated list of positive durations, got %q", raw))
		} else {
			cfg.ReconnectDelays = delays
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLEET_MAX_RECONNECT_ATTEMPTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("FLEET_MAX_RECONNECT_ATTEMPTS must be a positive integer, got %q", raw))
		} else {
			cfg.MaxReconnectAttempts = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLEET_RECONNECT_ENABLED")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("FLEET_RECONNECT_ENABLED must be a boolean value, got %q", raw))
		} else {
			cfg.ReconnectEnabled = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLEET_METAINFO_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("FLEET_METAINFO_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.MetaInfoInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLEET_REQUEST_RATE")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("FLEET_REQUEST_RATE must be a positive number, got %q", raw))
		} else {
			cfg.RequestRate = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLEET_REQUEST_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("FLEET_REQUEST_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.RequestBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLEET_RESYNC_ON_UNRESOLVED")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("FLEET_RESYNC_ON_UNRESOLVED must be a boolean value, got %q", raw))
		} else {
			cfg.ResyncOnUnresolved = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLEET_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("FLEET_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLEET_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("FLEET_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLEET_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("FLEET_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLEET_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("FLEET_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if cfg.URL != "" && !strings.HasPrefix(cfg.URL, "ws://") && !strings.HasPrefix(cfg.URL, "wss://") {
		problems = append(problems, fmt.Sprintf("FLEET_WS_URL must use the ws or wss scheme, got %q", cfg.URL))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDelays(raw string) ([]time.Duration, error) {
	parts := strings.Split(raw, ",")
	delays := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		duration, err := time.ParseDuration(item)
		if err != nil || duration <= 0 {
			return nil, fmt.Errorf("invalid delay %q", item)
		}
		delays = append(delays, duration)
	}
	if len(delays) == 0 {
		return nil, fmt.Errorf("no delays provided")
	}
	return delays, nil
}
