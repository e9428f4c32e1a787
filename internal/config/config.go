package config

import (
	"fmt"
	"time"
)

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1

// Config is a discovery instance's on-disk configuration (spec.md §1,
// §4.9): which domain suffix it answers under, which trackers it talks
// to, and the store/subscription/telemetry knobs layered on top.
type Config struct {
	Version   int             `yaml:"version,omitempty"`
	Domain    string          `yaml:"domain"`
	Trackers  []string        `yaml:"trackers"`
	Multicast MulticastConfig `yaml:"multicast,omitempty"`
	Listen    ListenConfig    `yaml:"listen,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Subs      SubsConfig      `yaml:"subscriptions,omitempty"`
	Retries   int             `yaml:"retries,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// MulticastConfig controls the mDNS leg of tracker fan-out (spec.md §6).
type MulticastConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ListenConfig controls server-mode socket binding (spec.md §4.9).
type ListenConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Ports       []uint16 `yaml:"ports,omitempty"` // default: 53, 5300
	ImpliedPort bool     `yaml:"implied_port,omitempty"`
}

// StoreConfig sizes the main peer store (spec.md §2).
type StoreConfig struct {
	TTL   Duration `yaml:"ttl,omitempty"`   // default: 10m
	Limit int      `yaml:"limit,omitempty"` // default: 0 = unbounded
}

// SubsConfig sizes the push-subscription store (spec.md §5).
type SubsConfig struct {
	TTL   Duration `yaml:"ttl,omitempty"`   // default: 60s
	Limit int      `yaml:"limit,omitempty"` // default: 0 = unbounded
}

// TelemetryConfig holds observability settings. All features are
// disabled by default (opt-in), matching the teacher's posture.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Audit   AuditConfig   `yaml:"audit,omitempty"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address,omitempty"` // default: "127.0.0.1:9091"
}

// AuditConfig controls structured audit logging.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Duration wraps time.Duration with YAML (un)marshaling via the
// human-readable Go duration syntax ("10m", "30s"), the same
// ergonomics the teacher's loader hand-rolled for its one duration
// field; doing it as a named type with UnmarshalYAML/MarshalYAML
// generalizes that to every duration field in this config instead of
// a raw-struct workaround per field.
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// DefaultListenPorts are the ports a discovery instance listens on
// when Listen.Ports is unset (spec.md §4.9).
var DefaultListenPorts = []uint16{53, 5300}

// applyDefaults fills zero-valued fields with the spec's defaults.
func applyDefaults(cfg *Config) {
	if cfg.Domain == "" {
		cfg.Domain = "dns-discovery.local"
	}
	if cfg.Retries == 0 {
		cfg.Retries = 2
	}
	if cfg.Store.TTL == 0 {
		cfg.Store.TTL = Duration(10 * time.Minute)
	}
	if cfg.Subs.TTL == 0 {
		cfg.Subs.TTL = Duration(60 * time.Second)
	}
	if cfg.Listen.Enabled && len(cfg.Listen.Ports) == 0 {
		cfg.Listen.Ports = DefaultListenPorts
	}
	if cfg.Telemetry.Metrics.Enabled && cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = "127.0.0.1:9091"
	}
}
