package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/shurlinet/dnsdiscover/internal/config"
	"github.com/shurlinet/dnsdiscover/internal/localaddr"
	"github.com/shurlinet/dnsdiscover/internal/transport"
	"github.com/shurlinet/dnsdiscover/pkg/discovery"
)

// built is the shared construction path every subcommand uses to turn a
// loaded config into a running Discovery instance: one unicast
// transport, an optional multicast transport, and the metrics/audit
// sinks the config asks for. Closing it tears down every transport it
// opened.
type built struct {
	Discovery *discovery.Discovery
	Config    *config.Config
	Metrics   *discovery.Metrics
}

func (b *built) Close() error {
	if b.Discovery != nil {
		return b.Discovery.Close()
	}
	return nil
}

// buildInstance loads cfgFile and constructs a Discovery instance wired
// to it, following the shape of discovery.Config in pkg/discovery.
// Each opt is applied to the loaded config before the instance is
// constructed, letting subcommands override flags like implied-port.
func buildInstance(cfgFile string, opts ...func(*config.Config)) (*built, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	for _, opt := range opts {
		opt(cfg)
	}

	unicast := transport.NewUnicastUDP()

	var multicast *transport.MulticastMDNS
	if cfg.Multicast.Enabled {
		multicast, err = transport.NewMulticastMDNS()
		if err != nil {
			return nil, fmt.Errorf("multicast transport: %w", err)
		}
	}

	var metrics *discovery.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		metrics = discovery.NewMetrics(version, runtime.Version())
	}

	var audit *discovery.AuditLog
	if cfg.Telemetry.Audit.Enabled {
		audit = discovery.NewAuditLog(slog.NewTextHandler(os.Stderr, nil))
	}

	dcfg := discovery.Config{
		Domain:            cfg.Domain,
		Trackers:          cfg.Trackers,
		MulticastEnabled:  cfg.Multicast.Enabled,
		ImpliedPort:       cfg.Listen.ImpliedPort,
		StoreTTL:          cfg.Store.TTL.Duration(),
		StoreLimit:        cfg.Store.Limit,
		SubscriptionTTL:   cfg.Subs.TTL.Duration(),
		SubscriptionLimit: cfg.Subs.Limit,
		Retries:           cfg.Retries,
		Unicast:           unicast,
		LocalIPv4:         localIPv4OrEmpty,
		Logger:            slog.Default(),
		Metrics:           metrics,
		Audit:             audit,
	}
	if multicast != nil {
		dcfg.Multicast = multicast
	}

	inst, err := discovery.New(dcfg)
	if err != nil {
		_ = unicast.Close()
		if multicast != nil {
			_ = multicast.Close()
		}
		return nil, fmt.Errorf("failed to construct discovery instance: %w", err)
	}

	return &built{Discovery: inst, Config: cfg, Metrics: metrics}, nil
}

// findConfig resolves the --config flag value (possibly empty) to a
// concrete config file path, wrapping the error with the "config error"
// prefix every subcommand reports it under.
func findConfig(explicit string) (string, error) {
	path, err := config.FindConfigFile(explicit)
	if err != nil {
		return "", fmt.Errorf("config error: %w", err)
	}
	return path, nil
}

// localIPv4OrEmpty adapts localaddr.PrimaryIPv4's (string, error) shape
// to the bare func() string the responder needs; a failure to determine
// the local address returns "", which the responder answers by leaving
// 0.0.0.0 unsubstituted.
func localIPv4OrEmpty() string {
	ip, err := localaddr.PrimaryIPv4()
	if err != nil {
		return ""
	}
	return ip
}
