package discovery

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// PeerView is the JSON-facing shape of one stored peer (spec.md §9
// open question — ToJSON's schema, left implicit upstream, is defined
// here explicitly).
type PeerView struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// DefaultPorts are the listen ports bound by Listen when the caller
// supplies none (spec.md §4.9).
var DefaultPorts = []uint16{53, 5300}

// Config bundles the construction-time parameters of a Discovery
// instance.
type Config struct {
	Domain           string
	Trackers         []string // "host[:port[,secondaryPort]]"
	MulticastEnabled bool
	ImpliedPort      bool
	StoreTTL         time.Duration
	StoreLimit       int
	SubscriptionTTL  time.Duration
	SubscriptionLimit int
	Retries          int

	Unicast   UnicastTransport
	Multicast MulticastTransport
	LocalIPv4 func() string

	Logger  *slog.Logger
	Metrics *Metrics
	Audit   *AuditLog
}

// Discovery is one peer discovery instance: client, server, or both
// depending on whether Listen is called (spec.md §1, §4.9).
type Discovery struct {
	cfg Config

	instanceID string

	store *PeerStore
	subs  *PeerStore

	secrets      *SecretManager
	sessions     []*TrackerSession
	coordinator  *Coordinator
	pusher       *Pusher
	ingest       *Ingester
	responder    *Responder
	events       *EventBus

	listening atomic.Bool
	closeOnce sync.Once
	stopRotation chan struct{}
	wg           sync.WaitGroup

	log *slog.Logger
}

// New constructs a Discovery instance from cfg. It does not bind any
// socket; call Listen for server mode.
func New(cfg Config) (*Discovery, error) {
	if cfg.Domain == "" {
		cfg.Domain = "dns-discovery.local"
	}
	if cfg.Retries == 0 {
		cfg.Retries = 2
	}
	if cfg.SubscriptionTTL == 0 {
		cfg.SubscriptionTTL = DefaultSubscriptionTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var idBuf [32]byte
	if _, err := rand.Read(idBuf[:]); err != nil {
		return nil, err
	}

	d := &Discovery{
		cfg:          cfg,
		instanceID:   base64.StdEncoding.EncodeToString(idBuf[:]),
		store:        NewPeerStore(cfg.StoreTTL, cfg.StoreLimit),
		subs:         NewPeerStore(cfg.SubscriptionTTL, cfg.SubscriptionLimit),
		events:       NewEventBus(),
		stopRotation: make(chan struct{}),
		log:          logger.WithGroup("discovery"),
	}

	secrets, err := NewSecretManager(d.listening.Load)
	if err != nil {
		return nil, err
	}
	d.secrets = secrets

	for i, addr := range cfg.Trackers {
		t, err := ParseTracker(addr)
		if err != nil {
			return nil, err
		}
		d.sessions = append(d.sessions, &TrackerSession{
			Index:     i,
			Tracker:   t,
			Domain:    cfg.Domain,
			Transport: cfg.Unicast,
			Tokens:    secrets.Tokens,
			Retries:   cfg.Retries,
		})
	}

	var multicast MulticastTransport
	if cfg.MulticastEnabled {
		multicast = cfg.Multicast
	}

	d.ingest = &Ingester{
		Domain:    cfg.Domain,
		Ring:      secrets.Ring,
		Store:     d.store,
		Subs:      d.subs,
		Events:    d.events,
		Audit:     cfg.Audit,
		Metrics:   cfg.Metrics,
		Listening: d.listening.Load,
	}
	d.pusher = &Pusher{Domain: cfg.Domain, Subs: d.subs, Transport: cfg.Unicast, Metrics: cfg.Metrics}
	d.ingest.OnFreshAnnounce = func(topic Topic, p Peer) {
		d.pusher.Push(context.Background(), topic, p)
	}

	d.coordinator = &Coordinator{
		Domain:      cfg.Domain,
		Sessions:    d.sessions,
		Store:       d.store,
		Multicast:   multicast,
		ImpliedPort: cfg.ImpliedPort,
		Events:      d.events,
		Metrics:     cfg.Metrics,
	}

	d.responder = &Responder{
		Domain:    cfg.Domain,
		Store:     d.store,
		Ring:      secrets.Ring,
		LocalIPv4: cfg.LocalIPv4,
		Ingest:    d.ingest,
		Metrics:   cfg.Metrics,
		Audit:     cfg.Audit,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.secrets.Run(d.stopRotation)
	}()

	return d, nil
}

// InstanceID returns the 32-byte random instance identifier rendered
// as base64 (spec.md §3).
func (d *Discovery) InstanceID() string { return d.instanceID }

// Events returns a subscription to this instance's event stream.
func (d *Discovery) Events() (<-chan Event, func()) { return d.events.Subscribe() }

// Listen binds server-mode sockets on the given ports (defaulting to
// DefaultPorts), idempotent-at-most-once (spec.md §4.9).
func (d *Discovery) Listen(ports []uint16) error {
	if !d.listening.CompareAndSwap(false, true) {
		return ErrAlreadyListening
	}
	if len(ports) == 0 {
		ports = DefaultPorts
	}
	for _, p := range ports {
		if err := d.cfg.Unicast.Bind(p, d.responder.HandleUnicast); err != nil {
			return fmt.Errorf("%w: bind port %d: %v", ErrTransport, p, err)
		}
	}
	if d.cfg.MulticastEnabled && d.cfg.Multicast != nil {
		if err := d.cfg.Multicast.Serve(d.responder.HandleMulticast); err != nil {
			return fmt.Errorf("%w: mdns serve: %v", ErrTransport, err)
		}
	}
	d.log.Info("listening", "ports", ports)
	d.events.Publish(Event{Kind: EventListening})
	return nil
}

// Close tears down every bound socket, stops the rotation timer, and
// emits EventClose exactly once (spec.md §4.9).
func (d *Discovery) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.stopRotation)
		if d.cfg.MulticastEnabled && d.cfg.Multicast != nil {
			_ = d.cfg.Multicast.Close()
		}
		if d.cfg.Unicast != nil {
			err = d.cfg.Unicast.Close()
		}
		d.wg.Wait()
		d.log.Info("closed")
		d.events.Publish(Event{Kind: EventClose})
	})
	return err
}

// Announce publishes that this instance serves topic on port.
func (d *Discovery) Announce(ctx context.Context, topic Topic, port uint16) error {
	return d.coordinator.Visit(ctx, VisitAnnounce, topic, port)
}

// Unannounce retracts a prior announcement.
func (d *Discovery) Unannounce(ctx context.Context, topic Topic, port uint16) error {
	return d.coordinator.Visit(ctx, VisitUnannounce, topic, port)
}

// Lookup discovers other participants serving topic; results arrive as
// EventPeer events on the instance's event stream.
func (d *Discovery) Lookup(ctx context.Context, topic Topic) error {
	return d.coordinator.Visit(ctx, VisitLookup, topic, 0)
}

// Whoami determines how the configured trackers see this instance's
// public host:port (spec.md §4.8).
func (d *Discovery) Whoami(ctx context.Context) (WhoamiObservation, error) {
	obs, err := Whoami(ctx, d.sessions)
	if err != nil {
		if errors.Is(err, ErrInconsistentObservation) {
			d.cfg.Metrics.IncWhoami("inconsistent")
			d.cfg.Audit.WhoamiInconsistent(len(d.sessions))
		} else {
			d.cfg.Metrics.IncWhoami("failed")
		}
		return obs, err
	}
	d.cfg.Metrics.IncWhoami("success")
	return obs, nil
}

// ToJSON returns the main peer store's contents keyed by topic hex
// string (spec.md §9 open question — schema defined explicitly here).
func (d *Discovery) ToJSON() map[string][]PeerView {
	raw := d.store.Iterate()
	out := make(map[string][]PeerView, len(raw))
	for topic, peers := range raw {
		views := make([]PeerView, 0, len(peers))
		for _, p := range peers {
			views = append(views, PeerView{Host: p.Host, Port: p.Port})
		}
		out[topic.String()] = views
	}
	return out
}
