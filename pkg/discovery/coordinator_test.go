package discovery

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/shurlinet/dnsdiscover/internal/dnswire"
)

// fakeMulticast is a minimal MulticastTransport stub for coordinator tests.
type fakeMulticast struct {
	query func(ctx context.Context, msg *dnswire.Message, onAnswer AnswerHandler) error
}

func (f *fakeMulticast) Query(ctx context.Context, msg *dnswire.Message, onAnswer AnswerHandler) error {
	return f.query(ctx, msg, onAnswer)
}
func (f *fakeMulticast) Serve(onQuery QueryHandler) error { return nil }
func (f *fakeMulticast) Close() error                     { return nil }

func peersReply(token string, host string, port uint16) *dnswire.Message {
	fields := dnswire.NewFields().SetString(dnswire.KeyToken, token)
	packed, _ := dnswire.PackPeers([][4]byte{{203, 0, 113, 9}}, []uint16{port})
	fields.SetString(dnswire.KeyPeers, base64.StdEncoding.EncodeToString(packed))
	_ = host
	return &dnswire.Message{Answers: []dnswire.Record{{Type: dnswire.TypeTXT, TXTData: dnswire.EncodeTXT(fields)}}}
}

func newTestSession(t *testing.T, index int, query func(ctx context.Context, msg *dnswire.Message, host string, port uint16, retries int) (*dnswire.Message, error)) *TrackerSession {
	t.Helper()
	tokens := NewTokenTable()
	tokens.Set(index, "tok-seed")
	return &TrackerSession{
		Index:     index,
		Tracker:   &Tracker{Host: fmt.Sprintf("tracker%d.example", index), Port: 53},
		Domain:    "ddisc.example",
		Transport: &fakeTransport{query: query},
		Tokens:    tokens,
	}
}

func TestCoordinator_Visit_SucceedsWhenOneSessionSucceeds(t *testing.T) {
	okSess := newTestSession(t, 0, func(ctx context.Context, msg *dnswire.Message, host string, port uint16, retries int) (*dnswire.Message, error) {
		return peersReply("tok-1", "203.0.113.9", 4000), nil
	})
	failSess := newTestSession(t, 1, func(ctx context.Context, msg *dnswire.Message, host string, port uint16, retries int) (*dnswire.Message, error) {
		return nil, fmt.Errorf("unreachable")
	})

	bus := NewEventBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	c := &Coordinator{
		Domain:   "ddisc.example",
		Sessions: []*TrackerSession{okSess, failSess},
		Store:    NewPeerStore(0, 0),
		Events:   bus,
	}
	topic := NewTopic([]byte{1, 2, 3})
	if err := c.Visit(context.Background(), VisitLookup, topic, 4000); err != nil {
		t.Fatalf("Visit: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Kind != EventPeer || ev.Peer.Host != "203.0.113.9" || ev.Peer.Port != 4000 {
			t.Errorf("got event %+v, want a peer event for 203.0.113.9:4000", ev)
		}
	default:
		t.Fatal("expected a peer event to have been published during Visit")
	}
}

func TestCoordinator_Visit_FailsWhenAllSessionsFail(t *testing.T) {
	failSess := newTestSession(t, 0, func(ctx context.Context, msg *dnswire.Message, host string, port uint16, retries int) (*dnswire.Message, error) {
		return nil, fmt.Errorf("unreachable")
	})
	c := &Coordinator{
		Domain:   "ddisc.example",
		Sessions: []*TrackerSession{failSess},
		Store:    NewPeerStore(0, 0),
		Events:   NewEventBus(),
	}
	topic := NewTopic([]byte{1, 2, 3})
	if err := c.Visit(context.Background(), VisitLookup, topic, 4000); err == nil {
		t.Fatal("expected an error when every leg fails")
	}
}

func TestCoordinator_Visit_FailsWithNoLegsConfigured(t *testing.T) {
	c := &Coordinator{Domain: "ddisc.example", Store: NewPeerStore(0, 0), Events: NewEventBus()}
	topic := NewTopic([]byte{1, 2, 3})
	if err := c.Visit(context.Background(), VisitLookup, topic, 4000); err == nil {
		t.Fatal("expected an error with no trackers or multicast configured")
	}
}

func TestCoordinator_Visit_AnnounceAddsToStoreBeforeFanOut(t *testing.T) {
	sess := newTestSession(t, 0, func(ctx context.Context, msg *dnswire.Message, host string, port uint16, retries int) (*dnswire.Message, error) {
		return &dnswire.Message{}, nil
	})
	store := NewPeerStore(0, 0)
	c := &Coordinator{Domain: "ddisc.example", Sessions: []*TrackerSession{sess}, Store: store, Events: NewEventBus()}
	topic := NewTopic([]byte{1, 2, 3})

	if err := c.Visit(context.Background(), VisitAnnounce, topic, 4000); err != nil {
		t.Fatalf("Visit: %v", err)
	}
	found := false
	for _, p := range store.Get(topic, 10) {
		if p.Port == 4000 {
			found = true
		}
	}
	if !found {
		t.Error("expected the announced port to be present in the store")
	}
}

func TestCoordinator_Visit_UnannounceRemovesFromStoreAndSkipsMulticast(t *testing.T) {
	sess := newTestSession(t, 0, func(ctx context.Context, msg *dnswire.Message, host string, port uint16, retries int) (*dnswire.Message, error) {
		return &dnswire.Message{}, nil
	})
	store := NewPeerStore(0, 0)
	topic := NewTopic([]byte{1, 2, 3})
	store.Add(topic, ZeroHost, 4000)

	multicastCalled := false
	mc := &fakeMulticast{query: func(ctx context.Context, msg *dnswire.Message, onAnswer AnswerHandler) error {
		multicastCalled = true
		return nil
	}}

	c := &Coordinator{Domain: "ddisc.example", Sessions: []*TrackerSession{sess}, Store: store, Multicast: mc, Events: NewEventBus()}
	if err := c.Visit(context.Background(), VisitUnannounce, topic, 4000); err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if multicastCalled {
		t.Error("unannounce should not fan out over multicast")
	}
	if got := store.Get(topic, 10); len(got) != 0 {
		t.Errorf("store still has entries after unannounce: %v", got)
	}
}

func TestCoordinator_Visit_MulticastSuccessCountsAsOverallSuccess(t *testing.T) {
	mc := &fakeMulticast{query: func(ctx context.Context, msg *dnswire.Message, onAnswer AnswerHandler) error {
		onAnswer(dnswire.Record{Type: dnswire.TypeTXT}, "203.0.113.9", 4000)
		return nil
	}}
	c := &Coordinator{Domain: "ddisc.example", Store: NewPeerStore(0, 0), Multicast: mc, Events: NewEventBus()}
	topic := NewTopic([]byte{1, 2, 3})
	if err := c.Visit(context.Background(), VisitLookup, topic, 4000); err != nil {
		t.Fatalf("Visit: %v", err)
	}
}

// TestCoordinator_Visit_MulticastManyAnswersDoesNotPanic guards against
// a fixed-capacity success channel: a shared long-lived multicast read
// loop can invoke onAnswer many times for one Query call, well past any
// per-leg buffer sized for a single signal.
func TestCoordinator_Visit_MulticastManyAnswersDoesNotPanic(t *testing.T) {
	mc := &fakeMulticast{query: func(ctx context.Context, msg *dnswire.Message, onAnswer AnswerHandler) error {
		for i := 0; i < 50; i++ {
			onAnswer(dnswire.Record{Type: dnswire.TypeTXT}, "203.0.113.9", uint16(4000+i))
		}
		return nil
	}}
	c := &Coordinator{Domain: "ddisc.example", Store: NewPeerStore(0, 0), Multicast: mc, Events: NewEventBus()}
	topic := NewTopic([]byte{1, 2, 3})
	if err := c.Visit(context.Background(), VisitLookup, topic, 4000); err != nil {
		t.Fatalf("Visit: %v", err)
	}
}
