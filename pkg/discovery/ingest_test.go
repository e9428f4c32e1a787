package discovery

import (
	"encoding/base64"
	"testing"

	"github.com/shurlinet/dnsdiscover/internal/dnswire"
)

func newTestIngester(t *testing.T, listening bool) (*Ingester, *EventBus) {
	t.Helper()
	ring, err := NewSecretRing()
	if err != nil {
		t.Fatalf("NewSecretRing: %v", err)
	}
	bus := NewEventBus()
	g := &Ingester{
		Domain:    "ddisc.example",
		Ring:      ring,
		Store:     NewPeerStore(0, 0),
		Subs:      NewPeerStore(0, 0),
		Events:    bus,
		Listening: func() bool { return listening },
	}
	return g, bus
}

func TestIngester_Ingest_IgnoresRecordsOutsideDomain(t *testing.T) {
	g, bus := newTestIngester(t, true)
	ch, cancel := bus.Subscribe()
	defer cancel()

	g.Ingest(dnswire.Record{Type: dnswire.TypeSRV, Name: "abcd.other-domain", SRVData: dnswire.SRVData{Target: "203.0.113.9", Port: 4000}}, "203.0.113.9", 4000)

	select {
	case ev := <-ch:
		t.Fatalf("expected no event for a record outside the domain, got %+v", ev)
	default:
	}
}

func TestIngester_IngestSRV_EmitsPeerEvent(t *testing.T) {
	g, bus := newTestIngester(t, true)
	ch, cancel := bus.Subscribe()
	defer cancel()

	rec := dnswire.Record{Type: dnswire.TypeSRV, Name: "abcd.ddisc.example", SRVData: dnswire.SRVData{Target: "203.0.113.9", Port: 4000}}
	g.Ingest(rec, "203.0.113.9", 4000)

	select {
	case ev := <-ch:
		if ev.Kind != EventPeer || ev.Peer.Host != "203.0.113.9" || ev.Peer.Port != 4000 {
			t.Errorf("got %+v, want a peer event for 203.0.113.9:4000", ev)
		}
	default:
		t.Fatal("expected a peer event for a valid SRV record")
	}
}

func TestIngester_IngestSRV_ZeroHostSubstitutesSource(t *testing.T) {
	g, bus := newTestIngester(t, true)
	ch, cancel := bus.Subscribe()
	defer cancel()

	rec := dnswire.Record{Type: dnswire.TypeSRV, Name: "abcd.ddisc.example", SRVData: dnswire.SRVData{Target: ZeroHost, Port: 4000}}
	g.Ingest(rec, "203.0.113.9", 9999)

	ev := <-ch
	if ev.Peer.Host != "203.0.113.9" {
		t.Errorf("Peer.Host = %q, want the source host substituted for 0.0.0.0", ev.Peer.Host)
	}
}

func TestIngester_IngestTXT_EchoedTokenAnnounceAddsToStore(t *testing.T) {
	g, bus := newTestIngester(t, true)
	ch, cancel := bus.Subscribe()
	defer cancel()

	token := g.Ring.IssueToken("203.0.113.9")
	fields := dnswire.NewFields().SetString(dnswire.KeyToken, token).SetString(dnswire.KeyAnnounce, "4000")
	rec := dnswire.Record{Type: dnswire.TypeTXT, Name: "abcd.ddisc.example", TXTData: dnswire.EncodeTXT(fields)}

	g.Ingest(rec, "203.0.113.9", 9999)

	found := false
	for _, p := range g.Store.Get(NewTopic([]byte{0xab, 0xcd}), 10) {
		if p.Host == "203.0.113.9" && p.Port == 4000 {
			found = true
		}
	}
	if !found {
		t.Error("expected the announced peer to be present in the store")
	}

	select {
	case ev := <-ch:
		if ev.Peer.Host != "203.0.113.9" || ev.Peer.Port != 4000 {
			t.Errorf("got %+v, want the announced peer", ev)
		}
	default:
		t.Fatal("expected an emitted peer event for the announce")
	}
}

func TestIngester_IngestTXT_InvalidTokenCarriesPeersField(t *testing.T) {
	g, bus := newTestIngester(t, true)
	ch, cancel := bus.Subscribe()
	defer cancel()

	packed, _ := dnswire.PackPeers([][4]byte{{203, 0, 113, 9}}, []uint16{4000})
	fields := dnswire.NewFields().SetString(dnswire.KeyToken, "not-a-real-token")
	fields.SetString(dnswire.KeyPeers, base64.StdEncoding.EncodeToString(packed))
	rec := dnswire.Record{Type: dnswire.TypeTXT, Name: "abcd.ddisc.example", TXTData: dnswire.EncodeTXT(fields)}

	g.Ingest(rec, "198.51.100.1", 9999)

	select {
	case ev := <-ch:
		if ev.Peer.Host != "203.0.113.9" || ev.Peer.Port != 4000 {
			t.Errorf("got %+v, want the packed peer", ev)
		}
	default:
		t.Fatal("expected the packed peers field to be emitted for an invalid-token record")
	}
}

func TestIngester_IngestTXT_ValidTokenIgnoredWhenNotListening(t *testing.T) {
	g, bus := newTestIngester(t, false)
	ch, cancel := bus.Subscribe()
	defer cancel()

	token := g.Ring.IssueToken("203.0.113.9")
	fields := dnswire.NewFields().SetString(dnswire.KeyToken, token).SetString(dnswire.KeyAnnounce, "4000")
	rec := dnswire.Record{Type: dnswire.TypeTXT, Name: "abcd.ddisc.example", TXTData: dnswire.EncodeTXT(fields)}

	g.Ingest(rec, "203.0.113.9", 9999)

	select {
	case ev := <-ch:
		t.Fatalf("expected no event while not listening, got %+v", ev)
	default:
	}
	if s := g.Store.Size(); s != 0 {
		t.Errorf("Store.Size() = %d, want 0 while not listening", s)
	}
}

func TestIngester_IngestTXT_FreshAnnounceTriggersCallbackOnce(t *testing.T) {
	g, _ := newTestIngester(t, true)
	calls := 0
	g.OnFreshAnnounce = func(topic Topic, p Peer) { calls++ }

	token := g.Ring.IssueToken("203.0.113.9")
	fields := dnswire.NewFields().SetString(dnswire.KeyToken, token).SetString(dnswire.KeyAnnounce, "4000")
	rec := dnswire.Record{Type: dnswire.TypeTXT, Name: "abcd.ddisc.example", TXTData: dnswire.EncodeTXT(fields)}

	g.Ingest(rec, "203.0.113.9", 9999)
	g.Ingest(rec, "203.0.113.9", 9999) // duplicate: store.Add returns false, no second callback

	if calls != 1 {
		t.Errorf("OnFreshAnnounce called %d times, want 1", calls)
	}
}

func TestIngester_IngestTXT_UnannounceRemovesFromStore(t *testing.T) {
	g, _ := newTestIngester(t, true)
	topic := NewTopic([]byte{0xab, 0xcd})
	g.Store.Add(topic, "203.0.113.9", 4000)

	token := g.Ring.IssueToken("203.0.113.9")
	fields := dnswire.NewFields().SetString(dnswire.KeyToken, token).SetString(dnswire.KeyUnannounce, "4000")
	rec := dnswire.Record{Type: dnswire.TypeTXT, Name: "abcd.ddisc.example", TXTData: dnswire.EncodeTXT(fields)}

	g.Ingest(rec, "203.0.113.9", 9999)

	if got := g.Store.Get(topic, 10); len(got) != 0 {
		t.Errorf("Store.Get() after unannounce = %v, want empty", got)
	}
}

func TestIngester_IngestTXT_SubscribeTrueAddsSubscriber(t *testing.T) {
	g, _ := newTestIngester(t, true)
	topic := NewTopic([]byte{0xab, 0xcd})

	token := g.Ring.IssueToken("203.0.113.9")
	fields := dnswire.NewFields().SetString(dnswire.KeyToken, token).SetString(dnswire.KeySubscribe, "true")
	rec := dnswire.Record{Type: dnswire.TypeTXT, Name: "abcd.ddisc.example", TXTData: dnswire.EncodeTXT(fields)}

	g.Ingest(rec, "203.0.113.9", 9999)

	found := false
	for _, p := range g.Subs.Get(topic, 10) {
		if p.Host == "203.0.113.9" && p.Port == 9999 {
			found = true
		}
	}
	if !found {
		t.Error("expected the source to be added as a subscriber")
	}
}

func TestIngester_IngestTXT_SubscribeFalseRemovesSubscriber(t *testing.T) {
	g, _ := newTestIngester(t, true)
	topic := NewTopic([]byte{0xab, 0xcd})
	g.Subs.Add(topic, "203.0.113.9", 9999)

	token := g.Ring.IssueToken("203.0.113.9")
	fields := dnswire.NewFields().SetString(dnswire.KeyToken, token).SetString(dnswire.KeySubscribe, "false")
	rec := dnswire.Record{Type: dnswire.TypeTXT, Name: "abcd.ddisc.example", TXTData: dnswire.EncodeTXT(fields)}

	g.Ingest(rec, "203.0.113.9", 9999)

	if got := g.Subs.Get(topic, 10); len(got) != 0 {
		t.Errorf("Subs.Get() after subscribe=false = %v, want empty", got)
	}
}
