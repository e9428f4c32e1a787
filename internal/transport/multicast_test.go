package transport

import (
	"context"
	"testing"
	"time"

	"github.com/shurlinet/dnsdiscover/internal/dnswire"
)

func newMulticastPair(t *testing.T) (*MulticastMDNS, *MulticastMDNS) {
	t.Helper()
	a, err := NewMulticastMDNS()
	if err != nil {
		t.Skipf("no multicast-capable network in this environment: %v", err)
	}
	b, err := NewMulticastMDNS()
	if err != nil {
		a.Close()
		t.Skipf("no multicast-capable network in this environment: %v", err)
	}
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestMulticastMDNS_ServeAnswersQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("requires multicast networking")
	}
	server, client := newMulticastPair(t)

	served := server.Serve(func(msg *dnswire.Message, srcHost string, srcPort uint16) *dnswire.Message {
		if len(msg.Questions) == 0 || msg.Questions[0].Name != "probe.test" {
			return nil
		}
		return &dnswire.Message{
			ID: msg.ID,
			Answers: []dnswire.Record{
				{Type: dnswire.TypeTXT, Name: "probe.test", TXTData: []byte("token=x")},
			},
		}
	})
	if served != nil {
		t.Fatalf("Serve: %v", served)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var gotAnswer bool
	done := make(chan struct{})
	go func() {
		client.Query(ctx, dnswire.NewQuery("probe.test", dnswire.TypeTXT), func(rec dnswire.Record, srcHost string, srcPort uint16) {
			if rec.Name == "probe.test" {
				gotAnswer = true
				cancel()
			}
		})
		close(done)
	}()

	<-done
	if !gotAnswer {
		t.Error("expected at least one TXT answer from the mDNS group")
	}
}

func TestMulticastMDNS_CloseIsIdempotent(t *testing.T) {
	m, err := NewMulticastMDNS()
	if err != nil {
		t.Skipf("no multicast-capable network in this environment: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}
