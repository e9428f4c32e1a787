package discovery

import (
	"context"
	"time"

	"github.com/shurlinet/dnsdiscover/internal/dnswire"
)

// DefaultSubscriptionTTL is the subscription store's default entry
// lifetime when not otherwise configured (spec.md §3).
const DefaultSubscriptionTTL = 60 * time.Second

// PushSampleSize is the maximum number of subscribers notified per
// fresh announcement (spec.md §4.7).
const PushSampleSize = 16

// PushRetries is the retry budget for each push delivery attempt
// (spec.md §4.7).
const PushRetries = 2

// Pusher proactively notifies subscribers of a topic when a fresh peer
// registers (spec.md §4.7). Delivery is fire-and-forget: a failed push
// is counted in metrics but never surfaces an error to the announcing
// caller.
type Pusher struct {
	Domain    string
	Subs      *PeerStore
	Transport UnicastTransport
	Metrics   *Metrics
}

// Push samples up to PushSampleSize subscribers for topic and sends
// each an SRV additional pointing at the freshly announced peer.
func (p *Pusher) Push(ctx context.Context, topic Topic, announced Peer) {
	subs := p.Subs.Get(topic, PushSampleSize)
	if len(subs) == 0 {
		return
	}

	srv := dnswire.Record{
		Type: dnswire.TypeSRV,
		Name: topic.WireName(p.Domain),
		TTL:  uint32(DefaultSubscriptionTTL.Seconds()),
		SRVData: dnswire.SRVData{
			Port:   announced.Port,
			Target: announced.Host,
		},
	}
	msg := dnswire.NewQuery(topic.WireName(p.Domain), dnswire.TypeSRV, srv)

	for _, sub := range subs {
		go func(sub Peer) {
			_, err := p.Transport.Query(ctx, msg, sub.Host, sub.Port, PushRetries)
			if err != nil {
				p.Metrics.IncPush("failed")
				return
			}
			p.Metrics.IncPush("sent")
		}(sub)
	}
}
