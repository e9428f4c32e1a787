package discovery

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync/atomic"

	"github.com/shurlinet/dnsdiscover/internal/dnswire"
	"golang.org/x/sync/errgroup"
)

// visitKind mirrors sendKind but names the three public operations that
// all reduce to visit (spec.md §4.6).
type visitKind int

const (
	VisitLookup visitKind = iota
	VisitAnnounce
	VisitUnannounce
)

func (k visitKind) toSendKind() sendKind {
	switch k {
	case VisitAnnounce:
		return sendAnnounce
	case VisitUnannounce:
		return sendUnannounce
	default:
		return sendLookup
	}
}

// Coordinator implements the single visit() operation that Lookup,
// Announce, and Unannounce all reduce to (spec.md §4.6).
type Coordinator struct {
	Domain      string
	Sessions    []*TrackerSession
	Store       *PeerStore
	Multicast   MulticastTransport
	ImpliedPort bool
	Events      *EventBus
	Metrics     *Metrics
}

// Visit runs one logical lookup/announce/unannounce across every
// configured tracker plus multicast, per spec.md §4.6.
func (c *Coordinator) Visit(ctx context.Context, kind visitKind, topic Topic, port uint16) error {
	switch kind {
	case VisitAnnounce:
		c.Store.Add(topic, ZeroHost, port)
	case VisitUnannounce:
		c.Store.Remove(topic, ZeroHost, port)
	}

	legs := len(c.Sessions)
	multicastEnabled := c.Multicast != nil && kind != VisitUnannounce
	if multicastEnabled {
		legs++
	}
	if legs == 0 {
		// Next-tick deferral per spec.md §4.6 step 6: there is nothing
		// to fan out to, so the result is an immediate failure.
		return fmt.Errorf("%w: no trackers or multicast configured", ErrQueryFailed)
	}

	g, gctx := errgroup.WithContext(ctx)
	var anySucceeded atomic.Bool

	for _, sess := range c.Sessions {
		sess := sess
		g.Go(func() error {
			reply, err := sess.ProbeAndSend(gctx, kind.toSendKind(), topic, port, c.ImpliedPort, kind != VisitUnannounce)
			if err != nil {
				return nil // a failed leg doesn't fail the group; aggregation happens below
			}
			c.parseReply(sess, topic, reply)
			anySucceeded.Store(true)
			return nil
		})
	}

	if multicastEnabled {
		g.Go(func() error {
			additional := c.multicastAdditional(kind, topic, port)
			msg := dnswire.NewQuery(topic.WireName(c.Domain), dnswire.TypeTXT, additional)
			// onAnswer may fire any number of times, including after this
			// leg's own Query call returns, since it is invoked by the
			// transport's shared long-lived read loop rather than once
			// per call — it must never block or close a channel.
			err := c.Multicast.Query(gctx, msg, func(rec dnswire.Record, srcHost string, srcPort uint16) {
				anySucceeded.Store(true)
			})
			_ = err // multicast errors don't fail the group either
			return nil
		})
	}

	_ = g.Wait()

	if anySucceeded.Load() {
		c.recordResult(kind, "ok")
		return nil
	}
	c.recordResult(kind, "failed")
	return fmt.Errorf("%w", ErrQueryFailed)
}

func (c *Coordinator) multicastAdditional(kind visitKind, topic Topic, port uint16) dnswire.Record {
	fields := dnswire.NewFields()
	switch kind {
	case VisitAnnounce:
		fields.SetString(dnswire.KeySubscribe, "true")
		fields.SetString(dnswire.KeyAnnounce, announcePortString(port, c.ImpliedPort))
	default:
		fields.SetString(dnswire.KeySubscribe, "true")
	}
	return dnswire.Record{Type: dnswire.TypeTXT, Name: topic.WireName(c.Domain), TXTData: dnswire.EncodeTXT(fields)}
}

// parseReply refreshes the session's cached token and emits peer events
// for any packed peers in the reply, per spec.md §4.6 step 5.
func (c *Coordinator) parseReply(sess *TrackerSession, topic Topic, reply *dnswire.Message) {
	fields := firstTXTFields(reply)
	if fields == nil {
		return
	}
	if tok, ok := fields.GetString(dnswire.KeyToken); ok {
		sess.Tokens.Set(sess.Index, tok)
	}
	encoded, ok := fields.GetString(dnswire.KeyPeers)
	if !ok {
		return
	}
	packed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return
	}
	hosts, ports := dnswire.UnpackPeers(packed)
	for i := range hosts {
		host := fmt.Sprintf("%d.%d.%d.%d", hosts[i][0], hosts[i][1], hosts[i][2], hosts[i][3])
		if host == ZeroHost {
			host = sess.Tracker.Host
		}
		if c.Events != nil {
			c.Events.PublishPeer(topic, NewPeer(host, ports[i]))
		}
	}
}

func (c *Coordinator) recordResult(kind visitKind, result string) {
	if c.Metrics == nil {
		return
	}
	switch kind {
	case VisitAnnounce:
		c.Metrics.IncAnnounce(result)
	case VisitUnannounce:
		c.Metrics.IncUnannounce()
	case VisitLookup:
		c.Metrics.IncLookup(result)
	}
}
