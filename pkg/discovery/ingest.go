package discovery

import (
	"encoding/base64"
	"net"
	"strconv"
	"strings"

	"github.com/shurlinet/dnsdiscover/internal/dnswire"
)

// Ingester consumes inbound answers and additionals from unicast,
// multicast, and inbound queries (spec.md §4.5) — the same logic runs
// regardless of which transport or section the record arrived in.
type Ingester struct {
	Domain    string
	Ring      *SecretRing
	Store     *PeerStore
	Subs      *PeerStore
	Events    *EventBus
	Audit     *AuditLog
	Metrics   *Metrics
	Listening func() bool

	// OnFreshAnnounce is invoked whenever an announce inserts a tuple
	// that was not already present, triggering the push subsystem
	// (spec.md §4.5 step 4, §4.7).
	OnFreshAnnounce func(topic Topic, p Peer)
}

// Ingest processes one record observed from srcHost:srcPort. Records
// whose name does not end with ".<domain>" are ignored.
func (g *Ingester) Ingest(rec dnswire.Record, srcHost string, srcPort uint16) {
	topic, ok := g.topicOf(rec.Name)
	if !ok {
		return
	}

	switch rec.Type {
	case dnswire.TypeSRV:
		g.ingestSRV(topic, rec, srcHost, srcPort)
	case dnswire.TypeTXT:
		g.ingestTXT(topic, rec, srcHost, srcPort)
	}
}

func (g *Ingester) topicOf(name string) (Topic, bool) {
	suffix := "." + g.Domain
	if !strings.HasSuffix(name, suffix) {
		return "", false
	}
	hexPart := strings.TrimSuffix(name, suffix)
	t, err := TopicFromString(hexPart)
	if err != nil {
		return "", false
	}
	return t, true
}

func (g *Ingester) ingestSRV(topic Topic, rec dnswire.Record, srcHost string, srcPort uint16) {
	target := rec.SRVData.Target
	if net.ParseIP(target).To4() == nil {
		return
	}
	host := target
	if host == ZeroHost {
		host = srcHost
	}
	port := rec.SRVData.Port
	if port == 0 {
		port = srcPort
	}
	g.emit(topic, NewPeer(host, port))
}

func (g *Ingester) ingestTXT(topic Topic, rec dnswire.Record, srcHost string, srcPort uint16) {
	fields := dnswire.DecodeTXT(rec.TXTData)

	token, _ := fields.GetString(dnswire.KeyToken)
	status := g.Ring.ValidateToken(token, srcHost)

	if status == TokenInvalid {
		// Not an echo of a token we issued: this is another peer's
		// announcement riding the peers field.
		if encoded, ok := fields.GetString(dnswire.KeyPeers); ok {
			if packed, err := base64.StdEncoding.DecodeString(encoded); err == nil {
				g.emitPacked(topic, packed, srcHost)
			}
		}
		return
	}

	if g.Listening == nil || !g.Listening() {
		return
	}
	if status != TokenFresh {
		// Grace-generation match: processed the same way as a fresh
		// match (spec.md §4.5 step 3).
	}

	if announceStr, ok := fields.GetString(dnswire.KeyAnnounce); ok {
		port := parsePortOr(announceStr, srcPort)
		p := NewPeer(srcHost, port)
		g.emit(topic, p)
		if g.Store.Add(topic, srcHost, port) {
			g.audit().TokenAnnounceAccepted(topic.String(), srcHost, port)
			if g.OnFreshAnnounce != nil {
				g.OnFreshAnnounce(topic, p)
			}
			g.metrics().IncAnnounce("accepted")
		}
	}

	if unannounceStr, ok := fields.GetString(dnswire.KeyUnannounce); ok {
		port := parsePortOr(unannounceStr, srcPort)
		g.Store.Remove(topic, srcHost, port)
		g.metrics().IncUnannounce()
	}

	if subscribeStr, ok := fields.GetString(dnswire.KeySubscribe); ok && isTruthy(subscribeStr) {
		g.Subs.Add(topic, srcHost, srcPort)
	} else if ok {
		g.Subs.Remove(topic, srcHost, srcPort)
	}
}

func (g *Ingester) emitPacked(topic Topic, packed []byte, srcHost string) {
	hosts, ports := dnswire.UnpackPeers(packed)
	for i := range hosts {
		ip := net.IPv4(hosts[i][0], hosts[i][1], hosts[i][2], hosts[i][3]).String()
		if ip == ZeroHost {
			ip = srcHost
		}
		g.emit(topic, NewPeer(ip, ports[i]))
	}
}

func (g *Ingester) emit(topic Topic, p Peer) {
	if g.Events != nil {
		g.Events.PublishPeer(topic, p)
	}
}

func (g *Ingester) audit() *AuditLog {
	return g.Audit
}

func (g *Ingester) metrics() *Metrics {
	return g.Metrics
}

func parsePortOr(s string, fallback uint16) uint16 {
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return fallback
	}
	return uint16(p)
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
