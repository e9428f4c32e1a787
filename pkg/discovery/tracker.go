package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/shurlinet/dnsdiscover/internal/dnswire"
	"golang.org/x/sync/errgroup"
)

// DefaultTrackerPort and DefaultTrackerSecondaryPort are the ports a
// tracker listens on when unspecified (spec.md §3): many trackers
// listen on both so clients with port-53 blocked still reach them.
const (
	DefaultTrackerPort          = 53
	DefaultTrackerSecondaryPort = 5300
)

// Tracker is one configured authoritative peer-discovery server
// (spec.md §3). Port/SecondaryPort are mutated in place once a probe
// wins a port race; the win is persistent for the instance's lifetime.
type Tracker struct {
	mu            sync.Mutex
	Host          string
	Port          uint16
	SecondaryPort uint16
}

// ParseTracker parses "host[:port[,secondaryPort]]" per spec.md §6,
// defaulting port to 53 and secondaryPort to 5300 when omitted.
func ParseTracker(addr string) (*Tracker, error) {
	host := addr
	port := uint16(DefaultTrackerPort)
	secondary := uint16(DefaultTrackerSecondaryPort)

	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		host = addr[:idx]
		rest := addr[idx+1:]
		parts := strings.SplitN(rest, ",", 2)
		p, err := strconv.ParseUint(parts[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid tracker port %q", ErrConfigInvalid, parts[0])
		}
		port = uint16(p)
		secondary = 0
		if len(parts) == 2 {
			sp, err := strconv.ParseUint(parts[1], 10, 16)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid tracker secondary port %q", ErrConfigInvalid, parts[1])
			}
			secondary = uint16(sp)
		}
	}
	if host == "" {
		return nil, fmt.Errorf("%w: empty tracker host in %q", ErrConfigInvalid, addr)
	}
	return &Tracker{Host: host, Port: port, SecondaryPort: secondary}, nil
}

func (t *Tracker) ports() (primary uint16, secondary uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Port, t.SecondaryPort
}

// winPort persists a winning port and clears the secondary, per
// spec.md §3/§9 "dual-port probe race".
func (t *Tracker) winPort(p uint16) {
	t.mu.Lock()
	t.Port = p
	t.SecondaryPort = 0
	t.mu.Unlock()
}

// sendKind distinguishes the three TXT additional payload shapes of
// spec.md §4.3 step 2.
type sendKind int

const (
	sendLookup sendKind = iota
	sendAnnounce
	sendUnannounce
)

// TrackerSession drives probe/send/probe-and-send for one configured
// tracker (spec.md §4.3).
type TrackerSession struct {
	Index     int
	Tracker   *Tracker
	Domain    string
	Transport UnicastTransport
	Tokens    *TokenTable
	Retries   int
}

// probeResult is the decoded shape of a TXT probe reply.
type probeResult struct {
	token string
	host  string
	port  uint16
}

// Probe acquires a token by querying the bare domain (spec.md §4.3
// step 1). If the tracker has a live secondary port, both ports are
// raced concurrently and the loser is canceled once either succeeds.
func (s *TrackerSession) Probe(ctx context.Context) (probeResult, error) {
	primary, secondary := s.Tracker.ports()
	msg := dnswire.NewQuery(s.Domain, dnswire.TypeTXT)

	if secondary == 0 {
		return s.probeOnePort(ctx, primary, msg)
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	results := make(chan struct {
		port uint16
		res  probeResult
	}, 2)

	tryPort := func(port uint16) error {
		res, err := s.probeOnePort(raceCtx, port, msg)
		if err != nil {
			return nil // the other leg may still win; don't fail the group
		}
		select {
		case results <- struct {
			port uint16
			res  probeResult
		}{port, res}:
			cancel()
		case <-raceCtx.Done():
		}
		return nil
	}
	g.Go(func() error { return tryPort(primary) })
	g.Go(func() error { return tryPort(secondary) })
	_ = g.Wait()

	select {
	case r := <-results:
		s.Tracker.winPort(r.port)
		return r.res, nil
	default:
		return probeResult{}, fmt.Errorf("%w: tracker %s", ErrProbeFailed, s.Tracker.Host)
	}
}

func (s *TrackerSession) probeOnePort(ctx context.Context, port uint16, msg *dnswire.Message) (probeResult, error) {
	reply, err := s.Transport.Query(ctx, msg, s.Tracker.Host, port, s.Retries)
	if err != nil {
		return probeResult{}, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	fields := firstTXTFields(reply)
	if fields == nil {
		return probeResult{}, fmt.Errorf("%w: no TXT answer from %s", ErrProbeFailed, s.Tracker.Host)
	}
	res := probeResult{}
	if tok, ok := fields.GetString(dnswire.KeyToken); ok {
		res.token = tok
		s.Tokens.Set(s.Index, tok)
	}
	res.host, _ = fields.GetString(dnswire.KeyHost)
	if portStr, ok := fields.GetString(dnswire.KeyPort); ok {
		if p, err := strconv.ParseUint(portStr, 10, 16); err == nil {
			res.port = uint16(p)
		}
	}
	if res.token == "" {
		return probeResult{}, fmt.Errorf("%w: no token from %s", ErrProbeFailed, s.Tracker.Host)
	}
	return res, nil
}

// Send issues a TXT query for the topic carrying the announcement,
// unannouncement, or lookup payload (spec.md §4.3 step 2).
func (s *TrackerSession) Send(ctx context.Context, kind sendKind, topic Topic, port uint16, impliedPort, subscribe bool) (*dnswire.Message, error) {
	token, ok := s.Tokens.Get(s.Index)
	if !ok {
		return nil, fmt.Errorf("%w: no cached token for tracker %s", ErrProbeFailed, s.Tracker.Host)
	}

	fields := dnswire.NewFields().SetString(dnswire.KeyToken, token)
	switch kind {
	case sendLookup:
		fields.SetString(dnswire.KeySubscribe, "true")
	case sendAnnounce:
		fields.SetString(dnswire.KeySubscribe, "true")
		fields.SetString(dnswire.KeyAnnounce, announcePortString(port, impliedPort))
	case sendUnannounce:
		fields.SetString(dnswire.KeyUnannounce, announcePortString(port, impliedPort))
	}
	if subscribe && kind != sendLookup && kind != sendAnnounce {
		fields.SetString(dnswire.KeySubscribe, "true")
	}

	additional := dnswire.Record{Type: dnswire.TypeTXT, Name: s.topicName(topic), TXTData: dnswire.EncodeTXT(fields)}
	msg := dnswire.NewQuery(s.topicName(topic), dnswire.TypeTXT, additional)

	primary, _ := s.Tracker.ports()
	reply, err := s.Transport.Query(ctx, msg, s.Tracker.Host, primary, s.Retries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return reply, nil
}

// ProbeAndSend performs Probe only if no token is cached, then Send.
func (s *TrackerSession) ProbeAndSend(ctx context.Context, kind sendKind, topic Topic, port uint16, impliedPort, subscribe bool) (*dnswire.Message, error) {
	if _, ok := s.Tokens.Get(s.Index); !ok {
		if _, err := s.Probe(ctx); err != nil {
			return nil, err
		}
	}
	return s.Send(ctx, kind, topic, port, impliedPort, subscribe)
}

func (s *TrackerSession) topicName(topic Topic) string {
	return topic.WireName(s.Domain)
}

func announcePortString(port uint16, impliedPort bool) string {
	if impliedPort {
		return "0"
	}
	return strconv.Itoa(int(port))
}

func firstTXTFields(msg *dnswire.Message) *dnswire.Fields {
	if msg == nil {
		return nil
	}
	for _, a := range msg.Answers {
		if a.Type == dnswire.TypeTXT {
			return dnswire.DecodeTXT(a.TXTData)
		}
	}
	return nil
}
