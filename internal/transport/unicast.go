// Package transport provides the concrete discovery.UnicastTransport and
// discovery.MulticastTransport implementations consumed by pkg/discovery.
// Neither type here understands topics, tokens, or peer sets; they only
// move dnswire.Message values over UDP.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shurlinet/dnsdiscover/internal/dnswire"
)

// queryTimeout bounds a single exchange attempt when the caller's ctx
// carries no deadline of its own.
const queryTimeout = 3 * time.Second

func defaultDeadline() time.Time { return time.Now().Add(queryTimeout) }

// UnicastUDP implements discovery.UnicastTransport over plain UDP
// sockets, matching replies to requests by DNS message ID the way
// miekg/dns's own client does, with a per-call deadline and retry loop
// standing in for its Exchange (spec.md §6: "per-request transaction
// ids, retries, and cancellation").
type UnicastUDP struct {
	mu        sync.Mutex
	listeners map[uint16]*net.UDPConn
	closed    bool
}

// NewUnicastUDP constructs an idle transport; call Bind to listen for
// inbound queries and Query to send outbound ones.
func NewUnicastUDP() *UnicastUDP {
	return &UnicastUDP{listeners: make(map[uint16]*net.UDPConn)}
}

// Query sends msg to host:port over a fresh ephemeral UDP socket,
// waiting for a reply that echoes msg.ID. Replies with another ID or
// that fail to decode are ignored within the current attempt. It
// retries up to `retries` additional times on timeout, stopping early
// if ctx is canceled.
func (u *UnicastUDP) Query(ctx context.Context, msg *dnswire.Message, host string, port uint16, retries int) (*dnswire.Message, error) {
	if msg.ID == 0 {
		id, err := randomID()
		if err != nil {
			return nil, err
		}
		msg.ID = id
	}

	raddr := &net.UDPAddr{IP: net.ParseIP(host), Port: int(port)}
	if raddr.IP == nil {
		return nil, fmt.Errorf("transport: invalid host %q", host)
	}
	payload, err := dnswire.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal query: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reply, err := u.exchangeOnce(ctx, payload, raddr, msg.ID)
		if err == nil {
			return reply, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("transport: query %s:%d: %w", host, port, lastErr)
}

func (u *UnicastUDP) exchangeOnce(ctx context.Context, payload []byte, raddr *net.UDPAddr, wantID uint16) (*dnswire.Message, error) {
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(defaultDeadline())
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, err
	}

	buf := make([]byte, 65535)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return nil, err
		}
		reply, err := dnswire.Unmarshal(buf[:n])
		if err != nil {
			continue // malformed reply from a byzantine participant; keep waiting
		}
		if reply.ID != wantID {
			continue
		}
		return reply, nil
	}
}

// Bind opens a UDP listener on port and serves inbound queries with
// onQuery until Close is called. One goroutine per bound port, mirroring
// the server loop shape the rest of this codebase uses for long-running
// listeners.
func (u *UnicastUDP) Bind(port uint16, onQuery func(msg *dnswire.Message, srcHost string, srcPort uint16) *dnswire.Message) error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return fmt.Errorf("transport: closed")
	}
	if _, exists := u.listeners[port]; exists {
		u.mu.Unlock()
		return fmt.Errorf("transport: port %d already bound", port)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(port)})
	if err != nil {
		u.mu.Unlock()
		return fmt.Errorf("transport: listen :%d: %w", port, err)
	}
	u.listeners[port] = conn
	u.mu.Unlock()

	go u.serve(conn, onQuery)
	return nil
}

func (u *UnicastUDP) serve(conn *net.UDPConn, onQuery func(msg *dnswire.Message, srcHost string, srcPort uint16) *dnswire.Message) {
	buf := make([]byte, 65535)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return // conn closed by Close()
		}
		msg, err := dnswire.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		reply := onQuery(msg, addr.IP.String(), uint16(addr.Port))
		if reply == nil {
			continue
		}
		if reply.ID == 0 {
			reply.ID = msg.ID
		}
		out, err := dnswire.Marshal(reply)
		if err != nil {
			continue
		}
		conn.WriteToUDP(out, addr)
	}
}

// Close tears down every bound listener. In-flight Query calls observe
// their own deadline/ctx rather than this Close, since each uses its
// own ephemeral socket.
func (u *UnicastUDP) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	var firstErr error
	for port, conn := range u.listeners {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(u.listeners, port)
	}
	return firstErr
}

// randomID derives a 16-bit DNS transaction id from a UUID rather than
// math/rand, for the same uniformity-without-a-global-PRNG reason the
// peer store samples with crypto/rand.
func randomID() (uint16, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return 0, fmt.Errorf("transport: generate transaction id: %w", err)
	}
	b := id[:]
	return uint16(b[0])<<8 | uint16(b[1]), nil
}
