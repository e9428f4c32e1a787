package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/shurlinet/dnsdiscover/internal/dnswire"
)

// mdnsAddr is the standard mDNS multicast group and port (RFC 6762).
var mdnsAddr = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

// MulticastMDNS implements discovery.MulticastTransport directly on a
// raw IPv4 multicast socket. mDNS here carries the same typed
// TXT/A/SRV queries as the unicast transport (spec.md §6: "the same
// message shapes, a different address"), which rules out building this
// on top of a DNS-SD service-browsing library: those advertise
// PTR-keyed service instances, not arbitrary topic-named records, so
// the wire-level approach that already serves the unicast transport
// is reused here instead (see DESIGN.md).
type MulticastMDNS struct {
	conn   *net.UDPConn
	pconn  *ipv4.PacketConn
	ifaces []net.Interface

	mu      sync.Mutex
	onQuery func(msg *dnswire.Message, srcHost string, srcPort uint16) *dnswire.Message
	closed  bool
}

// NewMulticastMDNS joins the mDNS multicast group on every multicast-
// capable interface.
func NewMulticastMDNS() (*MulticastMDNS, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: mdnsAddr.Port})
	if err != nil {
		return nil, fmt.Errorf("transport: mdns listen: %w", err)
	}
	pconn := ipv4.NewPacketConn(conn)

	ifaces, err := net.Interfaces()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: enumerate interfaces: %w", err)
	}

	m := &MulticastMDNS{conn: conn, pconn: pconn}
	joined := 0
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pconn.JoinGroup(&iface, mdnsAddr); err == nil {
			m.ifaces = append(m.ifaces, iface)
			joined++
		}
	}
	if joined == 0 {
		conn.Close()
		return nil, fmt.Errorf("transport: no multicast-capable interface joined the mDNS group")
	}
	go m.readLoop()
	return m, nil
}

// Query sends msg to the mDNS group and delivers every answer or
// additional record observed on the group until ctx is done, the way
// spec.md §6 describes mDNS lookups: fire-and-collect, not request/
// response pairing by transaction id.
func (m *MulticastMDNS) Query(ctx context.Context, msg *dnswire.Message, onAnswer func(rec dnswire.Record, srcHost string, srcPort uint16)) error {
	payload, err := dnswire.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal mdns query: %w", err)
	}

	m.mu.Lock()
	prev := m.onQuery
	m.onQuery = func(reply *dnswire.Message, srcHost string, srcPort uint16) *dnswire.Message {
		for _, a := range reply.Answers {
			onAnswer(a, srcHost, srcPort)
		}
		for _, a := range reply.Additionals {
			onAnswer(a, srcHost, srcPort)
		}
		if prev != nil {
			return prev(reply, srcHost, srcPort)
		}
		return nil
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.onQuery = prev
		m.mu.Unlock()
	}()

	if _, err := m.conn.WriteToUDP(payload, mdnsAddr); err != nil {
		return fmt.Errorf("transport: send mdns query: %w", err)
	}
	<-ctx.Done()
	return nil
}

// Serve registers onQuery as the handler for every inbound mDNS
// message, query or answer alike, mirroring UnicastUDP.Bind.
func (m *MulticastMDNS) Serve(onQuery func(msg *dnswire.Message, srcHost string, srcPort uint16) *dnswire.Message) error {
	m.mu.Lock()
	m.onQuery = onQuery
	m.mu.Unlock()
	return nil
}

func (m *MulticastMDNS) readLoop() {
	buf := make([]byte, 65535)
	for {
		n, _, srcAddr, err := m.pconn.ReadFrom(buf)
		if err != nil {
			return // conn closed by Close()
		}
		udpSrc, ok := srcAddr.(*net.UDPAddr)
		if !ok {
			continue
		}
		msg, err := dnswire.Unmarshal(buf[:n])
		if err != nil {
			continue
		}

		m.mu.Lock()
		handler := m.onQuery
		m.mu.Unlock()
		if handler == nil {
			continue
		}
		reply := handler(msg, udpSrc.IP.String(), uint16(udpSrc.Port))
		if reply == nil {
			continue
		}
		out, err := dnswire.Marshal(reply)
		if err != nil {
			continue
		}
		m.conn.WriteToUDP(out, mdnsAddr)
	}
}

// Close leaves the multicast group on every joined interface and
// closes the underlying socket.
func (m *MulticastMDNS) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	for _, iface := range m.ifaces {
		m.pconn.LeaveGroup(&iface, mdnsAddr)
	}
	return m.conn.Close()
}
