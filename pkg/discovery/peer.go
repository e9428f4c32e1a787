package discovery

import (
	"net"

	"github.com/shurlinet/dnsdiscover/internal/dnswire"
)

// ZeroHost is the sentinel meaning "the sender's apparent address";
// substituted on the receiving side with the observed source host
// (spec.md §3).
const ZeroHost = "0.0.0.0"

// Peer is a discoverable (host, port) tuple. Once constructed a Peer is
// treated as immutable: its 6-byte wire encoding is computed once and
// cached, per spec.md §4.1 and the §9 "buffer caching" design note — a
// mutated Peer would carry a stale cache, so callers must build a new
// Peer instead of mutating one in place.
type Peer struct {
	Host string
	Port uint16

	wire [dnswire.PeerWireLen]byte
	ok   bool // wire is valid only if Host parsed as IPv4
}

// NewPeer constructs a Peer and eagerly computes its wire cache.
func NewPeer(host string, port uint16) Peer {
	p := Peer{Host: host, Port: port}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			var b [4]byte
			copy(b[:], v4)
			p.wire = dnswire.PackPeer(b, port)
			p.ok = true
		}
	}
	return p
}

// Encode returns the cached 6-byte wire encoding and whether Host was a
// valid IPv4 address (and thus encodable at all).
func (p Peer) Encode() ([dnswire.PeerWireLen]byte, bool) {
	return p.wire, p.ok
}

// DecodePeer reconstructs a Peer from its 6-byte wire encoding.
func DecodePeer(b [dnswire.PeerWireLen]byte) Peer {
	host, port := dnswire.UnpackPeer(b)
	ip := net.IPv4(host[0], host[1], host[2], host[3])
	return NewPeer(ip.String(), port)
}

// WithObservedHost returns a copy of p with Host replaced by observed
// when p.Host is the ZeroHost sentinel, implementing the §3/§9 "0.0.0.0
// substitution" rule. Otherwise p is returned unchanged.
func (p Peer) WithObservedHost(observed string) Peer {
	if p.Host != ZeroHost {
		return p
	}
	return NewPeer(observed, p.Port)
}
