package discovery

import "testing"

func TestNewPeer_EncodesValidIPv4(t *testing.T) {
	p := NewPeer("10.0.0.5", 4000)
	wire, ok := p.Encode()
	if !ok {
		t.Fatal("expected a valid IPv4 peer to encode")
	}
	if wire[0] != 10 || wire[1] != 0 || wire[2] != 0 || wire[3] != 5 {
		t.Errorf("wire host bytes = %v, want 10.0.0.5", wire[:4])
	}
	if port := uint16(wire[4])<<8 | uint16(wire[5]); port != 4000 {
		t.Errorf("wire port = %d, want 4000", port)
	}
}

func TestNewPeer_NonIPv4HostDoesNotEncode(t *testing.T) {
	p := NewPeer("not-an-ip", 4000)
	if _, ok := p.Encode(); ok {
		t.Fatal("expected a non-IPv4 host to report ok=false")
	}
}

func TestDecodePeer_RoundTripsNewPeer(t *testing.T) {
	original := NewPeer("192.168.1.42", 51413)
	wire, ok := original.Encode()
	if !ok {
		t.Fatal("expected the original peer to encode")
	}
	got := DecodePeer(wire)
	if got.Host != original.Host || got.Port != original.Port {
		t.Errorf("DecodePeer = %+v, want %+v", got, original)
	}
}

func TestPeer_WithObservedHost_SubstitutesZeroHost(t *testing.T) {
	p := NewPeer(ZeroHost, 4000)
	observed := p.WithObservedHost("203.0.113.9")
	if observed.Host != "203.0.113.9" {
		t.Errorf("Host = %q, want the observed host", observed.Host)
	}
	if observed.Port != 4000 {
		t.Errorf("Port = %d, want 4000 unchanged", observed.Port)
	}
}

func TestPeer_WithObservedHost_LeavesNonZeroHostUnchanged(t *testing.T) {
	p := NewPeer("10.0.0.1", 4000)
	observed := p.WithObservedHost("203.0.113.9")
	if observed.Host != "10.0.0.1" {
		t.Errorf("Host = %q, want unchanged 10.0.0.1", observed.Host)
	}
}
