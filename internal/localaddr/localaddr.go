// Package localaddr answers the one question the discovery responder
// needs of the local host: "what IPv4 address should I hand out when a
// stored peer's host is the 0.0.0.0 sentinel" (spec.md §4.4).
package localaddr

import (
	"fmt"
	"net"
	"sort"
)

// PrimaryIPv4 enumerates interfaces and returns the best-effort primary
// IPv4 address for this host: the lowest-named interface's first
// non-loopback, non-link-local address, preferring a globally routable
// one over an RFC 1918 private address.
func PrimaryIPv4() (string, error) {
	return primaryIPv4From(net.Interfaces)
}

// primaryIPv4From is the testable core; listFn matches net.Interfaces so
// tests can inject synthetic interface lists.
func primaryIPv4From(listFn func() ([]net.Interface, error)) (string, error) {
	ifaces, err := listFn()
	if err != nil {
		return "", fmt.Errorf("localaddr: enumerate interfaces: %w", err)
	}
	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].Name < ifaces[j].Name })

	var fallback string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
				continue
			}
			if isGlobalIPv4(ip) {
				return ip.String(), nil
			}
			if fallback == "" {
				fallback = ip.String()
			}
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("localaddr: no usable IPv4 address found")
}

// isGlobalIPv4 reports whether ip is globally routable: not RFC 1918
// private, not CGNAT, not link-local.
func isGlobalIPv4(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	switch {
	case ip4[0] == 10:
		return false
	case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
		return false
	case ip4[0] == 192 && ip4[1] == 168:
		return false
	case ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127:
		return false
	case ip4[0] == 169 && ip4[1] == 254:
		return false
	}
	return ip4.IsGlobalUnicast()
}
