package tools

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Hostnames that always point at the local machine or cloud metadata.
var blockedHosts = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

func blockedHostname(host string) bool {
	host = strings.ToLower(host)
	if blockedHosts[host] {
		return true
	}
	return strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal")
}

// Carrier-grade NAT range, not covered by net.IP.IsPrivate.
var cgnatNet = mustCIDR("100.64.0.0/10")

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

func privateIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		cgnatNet.Contains(ip)
}

// checkSSRF rejects URLs whose host is local or inside a private network.
// Hostnames are resolved so DNS cannot hide a private address.
func checkSSRF(u *url.URL) error {
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing hostname")
	}
	if blockedHostname(host) {
		return fmt.Errorf("blocked hostname: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if privateIP(ip) {
			return fmt.Errorf("private address not allowed: %s", host)
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if ip := net.ParseIP(addr); ip != nil && privateIP(ip) {
			return fmt.Errorf("%s resolves to private address %s", host, addr)
		}
	}
	return nil
}
