package http

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientIPResolver determines the real client address of a request. The
// X-Forwarded-For and X-Real-IP headers are honored only when the direct peer
// is one of the trusted proxies, so clients cannot spoof their address.
type ClientIPResolver struct {
	trusted []*net.IPNet
}

// NewClientIPResolver parses trustedProxies, which may hold CIDR ranges or
// single addresses
func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	resolver := &ClientIPResolver{}
	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			resolver.trusted = append(resolver.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		resolver.trusted = append(resolver.trusted, ipNet)
	}
	return resolver, nil
}

// ClientIP extracts the client address, canonicalized so that every textual
// form of an address yields the same string.
//
// Flow:
// 1. If the peer is not a trusted proxy, use RemoteAddr
// 2. Walk X-Forwarded-For from the right, skipping trusted proxies; the first
//    untrusted entry is the client. Entries left of it were supplied by the
//    client and are ignored.
// 3. Without X-Forwarded-For, use X-Real-IP
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	remoteIP := remoteAddr(r)
	if c == nil || !c.isTrusted(remoteIP) {
		return canonicalIP(remoteIP)
	}

	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		client := remoteIP
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				// Nothing left of a malformed hop can be attributed
				break
			}
			client = ip.String()
			if !c.contains(ip) {
				return client
			}
		}
		return canonicalIP(client)
	}

	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}

	return canonicalIP(remoteIP)
}

// UserAgent returns the trimmed User-Agent header
func UserAgent(r *http.Request) string {
	return strings.TrimSpace(r.UserAgent())
}

func (c *ClientIPResolver) isTrusted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return c.contains(parsed)
}

func (c *ClientIPResolver) contains(ip net.IP) bool {
	for _, ipNet := range c.trusted {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// canonicalIP normalizes ip (IPv4-mapped IPv6 becomes dotted IPv4, IPv6 is
// lowercased and compressed). Unparseable input is returned unchanged.
func canonicalIP(ip string) string {
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.String()
	}
	return ip
}

// remoteAddr extracts the IP address from RemoteAddr (removing port if present)
func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}
