package util

import (
	"net"
	"net/http"
	"strings"
)

// TrustedProxies is a CIDR allowlist of proxies whose forwarded headers
// may be believed. A nil value trusts none.
type TrustedProxies struct {
	nets []*net.IPNet
}

// NewTrustedProxies parses CIDR or bare-IP entries into an allowlist.
// Blank entries are skipped; no usable entries yields nil.
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	var nets []*net.IPNet
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, cidr, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, err
			}
			nets = append(nets, cidr)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, &net.ParseError{Type: "IP address", Text: entry}
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	if len(nets) == 0 {
		return nil, nil
	}
	return &TrustedProxies{nets: nets}, nil
}

// Contains reports whether ip falls inside any trusted range.
func (t *TrustedProxies) Contains(ip net.IP) bool {
	if t == nil || ip == nil {
		return false
	}
	for _, n := range t.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP resolves the caller address used for rate limit keys and
// logs. X-Forwarded-For is honored only when the direct peer is a
// trusted proxy; the chain is walked right to left and the first
// untrusted hop wins.
func ClientIP(r *http.Request, trusted *TrustedProxies) string {
	remoteIP := parseRemoteIP(r.RemoteAddr)
	if remoteIP == nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !trusted.Contains(remoteIP) {
		return remoteIP.String()
	}

	if forwarded := parseForwardedFor(r.Header.Get("X-Forwarded-For")); len(forwarded) > 0 {
		for i := len(forwarded) - 1; i >= 0; i-- {
			if !trusted.Contains(forwarded[i]) {
				return forwarded[i].String()
			}
		}
		return forwarded[0].String()
	}

	if realIP := parseIP(r.Header.Get("X-Real-IP")); realIP != nil {
		return realIP.String()
	}
	return remoteIP.String()
}

func parseForwardedFor(raw string) []net.IP {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]net.IP, 0, len(parts))
	for _, part := range parts {
		if ip := parseIP(part); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}

func parseRemoteIP(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return parseIP(host)
	}
	return parseIP(addr)
}

func parseIP(raw string) net.IP {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return net.ParseIP(raw)
}
