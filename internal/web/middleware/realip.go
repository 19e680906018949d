package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedRealIP rewrites r.RemoteAddr to the client IP from X-Real-IP or the
// first X-Forwarded-For entry, but only when the connection comes from one of
// the trusted proxy prefixes. Otherwise RemoteAddr is reduced to its host part.
//
// The rate limiter and request log key on RemoteAddr, so untrusted clients
// must not be able to choose it.
func TrustedRealIP(trustedCIDRs []string) func(http.Handler) http.Handler {
	trusted := parsePrefixes(trustedCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remote, ok := hostAddr(r.RemoteAddr)
			if ok {
				r.RemoteAddr = remote.String()
			}

			if ok && isTrusted(remote, trusted) {
				if ip, found := forwardedIP(r.Header); found {
					r.RemoteAddr = ip.String()
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// parsePrefixes accepts CIDRs and single addresses; invalid entries are logged and skipped.
func parsePrefixes(raw []string) []netip.Prefix {
	var prefixes []netip.Prefix
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(s); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		slog.Warn("realip: invalid trusted proxy, skipping", "cidr", s)
	}
	return prefixes
}

// hostAddr parses "host:port" or a bare address.
func hostAddr(addr string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func forwardedIP(h http.Header) (netip.Addr, bool) {
	if rip := strings.TrimSpace(h.Get("X-Real-IP")); rip != "" {
		return hostAddr(rip)
	}
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return hostAddr(strings.TrimSpace(first))
	}
	return netip.Addr{}, false
}

func isTrusted(ip netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
