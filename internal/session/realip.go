package session

import (
	"net"
	"net/http"
	"strconv"
)

// ResolveClientAddr determines the real client address behind any reverse
// proxy, per the header preference chain: CF-Connecting-IP takes the host
// over X-Real-IP, which takes it over the first hop of X-Forwarded-For;
// the port chain is independent and falls back separately — X-Real-Port,
// then X-Forwarded-Port, then the transport's own port — so a header
// present for one axis but not the other never drags in an unrelated
// fallback for the axis it does cover.
func ResolveClientAddr(r *http.Request) (host string, port string) {
	transportHost, transportPort := splitHostPort(r.RemoteAddr)

	host = transportHost
	if v := r.Header.Get("X-Real-IP"); v != "" {
		host = v
	}
	if v := firstForwarded(r.Header.Get("X-Forwarded-For")); v != "" && host == transportHost {
		host = v
	}
	if v := r.Header.Get("CF-Connecting-IP"); v != "" {
		host = v
	}

	port = transportPort
	if v := r.Header.Get("X-Forwarded-Port"); v != "" {
		port = v
	}
	if v := r.Header.Get("X-Real-Port"); v != "" {
		port = v
	}
	return host, port
}

func splitHostPort(addr string) (host, port string) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, ""
	}
	return h, p
}

func firstForwarded(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] == ',' {
			return v[:i]
		}
	}
	return v
}

// parsePort is a small helper for callers wanting the port as an int,
// defaulting to 0 on a malformed value rather than erroring — port is
// informational (echoed in the connect notice), never used for routing.
func parsePort(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
