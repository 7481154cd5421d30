package proxysvc

import (
	"net"
	"net/http"
	"strings"
)

// upstreamAddr resolves the dial target for req: the host (and, if
// given, port) from an absolute-form request-line URI, falling back to
// the Host header for origin-form requests — the shape ordinary forward
// proxies and other_examples/LauTrond-httpsproxy, Amrutia-Achyut-... use.
// Port defaults to 80, since HTTPS interception is a Non-goal.
func upstreamAddr(req *http.Request) string {
	host := req.Host
	if req.URL.IsAbs() && req.URL.Host != "" {
		host = req.URL.Host
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	if strings.HasSuffix(host, ":") {
		return host + "80"
	}
	return net.JoinHostPort(host, "80")
}

// upstreamRequestURI rewrites req's target into origin-form before it
// is re-serialized to the upstream connection: upstream servers expect
// "/path?query", not the absolute-form URI a forward-proxy client sent.
func upstreamRequestURI(req *http.Request) string {
	if req.URL.IsAbs() {
		return req.URL.RequestURI()
	}
	return req.RequestURI
}
