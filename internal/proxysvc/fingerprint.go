package proxysvc

import (
	"net/http"
)

// Fingerprint computes the cache key for req: the canonical request
// line plus the Host header. spec.md §9 leaves this as an open
// question — "whether fingerprinting should include the Host header or
// only the request URI" — noting the C source used only the raw
// request bytes off the socket. SPEC_FULL.md §11 decides it the other
// way, per spec.md §4.5's own session-logic summary ("compute the
// fingerprint as the canonical request-line plus the Host header"),
// since two virtual hosts behind the same proxy must not collide on an
// identical path.
func Fingerprint(req *http.Request) []byte {
	line := req.Method + " " + req.URL.RequestURI() + " " + req.Proto
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	return []byte(line + "\nHost: " + host)
}

// Cacheable reports whether req is eligible for the cache path at all:
// GET over HTTP/1.x only, per spec.md §4.5 ("if the method/scheme is
// not cacheable (non-GET or non-HTTP), forward byte-for-byte without
// cache involvement") and the Non-goals excluding HTTPS interception.
func Cacheable(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if req.ProtoMajor != 1 {
		return false
	}
	return true
}
