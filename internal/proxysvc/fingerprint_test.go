package proxysvc

import (
	"net/http"
	"net/url"
	"testing"
)

func TestFingerprintIncludesHost(t *testing.T) {
	req := &http.Request{
		Method: http.MethodGet,
		URL:    &url.URL{Path: "/widgets"},
		Proto:  "HTTP/1.1",
		Host:   "a.example.com",
	}
	other := &http.Request{
		Method: http.MethodGet,
		URL:    &url.URL{Path: "/widgets"},
		Proto:  "HTTP/1.1",
		Host:   "b.example.com",
	}

	fpA := Fingerprint(req)
	fpB := Fingerprint(other)
	if string(fpA) == string(fpB) {
		t.Fatalf("expected distinct fingerprints for distinct virtual hosts sharing a path")
	}
}

func TestFingerprintStableForIdenticalRequests(t *testing.T) {
	mk := func() *http.Request {
		return &http.Request{
			Method: http.MethodGet,
			URL:    &url.URL{Path: "/widgets", RawQuery: "id=1"},
			Proto:  "HTTP/1.1",
			Host:   "example.com",
		}
	}
	if string(Fingerprint(mk())) != string(Fingerprint(mk())) {
		t.Fatalf("expected identical requests to fingerprint identically")
	}
}

func TestCacheableOnlyGET(t *testing.T) {
	get := &http.Request{Method: http.MethodGet, ProtoMajor: 1}
	if !Cacheable(get) {
		t.Fatalf("expected GET/HTTP1 to be cacheable")
	}

	post := &http.Request{Method: http.MethodPost, ProtoMajor: 1}
	if Cacheable(post) {
		t.Fatalf("expected POST to be non-cacheable")
	}

	http2 := &http.Request{Method: http.MethodGet, ProtoMajor: 2}
	if Cacheable(http2) {
		t.Fatalf("expected HTTP/2 to be non-cacheable")
	}
}
