package proxysvc

import (
	"net/http"
	"net/url"
	"testing"
)

func TestUpstreamAddrFromAbsoluteURI(t *testing.T) {
	req := &http.Request{
		Method: http.MethodGet,
		URL:    &url.URL{Scheme: "http", Host: "example.com:8080", Path: "/x"},
		Host:   "example.com:8080",
	}
	if got := upstreamAddr(req); got != "example.com:8080" {
		t.Fatalf("upstreamAddr() = %q, want %q", got, "example.com:8080")
	}
}

func TestUpstreamAddrFromHostHeaderDefaultsPort80(t *testing.T) {
	req := &http.Request{
		Method: http.MethodGet,
		URL:    &url.URL{Path: "/x"},
		Host:   "example.com",
	}
	if got := upstreamAddr(req); got != "example.com:80" {
		t.Fatalf("upstreamAddr() = %q, want %q", got, "example.com:80")
	}
}

func TestUpstreamRequestURIRewritesAbsoluteToOrigin(t *testing.T) {
	req := &http.Request{
		URL: &url.URL{Scheme: "http", Host: "example.com", Path: "/x", RawQuery: "a=1"},
	}
	if got := upstreamRequestURI(req); got != "/x?a=1" {
		t.Fatalf("upstreamRequestURI() = %q, want %q", got, "/x?a=1")
	}
}

func TestUpstreamRequestURIPassesThroughOriginForm(t *testing.T) {
	req := &http.Request{
		URL:        &url.URL{Path: "/x"},
		RequestURI: "/x?a=1",
	}
	if got := upstreamRequestURI(req); got != "/x?a=1" {
		t.Fatalf("upstreamRequestURI() = %q, want %q", got, "/x?a=1")
	}
}
