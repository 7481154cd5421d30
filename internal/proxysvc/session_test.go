package proxysvc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cacheproxy/internal/cache"
	"cacheproxy/internal/pool"
)

// stubUpstream accepts connections and writes a fixed HTTP response to
// each, counting how many connections it actually received.
type stubUpstream struct {
	ln       net.Listener
	accepted atomic.Int64
	body     string
}

func startStubUpstream(t *testing.T, body string) *stubUpstream {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &stubUpstream{ln: ln, body: body}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.accepted.Add(1)
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadString('\n')
					if err != nil || line == "\r\n" || line == "\n" {
						break
					}
				}
				fmt.Fprintf(c, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(s.body), s.body)
			}(conn)
		}
	}()
	return s
}

func newTestServer(t *testing.T) (*Server, net.Listener) {
	c, err := cache.New(16, time.Minute)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	p, err := pool.New(4, 16)
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		p.Shutdown(time.Second)
	})

	svc := New(c, p, zerolog.Nop(), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Serve(ctx, ln)
	return svc, ln
}

func doRequest(t *testing.T, proxyAddr, upstreamAddr, path string) string {
	conn, err := net.Dial("tcp", proxyAddr)
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer conn.Close()

	fmt.Fprintf(conn, "GET http://%s%s HTTP/1.1\r\nHost: %s\r\n\r\n", upstreamAddr, path, upstreamAddr)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestCacheHitAvoidsSecondUpstreamDial(t *testing.T) {
	upstream := startStubUpstream(t, "hello world")
	defer upstream.ln.Close()

	_, proxyLn := newTestServer(t)

	first := doRequest(t, proxyLn.Addr().String(), upstream.ln.Addr().String(), "/widgets")
	if first != "hello world" {
		t.Fatalf("first response = %q, want %q", first, "hello world")
	}

	// Give the producing goroutine a moment to Finalize before the
	// second request arrives, so it deterministically hits.
	time.Sleep(50 * time.Millisecond)

	second := doRequest(t, proxyLn.Addr().String(), upstream.ln.Addr().String(), "/widgets")
	if second != "hello world" {
		t.Fatalf("second response = %q, want %q", second, "hello world")
	}

	if got := upstream.accepted.Load(); got != 1 {
		t.Fatalf("upstream accepted %d connections, want exactly 1 (second request should hit cache)", got)
	}
}

func TestConcurrentMissesShareOneUpstreamConnection(t *testing.T) {
	upstream := startStubUpstream(t, "shared body")
	defer upstream.ln.Close()

	_, proxyLn := newTestServer(t)

	var wg sync.WaitGroup
	results := make([]string, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = doRequest(t, proxyLn.Addr().String(), upstream.ln.Addr().String(), "/same")
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if r != "shared body" {
			t.Fatalf("result[%d] = %q, want %q", i, r, "shared body")
		}
	}
	if got := upstream.accepted.Load(); got != 1 {
		t.Fatalf("upstream accepted %d connections for concurrent identical misses, want exactly 1", got)
	}
}

func TestNonCacheableRequestBypassesCache(t *testing.T) {
	upstream := startStubUpstream(t, "post response")
	defer upstream.ln.Close()

	svc, proxyLn := newTestServer(t)

	conn, err := net.Dial("tcp", proxyLn.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	upstreamAddr := upstream.ln.Addr().String()
	fmt.Fprintf(conn, "POST http://%s/submit HTTP/1.1\r\nHost: %s\r\nContent-Length: 0\r\n\r\n", upstreamAddr, upstreamAddr)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "post response" {
		t.Fatalf("body = %q, want %q", body, "post response")
	}

	if got := svc.Cache.Len(); got != 0 {
		t.Fatalf("cache has %d entries after non-cacheable request, want 0", got)
	}
}
