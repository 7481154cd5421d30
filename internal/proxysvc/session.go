// Package proxysvc is the session-logic glue (component "Proxy glue" in
// spec.md §2): it accepts connections, parses requests, and routes each
// one to the cache or to a fresh upstream fetch, exercising
// internal/cache, internal/msgbuffer and internal/pool the way spec.md
// §4.5 describes.
package proxysvc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cacheproxy/internal/cache"
	"cacheproxy/internal/logging"
	"cacheproxy/internal/msgbuffer"
	"cacheproxy/internal/pool"
)

// Metrics receives counter updates from the session loop's cache and
// upstream decisions. internal/admin implements it over Prometheus
// counters; nil is a valid no-op Metrics for tests.
type Metrics interface {
	IncCacheHit()
	IncCacheMiss()
	IncUpstreamFailure()
}

type noopMetrics struct{}

func (noopMetrics) IncCacheHit()        {}
func (noopMetrics) IncCacheMiss()       {}
func (noopMetrics) IncUpstreamFailure() {}

// Server owns the accept loop's dependencies: the response cache, the
// bounded worker pool each accepted connection is submitted to, and the
// upstream dial timeout.
type Server struct {
	Cache       *cache.Cache
	Pool        *pool.Pool
	Log         zerolog.Logger
	Metrics     Metrics
	DialTimeout time.Duration
}

// New returns a Server with defaults filled in for any zero-valued
// field that must not be zero.
func New(c *cache.Cache, p *pool.Pool, log zerolog.Logger, metrics Metrics) *Server {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Server{
		Cache:       c,
		Pool:        p,
		Log:         log,
		Metrics:     metrics,
		DialTimeout: 10 * time.Second,
	}
}

// Serve runs the accept loop against ln until ctx is canceled or Accept
// fails. Each accepted connection is handed to the worker pool as one
// task, mirroring spec.md §2 ("The accept loop hands each accepted
// socket to the thread pool as a task").
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	acceptLog := logging.Named(s.Log, "accept")
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			acceptLog.Error().Err(err).Msg("accept failed")
			continue
		}

		connID := uuid.New().String()
		id, err := s.Pool.Submit(func() {
			s.handleConnection(ctx, conn, connID)
		})
		if err != nil {
			acceptLog.Debug().Err(err).Str("conn", connID).Msg("submit rejected, closing connection")
			if m, ok := s.Metrics.(interface{ IncTaskRejected() }); ok {
				m.IncTaskRejected()
			}
			conn.Close()
			continue
		}
		acceptLog.Debug().Str("conn", connID).Uint64("task", id).Msg("accepted connection")
	}
}

// handleConnection parses exactly one request off conn and routes it,
// then closes conn. spec.md's Non-goals exclude request pipelining, so
// one request per accepted connection is the contract, matching the
// teacher's one-shot bufio.Reader handling.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn, connID string) {
	defer conn.Close()
	log := logging.Named(s.Log, "worker").With().Str("conn", connID).Logger()

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			log.Debug().Err(err).Msg("request parse failed")
		}
		return
	}
	conn.SetReadDeadline(time.Time{})

	if !Cacheable(req) {
		log.Debug().Str("method", req.Method).Msg("non-cacheable request, forwarding byte-for-byte")
		if err := s.forwardUncached(conn, req); err != nil {
			log.Debug().Err(err).Msg("uncached forward failed")
		}
		return
	}

	fp := Fingerprint(req)
	entry, hit := s.Cache.Get(fp)
	if hit {
		s.Metrics.IncCacheHit()
		log.Debug().Msg("cache hit")
	} else {
		s.Metrics.IncCacheMiss()
		candidate := cache.NewEntry(fp)
		if err := s.Cache.Add(candidate); err != nil {
			log.Error().Err(err).Msg("cache add failed, forwarding uncached")
			s.forwardUncached(conn, req)
			return
		}
		canonical, ok := s.Cache.Get(fp)
		if ok && canonical != candidate {
			// Lost the race to a concurrent producer for the same
			// fingerprint (spec.md §4.5's miss-then-fallback path /
			// scenario S3). Join as a consumer instead of dialing
			// upstream a second time.
			entry = canonical
			log.Debug().Msg("lost cache-miss race, joining concurrent producer")
		} else {
			entry = candidate
			log.Debug().Msg("cache miss, producing")
			go s.produce(log, entry, req)
		}
	}

	if err := s.streamToClient(conn, entry.Buffer); err != nil {
		log.Debug().Err(err).Msg("client disconnected mid-stream")
	}
}

// streamToClient is the consumer loop spec.md §4.1's rationale
// describes: read available bytes from offset, write to client, advance
// offset, wait for more. It is shared by cache hits and by the
// producing goroutine's own client — the two are otherwise identical
// consumers of the same Buffer.
func (s *Server) streamToClient(w io.Writer, buf *msgbuffer.Buffer) error {
	offset := 0
	for {
		chunk, state, ferr := buf.ReadFrom(offset)
		if len(chunk) > 0 {
			if _, err := w.Write(chunk); err != nil {
				return err // ClientDisconnect: this consumer leaves, producer unaffected
			}
			offset += len(chunk)
		}
		switch state {
		case msgbuffer.Complete:
			return nil
		case msgbuffer.Failed:
			return ferr
		}
		buf.Wait(offset)
	}
}

// produce is the cache-miss producer role: dial upstream, forward the
// request, then copy the response into entry's Buffer until EOF
// (Finalize) or error (Fail + evict so the next request retries).
func (s *Server) produce(log zerolog.Logger, entry *cache.Entry, req *http.Request) {
	conn, err := net.DialTimeout("tcp", upstreamAddr(req), s.DialTimeout)
	if err != nil {
		s.failUpstream(log, entry, err)
		return
	}
	defer conn.Close()

	if err := writeUpstreamRequest(conn, req); err != nil {
		s.failUpstream(log, entry, err)
		return
	}

	buf := make([]byte, 32*1024)
	for {
		n, rerr := conn.Read(buf)
		if n > 0 {
			if aerr := entry.Buffer.Append(buf[:n]); aerr != nil {
				// Buffer already finalized/failed by a prior iteration's
				// error path — nothing more to do.
				return
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				entry.Buffer.Finalize()
				log.Debug().Int("bytes", entry.Buffer.Len()).Msg("upstream response complete")
			} else {
				s.failUpstream(log, entry, rerr)
			}
			return
		}
	}
}

func (s *Server) failUpstream(log zerolog.Logger, entry *cache.Entry, cause error) {
	log.Error().Err(cause).Msg("upstream failure")
	entry.Buffer.Fail(cause)
	s.Metrics.IncUpstreamFailure()
	if derr := s.Cache.Delete(entry.Fingerprint()); derr != nil && !errors.Is(derr, cache.ErrNotFound) {
		log.Error().Err(derr).Msg("failed to evict failed entry")
	}
}

// writeUpstreamRequest re-serializes req onto conn in origin form,
// stripping proxy-only headers — the same shape the teacher's
// handleHTTP forwards manually, expressed here over the parsed
// net/http.Request instead of raw header strings.
func writeUpstreamRequest(conn net.Conn, req *http.Request) error {
	bw := bufio.NewWriter(conn)
	if _, err := bw.WriteString(req.Method + " " + upstreamRequestURI(req) + " HTTP/1.1\r\n"); err != nil {
		return err
	}
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	if _, err := bw.WriteString("Host: " + host + "\r\n"); err != nil {
		return err
	}
	for name, values := range req.Header {
		if strings.HasPrefix(strings.ToLower(name), "proxy-") {
			continue
		}
		if strings.EqualFold(name, "Host") {
			continue
		}
		for _, v := range values {
			if _, err := bw.WriteString(name + ": " + v + "\r\n"); err != nil {
				return err
			}
		}
	}
	if _, err := bw.WriteString("Connection: close\r\n\r\n"); err != nil {
		return err
	}
	if req.Body != nil {
		if _, err := io.Copy(bw, req.Body); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// forwardUncached tunnels a non-cacheable request byte-for-byte to its
// origin with no cache involvement at all, per spec.md §4.5.
func (s *Server) forwardUncached(client net.Conn, req *http.Request) error {
	upstream, err := net.DialTimeout("tcp", upstreamAddr(req), s.DialTimeout)
	if err != nil {
		return err
	}
	defer upstream.Close()

	if err := writeUpstreamRequest(upstream, req); err != nil {
		return err
	}
	_, err = io.Copy(client, upstream)
	return err
}
