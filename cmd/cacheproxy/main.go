// Command cacheproxy runs the forwarding caching proxy. It takes one
// required argument, the listen port, matching the original C source's
// "Usage: <prog> <port>" contract (src/main.c).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"cacheproxy/internal/admin"
	"cacheproxy/internal/cache"
	"cacheproxy/internal/config"
	"cacheproxy/internal/logging"
	"cacheproxy/internal/pool"
	"cacheproxy/internal/proxysvc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	port, err := getPort(os.Args)
	if err != nil {
		printUsage(os.Args)
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.New(os.Stdout)
	mainLog := logging.Named(log, "main")

	metrics := admin.NewMetrics()

	c, err := cache.New(cfg.CacheCapacity, cfg.CacheExpiredTime,
		cache.WithEvictionHook(func([]byte) { metrics.IncCacheEviction() }))
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer c.Close()

	p, err := pool.New(cfg.ClientHandlerCount, cfg.TaskQueueCapacity,
		pool.WithDrainOnShutdown(cfg.DrainOnShutdown),
		pool.WithTaskHooks(func(uint64) { metrics.IncTaskAccepted() }, nil))
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}

	svc := proxysvc.New(c, p, log, metrics)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	mainLog.Info().Int("port", port).Int64("pid", int64(os.Getpid())).Msg("proxy listening")

	adminSrv := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: admin.NewRouter(c, p, metrics),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Serve(gctx, ln)
	})
	g.Go(func() error {
		mainLog.Info().Str("addr", cfg.AdminAddr).Msg("admin server listening")
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		adminSrv.Shutdown(shutdownCtx)
		p.Shutdown(10 * time.Second)
		return nil
	})

	if err := g.Wait(); err != nil {
		mainLog.Error().Err(err).Msg("proxy stopped with error")
		return err
	}
	mainLog.Info().Msg("proxy shut down cleanly")
	return nil
}

func printUsage(args []string) {
	prog := "cacheproxy"
	if len(args) > 0 {
		prog = args[0]
	}
	fmt.Printf("Usage: %s <port>\n", prog)
}

// getPort mirrors main.c's get_port: parse argv[1] with the C-style
// strtol base-0 behavior (accepts "0x" and leading-zero octal forms),
// returning an error instead of the original's log-and-continue.
func getPort(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("missing port argument")
	}
	port, err := strconv.ParseInt(args[1], 0, 32)
	if err != nil {
		return 0, fmt.Errorf("port: %w", err)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port: out of range: %d", port)
	}
	return int(port), nil
}
