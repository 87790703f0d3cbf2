package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gianglt2198/webrtc-detect/internal/config"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/metrics"
	"github.com/gianglt2198/webrtc-detect/internal/room"
	"github.com/gianglt2198/webrtc-detect/internal/signaling"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling API, detection relay and metrics endpoint",
	Long: `Starts the HTTP server:

  /api/...              offer/answer exchange and benchmark summaries
  /ws/detections/{id}   detection relay for a session
  /metrics              Prometheus metrics
  /                     static viewer files (when --static-dir is set)

Examples:
  detect-server serve
  detect-server serve --store redis --redis-addr localhost:6379
  detect-server serve --listen-addr :8080 --static-dir ./web`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen-addr", config.DefaultListenAddr, "Address to listen on")
	f.String("mode", string(config.DefaultMode), "Inference mode advertised on /api/mode (local, remote)")
	f.String("store", config.StoreFile, "Signaling store backend (file, redis, memory)")
	f.String("data-dir", config.DefaultDataDir, "Directory for the file store and summaries")
	f.String("summary-path", "", "Path of the final benchmark summary")
	f.String("static-dir", "", "Serve this directory at /")
	f.String("redis-addr", config.DefaultRedisAddr, "Redis address for the redis store")
	f.String("redis-prefix", config.DefaultRedisPrefix, "Key prefix for the redis store")
	f.Duration("record-ttl", config.DefaultRecordTTL, "Expire signaling records after this long (0 keeps them)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	rooms := room.NewManager()
	handler, err := newHandler(cfg, store, rooms, metrics.NewRegistry())
	if err != nil {
		return err
	}

	go signaling.RunJanitor(ctx, store, cfg.RecordTTL/2, cfg.RecordTTL)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Signaling server listening",
			"addr", cfg.ListenAddr, "store", cfg.Store, "mode", cfg.Mode, "static_dir", cfg.StaticDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	rooms.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// openStore selects the signaling backend named by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config) (signaling.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		store := signaling.NewRedisStore(client,
			signaling.WithTTL(cfg.RecordTTL),
			signaling.WithPrefix(cfg.RedisPrefix))
		return store, client.Close, nil
	case config.StoreMemory:
		return signaling.NewMemoryStore(), noop, nil
	case config.StoreFile:
		store, err := signaling.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

// newHandler assembles every route behind request ids, CORS and tracing.
func newHandler(cfg *config.Config, store signaling.Store, rooms *room.Manager, reg *prometheus.Registry) (http.Handler, error) {
	api, err := signaling.NewServer(store, signaling.NewSummaryStore(cfg.SummaryPath), cfg.Mode)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	api.Register(mux)
	room.NewRelay(rooms).Register(mux)
	mux.Handle("GET /metrics", metrics.Handler(reg))
	if cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return otelhttp.NewHandler(signaling.Middleware(mux), "detect-server"), nil
}
