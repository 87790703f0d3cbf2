package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/metrics"
)

const metricsShutdownTimeout = 5 * time.Second

// serveMetrics exposes the pipeline collectors at /metrics on addr. It returns
// the bound address and a stop func. An empty addr disables the endpoint.
func serveMetrics(addr string) (string, func(), error) {
	if addr == "" {
		return "", func() {}, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler(metrics.NewRegistry()))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics endpoint failed", "addr", ln.Addr().String(), "error", err)
		}
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return ln.Addr().String(), stop, nil
}

// startMetrics starts the endpoint named by --metrics-addr.
func startMetrics(cmd *cobra.Command) (func(), error) {
	addr, _ := cmd.Flags().GetString("metrics-addr")
	bound, stop, err := serveMetrics(addr)
	if err != nil {
		return nil, err
	}
	if bound != "" {
		logger.Info("Metrics endpoint listening", "addr", bound)
	}
	return stop, nil
}
