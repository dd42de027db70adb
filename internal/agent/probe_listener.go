package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"db-health-agent/internal/agent/version"
)

// probeRouter serves /healthz (liveness), /readyz (a cycle completed recently), /version and /metrics.
func (a *Agent) probeRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, "ok", a.health.Snapshot())
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !a.health.Ready(time.Now(), a.staleAfter()) {
			writeProbe(w, http.StatusServiceUnavailable, "not_ready", a.health.Snapshot())
			return
		}
		writeProbe(w, http.StatusOK, "ready", a.health.Snapshot())
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(version.Get(a.cfg, time.Now()))
	})
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler())
	}
	return r
}

// staleAfter allows a few slow or jittered cycles before the agent is reported not ready.
func (a *Agent) staleAfter() time.Duration {
	return 3*a.cfg.PollInterval + a.cfg.PollJitter + a.cfg.ShutdownTimeout
}

func writeProbe(w http.ResponseWriter, code int, status string, snapshot map[string]any) {
	body := map[string]any{"status": status, "agent": snapshot}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func (a *Agent) runProbeListener(ctx context.Context) error {
	addr := strings.TrimSpace(a.cfg.ProbeListenAddr)
	if addr == "" {
		return fmt.Errorf("empty probe listen address")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen probe endpoint %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           a.probeRouter(),
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
	a.logger.Info("probe endpoint listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve probe endpoint %s: %w", addr, err)
	}
	return nil
}
