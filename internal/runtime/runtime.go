// Package runtime assembles the daemon: telemetry, bus, storage, the
// gateway client, the capture and playback capabilities, and the voice
// service, plus the health endpoints. Components shut down in reverse
// start order.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geetalabs/geeta-core/internal/bus"
	"github.com/geetalabs/geeta-core/internal/capture"
	"github.com/geetalabs/geeta-core/internal/config"
	"github.com/geetalabs/geeta-core/internal/conversation"
	"github.com/geetalabs/geeta-core/internal/gateway"
	"github.com/geetalabs/geeta-core/internal/natsserver"
	"github.com/geetalabs/geeta-core/internal/playback"
	"github.com/geetalabs/geeta-core/internal/store"
	"github.com/geetalabs/geeta-core/internal/voice"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	voiceSvc *voice.Service
	busConn  *bus.Client
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busConn = busClient
	defer busClient.Close()

	st, err := store.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer st.Close()

	recognizer, err := r.buildRecognizer()
	if err != nil {
		return fmt.Errorf("failed to build speech recognizer: %w", err)
	}
	player, err := playback.NewPlayer(r.cfg.Playback)
	if err != nil {
		return fmt.Errorf("failed to build audio player: %w", err)
	}

	convSvc := conversation.NewService(st, gateway.NewHTTPClient(r.cfg.Gateway), r.cfg.Gateway, r.logger)

	voiceSvc := voice.NewService(ctx, r.cfg, busClient, convSvc, recognizer, player, r.logger)
	if err := voiceSvc.Start(); err != nil {
		return fmt.Errorf("failed to start voice service: %w", err)
	}
	r.voiceSvc = voiceSvc
	defer voiceSvc.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildRecognizer() (capture.Recognizer, error) {
	switch r.cfg.Capture.Mode {
	case "mock":
		return capture.NewMockRecognizer(), nil
	default:
		return capture.NewExecRecognizer(r.cfg.Capture, r.logger)
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busConn.Healthy() && r.voiceSvc.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
