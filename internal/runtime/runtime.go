// Package runtime assembles and supervises the yomi services: telemetry,
// the message bus, the preference store, synthesis, the session manager,
// and the gateway.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yomilabs/yomi-core/internal/audio"
	"github.com/yomilabs/yomi-core/internal/bus"
	"github.com/yomilabs/yomi-core/internal/config"
	"github.com/yomilabs/yomi-core/internal/gateway"
	"github.com/yomilabs/yomi-core/internal/natsserver"
	"github.com/yomilabs/yomi-core/internal/prefstore"
	"github.com/yomilabs/yomi-core/internal/session"
	"github.com/yomilabs/yomi-core/internal/synth"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the full pipeline up and blocks until ctx is cancelled, then
// tears everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	busClient, err := bus.Connect(busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	store, err := prefstore.Open(ctx, r.cfg.Store.Path, prefstore.Defaults{
		ModelUUID:     r.cfg.Synthesis.ModelUUID,
		SpeakingRate:  r.cfg.Playback.DefaultRate,
		VolumePercent: 100,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open preference store: %w", err)
	}
	defer store.Close()

	synthesizer, err := r.buildSynthesizer()
	if err != nil {
		return err
	}

	manager := session.NewManager(ctx, r.cfg.Playback, r.cfg.Synthesis.ModelUUID,
		synthesizer, r.buildTransportFactory(), r.logger)
	defer manager.Shutdown()

	gw := gateway.NewService(ctx, r.cfg.Ingest, busClient, manager, store, r.logger)
	if err := gw.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	defer gw.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.readyHandler(busClient, gw))
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
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
	r.logger.Info("runtime started", slog.String("addr", addr),
		slog.String("synthesis", r.cfg.Synthesis.Mode), slog.String("transport", r.cfg.Playback.Transport))

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

func (r *Runtime) buildSynthesizer() (synth.Synthesizer, error) {
	switch r.cfg.Synthesis.Mode {
	case "aivis":
		return synth.NewAivisClient(r.cfg.Synthesis), nil
	case "exec":
		return synth.NewExecSynth(r.cfg.Synthesis.Command)
	case "mock":
		return synth.NewMockSynth(), nil
	default:
		return nil, fmt.Errorf("unknown synthesis mode %q", r.cfg.Synthesis.Mode)
	}
}

func (r *Runtime) buildTransportFactory() audio.Factory {
	if r.cfg.Playback.Transport == "mock" {
		return audio.NewMockFactory()
	}
	return audio.NewLocalFactory(r.logger)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) readyHandler(busClient *bus.Client, gw *gateway.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if r.ready.Load() && busClient.Healthy() && gw.Healthy() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	}
}
