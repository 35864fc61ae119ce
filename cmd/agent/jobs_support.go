package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/paper-agent/internal/backend"
	"github.com/yourusername/paper-agent/internal/config"
	"github.com/yourusername/paper-agent/internal/conversation"
	"github.com/yourusername/paper-agent/internal/jobs"
	"github.com/yourusername/paper-agent/internal/logging"
	"github.com/yourusername/paper-agent/internal/metrics"
	"github.com/yourusername/paper-agent/internal/prompt"
	"github.com/yourusername/paper-agent/internal/session"
	"github.com/yourusername/paper-agent/internal/storage"
)

const checkpointSlot = "default"

// agent は CLI の1回の実行で共有する依存関係です。
type agent struct {
	cfg        *config.Config
	logger     zerolog.Logger
	client     *backend.Client
	log        *conversation.Log
	normalizer *prompt.Normalizer
	manager    *jobs.Manager
	sessionID  string

	closers []func()
}

// setupAgent は設定から依存関係を組み立てます。
// チェックポイントは CHECKPOINT_REDIS_URL があれば Redis、無ければ STATE_DIR のファイルに保存します。
func setupAgent(cfg *config.Config, out io.Writer) (*agent, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	a := &agent{cfg: cfg, logger: logger}

	sessionID, err := session.LoadOrCreate(cfg.StateDir)
	if err != nil {
		logger.Warn().Err(err).Msg("using an ephemeral session id")
	}
	a.sessionID = sessionID

	var store storage.Store
	if cfg.CheckpointRedisURL != "" {
		redisStore, err := storage.NewRedisStoreFromURL(cfg.CheckpointRedisURL, checkpointSlot, cfg.CheckpointTTL, logger)
		if err != nil {
			return nil, fmt.Errorf("checkpoint store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = redisStore.Close() })
		store = redisStore
	} else {
		store = storage.NewLocalStore(cfg.StateDir, cfg.CheckpointTTL, logger)
	}

	a.client = backend.NewClient(backend.Options{
		BaseURL:       cfg.APIBaseURL,
		UploadTimeout: cfg.UploadTimeout,
		Logger:        logger,
	})
	a.log = conversation.NewLog(newPrinter(out).print)
	a.normalizer = prompt.New(prompt.Options{
		FuzzyThreshold:    cfg.FuzzyThreshold,
		AutoCompressRatio: cfg.AutoCompressRatio,
		AutoCompressMinMB: cfg.AutoCompressMinMB,
	})

	a.manager, err = jobs.NewManager(jobs.Options{
		Backend:      a.client,
		Store:        store,
		Log:          a.log,
		Normalizer:   a.normalizer,
		SessionID:    sessionID,
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.MaxPolls,
		Logger:       logger,
		OnTelemetry: func(raw json.RawMessage) {
			if tel, ok := backend.ParseTelemetry(raw); ok {
				logger.Debug().Str("ram", tel.Summary()).Msg("server telemetry")
			}
		},
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.MetricsAddr != "" {
		a.closers = append(a.closers, startMetricsServer(cfg.MetricsAddr, logger))
	}
	return a, nil
}

// Close は開いたリソースを解放します。
func (a *agent) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// probeBackend はバックエンドのメモリ状況を取得してログに残します。失敗しても続行します。
func (a *agent) probeBackend(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	raw, err := a.client.RAM(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Str("api", a.cfg.APIBaseURL).Msg("backend is not reachable")
		return
	}
	if tel, ok := backend.ParseTelemetry(raw); ok {
		a.logger.Debug().Str("ram", tel.Summary()).Msg("backend reachable")
	}
}

// watchInterrupt は Ctrl+C で進行中のジョブを取り消します。
// 進行中のジョブが無いときの Ctrl+C は ctx を終了させます。
func (a *agent) watchInterrupt(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if a.manager.Cancel() {
					a.logger.Debug().Msg("interrupt: cancelling current job")
					continue
				}
				cancel()
				return
			}
		}
	}()
	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

func startMetricsServer(addr string, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
