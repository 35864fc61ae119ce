// Package main は開発用の処理バックエンドのエントリーポイントです。
// 実際の変換は行わず、指示のキーワードに応じたジョブの進行を再現します。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/paper-agent/internal/config"
	"github.com/yourusername/paper-agent/internal/devapi"
	"github.com/yourusername/paper-agent/internal/logging"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("error", "console")
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	gin.SetMode(cfg.GinMode)

	var origins []string
	for _, o := range strings.Split(cfg.DevAPIOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	srv, err := devapi.New(devapi.Options{
		Dir:            filepath.Join(cfg.StateDir, "devapi"),
		Planner:        devapi.DefaultPlanner(cfg.DevAPIPolls),
		TTL:            cfg.CheckpointTTL,
		AllowedOrigins: origins,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up devapi")
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.DevAPIPort,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("mode", cfg.GinMode).Int("polls", cfg.DevAPIPolls).Msg("starting devapi")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
	logger.Info().Msg("devapi stopped")
}
