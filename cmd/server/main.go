// Command server runs the multi-provider LLM chat API.
//
//	@title			LLM Chat API
//	@version		1.0
//	@description	Multi-provider chat service: conversations, streamed replies, drafts, search and speech.
//	@BasePath		/api/v1
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/config"
	httpapi "github.com/tbourn/go-llm-chat/internal/http"
	"github.com/tbourn/go-llm-chat/internal/http/handlers"
	"github.com/tbourn/go-llm-chat/internal/observability"
	"github.com/tbourn/go-llm-chat/internal/providers"
	"github.com/tbourn/go-llm-chat/internal/repo"
	"github.com/tbourn/go-llm-chat/internal/services"
	"github.com/tbourn/go-llm-chat/internal/speech"
	"github.com/tbourn/go-llm-chat/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout = 15 * time.Second
	purgeInterval   = time.Hour
)

func main() {
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	log.Logger = sysutil.NewLogger(os.Stderr, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	dbOpts := []repo.OpenOption{}
	if cfg.OTEL.Enabled {
		dbOpts = append(dbOpts, repo.WithTracing())
	}
	db, err := repo.OpenSQLite(cfg.DBPath, dbOpts...)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	reg := providers.NewRegistry(cfg.Credentials())
	catalog := providers.NewModelCatalog(reg, cfg.ModelsCacheTTL)

	deps := handlers.Deps{
		Conversations: services.NewConversationService(db, cfg.DefaultModel),
		Providers:     reg,
		Models:        catalog,
		Search:        services.NewSearchService(db),
	}

	var hooks []services.ReplyHook
	var prefetcher *speech.Prefetcher
	if cfg.Speech.Enabled() {
		prefetcher, err = newPrefetcher(cfg.Speech)
		if err != nil {
			log.Fatal().Err(err).Msg("speech setup failed")
		}
		hooks = append(hooks, prefetcher)
		deps.Speech = prefetcher
		log.Info().Str("voice", cfg.Speech.VoiceID).Msg("speech synthesis enabled")
	}

	orch := services.NewOrchestrator(db, reg, hooks...)
	orch.Timeout = cfg.ProviderTimeout
	orch.MaxPromptRunes = cfg.MaxPromptRunes
	orch.RecordErrors = cfg.RecordErrors
	orch.IdempotencyTTL = cfg.IdempotencyTTL
	deps.Chat = orch

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, deps, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return log.Logger.WithContext(context.Background()) },
	}

	go purgeIdempotency(ctx, db)

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Int("providers", len(reg.Providers())).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if prefetcher != nil {
		prefetcher.Wait()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}

func newPrefetcher(sc config.SpeechConfig) (*speech.Prefetcher, error) {
	synth, err := speech.NewElevenLabs(speech.Config{
		APIKey:  sc.APIKey,
		VoiceID: sc.VoiceID,
		ModelID: sc.ModelID,
		BaseURL: sc.BaseURL,
	}, &http.Client{Timeout: 90 * time.Second})
	if err != nil {
		return nil, err
	}
	return speech.NewPrefetcher(synth, sc.CacheSize, sc.CacheTTL)
}

// purgeIdempotency drops expired idempotency records until ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency records")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency records removed")
			}
		}
	}
}
