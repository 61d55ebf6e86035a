package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/revival365/medassist/internal/auth"
	"github.com/revival365/medassist/internal/config"
	"github.com/revival365/medassist/internal/handler"
	"github.com/revival365/medassist/internal/repository"
	"github.com/revival365/medassist/internal/service/agent"
	"github.com/revival365/medassist/internal/service/session"
	"github.com/revival365/medassist/internal/service/voice"
	"github.com/revival365/medassist/internal/tool"
	"github.com/revival365/medassist/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Init()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file, continuing with system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	store := session.NewStore(session.Config{
		MaxMessages: cfg.Session.MaxMessages,
		MaxTokens:   cfg.Session.MaxTokens,
		IdleTTL:     cfg.Session.IdleTTL,
	})
	store.StartJanitor(ctx)

	records, verifier := buildRecords(ctx, cfg)

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize the chat model")
	}

	orchestrator, err := agent.New(chatModel, tool.NewCatalog(records), store, agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		RunTimeout:    cfg.Agent.RunTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize the orchestrator")
	}

	var transcriber voice.Transcriber
	if cfg.Voice.TranscriptionEnabled() {
		transcriber = voice.NewHTTPTranscriber(voice.HTTPTranscriberConfig{
			RegionalURL:      cfg.Voice.RegionalSTTURL,
			InternationalURL: cfg.Voice.InternationalSTTURL,
			APIKey:           cfg.Voice.STTAPIKey,
			Timeout:          time.Duration(cfg.Voice.STTTimeoutSeconds) * time.Second,
		})
		log.Info().Msg("speech-to-text engines configured")
	} else {
		log.Warn().Msg("no speech-to-text engine configured, voice routes degraded")
	}

	h := handler.New(store, orchestrator, transcriber, verifier, voiceConfig(cfg.Voice))
	router := handler.NewRouter(h, verifier)

	startServer(ctx, cfg.Server, router)
}

// buildRecords selects the records backend and the token verifier. With a
// database configured both come from Postgres; otherwise the in-memory demo
// dataset is served and tokens come from AUTH_TOKENS.
func buildRecords(ctx context.Context, cfg *config.Config) (repository.Records, auth.TokenVerifier) {
	if cfg.Database.Enabled() {
		pg, err := repository.Open(ctx, cfg.Database.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to the database")
		}
		log.Info().Msg("serving records from Postgres")
		return pg, pg
	}

	if len(cfg.Auth.StaticTokens) == 0 {
		log.Warn().Msg("no DATABASE_URL and no AUTH_TOKENS: every request will be rejected as unauthenticated")
	}
	log.Info().Msg("serving the in-memory demo dataset")
	return repository.NewMemory(repository.Seed()), cfg.Auth.StaticTokens
}

func voiceConfig(cfg config.VoiceConfig) voice.Config {
	out := voice.Config{
		TickInterval:       time.Duration(cfg.TickIntervalMs) * time.Millisecond,
		NoSpeechTimeout:    time.Duration(cfg.NoSpeechTimeoutMs) * time.Millisecond,
		EndOfSpeechTimeout: time.Duration(cfg.EndOfSpeechTimeoutMs) * time.Millisecond,
		SampleRate:         cfg.SampleRate,
	}
	if cfg.SpeechThreshold != nil {
		out.SpeechThreshold = *cfg.SpeechThreshold
	}
	return out
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("medassist backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
