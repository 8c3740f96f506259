package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	advisorx "github.com/hardlaunch/hardlaunch/agent/advisor"
	ragx "github.com/hardlaunch/hardlaunch/agent/rag"
	rolex "github.com/hardlaunch/hardlaunch/agent/role"
	runnerx "github.com/hardlaunch/hardlaunch/agent/runner"
	sessionx "github.com/hardlaunch/hardlaunch/agent/session"
	summaryx "github.com/hardlaunch/hardlaunch/agent/summary"
	configx "github.com/hardlaunch/hardlaunch/pkg/config"
	llmx "github.com/hardlaunch/hardlaunch/pkg/llm"
	logx "github.com/hardlaunch/hardlaunch/pkg/logger"
	serverx "github.com/hardlaunch/hardlaunch/server"

	contractx "github.com/hardlaunch/hardlaunch/agent/contract"
)

type AppConfig struct {
	// StoreBackend selects session persistence: memory, redis, or postgres.
	StoreBackend string `envconfig:"STORE_BACKEND" split_words:"true" default:"memory"`
}

func main() {
	logCfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*logCfg)

	appCfg := configx.MustNew[AppConfig]("")

	// A missing API key is startup-fatal in this deployment: the service
	// has no degraded mode without its completion backend.
	llmCfg := configx.MustNew[llmx.Config]("LLM")
	llmClient, err := llmx.NewClient(*llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize completion client")
	}

	store, closeStore, err := buildStore(appCfg.StoreBackend)
	if err != nil {
		log.Fatal().Err(err).Str("backend", appCfg.StoreBackend).Msg("initialize session store")
	}
	defer closeStore()

	registry, err := sessionx.NewRegistry(store)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize session registry")
	}

	summaries, err := summaryx.NewStore(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize summary store")
	}

	ragCfg := configx.MustNew[ragx.Config]("RAG")
	retriever := buildRetriever(*ragCfg)

	roles := rolex.NewCatalog()

	runner, err := runnerx.New(llmClient, summaries, retriever, ragCfg.TopK)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize conversation runner")
	}

	advisor, err := advisorx.New(registry, summaries, roles, runner)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize advisor service")
	}

	srvCfg := configx.MustNew[serverx.Config]("HTTP")
	handler := serverx.NewHandler(advisor, strings.TrimSpace(llmCfg.APIKey) != "")
	srv := serverx.New(*srvCfg, handler)

	go func() {
		log.Info().Int("port", srvCfg.Port).Str("store", appCfg.StoreBackend).Str("model", llmCfg.Model).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func buildStore(backend string) (sessionx.Store, func(), error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory":
		return sessionx.NewMemoryStore(), func() {}, nil
	case "redis":
		cfg := configx.MustNew[sessionx.UpstashRedisConfig]("REDIS")
		store, err := sessionx.NewUpstashRedisStore(*cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "postgres":
		cfg := configx.MustNew[sessionx.PostgresConfig]("POSTGRES")
		store, err := sessionx.NewPostgresStore(*cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Init(context.Background()); err != nil {
			return nil, nil, err
		}
		closer := func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("close postgres store")
			}
		}
		return store, closer, nil
	default:
		return nil, nil, errors.New("unknown store backend: " + backend)
	}
}

func buildRetriever(cfg ragx.Config) contractx.Retriever {
	if strings.TrimSpace(cfg.URL) == "" {
		log.Info().Msg("no retrieval service configured, rag lookups disabled")
		return ragx.Unconfigured{}
	}
	gateway, err := ragx.NewHTTPGateway(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize retrieval gateway")
	}
	return gateway
}
