package main

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	catalogx "github.com/velaline/booking-agent/agent/catalog"
	enginex "github.com/velaline/booking-agent/agent/engine"
	memoryx "github.com/velaline/booking-agent/agent/memory"
	statex "github.com/velaline/booking-agent/agent/state"
	toolx "github.com/velaline/booking-agent/agent/tool"
	configx "github.com/velaline/booking-agent/pkg/config"
	crmx "github.com/velaline/booking-agent/pkg/crm"
	_ "github.com/velaline/booking-agent/pkg/logger/autoload"
	openrouterx "github.com/velaline/booking-agent/pkg/openrouter"
	schedulingx "github.com/velaline/booking-agent/pkg/scheduling"
	serverx "github.com/velaline/booking-agent/server"
)

type AppConfig struct {
	StoreBackend    string `envconfig:"STORE_BACKEND" split_words:"true" default:"memory"`
	SummarizerModel string `envconfig:"SUMMARIZER_MODEL" split_words:"true"`
}

func main() {
	ctx := context.Background()

	appCfg := configx.MustNew[AppConfig]("")

	schedulingCfg := configx.MustNew[schedulingx.Config]("SCHEDULING")
	schedulingClient := schedulingx.MustNew(*schedulingCfg)

	crmCfg := configx.MustNew[crmx.Config]("CRM")
	crmClient := crmx.MustNew(*crmCfg)

	store := buildStore(ctx, appCfg.StoreBackend)

	resolver, err := catalogx.NewResolver(schedulingClient)
	if err != nil {
		log.Fatal().Err(err).Msg("build catalog resolver")
	}

	executor, err := toolx.NewExecutor(resolver, schedulingClient, crmClient)
	if err != nil {
		log.Fatal().Err(err).Msg("build tool executor")
	}

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	chatModel, err := openRouterCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("build chat model")
	}

	engineOpts := []enginex.Option{}
	if model := strings.TrimSpace(appCfg.SummarizerModel); model != "" {
		sdkClient := openrouterx.NewClient(*openRouterCfg)
		summarizer, err := memoryx.NewSummarizer(sdkClient, model)
		if err != nil {
			log.Fatal().Err(err).Msg("build summarizer")
		}
		engineOpts = append(engineOpts, enginex.WithSummarizer(summarizer))
	}

	engine, err := enginex.New(store, chatModel, resolver, executor, engineOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}

	serverCfg := configx.MustNew[serverx.Config]("SERVER")
	srv, err := serverx.New(engine, *serverCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build server")
	}

	if err := srv.Listen(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func buildStore(ctx context.Context, backend string) statex.Store {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "postgres":
		cfg := configx.MustNew[statex.PostgresConfig]("POSTGRES")
		store, err := statex.NewPostgresStore(*cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("build postgres store")
		}
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("ensure postgres schema")
		}
		return store
	case "upstash":
		cfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		store, err := statex.NewUpstashRedisStore(*cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("build upstash store")
		}
		return store
	default:
		return statex.NewInMemoryStore()
	}
}
