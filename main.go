package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"personachat/internal/account"
	"personachat/internal/agent"
	"personachat/internal/api"
	"personachat/internal/auth"
	"personachat/internal/calendar"
	"personachat/internal/config"
	"personachat/internal/convstore"
	"personachat/internal/ratelimit"
	"personachat/internal/redis"
	"personachat/internal/storage"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("PERSONACHAT_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfgPath := os.Getenv("PERSONACHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	dbType := os.Getenv("PERSONACHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("db", dbType).Msg("open database")
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create redis client")
	}
	defer rdb.Close()

	accounts := account.NewService(db)
	authService := auth.NewService(db, 24*time.Hour)
	limiter := ratelimit.NewLimiter(rdb, cfg.RateLimit.PerMinute, cfg.RateLimit.PerDay)
	conversations := convstore.NewStore(rdb, cfg.ConversationTTL())

	calClient := calendar.NewClient(cfg.Calendar)
	calTools, err := calendar.NewTools(calClient, accounts, cfg.Calendar, cfg.Persona.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("init calendar tools")
	}

	provider := cfg.Persona.Provider
	if provider == "" {
		provider = "openai"
	}
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		log.Fatal().Str("provider", provider).Msg("provider not configured")
	}
	streaming := true
	if cfg.Persona.Streaming != nil {
		streaming = *cfg.Persona.Streaming
	}
	runner, err := agent.NewEinoRunner(context.Background(), agent.RunnerConfig{
		Provider:       provider,
		ProviderConfig: provCfg,
		Instructions:   agent.Instructions(cfg.Persona),
		Tools:          calTools.All(),
		Streaming:      streaming,
		StreamDelay:    time.Duration(cfg.Stream.StreamDelayMillis) * time.Millisecond,
		ChunkDelay:     time.Duration(cfg.Stream.ChunkDelayMillis) * time.Millisecond,
		WordsPerChunk:  cfg.Stream.WordsPerChunk,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init agent runner")
	}
	driver := agent.NewDriver(runner)

	handlers := api.NewHandler(accounts, authService, driver, limiter, conversations, cfg.TurnTimeout(), cfg.Calendar.WebhookSecret)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	log.Info().Str("addr", addr).Str("provider", provider).Bool("streaming", streaming).Msg("server starting")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
