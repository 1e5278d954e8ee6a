package main

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fundfolio/internal/api"
	"fundfolio/internal/charts"
	"fundfolio/internal/config"
	"fundfolio/internal/openai"
	"fundfolio/internal/server"
	"fundfolio/internal/storage"
	"fundfolio/internal/telegram"
)

func main() {
	cfg := config.Load()

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("config: unknown log level, using info")
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Ensure parent directory for the DB exists
	_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755)
	db, err := storage.OpenSQLite("file:" + cfg.DBPath + "?_fk=1")
	if err != nil {
		log.Fatal().Err(err).Msg("db: open")
	}
	defer db.Close()
	if err := storage.InitSchema(db); err != nil {
		log.Fatal().Err(err).Msg("db: schema")
	}
	log.Info().Str("path", cfg.DBPath).Msg("db: schema ensured (runs table)")
	history := storage.NewStore(db)

	fundAPI := api.NewClient(cfg.APIBaseURL)
	legacyAPI := api.NewLegacyClient(cfg.LegacyAPIBaseURL)
	log.Info().Str("api", cfg.APIBaseURL).Str("legacy_api", cfg.LegacyAPIBaseURL).Msg("api: clients ready")

	var webhook http.HandlerFunc
	if cfg.TelegramEnabled() {
		deps := telegram.Deps{
			FundAPI:  fundAPI,
			Renderer: charts.NewRenderer(charts.NewRegistry()),
			History:  history,
		}
		if cfg.OpenAIKey != "" {
			deps.Commentator = openai.NewCommentator(cfg.OpenAIKey)
		}
		tg, err := telegram.NewBot(cfg.TelegramToken, cfg.WebhookPublicURL, deps)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram: init")
		}
		webhook = tg.WebhookHandler
		log.Info().Str("webhook", cfg.WebhookPublicURL).Msg("telegram: bot initialized")
	}

	srv := server.New(fundAPI, legacyAPI, charts.NewRenderer(charts.NewRegistry()), history)
	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("http: listening")
	if err := server.ListenAndServe(addr, srv.NewRouter(webhook)); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
