package main

import (
	"context"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/mtessier/visiochat/internal/agent"
	"github.com/mtessier/visiochat/internal/config"
	"github.com/mtessier/visiochat/internal/gemini"
	"github.com/mtessier/visiochat/internal/server"
	"github.com/mtessier/visiochat/internal/session"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create genai client")
	}

	engine := gemini.New(client, cfg.Model, gemini.Options{
		Temperature:     cfg.Temperature,
		TopP:            cfg.TopP,
		TopK:            cfg.TopK,
		MaxOutputTokens: cfg.MaxOutputTokens,
	})

	registry := session.NewRegistry()
	a := agent.New(registry, engine, engine, logger)
	srv := server.New(a, logger)

	logger.Info().Str("port", cfg.HTTPPort).Str("model", cfg.Model).Msg("listening")
	if err := http.ListenAndServe(":"+cfg.HTTPPort, srv.Handler()); err != nil {
		logger.Fatal().Err(err).Msg("http server")
	}
}
