package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ndikhoa/ladesk-api/config"
	"github.com/ndikhoa/ladesk-api/internal/adapters/cloud"
	"github.com/ndikhoa/ladesk-api/internal/adapters/onpremise"
	"github.com/ndikhoa/ladesk-api/internal/agents"
	"github.com/ndikhoa/ladesk-api/internal/classifier"
	"github.com/ndikhoa/ladesk-api/internal/events"
	"github.com/ndikhoa/ladesk-api/internal/handlers"
	"github.com/ndikhoa/ladesk-api/internal/relay"
	"github.com/ndikhoa/ladesk-api/internal/resolver"
	"github.com/ndikhoa/ladesk-api/internal/store"
	"github.com/ndikhoa/ladesk-api/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open mapping store")
	}
	defer db.Close()

	cloudClient, err := cloud.NewClient(cloud.Config{
		BaseURLV1: cfg.CloudBaseURLV1,
		APIKeyV1:  cfg.CloudAPIKeyV1,
		BaseURLV3: cfg.CloudBaseURLV3,
		APIKeyV3:  cfg.CloudAPIKeyV3,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Cloud client")
	}

	onpremClient, err := onpremise.NewClient(onpremise.Config{
		BaseURLV1: cfg.OnPremiseBaseURLV1,
		APIKeyV1:  cfg.OnPremiseAPIKeyV1,
		BaseURLV3: cfg.OnPremiseBaseURLV3,
		APIKeyV3:  cfg.OnPremiseAPIKeyV3,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize On-Premise client")
	}

	directory, err := agents.NewDirectory(cfg.AgentMappingFile, onpremClient, cfg.CloudUserIdentifier)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize agent directory")
	}

	publisher := events.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue, cfg.RabbitPrefix)
	defer publisher.Close()

	res, err := resolver.New(db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize correlation resolver")
	}

	orchestrator, err := relay.NewOrchestrator(cloudClient, onpremClient, db, res, directory, publisher, relay.Config{
		DepartmentID:   cfg.OnPremiseDepartmentID,
		RecipientEmail: cfg.OnPremiseRecipientEmail,
		BotSenders:     cfg.BotSenders,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize relay orchestrator")
	}

	cls := classifier.New(classifier.Options{
		PlaceholderAgentAsCustomer: cfg.PlaceholderAgentAsCustomer,
		FanPageNames:               cfg.FanPageNames,
	})

	h, err := handlers.New(cls, orchestrator, db, directory)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize handlers")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.Router(h, cfg.AdminToken),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting webhook bridge")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
