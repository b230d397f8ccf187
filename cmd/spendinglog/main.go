package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spendinglog/internal/amqp"
	"spendinglog/internal/auth"
	"spendinglog/internal/cli"
	"spendinglog/internal/deploy"
	apphttp "spendinglog/internal/http"
	"spendinglog/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// AMQP is optional; without it expenses simply stay pending until the
	// worker's periodic scan picks them up.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	service := services.NewExpenseService(repo, amqpClient)

	var authenticator *auth.Authenticator
	if cfg.SessionAuthEnabled() {
		authenticator = auth.NewAuthenticator(cfg.SessionUsername, cfg.SessionPassword, cfg.SessionTTL)
		logger.Info("Session login enabled", "ttl", cfg.SessionTTL)
	} else {
		logger.Warn("Session login disabled - no credentials configured")
	}

	var puller *deploy.Puller
	if cfg.WebhookSecret != "" {
		puller = deploy.NewPuller(cfg.RepoDir)
		logger.Info("Deploy webhook enabled", "repo_dir", cfg.RepoDir)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:          ":" + cfg.Port,
		Store:         service,
		Auth:          authenticator,
		Puller:        puller,
		WebhookSecret: cfg.WebhookSecret,
	})

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting spendinglog server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
