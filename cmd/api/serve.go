package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"skribe/api/internal/app"
	"skribe/api/internal/assistant"
	"skribe/api/internal/config"
	"skribe/api/internal/email"
	"skribe/api/internal/export"
	"skribe/api/internal/gitrepo"
	"skribe/api/internal/search"
	"skribe/api/internal/session"
	"skribe/api/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Load()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return fmt.Errorf("create repos dir: %w", err)
	}

	dataStore := store.NewPostgresStore(db)
	gitService := gitrepo.New(cfg.ReposDir)
	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	go searchService.ReindexAllFromPG(context.WithoutCancel(ctx), pgfts)

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for sessions and document locks")
		redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		service = app.NewWithSessionStore(cfg, dataStore, redisStore, gitService, searchService)
	} else {
		log.Printf("Using PostgreSQL for sessions and in-process document locks")
		service = app.New(cfg, dataStore, gitService, searchService)
	}

	var uploader export.Uploader
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		objects, err := export.NewObjectStore(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL)
		if err != nil {
			return fmt.Errorf("object storage: %w", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: export bucket unavailable, exports stay inline: %v", err)
		} else {
			uploader = objects
		}
	}
	service.SetExporter(export.NewService(uploader))

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		service.SetMailer(mailer)
	}

	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		model := assistant.NewAnthropicModel(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicMaxTokens)
		service.SetAssistant(assistant.New(model))
		log.Printf("Chat enabled with model %s", cfg.AnthropicModel)
	} else {
		log.Printf("ANTHROPIC_API_KEY not set, chat disabled")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Skribe API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-sigCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}
