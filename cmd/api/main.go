package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"synapse/api/internal/app"
	"synapse/api/internal/archive"
	"synapse/api/internal/assistant"
	"synapse/api/internal/auth"
	"synapse/api/internal/avatar"
	"synapse/api/internal/config"
	"synapse/api/internal/email"
	"synapse/api/internal/export"
	"synapse/api/internal/presence"
	"synapse/api/internal/realtime"
	"synapse/api/internal/search"
	"synapse/api/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		return err
	}
	pg := store.NewPostgresStore(db)

	unread, err := presence.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer unread.Close()

	var meili *search.Meili
	if cfg.MeiliURL != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	searcher := search.NewService(meili, search.NewPgLike(db), logger)
	go searcher.ReindexAll()

	var avatars *avatar.Service
	if cfg.MinioEndpoint != "" {
		avatars, err = avatar.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Warn("avatar storage unavailable", zap.Error(err))
			avatars = nil
		}
	}

	archives := archive.New(cfg.ArchivesDir)
	exporter := export.NewService(pg)
	mail := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	hub := realtime.NewHub(logger)
	hub.SetPresence(unread)
	go hub.Run()
	defer hub.Stop()
	socket := realtime.NewServer(hub, []byte(cfg.JWTSecret), cfg.CORSOrigin, logger)

	responses, err := assistant.NewResponseStore(cfg.AssistantConfigPath, logger)
	if err != nil {
		return err
	}
	defer responses.Close()

	verifier, err := buildVerifier(cfg)
	if err != nil {
		return err
	}

	deps := app.ServiceDeps{
		Store:        pg,
		Presence:     unread,
		Hub:          hub,
		Search:       searcher,
		Archive:      archives,
		Exports:      exporter,
		Mail:         mail,
		SocketSecret: []byte(cfg.JWTSecret),
		SocketTTL:    cfg.SocketTokenTTL,
		Logger:       logger,
	}
	if avatars != nil {
		// Assign only when present so a typed-nil pointer never hides
		// behind a non-nil interface.
		deps.Avatars = avatars
	}
	service := app.NewService(deps)
	bot := assistant.NewService(service, service, service, responses, logger)

	handler := app.NewHandler(app.HandlerDeps{
		Service:    service,
		Assistant:  bot,
		Socket:     http.HandlerFunc(socket.HandleConnect),
		Verifier:   verifier,
		AuthMode:   cfg.AuthMode,
		JWTSecret:  []byte(cfg.JWTSecret),
		CORSOrigin: cfg.CORSOrigin,
		Logger:     logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
	return nil
}

func buildVerifier(cfg config.Config) (auth.Verifier, error) {
	if cfg.AuthMode == "supabase" {
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
			return nil, errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required when SYNAPSE_AUTH_MODE=supabase")
		}
		return auth.NewSupabaseVerifier(cfg.SupabaseURL, cfg.SupabaseServiceKey)
	}
	return auth.NewLocalVerifier([]byte(cfg.JWTSecret)), nil
}
