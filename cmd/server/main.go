package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"

	"github.com/ecocollect/identity-service/internal/auth"
	"github.com/ecocollect/identity-service/internal/config"
	"github.com/ecocollect/identity-service/internal/httpapi"
	"github.com/ecocollect/identity-service/internal/identity"
	"github.com/ecocollect/identity-service/internal/keycloak"
	"github.com/ecocollect/identity-service/internal/logging"
	"github.com/ecocollect/identity-service/internal/server"
	"github.com/ecocollect/identity-service/internal/usersync"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config error: %w", err))
	}

	logger := logging.NewLogger("identity-service")

	// Initialize Firestore client
	client, err := firestore.NewClient(ctx, cfg.GCPProjectID)
	if err != nil {
		panic(fmt.Errorf("firestore client: %w", err))
	}
	defer client.Close()

	// Keycloak admin client, local user store and the services on top of them
	kc := keycloak.NewClient(ctx, keycloak.Config{
		BaseURL:    cfg.Keycloak.BaseURL,
		Realm:      cfg.Keycloak.Realm,
		AdminRealm: cfg.Keycloak.AdminRealm,
		ClientID:   cfg.Keycloak.AdminClientID,
		Username:   cfg.Keycloak.AdminUsername,
		Password:   cfg.Keycloak.AdminPassword,
	})
	userRepo := identity.NewFirestoreRepository(client)
	userService := identity.NewService(userRepo, kc, logger)
	engine := usersync.NewEngine(kc, userRepo, logger)

	verifier, err := auth.NewVerifier(auth.Config{
		Mode:     auth.Mode(cfg.Auth.Mode),
		JWKSURL:  cfg.Auth.JWKSURL,
		Audience: cfg.Auth.Audience,
		Issuer:   cfg.Auth.Issuer,
	})
	if err != nil {
		panic(fmt.Errorf("auth verifier error: %w", err))
	}

	router := server.NewRouter("identity-service", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier))

			httpapi.RegisterRoutes(r, userService, engine, kc, logger)
		})
	})

	if cfg.Sync.StartupSync {
		go runStartupSync(ctx, cfg.Sync, kc, engine, logger.With("component", "startup-sync"))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := server.Run(ctx, srv, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}

// runStartupSync waits for the identity provider to come up and runs the
// initial reconciliation pass. Provider unavailability at boot is not fatal:
// the pass is skipped and the server keeps serving.
func runStartupSync(ctx context.Context, cfg config.SyncConfig, kc *keycloak.Client, engine *usersync.Engine, logger *slog.Logger) {
	probe := func(ctx context.Context) error {
		_, err := kc.ListUsers(ctx)
		return err
	}

	if !usersync.AwaitReady(ctx, probe, cfg.MaxAttempts, cfg.Interval, logger) {
		logger.Error("identity provider never became ready, skipping startup synchronization")
		return
	}

	if _, err := engine.Run(ctx); err != nil {
		logger.Error("startup synchronization failed", "error", err)
	}
}
