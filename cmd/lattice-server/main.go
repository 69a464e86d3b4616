package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"
	slogecho "github.com/samber/slog-echo"
	"github.com/urfave/cli/v2"

	"github.com/lattice-auth/lattice"
	"github.com/lattice-auth/lattice/internal/sso"
	"github.com/lattice-auth/lattice/internal/store"
)

func main() {
	app := &cli.App{
		Name:   "lattice-server",
		Usage:  "identity and token service",
		Action: run,
	}

	app.RunAndExitOnError()
}

func run(cmd *cli.Context) error {
	godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("could not parse config from environment: %w", err)
	}

	logger := slog.Default()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}

	key, err := loadOrGenerateKey(cfg.JwksPath, logger)
	if err != nil {
		return err
	}

	codec, err := lattice.NewCodec(key, lattice.CodecConfig{
		AccessTTL:     cfg.AccessTokenTTL,
		LongAccessTTL: cfg.LongAccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Environment:   cfg.Environment,
	})
	if err != nil {
		return err
	}

	srv := &Server{
		cfg:      cfg,
		store:    st,
		verifier: lattice.NewVerifier(st, st, logger),
		guard: lattice.NewGuard(lattice.GuardConfig{
			MinimumAuthorities: map[string][]string{
				lattice.DevelopmentKey:       cfg.DevAuthorities,
				lattice.ClientDevelopmentKey: cfg.ClientDevAuthorities,
			},
		}, logger),
		rotator:  lattice.NewRotator(codec, st, logger),
		codec:    codec,
		key:      key,
		google:   sso.NewGoogleVerifier(nil),
		facebook: sso.NewFacebookVerifier(nil, cfg.FacebookAppID, cfg.FacebookAppSecret),
		log:      logger,
	}

	authenticator := lattice.NewAuthenticator(codec, lattice.AuthenticatorConfig{
		RemoteAddressBinding: cfg.RemoteAddressBinding,
		ContextPath:          cfg.ContextPath,
		ClientPaths:          cfg.ClientAuthPaths,
		ExcludePaths:         cfg.ExcludePaths,
	}, logger)

	go purgeExpiredRefresh(cmd.Context, st, logger)

	e := buildRouter(srv, authenticator, logger)

	httpd := http.Server{
		Addr:    cfg.Addr,
		Handler: e,
	}

	logger.Info("starting http server", "addr", cfg.Addr, "environment", cfg.Environment)

	if err := httpd.ListenAndServe(); err != nil {
		return err
	}

	return nil
}

// purgeExpiredRefresh reaps dead rotation records hourly. Expired tokens fail
// validation on their own; this only bounds table growth.
func purgeExpiredRefresh(ctx context.Context, st *store.Store, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := st.PurgeExpiredRefresh(ctx, time.Now())
			if err != nil {
				logger.Error("could not purge refresh records", "err", err)
				continue
			}
			if purged > 0 {
				logger.Info("purged expired refresh records", "count", purged)
			}
		}
	}
}

func buildRouter(srv *Server, authenticator *lattice.Authenticator, logger *slog.Logger) *echo.Echo {
	e := echo.New()

	e.Use(slogecho.New(logger))
	e.Use(breadcrumbMiddleware())
	e.Use(bearerMiddleware(authenticator))

	root := e.Group(srv.cfg.ContextPath)
	root.POST("/auth/token", srv.handleToken)
	root.POST("/auth/refresh-token", srv.handleRefresh)
	root.POST("/auth/logout", srv.handleLogout)
	root.POST("/auth/google", srv.handleGoogle)
	root.POST("/auth/facebook", srv.handleFacebook)
	root.GET("/.well-known/jwks.json", srv.handleJwks)

	return e
}

// loadOrGenerateKey reads the signing key from disk, generating and persisting
// one on first boot so restarts keep signing with the same key.
func loadOrGenerateKey(path string, logger *slog.Logger) (jwk.Key, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		return lattice.ParseJWKFromBytes(b)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("could not read jwks file: %w", err)
	}

	prefix := "lattice"
	key, err := lattice.GenerateKey(&prefix)
	if err != nil {
		return nil, err
	}

	b, err = json.Marshal(key)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return nil, fmt.Errorf("could not persist jwks file: %w", err)
	}

	logger.Info("generated new signing key", "path", path, "kid", key.KeyID())
	return key, nil
}
