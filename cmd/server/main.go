package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/presence-gateway/internal/auth"
	"github.com/Tyrowin/presence-gateway/internal/identity"
	"github.com/Tyrowin/presence-gateway/internal/logging"
	"github.com/Tyrowin/presence-gateway/internal/presence"
	"github.com/Tyrowin/presence-gateway/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "presence-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	boot := logging.NewLogger(logging.Config{Level: "info", Format: logging.FormatJSON})

	cfg, err := server.LoadConfig(&boot)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info().Msg("Starting presence gateway...")
	cfg.LogConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolver, closeResolver, err := buildResolver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeResolver()

	tokens := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	gw := server.NewGateway(cfg, tokens, resolver, logger)
	gw.Start()

	httpServer := server.CreateServer(cfg.Port, gw.Routes())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(httpServer, logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Received shutdown signal")

		serverErr := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger)
		if err := gw.Shutdown(cfg.ShutdownTimeout); err != nil {
			logger.Warn().Err(err).Msg("Gateway shutdown incomplete")
		}
		return serverErr
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("Server shutdown complete")
	return nil
}

// buildResolver picks Postgres when DATABASE_URL is set and the YAML
// directory otherwise.
func buildResolver(ctx context.Context, cfg *server.Config, logger zerolog.Logger) (presence.IdentityResolver, func(), error) {
	if cfg.DatabaseURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pg, err := identity.ConnectPostgres(connectCtx, cfg.DatabaseURL, identity.PoolConfig{})
		if err != nil {
			return nil, nil, fmt.Errorf("identity database: %w", err)
		}
		logger.Info().Msg("Resolving identities from Postgres")
		return pg, pg.Close, nil
	}

	dir, err := identity.LoadDirectory(cfg.IdentityFile)
	if err != nil {
		return nil, nil, fmt.Errorf("identity file: %w", err)
	}
	logger.Info().Str("file", cfg.IdentityFile).Int("users", dir.Len()).Msg("Resolving identities from directory")
	return dir, func() {}, nil
}
