package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/sync/errgroup"

	"github.com/Youssefbenarbiya/booki-relay/internal/bus"
	"github.com/Youssefbenarbiya/booki-relay/internal/config"
	"github.com/Youssefbenarbiya/booki-relay/internal/gateway"
	"github.com/Youssefbenarbiya/booki-relay/internal/listing"
	"github.com/Youssefbenarbiya/booki-relay/internal/registry"
	"github.com/Youssefbenarbiya/booki-relay/internal/relay"
	"github.com/Youssefbenarbiya/booki-relay/internal/secrets"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
	"github.com/Youssefbenarbiya/booki-relay/internal/store/dynamo"
	"github.com/Youssefbenarbiya/booki-relay/internal/store/pg"
	"github.com/Youssefbenarbiya/booki-relay/internal/store/sqlite"
	"github.com/Youssefbenarbiya/booki-relay/internal/tracing"
	"github.com/Youssefbenarbiya/booki-relay/pkg/protocol"
)

// sendBurst is how many sends an identity may fire back to back before the
// per-minute rate applies.
const sendBurst = 5

func setupLogging(format string) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, opts)))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))
}

func runRelay() {
	setupLogging("text")

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := applySSMSecrets(ctx, cfg); err != nil {
		slog.Error("failed to load secrets", "error", err)
		os.Exit(1)
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownTracing(sctx)
		}()
	}

	stores, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to open stores", "mode", cfg.Database.Mode, "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	owners, err := ownerSource(cfg, stores)
	if err != nil {
		slog.Error("listing source unavailable", "error", err)
		os.Exit(1)
	}

	msgBus := bus.New()
	subscribeDomainEvents(msgBus, stores.Conversations)

	limiter := gateway.NewRateLimiter(cfg.RateLimitRPM(), sendBurst)
	engine := relay.NewEngine(
		registry.NewHub(),
		stores.Messages,
		listing.NewOwnerResolver(owners),
		msgBus,
		limiter,
		relay.Config{
			MaxMessageChars: cfg.Gateway.MaxMessageChars,
			ReplacePolicy:   cfg.Gateway.ReplacePolicy,
		},
	)
	server := gateway.NewServer(cfg, engine, limiter)

	slog.Info("booki relay starting",
		"version", Version,
		"protocol", protocol.ProtocolVersion,
		"mode", cfg.Database.Mode,
		"listings", cfg.Listings.Source,
		"replace_policy", cfg.Gateway.ReplacePolicy,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		if _, err := os.Stat(cfgPath); err != nil {
			slog.Debug("config hot reload off, no config file", "path", cfgPath)
			return nil
		}
		err := config.Watch(gctx, cfgPath, func(fresh *config.Config) {
			server.ApplyConfig(fresh)
			slog.Info("config reloaded", "path", cfgPath, "rate_limit_rpm", fresh.Gateway.RateLimitRPM, "origins", len(fresh.Gateway.AllowedOrigins))
		})
		if err != nil {
			slog.Warn("config hot reload stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return serveTailscale(gctx, cfg, server.BuildMux())
	})

	if err := g.Wait(); err != nil {
		slog.Error("relay error", "error", err)
		os.Exit(1)
	}
	slog.Info("booki relay stopped")
}

// applySSMSecrets fills the DSN, gateway token and JWT secret from SSM when a prefix is
// configured. Values already set from the environment win.
func applySSMSecrets(ctx context.Context, cfg *config.Config) error {
	if cfg.Secrets.SSMPrefix == "" {
		return nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	loader, err := secrets.NewLoader(ssm.NewFromConfig(awsCfg), cfg.Secrets.SSMPrefix)
	if err != nil {
		return err
	}
	s, err := loader.LoadAll(ctx)
	if err != nil {
		return err
	}
	if cfg.Database.PostgresDSN == "" {
		cfg.Database.PostgresDSN = s.PostgresDSN
	}
	if cfg.Gateway.Token == "" {
		cfg.Gateway.Token = s.GatewayToken
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = s.JWTSecret
	}
	slog.Info("secrets loaded from ssm", "prefix", cfg.Secrets.SSMPrefix,
		"dsn", s.PostgresDSN != "", "token", s.GatewayToken != "", "jwt", s.JWTSecret != "")
	return nil
}

// openStores builds the backend selected by database.mode.
func openStores(ctx context.Context, cfg *config.Config) (*store.Stores, error) {
	storeCfg := store.StoreConfig{
		Mode:        cfg.Database.Mode,
		PostgresDSN: cfg.Database.PostgresDSN,
		SQLitePath:  cfg.SQLitePath(),
		DynamoTable: cfg.Database.DynamoTable,
	}

	switch cfg.Database.Mode {
	case config.ModeManaged:
		if !cfg.IsManagedMode() {
			return nil, errors.New("managed mode needs BOOKI_POSTGRES_DSN (or secrets.ssm_prefix)")
		}
		if err := checkSchemaOrAutoUpgrade(ctx, cfg.Database.PostgresDSN); err != nil {
			return nil, err
		}
		return pg.NewPGStores(storeCfg)
	case config.ModeDynamoDB:
		return dynamo.NewDynamoStores(ctx, storeCfg)
	default:
		slog.Info("standalone mode", "sqlite", storeCfg.SQLitePath)
		return sqlite.NewSQLiteStores(storeCfg)
	}
}

// ownerSource picks where listing ownership is read from.
func ownerSource(cfg *config.Config, stores *store.Stores) (store.ListingStore, error) {
	if cfg.Listings.Source == config.ListingSourceHTTP {
		return listing.NewHTTPStore(cfg.Listings.APIBase, cfg.Listings.APIKey, cfg.ListingsTimeout()), nil
	}
	if stores.Listings == nil {
		return nil, fmt.Errorf("database mode %q has no listing table; set listings.source to %q", cfg.Database.Mode, config.ListingSourceHTTP)
	}
	return stores.Listings, nil
}
