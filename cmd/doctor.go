package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/Youssefbenarbiya/booki-relay/internal/config"
	"github.com/Youssefbenarbiya/booki-relay/internal/upgrade"
	"github.com/Youssefbenarbiya/booki-relay/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage and listing source health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Println("booki-relay doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := applySSMSecrets(ctx, cfg); err != nil {
		fmt.Printf("  Secrets:  SSM FAILED (%s)\n", err)
	} else if cfg.Secrets.SSMPrefix != "" {
		fmt.Printf("  Secrets:  ssm %s\n", cfg.Secrets.SSMPrefix)
	}

	fmt.Println()
	fmt.Println("  Gateway:")
	fmt.Printf("    %-16s %s:%d\n", "Listen:", cfg.Gateway.Host, cfg.Gateway.Port)
	switch {
	case cfg.Auth.JWTSecret != "":
		fmt.Printf("    %-16s jwt (iss=%q aud=%q)\n", "Auth:", cfg.Auth.Issuer, cfg.Auth.Audience)
	case cfg.Gateway.Token != "":
		fmt.Printf("    %-16s shared token\n", "Auth:")
	default:
		fmt.Printf("    %-16s none (open)\n", "Auth:")
	}
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		fmt.Printf("    %-16s %v\n", "Origins:", origins)
	} else {
		fmt.Printf("    %-16s any (dev mode)\n", "Origins:")
	}
	fmt.Printf("    %-16s %d/min\n", "Rate limit:", cfg.RateLimitRPM())
	fmt.Printf("    %-16s %s\n", "Replace policy:", cfg.Gateway.ReplacePolicy)

	fmt.Println()
	fmt.Println("  Database:")
	fmt.Printf("    %-16s %s\n", "Mode:", cfg.Database.Mode)
	switch cfg.Database.Mode {
	case config.ModeManaged:
		checkPostgres(ctx, cfg.Database.PostgresDSN)
	case config.ModeDynamoDB:
		fmt.Printf("    %-16s %s\n", "Table:", cfg.Database.DynamoTable)
	default:
		path := cfg.SQLitePath()
		fmt.Printf("    %-16s %s", "SQLite:", path)
		if _, err := os.Stat(path); err != nil {
			fmt.Println(" (will be created)")
		} else {
			fmt.Println(" (OK)")
		}
	}

	fmt.Println()
	fmt.Println("  Listings:")
	fmt.Printf("    %-16s %s\n", "Source:", cfg.Listings.Source)
	if cfg.Listings.Source == config.ListingSourceHTTP {
		checkListingAPI(ctx, cfg.Listings.APIBase, cfg.ListingsTimeout())
	}

	fmt.Println()
	fmt.Printf("  Telemetry: %v", cfg.Telemetry.Enabled)
	if cfg.Telemetry.Enabled {
		fmt.Printf(" (%s %s)", cfg.Telemetry.Protocol, cfg.Telemetry.Endpoint)
	}
	fmt.Println()

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkPostgres(ctx context.Context, dsn string) {
	if dsn == "" {
		fmt.Printf("    %-16s MISSING (set BOOKI_POSTGRES_DSN)\n", "DSN:")
		return
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Printf("    %-16s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		fmt.Printf("    %-16s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-16s connected\n", "Status:")

	s, err := upgrade.CheckSchema(ctx, db)
	switch {
	case err != nil:
		fmt.Printf("    %-16s CHECK FAILED (%s)\n", "Schema:", err)
	case s.Dirty:
		fmt.Printf("    %-16s v%d (DIRTY, run: booki-relay migrate force %d)\n", "Schema:", s.CurrentVersion, s.CurrentVersion-1)
	case s.Compatible:
		fmt.Printf("    %-16s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Printf("    %-16s v%d (binary too old, requires v%d)\n", "Schema:", s.CurrentVersion, s.RequiredVersion)
	default:
		fmt.Printf("    %-16s v%d (run: booki-relay migrate up)\n", "Schema:", s.CurrentVersion)
	}
}

func checkListingAPI(ctx context.Context, base string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, base, nil)
	if err != nil {
		fmt.Printf("    %-16s INVALID (%s)\n", "API:", err)
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("    %-16s UNREACHABLE (%s)\n", "API:", err)
		return
	}
	resp.Body.Close()
	fmt.Printf("    %-16s %s (HTTP %d)\n", "API:", base, resp.StatusCode)
}
