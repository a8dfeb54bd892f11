//go:build !tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Youssefbenarbiya/booki-relay/internal/config"
)

func serveTailscale(_ context.Context, cfg *config.Config, _ http.Handler) error {
	if cfg.Tailscale.Hostname != "" {
		slog.Warn("tailscale.hostname is set but this build lacks -tags tsnet; listener skipped")
	}
	return nil
}
