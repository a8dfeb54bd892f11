//go:build tsnet

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/tsnet"

	"github.com/Youssefbenarbiya/booki-relay/internal/config"
)

// serveTailscale exposes the relay routes on the tailnet until ctx is done.
// Connections accepted here register with the same gateway, so its drain
// covers them.
func serveTailscale(ctx context.Context, cfg *config.Config, handler http.Handler) error {
	tc := cfg.Tailscale
	if tc.Hostname == "" {
		return nil
	}

	dir := tc.StateDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("tsnet state dir: %w", err)
		}
		dir = filepath.Join(base, "tsnet-booki-relay")
	}

	srv := &tsnet.Server{
		Hostname:  tc.Hostname,
		Dir:       config.ExpandHome(dir),
		AuthKey:   tc.AuthKey,
		Ephemeral: tc.Ephemeral,
		Logf: func(format string, args ...any) {
			slog.Debug("tsnet: " + fmt.Sprintf(format, args...))
		},
	}
	defer srv.Close()

	var (
		ln  net.Listener
		err error
	)
	if tc.EnableTLS {
		ln, err = srv.ListenTLS("tcp", ":443")
	} else {
		ln, err = srv.Listen("tcp", ":80")
	}
	if err != nil {
		return fmt.Errorf("tsnet listen: %w", err)
	}

	hs := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hs.Shutdown(sctx)
	}()

	slog.Info("tailscale listener started", "hostname", tc.Hostname, "tls", tc.EnableTLS)
	if err := hs.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("tsnet serve: %w", err)
	}
	return nil
}
