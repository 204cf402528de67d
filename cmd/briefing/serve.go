package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dusk-indust/briefing/internal/api"
	"github.com/dusk-indust/briefing/internal/collab"
	"github.com/dusk-indust/briefing/internal/config"
	"github.com/dusk-indust/briefing/internal/engine"
	"github.com/dusk-indust/briefing/internal/mcptools"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.serveAPI(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (a *app) serveAPI(ctx context.Context) error {
	be, err := newBackend(ctx, a.cfg, a.cfg.Collaborator.Mode, a.logger)
	if err != nil {
		return err
	}
	defer be.Close()

	sessions := engine.NewSessions(newEngine(a.cfg, be, a.logger))
	defer sessions.CloseAll()

	srv := api.NewServer(sessions, a.logger.Named("api"))
	bound, err := srv.Start(ctx, a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	a.logger.Info("session API listening", zap.String("addr", bound), zap.String("mode", a.cfg.Collaborator.Mode))

	<-ctx.Done()
	return shutdown(srv.Stop)
}

func newServeMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the briefing tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			be, err := newBackend(ctx, a.cfg, a.cfg.Collaborator.Mode, a.logger)
			if err != nil {
				return err
			}
			defer be.Close()

			sessions := engine.NewSessions(newEngine(a.cfg, be, a.logger))
			defer sessions.CloseAll()

			svc := mcptools.NewBriefingService(sessions, a.logger.Named("mcp"))
			return mcptools.RunStdio(ctx, mcptools.NewBriefingMCPServer(svc, version))
		},
	}
}

func newCollaboratorCmd(a *app) *cobra.Command {
	var (
		addr     string
		mode     string
		useCache bool
	)
	cmd := &cobra.Command{
		Use:   "collaborator",
		Short: "Serve discovery, analysis and synthesis over HTTP",
		Long: `Runs the collaborator endpoints that "briefing run" and "briefing serve"
call in http mode, backed by the static catalog or by Gemini.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr != "" {
				a.cfg.Server.CollaboratorAddr = addr
			}
			if mode != config.ModeStatic && mode != config.ModeGemini {
				return fmt.Errorf("unknown backend %q: want static or gemini", mode)
			}
			if mode == config.ModeGemini && a.cfg.Gemini.APIKey == "" {
				return fmt.Errorf("gemini backend needs gemini.apiKey or GEMINI_API_KEY")
			}
			if useCache && a.cfg.Cache.Backend == config.CacheNone {
				a.cfg.Cache.Backend = config.CacheSQLite
			}

			be, err := newBackend(ctx, a.cfg, mode, a.logger)
			if err != nil {
				return err
			}
			defer be.Close()

			srv := collab.NewServer(be, a.logger.Named("collaborator"))
			bound, err := srv.Start(ctx, a.cfg.Server.CollaboratorAddr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			a.logger.Info("collaborator listening",
				zap.String("addr", bound),
				zap.String("backend", mode),
				zap.String("cache", a.cfg.Cache.Backend))

			<-ctx.Done()
			err = shutdown(srv.Stop)
			if be.cached != nil {
				hits, misses := be.cached.Stats()
				a.logger.Info("analysis cache stats", zap.Int64("hits", hits), zap.Int64("misses", misses))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&mode, "backend", config.ModeStatic, "backend: static or gemini")
	cmd.Flags().BoolVar(&useCache, "cache", false, "cache analyses in SQLite when no cache is configured")
	return cmd
}

// shutdown stops a server with a fresh deadline, since the command context is
// already done.
func shutdown(stop func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return stop(ctx)
}
