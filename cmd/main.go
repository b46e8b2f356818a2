package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/gemini-proxy/config"
	"github.com/angeloszaimis/gemini-proxy/internal/handler"
	"github.com/angeloszaimis/gemini-proxy/internal/health"
	"github.com/angeloszaimis/gemini-proxy/internal/httpserver"
	"github.com/angeloszaimis/gemini-proxy/internal/metrics"
	"github.com/angeloszaimis/gemini-proxy/internal/upstream"
	"github.com/angeloszaimis/gemini-proxy/pkg/logger"
)

const serviceName = "gemini-proxy"

// Overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Forward browser requests to the Gemini API with a server-held key",
		Long: `gemini-proxy serves a browser client and forwards POST /api/generate
to the Gemini generateContent endpoint, adding the API key on the server side.

Configuration comes from .env, an optional config.yaml and the environment.
The credential is read from GEMINI_API_KEY.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(cmd.Context(), configFile); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a config file (default: config.yaml in ./config or .)")
	cmd.CompletionOptions.DisableDefaultCmd = true

	return cmd
}

func run(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		return err
	}

	log := logger.New(cfg.Logging.Level, cfg.Server.Environment, logger.WithSource())

	client, err := upstream.New(cfg.Upstream)
	if err != nil {
		log.Error("Failed to create upstream client", slog.Any("err", err))
		return err
	}

	if !client.HasCredential() {
		log.Warn("GEMINI_API_KEY is not set, generate requests will fail until it is configured")
	}

	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log)
	collector.Start(ctx)

	generateHandler := handler.NewGenerateHandler(log, client, cfg.Server.MaxBodyBytes, collector)
	checker := health.NewChecker(serviceName, version, client)

	router := setupRouter(log, cfg, generateHandler, checker, collector)

	srv, err := httpserver.New(cfg.Server.Address, router, httpserver.WithProxyProtocol(cfg.Server.ProxyProtocol))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		return err
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Server listening",
		slog.String("address", cfg.Server.Address),
		slog.String("upstream", client.Endpoint()),
		slog.Bool("proxy_protocol", cfg.Server.ProxyProtocol))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
			return err
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting server", slog.Any("err", err))
			return err
		}
	}

	return nil
}
