package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/narra-go/internal/config"
	"github.com/raphaelgruber/narra-go/internal/embedding"
	"github.com/raphaelgruber/narra-go/internal/resources"
	"github.com/raphaelgruber/narra-go/internal/server"
	"github.com/raphaelgruber/narra-go/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Runs the narra MCP server on stdio. Logs go to stderr and the
configured log file, never stdout; stdout carries the MCP protocol.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		defer cleanup()

		logger.Info("narra starting",
			"version", Version,
			"surrealdb_url", cfg.SurrealDBURL,
			"embed_provider", cfg.EmbedProvider,
			"embed_model", cfg.EmbedModel,
		)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			sig := <-sigCh
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		}()

		// Embedding is optional: without a reachable provider the server
		// still serves graph and text operations.
		var embedder embedding.Embedder
		if e, err := embedding.NewEmbedder(cfg); err != nil {
			logger.Warn("embedder unavailable, semantic operations disabled", "error", err)
		} else {
			embedder = e
			logger.Info("embedder initialized", "model", e.Model(), "dimension", e.Dimension())

			if meta, err := dbClient.GetEmbeddingMeta(ctx); err != nil {
				logger.Warn("embedding meta check failed", "error", err)
			} else if meta != nil && meta.EmbeddingDimension != e.Dimension() {
				logger.Warn("embedding dimension drift, run backfill",
					"stored", meta.EmbeddingDimension, "configured", e.Dimension())
			}
			if err := dbClient.RecordEmbeddingMeta(ctx, cfg.EmbedProvider, e.Model(), e.Dimension()); err != nil {
				logger.Warn("recording embedding meta failed", "error", err)
			}
		}

		deps := tools.NewDependencies(dbClient, &cfg, embedder, logger)

		srv := server.New(Version, logger)
		srv.Setup(deps.Metrics)

		tools.RegisterAll(srv.MCPServer(), deps)
		resources.RegisterAll(srv.MCPServer(), deps)
		logger.Info("tools registered", "count", 5)

		logger.Info("server ready, awaiting connections")

		if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}

		logger.Info("shutdown complete")
		return nil
	},
}
