// Package tools provides the MCP tool handlers and registration.
package tools

import (
	"log/slog"

	"github.com/raphaelgruber/narra-go/internal/analytics"
	"github.com/raphaelgruber/narra-go/internal/config"
	"github.com/raphaelgruber/narra-go/internal/consistency"
	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/embedding"
	"github.com/raphaelgruber/narra-go/internal/export"
	"github.com/raphaelgruber/narra-go/internal/metrics"
	"github.com/raphaelgruber/narra-go/internal/repository"
	"github.com/raphaelgruber/narra-go/internal/session"
)

// Dependencies holds the shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	DB     *db.Client
	Config *config.Config
	Logger *slog.Logger

	Entities      repository.EntityRepository
	Relationships repository.RelationshipRepository
	Knowledge     repository.KnowledgeRepository

	Embedding *embedding.Service

	Search       *analytics.SearchService
	Graph        *analytics.GraphService
	Influence    *analytics.InfluenceService
	Irony        *analytics.IronyService
	Clusters     *analytics.ClusterService
	Perception   *analytics.PerceptionService
	Arcs         *analytics.ArcService
	Phases       *analytics.PhaseService
	VectorOps    *analytics.VectorOpsService
	Intelligence *analytics.IntelligenceService

	Consistency *consistency.Checker

	State   *session.StateManager
	Summary *session.SummaryService
	Context *session.ContextService
	Impact  *session.ImpactAnalyzer
	Startup *session.StartupService

	Exporter *export.Exporter
	Metrics  *metrics.Collector
}

// NewDependencies wires the full service graph over one database client.
// embedder may be nil; embedding-backed operations then degrade with
// clear validation errors.
func NewDependencies(client *db.Client, cfg *config.Config, embedder embedding.Embedder, logger *slog.Logger) *Dependencies {
	if logger == nil {
		logger = slog.Default()
	}

	entities := repository.NewEntityRepository(client)
	relationships := repository.NewRelationshipRepository(client)
	knowledge := repository.NewKnowledgeRepository(client)

	embeddingService := embedding.NewService(client, embedder, cfg.EmbedProvider)

	var reranker *embedding.CrossEncoderReranker
	if cfg.RerankerURL != "" {
		reranker = embedding.NewCrossEncoderReranker(cfg.RerankerURL)
	}

	state := session.NewStateManager(cfg.SessionStatePath, logger)
	summaries := session.NewSummaryService(client)

	return &Dependencies{
		DB:     client,
		Config: cfg,
		Logger: logger,

		Entities:      entities,
		Relationships: relationships,
		Knowledge:     knowledge,

		Embedding: embeddingService,

		Search:       analytics.NewSearchService(client, embedder, reranker),
		Graph:        analytics.NewGraphService(client),
		Influence:    analytics.NewInfluenceService(client),
		Irony:        analytics.NewIronyService(client),
		Clusters:     analytics.NewClusterService(client),
		Perception:   analytics.NewPerceptionService(client, embedder),
		Arcs:         analytics.NewArcService(client),
		Phases:       analytics.NewPhaseService(client),
		VectorOps:    analytics.NewVectorOpsService(client),
		Intelligence: analytics.NewIntelligenceService(client),

		Consistency: consistency.NewChecker(client, logger),

		State:   state,
		Summary: summaries,
		Context: session.NewContextService(client, relationships, summaries, state),
		Impact:  session.NewImpactAnalyzer(relationships, state),
		Startup: session.NewStartupService(client, entities, summaries, state),

		Exporter: export.NewExporter(client),
		Metrics:  metrics.NewCollector(),
	}
}
