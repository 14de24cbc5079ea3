package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

func init() {
	// Force HTTP/1.1 for WSS connections to prevent HTTP/2 ALPN negotiation.
	// WebSocket upgrade requires HTTP/1.1 semantics which fail under HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Config holds SurrealDB connection configuration.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// Client wraps a SurrealDB connection with auto-reconnect.
type Client struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	cfg    Config
	logger logger.Logger
}

// NewClient creates a new SurrealDB client with an auto-reconnecting WebSocket.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	var sdkLogger logger.Logger
	if log != nil {
		sdkLogger = logger.New(log.Handler())
	} else {
		sdkLogger = logger.New(slog.Default().Handler())
	}

	// surrealcbor handles SurrealDB custom CBOR tags (record ids, datetimes)
	codec := surrealcbor.New()

	// gorillaws requires the base URL without /rpc (it appends it internally)
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			ws := gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			})
			return ws, nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, &DatabaseError{Message: fmt.Sprintf("connect: %v", err)}
	}

	sdb, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, &DatabaseError{Message: fmt.Sprintf("from connection: %v", err)}
	}

	if cfg.AuthLevel == "database" {
		_, err = sdb.SignIn(ctx, surrealdb.Auth{
			Namespace: cfg.Namespace,
			Database:  cfg.Database,
			Username:  cfg.Username,
			Password:  cfg.Password,
		})
	} else {
		_, err = sdb.SignIn(ctx, surrealdb.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	if err != nil {
		_ = conn.Close(ctx)
		return nil, &DatabaseError{Message: fmt.Sprintf("signin: %v", err)}
	}

	if err := sdb.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, &DatabaseError{Message: fmt.Sprintf("use: %v", err)}
	}

	sdkLogger.Info("SurrealDB connection established")
	return &Client{conn: conn, db: sdb, cfg: cfg, logger: sdkLogger}, nil
}

// Close closes the SurrealDB connection.
func (c *Client) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// DB returns the underlying SurrealDB handle for typed queries.
func (c *Client) DB() *surrealdb.DB {
	return c.db
}

// InitSchema applies the schema DDL. Safe to call repeatedly.
func (c *Client) InitSchema(ctx context.Context) error {
	c.logger.Info("initializing database schema")
	if _, err := surrealdb.Query[any](ctx, c.db, SchemaSQL, nil); err != nil {
		return wrapQueryError(err)
	}
	return nil
}

// Query executes a SurrealQL query with named parameter bindings and
// decodes the first statement's results into T.
func Query[T any](ctx context.Context, c *Client, sql string, vars map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, c.db, sql, vars)
	if err != nil {
		return nil, wrapQueryError(err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// QueryOne executes a query expected to produce at most one row.
// Returns nil without error when no row matches.
func QueryOne[T any](ctx context.Context, c *Client, sql string, vars map[string]any) (*T, error) {
	rows, err := Query[T](ctx, c, sql, vars)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Exec executes a statement where results are irrelevant.
func (c *Client) Exec(ctx context.Context, sql string, vars map[string]any) error {
	if _, err := surrealdb.Query[any](ctx, c.db, sql, vars); err != nil {
		return wrapQueryError(err)
	}
	return nil
}

// RecordEmbeddingMeta upserts the world_meta record describing the
// embedding model in use. Startup checks this against the configured
// dimension to detect drift after a model switch.
func (c *Client) RecordEmbeddingMeta(ctx context.Context, provider, model string, dimension int) error {
	return c.Exec(ctx, `
		UPSERT world_meta:main SET
			embedding_model = $model,
			embedding_provider = $provider,
			embedding_dimension = $dimension,
			updated_at = time::now()
	`, map[string]any{
		"model":     model,
		"provider":  provider,
		"dimension": dimension,
	})
}

// EmbeddingMeta is the persisted embedding model descriptor.
type EmbeddingMeta struct {
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingProvider  string `json:"embedding_provider"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	SchemaVersion      int    `json:"schema_version"`
}

// GetEmbeddingMeta returns the stored embedding metadata, or nil if absent.
func (c *Client) GetEmbeddingMeta(ctx context.Context) (*EmbeddingMeta, error) {
	return QueryOne[EmbeddingMeta](ctx, c, `SELECT * FROM world_meta:main`, nil)
}

// WipeData deletes all data while preserving schema. Testing only.
func (c *Client) WipeData(ctx context.Context) error {
	c.logger.Warn("wiping all data from database")

	// Edges first, then records they reference
	tables := []string{
		"knows", "perceives", "relates_to", "participates_in", "involved_in",
		"applies_to", "note_of", "arc_snapshot", "phase",
		"scene", "knowledge", "note", "fact", "event", "location", "character",
	}

	for _, table := range tables {
		if err := c.Exec(ctx, fmt.Sprintf("DELETE %s", table), nil); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
