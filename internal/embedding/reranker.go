package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Reranker reorders candidate documents by cross-encoder relevance to a
// query. A nil *CrossEncoderReranker is valid and leaves order unchanged.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]RankedDocument, error)
}

// RankedDocument is one reranked candidate.
type RankedDocument struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// CrossEncoderReranker calls a TEI-compatible /rerank endpoint.
type CrossEncoderReranker struct {
	endpoint string
	client   *http.Client
}

// NewCrossEncoderReranker creates a reranker client; empty endpoint returns
// nil, which callers treat as reranking disabled.
func NewCrossEncoderReranker(endpoint string) *CrossEncoderReranker {
	if endpoint == "" {
		return nil
	}
	return &CrossEncoderReranker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank scores documents against the query. Results come back sorted by
// descending score. A nil receiver returns the identity ordering.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, documents []string) ([]RankedDocument, error) {
	if r == nil {
		out := make([]RankedDocument, len(documents))
		for i := range documents {
			out[i] = RankedDocument{Index: i}
		}
		return out, nil
	}
	if len(documents) == 0 {
		return []RankedDocument{}, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: documents})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, payload)
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	out := make([]RankedDocument, 0, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(documents) {
			continue
		}
		out = append(out, RankedDocument{Index: res.Index, Score: res.Score})
	}
	return out, nil
}
