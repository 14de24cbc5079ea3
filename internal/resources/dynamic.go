package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/narra-go/internal/consistency"
	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
	"github.com/raphaelgruber/narra-go/internal/session"
	"github.com/raphaelgruber/narra-go/internal/tools"
)

func sessionContextHandler(deps *tools.Dependencies) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		result, err := deps.Context.GetContext(ctx, session.ContextRequest{})
		if err != nil {
			return nil, err
		}
		return jsonResult(sessionContextURI, result)
	}
}

func serverStatsHandler(deps *tools.Dependencies) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return jsonResult(serverStatsURI, deps.Metrics.Snapshot())
	}
}

type characterIssues struct {
	CharacterID string                  `json:"character_id"`
	Name        string                  `json:"name"`
	Violations  []consistency.Violation `json:"violations"`
}

func consistencyIssuesHandler(deps *tools.Dependencies) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		characters, err := deps.Entities.ListCharacters(ctx)
		if err != nil {
			return nil, err
		}

		var issues []characterIssues
		for _, ch := range characters {
			id := models.RecordIDString(ch.ID)

			timeline, err := deps.Consistency.CheckTimeline(ctx, id)
			if err != nil {
				return nil, err
			}
			relations, err := deps.Consistency.CheckRelationships(ctx, id)
			if err != nil {
				return nil, err
			}

			violations := append(timeline, relations...)
			if len(violations) == 0 {
				continue
			}
			issues = append(issues, characterIssues{
				CharacterID: id,
				Name:        ch.Name,
				Violations:  violations,
			})
		}
		return jsonResult(consistencyIssuesURI, issues)
	}
}

type tensionRow struct {
	ObserverName string `json:"observer_name"`
	TargetName   string `json:"target_name"`
	TensionLevel *int   `json:"tension_level"`
}

func tensionMatrixHandler(deps *tools.Dependencies) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		rows, err := db.Query[tensionRow](ctx, deps.DB, `
			SELECT in.name AS observer_name, out.name AS target_name, tension_level
			FROM perceives
			ORDER BY tension_level DESC`, nil)
		if err != nil {
			return nil, err
		}

		var b strings.Builder
		b.WriteString("observer -> target: tension\n")
		for _, row := range rows {
			tension := "-"
			if row.TensionLevel != nil {
				tension = fmt.Sprintf("%d", *row.TensionLevel)
			}
			fmt.Fprintf(&b, "%s -> %s: %s\n", row.ObserverName, row.TargetName, tension)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: tensionMatrixURI, MIMEType: "text/plain", Text: b.String()},
			},
		}, nil
	}
}

func entityHandler(deps *tools.Dependencies) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := requestURI(req)
		id := strings.TrimPrefix(uri, "narra://entity/")
		if id == uri || id == "" {
			return nil, db.Validationf("entity resource URI must look like narra://entity/character:ilsa, got %q", uri)
		}

		summary, err := deps.Summary.Summarize(ctx, id, session.DetailFull)
		if err != nil {
			return nil, err
		}
		return jsonResult(uri, summary)
	}
}

func dossierHandler(deps *tools.Dependencies) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := requestURI(req)
		rest := strings.TrimPrefix(uri, "narra://character/")
		id, ok := strings.CutSuffix(rest, "/dossier")
		if rest == uri || !ok || id == "" {
			return nil, db.Validationf("dossier resource URI must look like narra://character/ilsa/dossier, got %q", uri)
		}

		dossier, err := deps.Intelligence.Dossier(ctx, id, nil)
		if err != nil {
			return nil, err
		}
		return jsonResult(uri, dossier)
	}
}

func requestURI(req *mcp.ReadResourceRequest) string {
	if req != nil && req.Params != nil {
		return req.Params.URI
	}
	return ""
}

func jsonResult(uri string, payload any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/json", Text: string(data)},
		},
	}, nil
}
