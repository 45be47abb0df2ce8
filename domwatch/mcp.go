package domwatch

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domsel/kit"
)

// RegisterMCP registers the domwatch tools on an MCP server.
func (w *Watcher) RegisterMCP(srv *mcp.Server) {
	w.registerObserveTool(srv)
	w.registerPagesTool(srv)
	w.registerStopTool(srv)
}

var ruleSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":     map[string]any{"type": "string", "description": "Rule name, copied into every match"},
		"selector": map[string]any{"type": "string", "description": "CSS selector"},
		"once":     map[string]any{"type": "boolean", "description": "Deliver the first match only"},
		"format":   map[string]any{"type": "string", "enum": []any{FormatHTML, FormatMarkdown, FormatNone}},
		"sanitize": map[string]any{"type": "boolean", "description": "Sanitize HTML before rendering"},
	},
	"required": []string{"selector"},
}

func (w *Watcher) registerObserveTool(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "domwatch_observe",
		Description: "Start watching a page. Every element matching a rule is reported once, present now or inserted later.",
		InputSchema: kit.InputSchema(map[string]any{
			"id":            map[string]any{"type": "string", "description": "Page ID"},
			"url":           map[string]any{"type": "string", "description": "Page URL"},
			"stealth_level": map[string]any{"type": "string", "enum": []any{"0", "1", "2", "auto"}, "description": "0 = HTTP fetch, 1 = headless Chrome, 2 = headful Chrome (default auto)"},
			"root":          map[string]any{"type": "string", "description": "Selector of the subtree the rules are scoped to"},
			"rules":         map[string]any{"type": "array", "items": ruleSchema},
			"record":        map[string]any{"type": "boolean", "description": "Also stream every mutation as batches"},
		}, []string{"id", "url"}),
	}, func(ctx context.Context, pc *PageConfig) (any, error) {
		if err := w.ObservePage(ctx, *pc); err != nil {
			return nil, err
		}
		for _, st := range w.Pages() {
			if st.ID == pc.ID {
				return st, nil
			}
		}
		return nil, errors.New("domwatch: page stopped during observe")
	})
}

type pagesRequest struct{}

func (w *Watcher) registerPagesTool(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "domwatch_pages",
		Description: "List the observed pages with their acquisition level and match counts.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}, func(ctx context.Context, _ *pagesRequest) (any, error) {
		return w.Pages(), nil
	})
}

type stopRequest struct {
	ID string `json:"id"`
}

func (w *Watcher) registerStopTool(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "domwatch_stop",
		Description: "Stop watching a page and cancel its rules.",
		InputSchema: kit.InputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Page ID"},
		}, []string{"id"}),
	}, func(ctx context.Context, r *stopRequest) (any, error) {
		if err := w.StopPage(r.ID); err != nil {
			return nil, err
		}
		return map[string]string{"stopped": r.ID}, nil
	})
}
