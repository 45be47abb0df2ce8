package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domsel/idgen"
)

// Endpoint is a transport-independent operation on a decoded request.
type Endpoint[Req any] func(ctx context.Context, req *Req) (any, error)

// RegisterMCPTool exposes endpoint as an MCP tool. Arguments are decoded
// into Req; the response is returned as JSON text. A transport tag already
// set by the connection (mcp_quic) is kept. Decode and endpoint
// failures become tool errors, not protocol errors.
func RegisterMCPTool[Req any](srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint[Req]) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r Req
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}
		if _, tagged := ctx.Value(TransportKey).(string); !tagged {
			ctx = WithTransport(ctx, "mcp")
		}
		ctx = WithRequestID(ctx, idgen.New())

		resp, err := endpoint(ctx, &r)
		if err != nil {
			return toolError(err), nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// InputSchema builds a JSON Schema object for a tool's arguments.
func InputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
