package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPDecodeResult holds the decoded request and an optional context
// enrichment, such as the run ID a tool operates on.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// RegisterMCPTool exposes endpoint as the MCP tool named tool.Name.
//
// The endpoint sees a context tagged with the "mcp" transport and the tool
// name. Argument errors, endpoint errors and endpoint panics all come back
// as IsError results so a failed capture never tears down the MCP session.
// Successful responses are returned as JSON text.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode func(*mcp.CallToolRequest) (*MCPDecodeResult, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			return toolError(fmt.Errorf("%s: invalid arguments: %w", tool.Name, err)), nil
		}
		ctx = WithTool(WithTransport(ctx, "mcp"), tool.Name)
		if decoded.EnrichCtx != nil {
			ctx = decoded.EnrichCtx(ctx)
		}

		resp, err := callEndpoint(ctx, endpoint, decoded.Request)
		if err != nil {
			return toolError(err), nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("%s: marshal: %w", tool.Name, err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func callEndpoint(ctx context.Context, endpoint Endpoint, req any) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", GetTool(ctx), r)
		}
	}()
	return endpoint(ctx, req)
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
