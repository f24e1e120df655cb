package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/evidence/kit"
)

// RegisterMCP registers the capture tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerCaptureTool(srv)
	s.registerFingerprintTool(srv)
	if s.ledger != nil {
		s.registerRunTool(srv)
	}
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- capture ---

type captureReq struct {
	URL string `json:"url"`
}

func (s *Service) registerCaptureTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "evidence_capture",
		Description: "Capture one page: network records plus four checkpoint screenshots. Returns the run report.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Absolute http(s) URL to capture"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*captureReq)
		report, err := s.CaptureOne(ctx, r.URL)
		if err != nil && report == nil {
			return nil, err
		}
		// A failed target is reported in the outcome, not as a tool error.
		return report, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r captureReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.URL == "" {
			return nil, errors.New("url is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, "evidence_capture")(endpoint), decode)
}

// --- fingerprint ---

type fingerprintReq struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

func (s *Service) registerFingerprintTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "evidence_fingerprint",
		Description: "Compute the timestamped, content-addressed file name prefix for a URL and optional headers.",
		InputSchema: inputSchema(map[string]any{
			"url":     map[string]any{"type": "string", "description": "URL to fingerprint"},
			"headers": map[string]any{"type": "object", "description": "Header map included in the hash", "additionalProperties": map[string]any{"type": "string"}},
		}, []string{"url"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*fingerprintReq)
		name, err := s.Fingerprint(r.URL, r.Headers)
		if err != nil {
			return nil, err
		}
		return map[string]any{"filename": name}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r fingerprintReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- run ---

type runReq struct {
	RunID string `json:"run_id"`
}

func (s *Service) registerRunTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "evidence_run",
		Description: "Look up a past capture run in the ledger: run row, target outcomes and dropped records.",
		InputSchema: inputSchema(map[string]any{
			"run_id": map[string]any{"type": "string", "description": "Run ID from a report"},
		}, []string{"run_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*runReq)
		run, err := s.ledger.Run(ctx, r.RunID)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, fmt.Errorf("run %q not found", r.RunID)
		}
		targets, err := s.ledger.Targets(ctx, r.RunID)
		if err != nil {
			return nil, err
		}
		drops, err := s.ledger.Drops(ctx, r.RunID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"run": run, "targets": targets, "drops": drops}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r runReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r, EnrichCtx: func(ctx context.Context) context.Context {
			return kit.WithRunID(ctx, r.RunID)
		}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
