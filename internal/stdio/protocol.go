package stdio

import (
	"context"
	"encoding/json"

	"github.com/ahma-mcp/ahma-mcp-go/internal/registry"
)

const protocolVersion = "2025-03-26"

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleInitialize() (json.RawMessage, *rpcError) {
	result, _ := json.Marshal(map[string]any{
		"protocolVersion": protocolVersion,
		"serverInfo":      map[string]any{"name": "ahma-mcp", "version": "0.1.0"},
		"capabilities":    map[string]any{"tools": map[string]any{"listChanged": true}},
	})
	return result, nil
}

func (s *Server) handleToolsList(ctx context.Context) (json.RawMessage, *rpcError) {
	descs := make([]map[string]any, 0)
	for _, tool := range s.Service.Registry.List() {
		available, _ := s.Service.Registry.IsAvailable(ctx, tool)
		d := registry.Describe(tool, available)
		descs = append(descs, map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"inputSchema": d.InputSchema,
		})
	}
	result, _ := json.Marshal(map[string]any{"tools": descs})
	return result, nil
}

func (s *Server) handleToolsCall(ctx context.Context, raw json.RawMessage) (json.RawMessage, *rpcError) {
	var params toolCallParams
	if err := json.Unmarshal(raw, &params); err != nil || params.Name == "" {
		return nil, &rpcError{Code: -32602, Message: "invalid tools/call params: missing name"}
	}

	workingDir := s.WorkingDir
	if wd, ok := params.Arguments["working_directory"].(string); ok && wd != "" {
		workingDir = wd
	}

	res, err := s.Service.CallTool(ctx, params.Name, params.Arguments, workingDir, nil)
	if err != nil {
		return nil, &rpcError{Code: -32603, Message: err.Error()}
	}

	payload := map[string]any{
		"content": []map[string]any{{"type": "text", "text": res.Text}},
		"isError": res.IsError,
	}
	if res.OperationID != "" {
		payload["operationId"] = res.OperationID
	}
	result, _ := json.Marshal(payload)
	return result, nil
}
