package bridge

import (
	"context"
	"encoding/json"

	"github.com/ahma-mcp/ahma-mcp-go/internal/registry"
)

const protocolVersion = "2025-03-26"

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// handleInitialize answers the client's initialize request. The handshake
// itself (roots/list rendezvous) is driven separately by SSE-attach and
// notifications/initialized, not by this call.
func (s *Session) handleInitialize(raw json.RawMessage) (json.RawMessage, *rpcError) {
	var params initializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &rpcError{Code: -32602, Message: "invalid initialize params"}
		}
	}
	if params.ProtocolVersion == "" {
		return nil, &rpcError{Code: -32602, Message: "Invalid initialize params: missing params.protocolVersion"}
	}

	result, _ := json.Marshal(map[string]any{
		"protocolVersion": protocolVersion,
		"serverInfo":      map[string]any{"name": "ahma-mcp", "version": "0.1.0"},
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": true},
			"roots": map[string]any{"listChanged": true},
		},
	})
	return result, nil
}

func (s *Session) handleToolsList() (json.RawMessage, *rpcError) {
	descs := make([]map[string]any, 0)
	for _, tool := range s.service.Registry.List() {
		available, _ := s.service.Registry.IsAvailable(context.Background(), tool)
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

func (s *Session) handleToolsCall(ctx context.Context, raw json.RawMessage) (json.RawMessage, *rpcError) {
	var params toolCallParams
	if err := json.Unmarshal(raw, &params); err != nil || params.Name == "" {
		return nil, &rpcError{Code: -32602, Message: "invalid tools/call params: missing name"}
	}

	workingDir := s.defaultWorkingDir()
	if wd, ok := params.Arguments["working_directory"].(string); ok && wd != "" {
		workingDir = wd
	}

	res, err := s.service.CallTool(ctx, params.Name, params.Arguments, workingDir, nil)
	if err != nil {
		return nil, &rpcError{Code: -32603, Message: err.Error()}
	}

	content := []map[string]any{{"type": "text", "text": res.Text}}
	payload := map[string]any{"content": content, "isError": res.IsError}
	if res.OperationID != "" {
		payload["operationId"] = res.OperationID
	}
	result, _ := json.Marshal(payload)
	return result, nil
}

func (s *Session) defaultWorkingDir() string {
	scopes := s.sandbox.Scopes()
	if len(scopes) == 0 {
		return ""
	}
	return scopes[0]
}
