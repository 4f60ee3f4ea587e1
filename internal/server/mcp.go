package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"pieces/internal/engine"
	"pieces/internal/loader"
	"pieces/internal/types"
)

// MCPServer implements a JSON-RPC based MCP (Model Context Protocol) server
// that exposes trigger instances as tools. It reads from stdin and writes to stdout.
type MCPServer struct {
	engine    *engine.Engine
	instances map[string]*types.InstanceDef
	version   string
}

// NewMCPServer creates a new MCP server.
func NewMCPServer(eng *engine.Engine, instances map[string]*types.InstanceDef, version string) *MCPServer {
	return &MCPServer{engine: eng, instances: instances, version: version}
}

// JSON-RPC types
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   any    `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MCP protocol types
type mcpInitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      mcpServerInfo  `json:"serverInfo"`
}

type mcpServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type mcpTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

type mcpToolsResult struct {
	Tools []mcpTool `json:"tools"`
}

type mcpCallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type mcpCallToolResult struct {
	Content []mcpContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

type mcpContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServeStdio runs the MCP server on stdin/stdout.
func (s *MCPServer) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads newline-delimited JSON-RPC requests from r until EOF.
func (s *MCPServer) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	decoder := json.NewDecoder(r)
	encoder := json.NewEncoder(w)

	for {
		var req jsonRPCRequest
		if err := decoder.Decode(&req); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decoding request: %w", err)
		}

		resp := s.handleRequest(ctx, req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				return fmt.Errorf("encoding response: %w", err)
			}
		}
	}
}

func (s *MCPServer) handleRequest(ctx context.Context, req jsonRPCRequest) *jsonRPCResponse {
	switch req.Method {
	case "initialize":
		return &jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: mcpInitializeResult{
				ProtocolVersion: "2024-11-05",
				Capabilities: map[string]any{
					"tools": map[string]any{},
				},
				ServerInfo: mcpServerInfo{
					Name:    "pieces",
					Version: s.version,
				},
			},
		}

	case "notifications/initialized":
		return nil

	case "tools/list":
		return &jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  s.listTools(),
		}

	case "tools/call":
		var params mcpCallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return &jsonRPCResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   jsonRPCError{Code: -32602, Message: "invalid params: " + err.Error()},
			}
		}
		result, isError := s.callTool(ctx, params)
		return &jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: mcpCallToolResult{
				Content: []mcpContent{{Type: "text", Text: result}},
				IsError: isError,
			},
		}

	default:
		return &jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   jsonRPCError{Code: -32601, Message: "method not found: " + req.Method},
		}
	}
}

var toolInputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"hook": map[string]any{
			"type":        "string",
			"enum":        []string{string(types.HookRun), string(types.HookEnable), string(types.HookDisable)},
			"description": "Lifecycle call to make; defaults to run",
		},
		"payload": map[string]any{
			"description": "Webhook payload handed to run",
		},
	},
}

func (s *MCPServer) listTools() mcpToolsResult {
	tools := make([]mcpTool, 0, len(s.instances))
	for _, inst := range loader.Sorted(s.instances) {
		desc := inst.Description
		if desc == "" {
			desc = fmt.Sprintf("%s/%s trigger instance", inst.Piece, inst.Trigger)
		}
		tools = append(tools, mcpTool{
			Name:        inst.Name,
			Description: desc,
			InputSchema: toolInputSchema,
		})
	}
	return mcpToolsResult{Tools: tools}
}

func (s *MCPServer) callTool(ctx context.Context, params mcpCallToolParams) (string, bool) {
	inst, ok := s.instances[params.Name]
	if !ok {
		return fmt.Sprintf("instance %q not found", params.Name), true
	}

	hook, _ := params.Arguments["hook"].(string)

	var (
		result *types.TriggerResult
		err    error
	)
	switch types.Hook(hook) {
	case "", types.HookRun:
		result, err = s.engine.Run(ctx, inst, params.Arguments["payload"])
	case types.HookEnable:
		result, err = s.engine.Enable(ctx, inst)
	case types.HookDisable:
		result, err = s.engine.Disable(ctx, inst)
	default:
		return fmt.Sprintf("unknown hook %q", hook), true
	}
	if err != nil && result == nil {
		return fmt.Sprintf("error: %v", err), true
	}

	resultJSON, mErr := json.MarshalIndent(result, "", "  ")
	if mErr != nil {
		return fmt.Sprintf("error marshaling result: %v", mErr), true
	}

	return string(resultJSON), result.Status == types.StatusFailed
}
