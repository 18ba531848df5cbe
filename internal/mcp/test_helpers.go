package mcp

// In-process tool invocation for tests: CallTool dispatches straight to
// the handler, bypassing the stdio transport, and surfaces IsError
// responses as Go errors so assertions read naturally.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CallTool invokes a tool by name with the given arguments and returns
// the JSON text of the response. Tool-level failures (IsError results)
// come back as errors carrying the reported message.
func (s *Server) CallTool(toolName string, params map[string]interface{}) (string, error) {
	ctx := context.Background()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal params: %w", err)
	}

	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{
			Name:      toolName,
			Arguments: paramsJSON,
		},
	}

	var result *mcp.CallToolResult
	switch toolName {
	case "ingest_snapshot":
		result, err = s.handleIngestSnapshot(ctx, req)
	case "resolve_element":
		result, err = s.handleResolveElement(ctx, req)
	case "analyze_node":
		result, err = s.handleAnalyzeNode(ctx, req)
	case "list_snapshots":
		result, err = s.handleListSnapshots(ctx, req)
	case "evict_snapshot":
		result, err = s.handleEvictSnapshot(ctx, req)
	case "archive_scan":
		result, err = s.handleArchiveScan(ctx, req)
	case "info":
		result, err = s.handleInfo(ctx, req)
	default:
		return "", fmt.Errorf("unknown tool: %s", toolName)
	}
	if err != nil {
		return "", err
	}

	if result == nil || len(result.Content) == 0 {
		return "", nil
	}
	textContent, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		return "", fmt.Errorf("unexpected content type %T", result.Content[0])
	}

	if result.IsError {
		var response map[string]interface{}
		if json.Unmarshal([]byte(textContent.Text), &response) == nil {
			if msg, ok := response["error"].(string); ok {
				return "", fmt.Errorf("MCP error: %s", msg)
			}
		}
		return "", fmt.Errorf("MCP error: %s", textContent.Text)
	}

	return textContent.Text, nil
}
