// Package mcp implements a Model Context Protocol tool server in front
// of pkg/memory.Service: each MCP tool call maps onto one façade
// operation (add, get, update, delete, list, search, relate,
// system-info). Tool input schemas are fixed and generic: memory_type
// and payload fields are not enumerated; system_info reports them.
//
// Built on a pkg/mcp JSON-RPC tool-server shape
// (Tool/CallToolRequest/CallToolResponse, the initialize/tools.list/
// tools.call dispatch), adapted to call pkg/memory.Service instead of
// *nornicdb.DB.
package mcp

import "encoding/json"

// Tool describes one callable MCP tool with its JSON-schema input shape.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// InitRequest is the MCP initialize request.
type InitRequest struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      ClientInfo             `json:"clientInfo"`
}

// ClientInfo contains client metadata.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitResponse is the MCP initialize response.
type InitResponse struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      ServerInfo             `json:"serverInfo"`
}

// ServerInfo contains server metadata.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ListToolsResponse returns available tools.
type ListToolsResponse struct {
	Tools []Tool `json:"tools"`
}

// CallToolRequest executes a tool by name with its arguments.
type CallToolRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// CallToolResponse returns a tool's execution result.
type CallToolResponse struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content is one piece of tool response content.
type Content struct {
	Type string `json:"type"` // "text"
	Text string `json:"text,omitempty"`
}

func textContent(text string) []Content {
	return []Content{{Type: "text", Text: text}}
}

func errorContent(err error) CallToolResponse {
	return CallToolResponse{Content: textContent(err.Error()), IsError: true}
}

func jsonContent(v interface{}) CallToolResponse {
	b, err := json.Marshal(v)
	if err != nil {
		return errorContent(err)
	}
	return CallToolResponse{Content: textContent(string(b))}
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt(m map[string]interface{}, key string, defaultVal int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}

func getStringSlice(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func getMap(m map[string]interface{}, key string) map[string]any {
	v, _ := m[key].(map[string]interface{})
	return v
}
