package mcp_test

import (
	"encoding/json"
	"testing"

	"github.com/memg/memg-core/pkg/mcp"
	"github.com/stretchr/testify/require"
)

func TestGetToolDefinitionsCoversAllToolNames(t *testing.T) {
	defs := mcp.GetToolDefinitions()
	names := make(map[string]bool, len(defs))
	for _, d := range defs {
		names[d.Name] = true
		var schema map[string]interface{}
		require.NoError(t, json.Unmarshal(d.InputSchema, &schema))
	}
	for _, name := range mcp.AllTools() {
		require.True(t, names[name], "missing tool definition for %s", name)
	}
}

func TestIsValidTool(t *testing.T) {
	require.True(t, mcp.IsValidTool(mcp.ToolAddMemory))
	require.False(t, mcp.IsValidTool("not_a_tool"))
}
