package mcp

import "encoding/json"

// Tool name constants.
const (
	ToolAddMemory        = "add_memory"
	ToolGetMemory        = "get_memory"
	ToolUpdateMemory     = "update_memory"
	ToolDeleteMemory     = "delete_memory"
	ToolListMemories     = "list_memories"
	ToolSearchMemories   = "search_memories"
	ToolRelateMemories   = "relate_memories"
	ToolUnrelateMemories = "unrelate_memories"
	ToolSystemInfo       = "system_info"
)

// AllTools returns every tool name this server exposes.
func AllTools() []string {
	return []string{
		ToolAddMemory, ToolGetMemory, ToolUpdateMemory, ToolDeleteMemory,
		ToolListMemories, ToolSearchMemories, ToolRelateMemories, ToolUnrelateMemories,
		ToolSystemInfo,
	}
}

// GetToolDefinitions returns the JSON-schema tool definitions for every
// memory.Service operation. memory_type/entity names are not enumerated
// here since they're schema-driven and only known at runtime; the
// description points the caller at system_info to discover them.
func GetToolDefinitions() []Tool {
	return []Tool{
		addMemoryTool(),
		getMemoryTool(),
		updateMemoryTool(),
		deleteMemoryTool(),
		listMemoriesTool(),
		searchMemoriesTool(),
		relateMemoriesTool(),
		unrelateMemoriesTool(),
		systemInfoTool(),
	}
}

func schemaJSON(schema map[string]interface{}) json.RawMessage {
	b, _ := json.Marshal(schema)
	return b
}

func addMemoryTool() Tool {
	return Tool{
		Name:        ToolAddMemory,
		Description: "Store a new memory of a given memory_type with a payload matching that type's schema. Call system_info first to see available memory types.",
		InputSchema: schemaJSON(map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"memory_type": map[string]interface{}{"type": "string", "description": "Schema-declared entity name."},
				"payload":     map[string]interface{}{"type": "object", "description": "Fields matching the entity's schema.", "additionalProperties": true},
				"tags":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
			"required": []string{"memory_type", "payload"},
		}),
	}
}

func getMemoryTool() Tool {
	return Tool{
		Name:        ToolGetMemory,
		Description: "Retrieve one memory by its human-readable id (hrid), e.g. NOTE_AAA001.",
		InputSchema: schemaJSON(map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"hrid": map[string]interface{}{"type": "string"}},
			"required":   []string{"hrid"},
		}),
	}
}

func updateMemoryTool() Tool {
	return Tool{
		Name:        ToolUpdateMemory,
		Description: "Patch-merge new fields into an existing memory's payload. Only fields present in patch are changed.",
		InputSchema: schemaJSON(map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"hrid":  map[string]interface{}{"type": "string"},
				"patch": map[string]interface{}{"type": "object", "additionalProperties": true},
			},
			"required": []string{"hrid", "patch"},
		}),
	}
}

func deleteMemoryTool() Tool {
	return Tool{
		Name:        ToolDeleteMemory,
		Description: "Delete a memory and its relationships by hrid. Idempotent.",
		InputSchema: schemaJSON(map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"hrid": map[string]interface{}{"type": "string"}},
			"required":   []string{"hrid"},
		}),
	}
}

func listMemoriesTool() Tool {
	return Tool{
		Name:        ToolListMemories,
		Description: "List memories, optionally filtered by memory_type, with pagination.",
		InputSchema: schemaJSON(map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"memory_type":          map[string]interface{}{"type": "string"},
				"modified_within_days": map[string]interface{}{"type": "integer"},
				"limit":                map[string]interface{}{"type": "integer", "default": 20},
				"offset":               map[string]interface{}{"type": "integer", "default": 0},
			},
		}),
	}
}

func searchMemoriesTool() Tool {
	return Tool{
		Name:        ToolSearchMemories,
		Description: "GraphRAG search: semantic (vector), structural (graph filters), or both. Omit query for a pure filter-based graph search.",
		InputSchema: schemaJSON(map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":       map[string]interface{}{"type": "string", "description": "Natural-language query; triggers vector/hybrid mode."},
				"memory_type": map[string]interface{}{"type": "string"},
				"limit":       map[string]interface{}{"type": "integer", "default": 10},
				"expand_neighbors": map[string]interface{}{"type": "integer", "description": "How many top hits to expand one graph hop.", "default": 0},
			},
		}),
	}
}

func relateMemoriesTool() Tool {
	return Tool{
		Name:        ToolRelateMemories,
		Description: "Create a schema-declared relationship edge between two memories. Idempotent.",
		InputSchema: schemaJSON(map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"source_hrid": map[string]interface{}{"type": "string"},
				"target_hrid": map[string]interface{}{"type": "string"},
				"predicate":   map[string]interface{}{"type": "string"},
			},
			"required": []string{"source_hrid", "target_hrid", "predicate"},
		}),
	}
}

func unrelateMemoriesTool() Tool {
	return Tool{
		Name:        ToolUnrelateMemories,
		Description: "Remove a relationship edge between two memories. Idempotent.",
		InputSchema: schemaJSON(map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"source_hrid": map[string]interface{}{"type": "string"},
				"target_hrid": map[string]interface{}{"type": "string"},
				"predicate":   map[string]interface{}{"type": "string"},
			},
			"required": []string{"source_hrid", "target_hrid", "predicate"},
		}),
	}
}

func systemInfoTool() Tool {
	return Tool{
		Name:        ToolSystemInfo,
		Description: "Report the schema's known entity/relation names and the health and size of both stores.",
		InputSchema: schemaJSON(map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}),
	}
}

// IsValidTool reports whether name is one of this server's tools.
func IsValidTool(name string) bool {
	for _, t := range AllTools() {
		if t == name {
			return true
		}
	}
	return false
}
