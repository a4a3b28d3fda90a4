package schema_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/memg/memg-core/pkg/schema"
	"github.com/stretchr/testify/require"
)

const testRegistry = `
version: v1
id_policy:
  kind: uuid
  field: id
defaults:
  vector:
    metric: cosine
    normalize: true
    dim: 8
  timestamps:
    auto_create: true
    auto_update: true
entities:
  - name: note
    anchor: statement
    fields:
      statement: {type: string, required: true}
      importance: {type: int}
  - name: task
    anchor: statement
    fields:
      statement: {type: string, required: true}
      status: {type: enum, required: true, choices: [backlog, todo, in_progress, in_review, done, cancelled]}
  - name: document
    anchor: title
    fields:
      title: {type: string, required: true}
relations:
  - predicates: [ANNOTATES]
    source: note
    target: document
    directed: true
  - predicates: [ANNOTATES]
    source: note
    target: task
    directed: true
  - predicates: [BLOCKS]
    source: task
    target: task
    directed: true
`

func loadTest(t *testing.T) *schema.Translator {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRegistry), 0o644))
	tr := schema.New()
	require.NoError(t, tr.Load(path))
	return tr
}

func TestLoadMissingFile(t *testing.T) {
	tr := schema.New()
	err := tr.Load("/nonexistent/registry.yaml")
	require.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o644))
	tr := schema.New()
	require.Error(t, tr.Load(path))
}

func TestEntityUnknownType(t *testing.T) {
	tr := loadTest(t)
	_, err := tr.Entity("widget")
	require.Error(t, err)
	require.Contains(t, err.Error(), "known types")
}

func TestValidatePayloadEnumViolation(t *testing.T) {
	tr := loadTest(t)
	_, err := tr.ValidatePayload("task", map[string]any{
		"statement": "X",
		"status":    "completed",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "backlog")
	require.Contains(t, err.Error(), "cancelled")
}

func TestValidatePayloadMissingRequired(t *testing.T) {
	tr := loadTest(t)
	_, err := tr.ValidatePayload("note", map[string]any{})
	require.Error(t, err)
}

func TestValidatePayloadStripsSystemFields(t *testing.T) {
	tr := schema.New()
	require.NoError(t, tr.LoadRegistry(schema.Registry{}, []schema.EntitySpec{
		{
			Name:   "note",
			Anchor: "statement",
			Fields: map[string]schema.FieldSpec{
				"statement": {Type: schema.FieldString, Required: true},
				"id":        {Type: schema.FieldString, System: true},
			},
		},
	}))
	cleaned, err := tr.ValidatePayload("note", map[string]any{
		"statement": "hello",
		"id":        "caller-supplied-id",
	})
	require.NoError(t, err)
	require.NotContains(t, cleaned, "id")
}

func TestAnchorTextTrimsAndValidates(t *testing.T) {
	tr := loadTest(t)
	text, err := tr.AnchorText(schema.Memory{MemoryType: "note", Payload: map[string]any{"statement": "  hi there  "}})
	require.NoError(t, err)
	require.Equal(t, "hi there", text)

	_, err = tr.AnchorText(schema.Memory{MemoryType: "note", Payload: map[string]any{"statement": "   "}})
	require.Error(t, err)
}

func TestRelationAllowedSamePredicateDifferentPairs(t *testing.T) {
	tr := loadTest(t)
	require.True(t, tr.RelationAllowed("note", "ANNOTATES", "document"))
	require.True(t, tr.RelationAllowed("note", "ANNOTATES", "task"))
	require.False(t, tr.RelationAllowed("task", "ANNOTATES", "document"))
}

func TestEdgeTableNameCollisionFree(t *testing.T) {
	require.Equal(t, "NOTE_ANNOTATES_DOCUMENT", schema.EdgeTableName("note", "ANNOTATES", "document"))
	require.Equal(t, "NOTE_ANNOTATES_TASK", schema.EdgeTableName("note", "ANNOTATES", "task"))
}

func TestRelationNamesUnion(t *testing.T) {
	tr := loadTest(t)
	require.ElementsMatch(t, []string{"ANNOTATES", "BLOCKS"}, tr.RelationNames())
}
