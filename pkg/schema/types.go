// Package schema loads the entity/relation registry that drives every
// other component: validators, anchor resolution, and the relationship
// catalog are all generated from it rather than hard-coded.
//
// Grounded on github.com/orneryd/nornicdb's pkg/storage/schema.go
// (constraint/index registry with a thread-safe manager struct) and
// pkg/cypher/schema.go (parsing a declarative schema into runtime
// structures); field-type handling follows pkg/storage/badger.go's
// type-inference comments for STRING/DOUBLE/INT64/BOOLEAN/TIMESTAMP.
package schema

import "gopkg.in/yaml.v3"

// FieldType enumerates the primitive types a field may declare.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldInt      FieldType = "int"
	FieldFloat    FieldType = "float"
	FieldBool     FieldType = "bool"
	FieldDatetime FieldType = "datetime"
	FieldDate     FieldType = "date"
	FieldEnum     FieldType = "enum"
	FieldTags     FieldType = "tags"
	FieldVector   FieldType = "vector"
	FieldRef      FieldType = "ref"
)

// FieldSpec describes one field of an entity.
type FieldSpec struct {
	Type      FieldType `yaml:"type"`
	Required  bool      `yaml:"required,omitempty"`
	Choices   []string  `yaml:"choices,omitempty"`
	MaxLength int       `yaml:"max_length,omitempty"`
	Default   any       `yaml:"default,omitempty"`
	Dim       int       `yaml:"dim,omitempty"`
	System    bool      `yaml:"system,omitempty"`
}

// EntitySpec is the declarative definition of one memory type.
type EntitySpec struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description,omitempty"`
	Anchor      string               `yaml:"anchor"`
	Fields      map[string]FieldSpec `yaml:"-"`

	// rawFields captures either a flat map or a {required,optional} split
	// as it appeared on disk; normalizeFields() populates Fields from it.
	rawFields rawFieldSection
}

// rawFieldSection mirrors the two accepted YAML shapes for `fields`:
// a flat mapping, or {required: [...], optional: [...]} where each list
// entry is itself "name: FieldSpec".
type rawFieldSection struct {
	flat     map[string]FieldSpec
	required []map[string]FieldSpec
	optional []map[string]FieldSpec
	isSplit  bool
}

// RelationSpec is the declarative definition of one relationship shape.
// A single RelationSpec may list multiple predicates; §4.1's Open
// Question is resolved here (see DESIGN.md): directedness is tracked
// per predicate at the catalog level, not assumed uniform across a
// RelationSpec's predicate list.
type RelationSpec struct {
	Name        string   `yaml:"name,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Predicates  []string `yaml:"predicates"`
	Source      string   `yaml:"source"`
	Target      string   `yaml:"target"`
	Directed    bool     `yaml:"directed"`
	Constraints []string `yaml:"constraints,omitempty"`
}

// VectorDefaults mirrors the registry's defaults.vector section.
type VectorDefaults struct {
	Metric    string `yaml:"metric"`
	Normalize bool   `yaml:"normalize"`
	Dim       int    `yaml:"dim"`
}

// TimestampDefaults mirrors defaults.timestamps.
type TimestampDefaults struct {
	AutoCreate bool `yaml:"auto_create"`
	AutoUpdate bool `yaml:"auto_update"`
}

// IDPolicy mirrors id_policy.
type IDPolicy struct {
	Kind  string `yaml:"kind"`
	Field string `yaml:"field"`
}

// Registry is the parsed, not-yet-normalized registry file shape.
type Registry struct {
	Version  string `yaml:"version"`
	IDPolicy IDPolicy `yaml:"id_policy"`
	Defaults struct {
		Vector     VectorDefaults    `yaml:"vector"`
		Timestamps TimestampDefaults `yaml:"timestamps"`
	} `yaml:"defaults"`
	Entities  yaml.Node      `yaml:"entities"` // list or map on disk
	Relations []RelationSpec `yaml:"relations"`
}
