package schema

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/memg/memg-core/pkg/memerr"
	"gopkg.in/yaml.v3"
)

// Memory is the minimal view of a persisted record the translator needs
// to resolve anchor text; it intentionally does not import pkg/memory to
// avoid a dependency cycle (memory.Service depends on schema.Translator).
type Memory struct {
	MemoryType string
	Payload    map[string]any
}

// compiledEntity bundles the normalized spec with its generated
// validator closure, caching a
// schema.SchemaManager's derived indexes (pkg/storage/schema.go) rather
// than recomputing them per call.
type compiledEntity struct {
	spec   EntitySpec
	fields map[string]FieldSpec
}

// relationKey identifies one declared (source, predicate, target) triple.
type relationKey struct {
	source    string
	predicate string
	target    string
}

// Translator is the single source of truth for allowed types, fields,
// validations, anchors, and the relation catalog.
//
// Grounded on pkg/storage.SchemaManager: a mutex-guarded struct holding
// pre-built lookup maps, built once at Load and read many times after.
type Translator struct {
	mu sync.RWMutex

	idPolicy   IDPolicy
	vectorDef  VectorDefaults
	timestamps TimestampDefaults

	entities map[string]compiledEntity // keyed by lowercased name
	order    []string                  // insertion order, for deterministic entities()

	relations     []RelationSpec
	relationAllow map[relationKey]bool
	predicateSet  map[string]bool // uppercase predicate identifiers (union)
	predicateDir  map[string]bool // predicate -> directed
}

// New returns an empty Translator; call Load to populate it.
func New() *Translator {
	return &Translator{
		entities:      map[string]compiledEntity{},
		relationAllow: map[relationKey]bool{},
		predicateSet:  map[string]bool{},
		predicateDir:  map[string]bool{},
	}
}

// Load reads and parses a registry file, normalizing entities/relations
// and compiling per-type validators. Fails with a SchemaError if the
// file is missing, unparsable, empty, or lacks an entities section.
func (t *Translator) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return memerr.Wrap(memerr.KindSchema, "schema.Load",
			fmt.Errorf("reading registry %q: %w: %v", path, memerr.ErrSchema, err))
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return memerr.Wrap(memerr.KindSchema, "schema.Load",
			fmt.Errorf("registry %q is empty: %w", path, memerr.ErrSchema))
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return memerr.Wrap(memerr.KindSchema, "schema.Load",
			fmt.Errorf("parsing registry %q: %w: %v", path, memerr.ErrSchema, err))
	}

	entities, err := decodeEntities(reg.Entities)
	if err != nil {
		return memerr.Wrap(memerr.KindSchema, "schema.Load",
			fmt.Errorf("%w: %v", memerr.ErrSchema, err))
	}
	if len(entities) == 0 {
		return memerr.Wrap(memerr.KindSchema, "schema.Load",
			fmt.Errorf("registry %q has no entities: %w", path, memerr.ErrSchema))
	}

	return t.loadFrom(reg, entities)
}

// LoadRegistry loads an already-parsed registry, primarily for tests
// that construct schemas in-process rather than from disk.
func (t *Translator) LoadRegistry(reg Registry, entities []EntitySpec) error {
	return t.loadFrom(reg, entities)
}

func (t *Translator) loadFrom(reg Registry, entities []EntitySpec) error {
	compiled := make(map[string]compiledEntity, len(entities))
	order := make([]string, 0, len(entities))
	for _, spec := range entities {
		name := strings.ToLower(strings.TrimSpace(spec.Name))
		if name == "" {
			return memerr.Wrap(memerr.KindSchema, "schema.Load",
				fmt.Errorf("entity with empty name: %w", memerr.ErrSchema))
		}
		if strings.TrimSpace(spec.Anchor) == "" {
			return memerr.Wrap(memerr.KindSchema, "schema.Load",
				fmt.Errorf("entity %q has no anchor field: %w", name, memerr.ErrSchema))
		}
		if _, exists := spec.Fields[spec.Anchor]; !exists {
			return memerr.Wrap(memerr.KindSchema, "schema.Load",
				fmt.Errorf("entity %q anchor %q is not a declared field: %w", name, spec.Anchor, memerr.ErrSchema))
		}
		compiled[name] = compiledEntity{spec: spec, fields: spec.Fields}
		order = append(order, name)
	}
	sort.Strings(order)

	allow := map[relationKey]bool{}
	predSet := map[string]bool{}
	predDir := map[string]bool{}
	for _, rel := range reg.Relations {
		for _, pred := range rel.Predicates {
			pred = strings.ToUpper(strings.TrimSpace(pred))
			predSet[pred] = true
			predDir[pred] = rel.Directed
			allow[relationKey{
				source:    strings.ToLower(rel.Source),
				predicate: pred,
				target:    strings.ToLower(rel.Target),
			}] = true
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.idPolicy = reg.IDPolicy
	t.vectorDef = reg.Defaults.Vector
	t.timestamps = reg.Defaults.Timestamps
	t.entities = compiled
	t.order = order
	t.relations = reg.Relations
	t.relationAllow = allow
	t.predicateSet = predSet
	t.predicateDir = predDir
	return nil
}

// Entities returns an ordered mapping name(lowercased) -> EntitySpec.
func (t *Translator) Entities() map[string]EntitySpec {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]EntitySpec, len(t.entities))
	for name, ce := range t.entities {
		out[name] = ce.spec
	}
	return out
}

// EntityNames returns the known entity names in deterministic order.
func (t *Translator) EntityNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Entity returns the EntitySpec for a (case-insensitive) type name.
func (t *Translator) Entity(name string) (EntitySpec, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ce, ok := t.entities[strings.ToLower(name)]
	if !ok {
		return EntitySpec{}, memerr.Wrap(memerr.KindValidation, "schema.Entity",
			fmt.Errorf("unknown memory_type %q, known types: %s: %w",
				name, strings.Join(t.order, ", "), memerr.ErrValidation))
	}
	return ce.spec, nil
}

// AnchorField returns the string field used as embedding input for a type.
func (t *Translator) AnchorField(memType string) (string, error) {
	spec, err := t.Entity(memType)
	if err != nil {
		return "", err
	}
	return spec.Anchor, nil
}

// AnchorText returns payload[anchor_field(memory.memory_type)] trimmed,
// failing if missing, empty, or not a string.
func (t *Translator) AnchorText(mem Memory) (string, error) {
	field, err := t.AnchorField(mem.MemoryType)
	if err != nil {
		return "", err
	}
	raw, ok := mem.Payload[field]
	if !ok {
		return "", memerr.Wrap(memerr.KindValidation, "schema.AnchorText",
			fmt.Errorf("anchor field %q missing from payload: %w", field, memerr.ErrValidation))
	}
	text, ok := raw.(string)
	if !ok {
		return "", memerr.Wrap(memerr.KindValidation, "schema.AnchorText",
			fmt.Errorf("anchor field %q is not a string: %w", field, memerr.ErrValidation))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", memerr.Wrap(memerr.KindValidation, "schema.AnchorText",
			fmt.Errorf("anchor field %q is empty after trimming: %w", field, memerr.ErrValidation))
	}
	return text, nil
}

// ValidatePayload strips system fields, verifies required fields, and
// verifies enum choices (the error enumerates the legal set), returning
// the cleaned payload.
func (t *Translator) ValidatePayload(memType string, payload map[string]any) (map[string]any, error) {
	spec, err := t.Entity(memType)
	if err != nil {
		return nil, err
	}

	cleaned := make(map[string]any, len(payload))
	for k, v := range payload {
		field, declared := spec.Fields[k]
		if declared && field.System {
			continue // step 1: strip system fields supplied by the caller
		}
		cleaned[k] = v
	}

	for name, field := range spec.Fields {
		if field.System || !field.Required {
			continue
		}
		val, ok := cleaned[name]
		if !ok || isEmptyValue(val) {
			return nil, memerr.Wrap(memerr.KindValidation, "schema.ValidatePayload",
				fmt.Errorf("missing required field %q for type %q: %w", name, memType, memerr.ErrValidation))
		}
	}

	for name, val := range cleaned {
		field, declared := spec.Fields[name]
		if !declared {
			return nil, memerr.Wrap(memerr.KindValidation, "schema.ValidatePayload",
				fmt.Errorf("unknown field %q for type %q: %w", name, memType, memerr.ErrValidation))
		}
		if field.Type == FieldEnum && len(field.Choices) > 0 {
			str, ok := val.(string)
			if !ok || !containsString(field.Choices, str) {
				return nil, memerr.Wrap(memerr.KindValidation, "schema.ValidatePayload",
					fmt.Errorf("field %q value %v is not one of [%s]: %w",
						name, val, strings.Join(field.Choices, ", "), memerr.ErrValidation))
			}
		}
		if field.MaxLength > 0 {
			if str, ok := val.(string); ok && len(str) > field.MaxLength {
				return nil, memerr.Wrap(memerr.KindValidation, "schema.ValidatePayload",
					fmt.Errorf("field %q exceeds max_length %d: %w", name, field.MaxLength, memerr.ErrValidation))
			}
		}
	}

	return cleaned, nil
}

// RelationNames returns uppercase predicate identifiers over the union
// of all relations, in deterministic order.
func (t *Translator) RelationNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.predicateSet))
	for pred := range t.predicateSet {
		out = append(out, pred)
	}
	sort.Strings(out)
	return out
}

// RelationAllowed reports whether (source_type, predicate, target_type)
// is declared, honoring "*" wildcards on either side.
func (t *Translator) RelationAllowed(sourceType, predicate, targetType string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sourceType = strings.ToLower(sourceType)
	targetType = strings.ToLower(targetType)
	predicate = strings.ToUpper(predicate)

	candidates := []relationKey{
		{sourceType, predicate, targetType},
		{"*", predicate, targetType},
		{sourceType, predicate, "*"},
		{"*", predicate, "*"},
	}
	for _, k := range candidates {
		if t.relationAllow[k] {
			return true
		}
	}
	return false
}

// PredicateDirected reports the declared directedness of a predicate,
// tracked per predicate independently of any sibling predicate in the
// same RelationSpec.
func (t *Translator) PredicateDirected(predicate string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.predicateDir[strings.ToUpper(predicate)]
}

// EdgeTableName returns the canonical SOURCE_PREDICATE_TARGET name for a
// (source_type, predicate, target_type) triple, letting the same
// predicate connect different type pairs without a naming collision.
func EdgeTableName(sourceType, predicate, targetType string) string {
	return fmt.Sprintf("%s_%s_%s",
		strings.ToUpper(sourceType), strings.ToUpper(predicate), strings.ToUpper(targetType))
}

// VectorDefaults returns the registry's configured vector defaults.
func (t *Translator) VectorDefaults() VectorDefaults {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.vectorDef
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	default:
		return false
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
