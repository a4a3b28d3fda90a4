package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts either a flat `fields: {name: FieldSpec, ...}`
// mapping or the split form `fields: {required: [...], optional: [...]}`
// where each list element is a single-key mapping name -> FieldSpec.
func (e *EntitySpec) UnmarshalYAML(value *yaml.Node) error {
	type entityAlias struct {
		Name        string    `yaml:"name"`
		Description string    `yaml:"description,omitempty"`
		Anchor      string    `yaml:"anchor"`
		Fields      yaml.Node `yaml:"fields"`
	}
	var alias entityAlias
	if err := value.Decode(&alias); err != nil {
		return err
	}
	e.Name = alias.Name
	e.Description = alias.Description
	e.Anchor = alias.Anchor

	if alias.Fields.Kind == 0 {
		e.Fields = map[string]FieldSpec{}
		return nil
	}

	// Try the split shape first: a mapping with required/optional keys
	// whose values are sequences.
	var split struct {
		Required []map[string]FieldSpec `yaml:"required"`
		Optional []map[string]FieldSpec `yaml:"optional"`
	}
	if alias.Fields.Kind == yaml.MappingNode && looksLikeSplit(&alias.Fields) {
		if err := alias.Fields.Decode(&split); err != nil {
			return fmt.Errorf("decoding split fields section: %w", err)
		}
		fields := map[string]FieldSpec{}
		for _, entry := range split.Required {
			for name, fs := range entry {
				fs.Required = true
				fields[name] = fs
			}
		}
		for _, entry := range split.Optional {
			for name, fs := range entry {
				fields[name] = fs
			}
		}
		e.Fields = fields
		return nil
	}

	flat := map[string]FieldSpec{}
	if err := alias.Fields.Decode(&flat); err != nil {
		return fmt.Errorf("decoding flat fields section: %w", err)
	}
	e.Fields = flat
	return nil
}

// looksLikeSplit reports whether a mapping node's only keys are the
// reserved "required"/"optional" names used by the split fields shape.
func looksLikeSplit(node *yaml.Node) bool {
	if len(node.Content) == 0 {
		return false
	}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if key != "required" && key != "optional" {
			return false
		}
	}
	return true
}

// decodeEntities accepts either `entities: [EntitySpec, ...]` or
// `entities: {name: EntitySpec, ...}`.
func decodeEntities(raw yaml.Node) ([]EntitySpec, error) {
	if raw.Kind == 0 {
		return nil, nil
	}

	switch raw.Kind {
	case yaml.SequenceNode:
		var list []EntitySpec
		if err := raw.Decode(&list); err != nil {
			return nil, fmt.Errorf("decoding entities list: %w", err)
		}
		return list, nil
	case yaml.MappingNode:
		var m map[string]EntitySpec
		if err := raw.Decode(&m); err != nil {
			return nil, fmt.Errorf("decoding entities map: %w", err)
		}
		list := make([]EntitySpec, 0, len(m))
		for name, spec := range m {
			if spec.Name == "" {
				spec.Name = name
			}
			list = append(list, spec)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("entities section must be a list or mapping")
	}
}
