package toolschema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Type is a structural parameter type as advertised to clients
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Property describes one caller-supplied parameter
type Property struct {
	Type        Type      `json:"type"`
	Description string    `json:"description,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Default     any       `json:"default"`
	HasDefault  bool      `json:"-"`
}

func (p *Property) clone() *Property {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Items = p.Items.clone()
	return &cp
}

// toMap renders the property in JSON Schema form
func (p *Property) toMap() map[string]interface{} {
	m := map[string]interface{}{
		"type": string(p.Type),
	}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if p.Items != nil {
		m["items"] = p.Items.toMap()
	}
	if p.HasDefault {
		m["default"] = p.Default
	}
	return m
}

// MarshalJSON encodes the property the way Map renders it, keeping zero-value
// defaults
func (p Property) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.toMap())
}

// Schema is the structural description of a tool's caller-supplied parameters.
// A Schema is built once at registration and must be treated as read-only.
type Schema struct {
	Properties map[string]*Property
	Required   []string
	// order keeps declaration order for stable listing output
	order []string
}

// NewSchema creates an empty object schema
func NewSchema() *Schema {
	return &Schema{
		Properties: make(map[string]*Property),
		Required:   []string{},
	}
}

// add appends a property, keeping declaration order
func (s *Schema) add(name string, prop *Property, required bool) {
	if _, exists := s.Properties[name]; !exists {
		s.order = append(s.order, name)
	}
	s.Properties[name] = prop
	if required {
		s.Required = append(s.Required, name)
	}
}

// Property returns the named property
func (s *Schema) Property(name string) (*Property, bool) {
	p, ok := s.Properties[name]
	return p, ok
}

// IsRequired reports whether the named parameter must be supplied
func (s *Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Names returns parameter names in declaration order
func (s *Schema) Names() []string {
	if len(s.order) == len(s.Properties) {
		return append([]string(nil), s.order...)
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defaults returns the default value of every optional parameter that declares one
func (s *Schema) Defaults() map[string]any {
	defaults := make(map[string]any)
	if s == nil {
		return defaults
	}
	for name, p := range s.Properties {
		if p.HasDefault {
			defaults[name] = p.Default
		}
	}
	return defaults
}

// Clone returns a deep copy
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	cp := &Schema{
		Properties: make(map[string]*Property, len(s.Properties)),
		Required:   append([]string{}, s.Required...),
		order:      append([]string(nil), s.order...),
	}
	for name, p := range s.Properties {
		cp.Properties[name] = p.clone()
	}
	return cp
}

// Map renders the schema as a JSON Schema object
func (s *Schema) Map() map[string]interface{} {
	if s == nil {
		s = NewSchema()
	}
	properties := make(map[string]interface{}, len(s.Properties))
	for name, p := range s.Properties {
		properties[name] = p.toMap()
	}

	m := map[string]interface{}{
		"type":                 string(TypeObject),
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(s.Required) > 0 {
		m["required"] = append([]string{}, s.Required...)
	}
	return m
}

// MarshalJSON encodes the schema in JSON Schema form
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// Compile builds a validator for caller-supplied arguments
func (s *Schema) Compile() (*gojsonschema.Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(s.Map()))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}

// Validate checks params against a compiled schema and returns a readable error
func Validate(compiled *gojsonschema.Schema, params map[string]interface{}) error {
	if compiled == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := []string{}
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		sort.Strings(errs)
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}
