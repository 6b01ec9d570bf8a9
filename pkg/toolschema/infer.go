package toolschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Param declares one handler parameter together with its Go type
type Param struct {
	Name        string
	Description string
	GoType      reflect.Type
	Default     any
	HasDefault  bool
	// Optional marks a parameter that may be omitted even without a default
	Optional bool
}

// Required declares a parameter that callers must supply
func Required[T any](name, description string) Param {
	return Param{
		Name:        name,
		Description: description,
		GoType:      reflect.TypeFor[T](),
	}
}

// Optional declares a parameter with a default value
func Optional[T any](name, description string, def T) Param {
	return Param{
		Name:        name,
		Description: description,
		GoType:      reflect.TypeFor[T](),
		Default:     def,
		HasDefault:  true,
		Optional:    true,
	}
}

// FromStruct derives parameters from the exported fields of an argument struct.
// The json tag names the parameter, the description tag documents it and the
// default tag (JSON encoded, bare strings allowed) makes it optional. Pointer
// fields are optional without a default.
func FromStruct[T any]() ([]Param, error) {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("argument type %s is not a struct", t)
	}

	params := make([]Param, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}

		p := Param{
			Name:        name,
			Description: field.Tag.Get("description"),
			GoType:      field.Type,
		}

		if field.Type.Kind() == reflect.Pointer {
			p.GoType = field.Type.Elem()
			p.Optional = true
		}

		if raw, ok := field.Tag.Lookup("default"); ok {
			def, err := parseDefault(raw, p.GoType)
			if err != nil {
				return nil, fmt.Errorf("invalid default for field %s: %w", field.Name, err)
			}
			p.Default = def
			p.HasDefault = true
			p.Optional = true
		}

		params = append(params, p)
	}

	return params, nil
}

// parseDefault decodes a default tag into the field's type
func parseDefault(raw string, t reflect.Type) (any, error) {
	v := reflect.New(t)
	if err := json.Unmarshal([]byte(raw), v.Interface()); err != nil {
		if t.Kind() == reflect.String {
			return reflect.ValueOf(raw).Convert(t).Interface(), nil
		}
		return nil, err
	}
	return v.Elem().Interface(), nil
}

// Warning reports a parameter whose Go type had no structural mapping
type Warning struct {
	Tool   string
	Param  string
	GoType string
}

func (w Warning) String() string {
	return fmt.Sprintf("tool %s parameter %s: no schema mapping for %s, using string", w.Tool, w.Param, w.GoType)
}

// Inferencer derives schemas from parameter declarations
type Inferencer struct {
	logger zerolog.Logger
	mu     sync.Mutex
	types  map[reflect.Type]Type
	warned map[string]struct{}
}

// NewInferencer creates an inferencer with the built-in type mappings
func NewInferencer(logger zerolog.Logger) *Inferencer {
	return &Inferencer{
		logger: logger.With().Str("component", "schema-inferencer").Logger(),
		types: map[reflect.Type]Type{
			reflect.TypeFor[time.Time]():     TypeString,
			reflect.TypeFor[time.Duration](): TypeString,
			reflect.TypeFor[[]byte]():        TypeString,
			reflect.TypeFor[json.Number]():   TypeNumber,
		},
		warned: make(map[string]struct{}),
	}
}

// RegisterType maps a custom Go type to a structural type.
// Call it before registering tools that use the type.
func (in *Inferencer) RegisterType(t reflect.Type, st Type) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.types[t] = st
}

// Infer builds the schema for a tool. Parameters named in exclude are bound
// by the runtime and are left out of the public schema.
func (in *Inferencer) Infer(tool string, params []Param, exclude map[string]bool) (*Schema, []Warning) {
	schema := NewSchema()
	var warnings []Warning

	for _, p := range params {
		if exclude[p.Name] {
			continue
		}

		prop, ok := in.property(p.GoType)
		if !ok {
			w := Warning{Tool: tool, Param: p.Name, GoType: typeName(p.GoType)}
			warnings = append(warnings, w)
			in.warn(w)
		}

		prop.Description = p.Description
		if p.HasDefault {
			prop.Default = p.Default
			prop.HasDefault = true
		}

		schema.add(p.Name, prop, !p.HasDefault && !p.Optional)
	}

	return schema, warnings
}

// warn logs a fallback once per (tool, parameter)
func (in *Inferencer) warn(w Warning) {
	key := w.Tool + "\x00" + w.Param

	in.mu.Lock()
	_, seen := in.warned[key]
	if !seen {
		in.warned[key] = struct{}{}
	}
	in.mu.Unlock()

	if seen {
		return
	}

	in.logger.Warn().
		Str("tool", w.Tool).
		Str("param", w.Param).
		Str("go_type", w.GoType).
		Msg("Unmapped parameter type, falling back to string")
}

// property maps a Go type to a property. The bool is false when the type,
// or an element type, had no mapping and string was substituted.
func (in *Inferencer) property(t reflect.Type) (*Property, bool) {
	if t == nil {
		return &Property{Type: TypeString}, false
	}

	in.mu.Lock()
	st, custom := in.types[t]
	in.mu.Unlock()
	if custom {
		return &Property{Type: st}, true
	}

	switch t.Kind() {
	case reflect.Pointer:
		return in.property(t.Elem())
	case reflect.String:
		return &Property{Type: TypeString}, true
	case reflect.Bool:
		return &Property{Type: TypeBoolean}, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Property{Type: TypeInteger}, true
	case reflect.Float32, reflect.Float64:
		return &Property{Type: TypeNumber}, true
	case reflect.Slice, reflect.Array:
		items, ok := in.property(t.Elem())
		return &Property{Type: TypeArray, Items: items}, ok
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			return &Property{Type: TypeObject}, true
		}
	}

	return &Property{Type: TypeString}, false
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
