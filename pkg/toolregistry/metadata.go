package toolregistry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/toolgate/internal/toolcall"
	"github.com/harun/toolgate/pkg/deps"
	"github.com/harun/toolgate/pkg/toolschema"
	"github.com/xeipuuv/gojsonschema"
)

// Dependency binds a handler parameter to a dependency key
type Dependency struct {
	Param string   `json:"param"`
	Key   deps.Key `json:"key"`
}

// ToolMetadata describes one registered tool. It is built once, by a Builder,
// and is immutable afterwards.
type ToolMetadata struct {
	name          string
	description   string
	category      string
	requiresWrite bool
	requiresAdmin bool
	dependencies  []Dependency
	acceptsCaller bool
	handler       Handler
	schema        *toolschema.Schema
	validator     *gojsonschema.Schema
}

// Name returns the fully qualified tool name
func (m *ToolMetadata) Name() string {
	return m.name
}

// ShortName returns the final dot-separated segment of the name
func (m *ToolMetadata) ShortName() string {
	return ShortName(m.name)
}

func (m *ToolMetadata) Description() string {
	return m.description
}

func (m *ToolMetadata) Category() string {
	return m.category
}

// RequiresWrite reports whether callers need write capability
func (m *ToolMetadata) RequiresWrite() bool {
	return m.requiresWrite
}

// RequiresAdmin reports whether callers must be admins
func (m *ToolMetadata) RequiresAdmin() bool {
	return m.requiresAdmin
}

// Dependencies returns the parameter-to-key bindings in declaration order
func (m *ToolMetadata) Dependencies() []Dependency {
	return append([]Dependency(nil), m.dependencies...)
}

// AcceptsCaller reports whether the handler declared the caller id parameter
func (m *ToolMetadata) AcceptsCaller() bool {
	return m.acceptsCaller
}

// Schema returns a copy of the caller-facing parameter schema
func (m *ToolMetadata) Schema() *toolschema.Schema {
	return m.schema.Clone()
}

// Defaults returns the declared default of every optional parameter
func (m *ToolMetadata) Defaults() map[string]any {
	return m.schema.Defaults()
}

// IsBound reports whether name is filled by the runtime rather than the caller
func (m *ToolMetadata) IsBound(name string) bool {
	if m.acceptsCaller && name == CallerParam {
		return true
	}
	for _, d := range m.dependencies {
		if d.Param == name {
			return true
		}
	}
	return false
}

// ValidateArguments checks caller-supplied arguments against the schema.
// Failures wrap ErrInvalidArguments.
func (m *ToolMetadata) ValidateArguments(args map[string]any) error {
	if err := toolschema.Validate(m.validator, args); err != nil {
		return InvalidArgumentf("%v", err)
	}
	return nil
}

func init() {
	toolcall.SetInvoker(func(ctx context.Context, tool any, args map[string]any) (any, error) {
		meta, ok := tool.(*ToolMetadata)
		if !ok || meta == nil {
			return nil, fmt.Errorf("%w: cannot invoke %T", ErrInvalidDefinition, tool)
		}
		return meta.invoke(ctx, Args(args))
	})
}

// invoke calls the handler without permission checks or argument binding.
// The dispatcher reaches it through internal/toolcall.
func (m *ToolMetadata) invoke(ctx context.Context, args Args) (any, error) {
	return m.handler.Handle(ctx, args)
}

// complete reports why meta cannot be dispatched, or nil. Metadata from
// Builder.Build is always complete.
func (m *ToolMetadata) complete() error {
	switch {
	case m.name == "":
		return errors.New("tool name cannot be empty")
	case m.handler == nil:
		return fmt.Errorf("tool %s has no handler", m.name)
	case m.schema == nil || m.validator == nil:
		return fmt.Errorf("tool %s has no compiled schema; build it with Define", m.name)
	}
	return nil
}

// Descriptor is the discovery view of a tool
type Descriptor struct {
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Category      string             `json:"category,omitempty"`
	RequiresWrite bool               `json:"requires_write"`
	RequiresAdmin bool               `json:"requires_admin"`
	Schema        *toolschema.Schema `json:"input_schema"`
}

// Descriptor returns the discovery view
func (m *ToolMetadata) Descriptor() Descriptor {
	return Descriptor{
		Name:          m.name,
		Description:   m.description,
		Category:      m.category,
		RequiresWrite: m.requiresWrite,
		RequiresAdmin: m.requiresAdmin,
		Schema:        m.Schema(),
	}
}

// ShortName returns the final dot-separated segment of name
func ShortName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
