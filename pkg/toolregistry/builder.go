package toolregistry

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/harun/toolgate/pkg/deps"
	"github.com/harun/toolgate/pkg/toolschema"
	"github.com/rs/zerolog/log"
)

var validName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)*$`)

// Builder declares a tool. Errors are collected and reported by Build.
type Builder struct {
	registry      *Registry
	name          string
	description   string
	category      string
	requiresWrite bool
	requiresAdmin bool
	params        []toolschema.Param
	dependencies  []Dependency
	acceptsCaller bool
	handler       Handler
	errs          []error
}

// Define starts a standalone declaration; finish it with Build
func Define(name string) *Builder {
	return &Builder{name: name}
}

// Describe sets the human-readable description
func (b *Builder) Describe(description string) *Builder {
	b.description = description
	return b
}

// Category sets the descriptive category
func (b *Builder) Category(category string) *Builder {
	b.category = category
	return b
}

// RequiresWrite gates the tool to write-capable callers
func (b *Builder) RequiresWrite() *Builder {
	b.requiresWrite = true
	return b
}

// RequiresAdmin gates the tool to admins
func (b *Builder) RequiresAdmin() *Builder {
	b.requiresAdmin = true
	return b
}

// Param declares handler parameters
func (b *Builder) Param(params ...toolschema.Param) *Builder {
	b.params = append(b.params, params...)
	return b
}

// ParamsFrom declares parameters derived elsewhere, typically
// ParamsFrom(toolschema.FromStruct[Args]())
func (b *Builder) ParamsFrom(params []toolschema.Param, err error) *Builder {
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	return b.Param(params...)
}

// WithDependency binds handler parameter param to the dependency key. The
// parameter is hidden from the public schema and a caller-supplied value
// under the same name is never passed through.
func (b *Builder) WithDependency(param string, key deps.Key) *Builder {
	b.dependencies = append(b.dependencies, Dependency{Param: param, Key: key})
	return b
}

// WithCallerID declares the caller id parameter (CallerParam)
func (b *Builder) WithCallerID() *Builder {
	b.acceptsCaller = true
	return b
}

// Handle sets the handler
func (b *Builder) Handle(h Handler) *Builder {
	b.handler = h
	return b
}

// HandleFunc sets a function handler
func (b *Builder) HandleFunc(fn func(ctx context.Context, args Args) (any, error)) *Builder {
	if fn == nil {
		b.handler = nil
		return b
	}
	return b.Handle(HandlerFunc(fn))
}

// Build validates the declaration and infers its schema
func (b *Builder) Build(inferencer *toolschema.Inferencer) (*ToolMetadata, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if inferencer == nil {
		inferencer = toolschema.NewInferencer(log.Logger)
	}

	acceptsCaller := b.acceptsCaller
	exclude := make(map[string]bool, len(b.dependencies)+1)
	for _, d := range b.dependencies {
		exclude[d.Param] = true
	}
	for _, p := range b.params {
		if p.Name == CallerParam {
			acceptsCaller = true
		}
	}
	if acceptsCaller {
		exclude[CallerParam] = true
	}

	schema, _ := inferencer.Infer(b.name, b.params, exclude)
	validator, err := schema.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, b.name, err)
	}

	return &ToolMetadata{
		name:          b.name,
		description:   b.description,
		category:      b.category,
		requiresWrite: b.requiresWrite,
		requiresAdmin: b.requiresAdmin,
		dependencies:  append([]Dependency(nil), b.dependencies...),
		acceptsCaller: acceptsCaller,
		handler:       b.handler,
		schema:        schema,
		validator:     validator,
	}, nil
}

// Register builds the tool and registers it with the registry that created
// the builder (see Registry.Define)
func (b *Builder) Register() error {
	if b.registry == nil {
		return fmt.Errorf("%w: %s: builder is not bound to a registry", ErrInvalidDefinition, b.name)
	}

	meta, err := b.Build(b.registry.inferencer)
	if err != nil {
		return err
	}
	return b.registry.Register(meta)
}

func (b *Builder) validate() error {
	errs := append([]error(nil), b.errs...)

	if b.name == "" {
		errs = append(errs, fmt.Errorf("tool name cannot be empty"))
	} else if !validName.MatchString(b.name) {
		errs = append(errs, fmt.Errorf("tool name %q must be dot-separated identifiers", b.name))
	}
	if b.description == "" {
		errs = append(errs, fmt.Errorf("tool description cannot be empty"))
	}
	if b.handler == nil {
		errs = append(errs, fmt.Errorf("tool handler cannot be nil"))
	}

	seen := make(map[string]bool)
	for _, p := range b.params {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("parameter name cannot be empty"))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("parameter %s declared twice", p.Name))
		}
		seen[p.Name] = true
	}

	bound := make(map[string]bool)
	for _, d := range b.dependencies {
		switch {
		case d.Param == "" || d.Key == "":
			errs = append(errs, fmt.Errorf("dependency needs both a parameter and a key"))
		case d.Param == CallerParam:
			errs = append(errs, fmt.Errorf("dependency parameter %s is reserved for the caller id", CallerParam))
		case bound[d.Param]:
			errs = append(errs, fmt.Errorf("dependency parameter %s bound twice", d.Param))
		}
		bound[d.Param] = true
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, b.name, errors.Join(errs...))
}
