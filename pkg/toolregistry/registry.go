package toolregistry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/harun/toolgate/pkg/permission"
	"github.com/harun/toolgate/pkg/toolschema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ShortNamePolicy decides which tool a shared short name resolves to
type ShortNamePolicy string

const (
	// ShortNameLastWins maps a shared short name to the most recent registration
	ShortNameLastWins ShortNamePolicy = "last_wins"
	// ShortNameFirstWins keeps the first registration's mapping
	ShortNameFirstWins ShortNamePolicy = "first_wins"
	// ShortNameReject drops a shared short name from the index entirely
	ShortNameReject ShortNamePolicy = "reject"
)

// ParseShortNamePolicy converts a config string into a policy. Empty means last_wins.
func ParseShortNamePolicy(s string) (ShortNamePolicy, error) {
	switch p := ShortNamePolicy(s); p {
	case "":
		return ShortNameLastWins, nil
	case ShortNameLastWins, ShortNameFirstWins, ShortNameReject:
		return p, nil
	default:
		return "", fmt.Errorf("invalid short name policy: %s", s)
	}
}

// Registry holds every registered tool. Tools are registered during startup
// and read concurrently afterwards.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]*ToolMetadata
	shortNames map[string]string
	ambiguous  map[string]struct{}
	policy     ShortNamePolicy
	inferencer *toolschema.Inferencer
	logger     zerolog.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the registry logger
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithShortNamePolicy sets the short-name conflict policy
func WithShortNamePolicy(policy ShortNamePolicy) Option {
	return func(r *Registry) {
		r.policy = policy
	}
}

// WithInferencer sets the schema inferencer used by Define
func WithInferencer(in *toolschema.Inferencer) Option {
	return func(r *Registry) {
		r.inferencer = in
	}
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		tools:      make(map[string]*ToolMetadata),
		shortNames: make(map[string]string),
		ambiguous:  make(map[string]struct{}),
		policy:     ShortNameLastWins,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.logger = r.logger.With().Str("component", "tool-registry").Logger()
	if r.inferencer == nil {
		r.inferencer = toolschema.NewInferencer(r.logger)
	}

	return r
}

// Define starts a declaration whose Register call adds it to this registry
func (r *Registry) Define(name string) *Builder {
	b := Define(name)
	b.registry = r
	return b
}

// Inferencer returns the schema inferencer used by Define
func (r *Registry) Inferencer() *toolschema.Inferencer {
	return r.inferencer
}

// Register adds a tool. A name that is already taken fails with
// ErrDuplicateRegistration and leaves the existing entry untouched.
func (r *Registry) Register(meta *ToolMetadata) error {
	if meta == nil {
		return fmt.Errorf("%w: metadata is nil", ErrInvalidDefinition)
	}
	if err := meta.complete(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[meta.name]; exists {
		r.logger.Error().Str("tool", meta.name).Msg("Duplicate tool registration")
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, meta.name)
	}

	r.tools[meta.name] = meta
	r.indexShortNameLocked(meta.name)

	r.logger.Info().
		Str("tool", meta.name).
		Bool("requires_write", meta.requiresWrite).
		Bool("requires_admin", meta.requiresAdmin).
		Msg("Tool registered")

	return nil
}

// MustRegister registers meta and panics on failure. Use it only during startup.
func (r *Registry) MustRegister(meta *ToolMetadata) {
	if err := r.Register(meta); err != nil {
		panic(err)
	}
}

func (r *Registry) indexShortNameLocked(name string) {
	short := ShortName(name)

	if _, dropped := r.ambiguous[short]; dropped {
		return
	}

	existing, taken := r.shortNames[short]
	if !taken || existing == name {
		r.shortNames[short] = name
		return
	}

	event := r.logger.Warn().
		Str("short_name", short).
		Str("existing", existing).
		Str("new", name).
		Str("policy", string(r.policy))

	switch r.policy {
	case ShortNameFirstWins:
		event.Msg("Short name conflict, keeping first registration")
	case ShortNameReject:
		delete(r.shortNames, short)
		r.ambiguous[short] = struct{}{}
		event.Msg("Short name conflict, short name lookup disabled")
	default:
		r.shortNames[short] = name
		event.Msg("Short name conflict, newer registration wins")
	}
}

// Get returns the tool with the exact name
func (r *Registry) Get(name string) (*ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.tools[name]
	return meta, ok
}

// GetByShortName returns the tool indexed under the final name segment
func (r *Registry) GetByShortName(short string) (*ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.shortNames[short]
	if !ok {
		return nil, false
	}
	meta, ok := r.tools[name]
	return meta, ok
}

// Lookup tries an exact match, then the short-name index
func (r *Registry) Lookup(name string) (*ToolMetadata, bool) {
	if meta, ok := r.Get(name); ok {
		return meta, true
	}
	return r.GetByShortName(name)
}

// GetAllNames returns a snapshot of every registered name
func (r *Registry) GetAllNames() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make(map[string]struct{}, len(r.tools))
	for name := range r.tools {
		names[name] = struct{}{}
	}
	return names
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Filter selects tools in ListTools
type Filter func(*ToolMetadata) bool

// ByCategory keeps tools in category
func ByCategory(category string) Filter {
	return func(m *ToolMetadata) bool {
		return m.category == category
	}
}

// RequiringWrite keeps tools whose write requirement equals required
func RequiringWrite(required bool) Filter {
	return func(m *ToolMetadata) bool {
		return m.requiresWrite == required
	}
}

// RequiringAdmin keeps tools whose admin requirement equals required
func RequiringAdmin(required bool) Filter {
	return func(m *ToolMetadata) bool {
		return m.requiresAdmin == required
	}
}

// VisibleTo keeps tools the caller is permitted to call
func VisibleTo(caller permission.AuthenticatedUser) Filter {
	return func(m *ToolMetadata) bool {
		return permission.Permits(m, caller)
	}
}

// ListTools returns the tools matching every filter, sorted by name
func (r *Registry) ListTools(filters ...Filter) []*ToolMetadata {
	r.mu.RLock()
	tools := make([]*ToolMetadata, 0, len(r.tools))
	for _, meta := range r.tools {
		if matches(meta, filters) {
			tools = append(tools, meta)
		}
	}
	r.mu.RUnlock()

	sort.Slice(tools, func(i, j int) bool {
		return tools[i].name < tools[j].name
	})
	return tools
}

// Descriptors returns the discovery view of the tools matching every filter
func (r *Registry) Descriptors(filters ...Filter) []Descriptor {
	tools := r.ListTools(filters...)
	descriptors := make([]Descriptor, 0, len(tools))
	for _, meta := range tools {
		descriptors = append(descriptors, meta.Descriptor())
	}
	return descriptors
}

// Categories returns the distinct categories in use, sorted
func (r *Registry) Categories() []string {
	r.mu.RLock()
	set := make(map[string]struct{})
	for _, meta := range r.tools {
		if meta.category != "" {
			set[meta.category] = struct{}{}
		}
	}
	r.mu.RUnlock()

	categories := make([]string, 0, len(set))
	for c := range set {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}

func matches(meta *ToolMetadata, filters []Filter) bool {
	for _, f := range filters {
		if f != nil && !f(meta) {
			return false
		}
	}
	return true
}
