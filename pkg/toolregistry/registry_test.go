package toolregistry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harun/toolgate/pkg/permission"
	"github.com/harun/toolgate/pkg/toolschema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(opts ...Option) *Registry {
	return New(append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
}

func noop(ctx context.Context, args Args) (any, error) {
	return nil, nil
}

func mustBuild(t testing.TB, b *Builder) *ToolMetadata {
	t.Helper()
	meta, err := b.Build(toolschema.NewInferencer(zerolog.Nop()))
	require.NoError(t, err)
	return meta
}

func TestRegistry_Register(t *testing.T) {
	r := newTestRegistry()

	err := r.Define("food.nutrition.getRecent").
		Describe("List recent meals").
		Category("nutrition").
		Param(toolschema.Optional("limit", "Maximum meals", 10)).
		HandleFunc(noop).
		Register()
	require.NoError(t, err)

	meta, ok := r.Get("food.nutrition.getRecent")
	require.True(t, ok)
	assert.Equal(t, "food.nutrition.getRecent", meta.Name())
	assert.Equal(t, "getRecent", meta.ShortName())
	assert.Equal(t, "nutrition", meta.Category())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := newTestRegistry()

	first := mustBuild(t, Define("food.nutrition.addMeal").Describe("first").RequiresWrite().HandleFunc(noop))
	second := mustBuild(t, Define("food.nutrition.addMeal").Describe("second").HandleFunc(noop))

	require.NoError(t, r.Register(first))

	err := r.Register(second)
	assert.ErrorIs(t, err, ErrDuplicateRegistration)

	meta, ok := r.Get("food.nutrition.addMeal")
	require.True(t, ok)
	assert.Same(t, first, meta)
	assert.Equal(t, "first", meta.Description())
	assert.True(t, meta.RequiresWrite())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Register_RejectsIncompleteMetadata(t *testing.T) {
	built := mustBuild(t, Define("a.b.c").Describe("tool").HandleFunc(noop))

	tests := []struct {
		name string
		meta *ToolMetadata
	}{
		{"nil", nil},
		{"zero value", &ToolMetadata{}},
		{"no handler", &ToolMetadata{name: "a.b.c", schema: built.schema, validator: built.validator}},
		{"no schema", &ToolMetadata{name: "a.b.c", handler: HandlerFunc(noop)}},
		{"no validator", &ToolMetadata{name: "a.b.c", handler: HandlerFunc(noop), schema: built.schema}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry()
			err := r.Register(tt.meta)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestRegistry_MustRegister_PanicsOnDuplicate(t *testing.T) {
	r := newTestRegistry()
	meta := mustBuild(t, Define("a.b.c").Describe("tool").HandleFunc(noop))

	r.MustRegister(meta)
	assert.PanicsWithError(t, fmt.Sprintf("%s: a.b.c", ErrDuplicateRegistration), func() {
		r.MustRegister(meta)
	})
}

func TestRegistry_Register_ConcurrentDuplicates(t *testing.T) {
	r := newTestRegistry()

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		dupes     atomic.Int32
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta := mustBuild(t, Define("race.tool.run").Describe(fmt.Sprintf("copy %d", i)).HandleFunc(noop))
			err := r.Register(meta)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrDuplicateRegistration):
				dupes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(49), dupes.Load())
}

func TestRegistry_GetByShortName(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Define("a.b.c").Describe("tool").HandleFunc(noop).Register())

	exact, ok := r.Get("a.b.c")
	require.True(t, ok)

	short, ok := r.GetByShortName("c")
	require.True(t, ok)
	assert.Same(t, exact, short)

	looked, ok := r.Lookup("c")
	require.True(t, ok)
	assert.Same(t, exact, looked)

	_, ok = r.GetByShortName("b")
	assert.False(t, ok)
	_, ok = r.Lookup("does.not.exist")
	assert.False(t, ok)
}

func TestRegistry_ShortNamePolicies(t *testing.T) {
	tests := []struct {
		policy   ShortNamePolicy
		wantName string
		wantOK   bool
	}{
		{policy: ShortNameLastWins, wantName: "c.d.save", wantOK: true},
		{policy: ShortNameFirstWins, wantName: "a.b.save", wantOK: true},
		{policy: ShortNameReject, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			r := newTestRegistry(WithShortNamePolicy(tt.policy))
			require.NoError(t, r.Define("a.b.save").Describe("first").HandleFunc(noop).Register())
			require.NoError(t, r.Define("c.d.save").Describe("second").HandleFunc(noop).Register())
			// a third registration must not revive a rejected short name
			require.NoError(t, r.Define("e.f.save").Describe("third").HandleFunc(noop).Register())

			meta, ok := r.GetByShortName("save")
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				if tt.policy == ShortNameLastWins {
					assert.Equal(t, "e.f.save", meta.Name())
				} else {
					assert.Equal(t, tt.wantName, meta.Name())
				}
			}

			// exact lookups are unaffected by the policy
			for _, name := range []string{"a.b.save", "c.d.save", "e.f.save"} {
				_, ok := r.Get(name)
				assert.True(t, ok, name)
			}
		})
	}
}

func TestParseShortNamePolicy(t *testing.T) {
	p, err := ParseShortNamePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ShortNameLastWins, p)

	p, err = ParseShortNamePolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, ShortNameReject, p)

	_, err = ParseShortNamePolicy("random")
	assert.Error(t, err)
}

func TestRegistry_GetAllNames_Snapshot(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Define("a.b.one").Describe("one").HandleFunc(noop).Register())
	require.NoError(t, r.Define("a.b.two").Describe("two").HandleFunc(noop).Register())

	names := r.GetAllNames()
	assert.Equal(t, map[string]struct{}{"a.b.one": {}, "a.b.two": {}}, names)

	delete(names, "a.b.one")
	assert.Equal(t, 2, r.Len())
	_, ok := r.Get("a.b.one")
	assert.True(t, ok)
}

func TestRegistry_ListTools(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Define("food.nutrition.getRecent").Describe("read").Category("nutrition").HandleFunc(noop).Register())
	require.NoError(t, r.Define("food.nutrition.addMeal").Describe("write").Category("nutrition").RequiresWrite().HandleFunc(noop).Register())
	require.NoError(t, r.Define("food.nutrition.purge").Describe("admin").Category("nutrition").RequiresAdmin().HandleFunc(noop).Register())
	require.NoError(t, r.Define("sys.health.ping").Describe("ping").Category("system").HandleFunc(noop).Register())

	names := func(tools []*ToolMetadata) []string {
		out := []string{}
		for _, m := range tools {
			out = append(out, m.Name())
		}
		return out
	}

	assert.Equal(t, []string{
		"food.nutrition.addMeal",
		"food.nutrition.getRecent",
		"food.nutrition.purge",
		"sys.health.ping",
	}, names(r.ListTools()))

	assert.Equal(t, []string{"sys.health.ping"}, names(r.ListTools(ByCategory("system"))))
	assert.Equal(t, []string{"food.nutrition.addMeal"}, names(r.ListTools(RequiringWrite(true))))
	assert.Equal(t, []string{"food.nutrition.purge"}, names(r.ListTools(RequiringAdmin(true))))
	assert.Equal(t, []string{"food.nutrition.getRecent"}, names(r.ListTools(ByCategory("nutrition"), RequiringWrite(false), RequiringAdmin(false))))

	assert.Equal(t, []string{"food.nutrition.getRecent", "sys.health.ping"}, names(r.ListTools(VisibleTo(permission.Demo("d")))))
	assert.Len(t, r.ListTools(VisibleTo(permission.User("u"))), 3)
	assert.Len(t, r.ListTools(VisibleTo(permission.Admin("a"))), 4)

	assert.Equal(t, []string{"nutrition", "system"}, r.Categories())
}

func TestRegistry_Descriptors(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Define("food.nutrition.addMeal").
		Describe("Record a meal").
		RequiresWrite().
		Param(toolschema.Required[string]("name", "Meal name")).
		WithDependency("store", "DataStore").
		WithCallerID().
		HandleFunc(noop).
		Register())

	descriptors := r.Descriptors()
	require.Len(t, descriptors, 1)

	d := descriptors[0]
	assert.Equal(t, "food.nutrition.addMeal", d.Name)
	assert.Equal(t, "Record a meal", d.Description)
	assert.True(t, d.RequiresWrite)
	assert.Equal(t, []string{"name"}, d.Schema.Names())
}

func TestRegistry_LookupDoesNotScaleLinearly(t *testing.T) {
	if testing.Short() {
		t.Skip("timing comparison")
	}

	measure := func(size int) time.Duration {
		r := newTestRegistry()
		for i := 0; i < size; i++ {
			r.MustRegister(mustBuild(t, Define(fmt.Sprintf("bulk.group%d.tool%d", i%7, i)).Describe("bulk").HandleFunc(noop)))
		}

		target := fmt.Sprintf("tool%d", size-1)
		const lookups = 20000
		start := time.Now()
		for i := 0; i < lookups; i++ {
			if _, ok := r.GetByShortName(target); !ok {
				t.Fatalf("lookup failed for %s", target)
			}
		}
		return time.Since(start)
	}

	// warm up
	measure(10)

	small := measure(10)
	large := measure(5000)

	// 500x more tools; a linear scan would be hundreds of times slower
	assert.Less(t, large, small*25+5*time.Millisecond)
}

func BenchmarkRegistry_GetByShortName(b *testing.B) {
	for _, size := range []int{10, 1000, 10000} {
		b.Run(fmt.Sprintf("tools=%d", size), func(b *testing.B) {
			r := newTestRegistry()
			for i := 0; i < size; i++ {
				r.MustRegister(mustBuild(b, Define(fmt.Sprintf("bulk.group.tool%d", i)).Describe("bulk").HandleFunc(noop)))
			}
			target := fmt.Sprintf("tool%d", size/2)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				r.GetByShortName(target)
			}
		})
	}
}
