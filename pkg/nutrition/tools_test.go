package nutrition

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/pkg/deps"
	"github.com/harun/toolgate/pkg/dispatch"
	"github.com/harun/toolgate/pkg/permission"
	"github.com/harun/toolgate/pkg/toolregistry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEstimator struct {
	mock.Mock
}

func (m *mockEstimator) Estimate(ctx context.Context, description string) (Estimate, error) {
	args := m.Called(ctx, description)
	return args.Get(0).(Estimate), args.Error(1)
}

type fixture struct {
	registry   *toolregistry.Registry
	dispatcher *dispatch.Dispatcher
	store      *SQLiteStore
	estimator  *mockEstimator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := toolregistry.New(toolregistry.WithLogger(zerolog.Nop()))
	require.NoError(t, RegisterTools(reg))

	store := newTestStore(t)
	est := &mockEstimator{}

	resolver := deps.NewResolver()
	require.NoError(t, resolver.ProvideValue(DataStoreKey, store))
	require.NoError(t, resolver.ProvideValue(AIServiceKey, est))

	d := dispatch.New(reg, resolver,
		dispatch.WithLogger(zerolog.Nop()),
		dispatch.WithAuditLogger(observability.NewAuditLogger(io.Discard)),
	)
	require.NoError(t, d.Validate())

	return &fixture{registry: reg, dispatcher: d, store: store, estimator: est}
}

func TestRegisterTools_Metadata(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 5, f.registry.Len())

	addMeal, ok := f.registry.Get("food.nutrition.addMeal")
	require.True(t, ok)
	assert.True(t, addMeal.RequiresWrite())
	assert.True(t, addMeal.AcceptsCaller())
	assert.Equal(t, []string{"description", "calories"}, addMeal.Schema().Names())
	assert.True(t, addMeal.Schema().IsRequired("description"))
	assert.False(t, addMeal.Schema().IsRequired("calories"))

	purgeTool, ok := f.registry.Get("food.nutrition.purge")
	require.True(t, ok)
	assert.True(t, purgeTool.RequiresAdmin())
	assert.Equal(t, []string{"target_user_id"}, purgeTool.Schema().Names())

	assert.Equal(t, []string{"nutrition"}, f.registry.Categories())
}

func TestRegisterTools_Twice(t *testing.T) {
	reg := toolregistry.New(toolregistry.WithLogger(zerolog.Nop()))
	require.NoError(t, RegisterTools(reg))

	err := RegisterTools(reg)
	assert.ErrorIs(t, err, toolregistry.ErrDuplicateRegistration)
}

func TestAddMealAndGetRecent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := permission.User("alice")

	res := f.dispatcher.Dispatch(ctx, "food.nutrition.addMeal",
		map[string]any{"description": "porridge", "calories": float64(320)}, alice)
	require.True(t, res.OK(), "%v", res.Err)
	meal := res.Payload.(Meal)
	assert.Equal(t, "alice", meal.UserID)
	assert.Equal(t, 320, meal.Calories)

	// user_id is bound from the caller, never from arguments
	res = f.dispatcher.Dispatch(ctx, "food.nutrition.addMeal",
		map[string]any{"description": "cake", "user_id": "bob"}, alice)
	require.True(t, res.OK())
	assert.Equal(t, "alice", res.Payload.(Meal).UserID)
	assert.Equal(t, 0, res.Payload.(Meal).Calories)

	res = f.dispatcher.Dispatch(ctx, "getRecent", map[string]any{"limit": float64(5)}, alice)
	require.True(t, res.OK())
	payload := res.Payload.(map[string]any)
	assert.Len(t, payload["meals"], 2)
	assert.Equal(t, 320, payload["total_calories"])

	res = f.dispatcher.Dispatch(ctx, "food.nutrition.getRecent", nil, permission.Demo("bob"))
	require.True(t, res.OK())
	assert.Empty(t, res.Payload.(map[string]any)["meals"])
}

func TestAddMeal_Permissions(t *testing.T) {
	f := newFixture(t)

	res := f.dispatcher.Dispatch(context.Background(), "food.nutrition.addMeal",
		map[string]any{"description": "porridge"}, permission.Demo("guest"))

	assert.Equal(t, dispatch.WritePermissionDenied, res.Kind())

	meals, err := f.store.RecentMeals(context.Background(), "guest", 10)
	require.NoError(t, err)
	assert.Empty(t, meals)
}

func TestNutritionTools_InvalidArguments(t *testing.T) {
	f := newFixture(t)
	alice := permission.User("alice")

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"missing description", "food.nutrition.addMeal", map[string]any{}},
		{"blank description", "food.nutrition.addMeal", map[string]any{"description": "  "}},
		{"negative calories", "food.nutrition.addMeal", map[string]any{"description": "x", "calories": float64(-1)}},
		{"limit too large", "food.nutrition.getRecent", map[string]any{"limit": float64(1000)}},
		{"limit zero", "food.nutrition.getRecent", map[string]any{"limit": float64(0)}},
		{"unknown unit", "food.units.toGrams", map[string]any{"amount": float64(1), "unit": "cup"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.dispatcher.Dispatch(context.Background(), tt.tool, tt.args, alice)
			assert.Equal(t, dispatch.InvalidArguments, res.Kind(), "%v", res.Err)
		})
	}
}

func TestEstimate(t *testing.T) {
	f := newFixture(t)
	want := Estimate{Calories: 410, Protein: 25}
	f.estimator.On("Estimate", mock.Anything, "chicken wrap").Return(want, nil).Once()

	res := f.dispatcher.Dispatch(context.Background(), "food.nutrition.estimate",
		map[string]any{"description": "chicken wrap"}, permission.Demo("guest"))

	require.True(t, res.OK())
	assert.Equal(t, want, res.Payload)
	f.estimator.AssertExpectations(t)
}

func TestEstimate_ServiceFailureIsTerse(t *testing.T) {
	f := newFixture(t)
	f.estimator.On("Estimate", mock.Anything, "soup").
		Return(Estimate{}, errors.New("401 invalid x-api-key sk-ant-secret")).Once()

	res := f.dispatcher.Dispatch(context.Background(), "food.nutrition.estimate",
		map[string]any{"description": "soup"}, permission.User("alice"))

	assert.Equal(t, dispatch.HandlerError, res.Kind())
	assert.NotContains(t, res.Err.Message, "sk-ant-secret")
	assert.NotEmpty(t, res.Err.CorrelationID)
}

func TestEstimate_OverrideWithContainer(t *testing.T) {
	f := newFixture(t)
	override := &mockEstimator{}
	override.On("Estimate", mock.Anything, "rice").Return(Estimate{Calories: 200}, nil).Once()

	c := deps.NewContainer()
	c.SetOverride(AIServiceKey, Estimator(override))

	res := f.dispatcher.WithContainer(c).Dispatch(context.Background(), "food.nutrition.estimate",
		map[string]any{"description": "rice"}, permission.User("alice"))

	require.True(t, res.OK())
	assert.Equal(t, Estimate{Calories: 200}, res.Payload)
	override.AssertExpectations(t)
	f.estimator.AssertNotCalled(t, "Estimate", mock.Anything, mock.Anything)
}

func TestPurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, desc := range []string{"a", "b"} {
		_, err := f.store.AddMeal(ctx, Meal{UserID: "bob", Description: desc, Calories: 1})
		require.NoError(t, err)
	}

	res := f.dispatcher.Dispatch(ctx, "food.nutrition.purge",
		map[string]any{"target_user_id": "bob"}, permission.User("alice"))
	assert.Equal(t, dispatch.AdminPermissionDenied, res.Kind())

	res = f.dispatcher.Dispatch(ctx, "food.nutrition.purge",
		map[string]any{"target_user_id": "bob"}, permission.Admin("root"))
	require.True(t, res.OK())
	assert.Equal(t, int64(2), res.Payload.(map[string]any)["deleted"])
}

func TestToGrams(t *testing.T) {
	f := newFixture(t)

	res := f.dispatcher.Dispatch(context.Background(), "toGrams",
		map[string]any{"amount": float64(2), "unit": "OZ"}, permission.Demo("guest"))

	require.True(t, res.OK())
	assert.Equal(t, map[string]interface{}{"grams": 56.7}, res.Payload)
}
