package nutrition

import (
	"context"
	"math"
	"strings"

	"github.com/harun/toolgate/pkg/deps"
	"github.com/harun/toolgate/pkg/toolregistry"
	"github.com/harun/toolgate/pkg/toolschema"
)

// Dependency keys the nutrition tools resolve at call time
const (
	DataStoreKey deps.Key = "DataStore"
	AIServiceKey deps.Key = "AIService"
)

const (
	category      = "nutrition"
	maxRecentRows = 100
)

type addMealArgs struct {
	Description string `json:"description" description:"What was eaten"`
	Calories    int    `json:"calories" description:"Calories in the meal" default:"0"`
}

// RegisterTools declares the nutrition tools on reg
func RegisterTools(reg *toolregistry.Registry) error {
	defs := []*toolregistry.Builder{
		reg.Define("food.nutrition.addMeal").
			Describe("Log a meal for the calling user").
			Category(category).
			RequiresWrite().
			ParamsFrom(toolschema.FromStruct[addMealArgs]()).
			WithDependency("store", DataStoreKey).
			WithCallerID().
			HandleFunc(addMeal),

		reg.Define("food.nutrition.getRecent").
			Describe("List the calling user's most recent meals, newest first").
			Category(category).
			Param(toolschema.Optional("limit", "Maximum number of meals to return", 10)).
			WithDependency("store", DataStoreKey).
			WithCallerID().
			HandleFunc(getRecent),

		reg.Define("food.nutrition.estimate").
			Describe("Estimate calories and macronutrients of a meal description").
			Category(category).
			Param(toolschema.Required[string]("description", "Free-text meal description")).
			WithDependency("ai", AIServiceKey).
			HandleFunc(estimate),

		reg.Define("food.nutrition.purge").
			Describe("Delete every logged meal of a user").
			Category(category).
			RequiresAdmin().
			Param(toolschema.Required[string]("target_user_id", "User whose meals are deleted")).
			WithDependency("store", DataStoreKey).
			HandleFunc(purge),

		reg.Define("food.units.toGrams").
			Describe("Convert a food quantity to grams").
			Category(category).
			Param(
				toolschema.Required[float64]("amount", "Quantity in the given unit"),
				toolschema.Required[string]("unit", "One of g, kg, mg, oz, lb"),
			).
			Handle(toolregistry.LegacyAdapter{Fn: toGrams}),
	}

	for _, b := range defs {
		if err := b.Register(); err != nil {
			return err
		}
	}
	return nil
}

func addMeal(ctx context.Context, args toolregistry.Args) (any, error) {
	store, err := toolregistry.Dep[DataStore](args, "store")
	if err != nil {
		return nil, err
	}
	userID, _ := args.CallerID()

	description, err := toolregistry.Arg[string](args, "description")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(description) == "" {
		return nil, toolregistry.InvalidArgumentf("description cannot be empty")
	}
	calories, err := toolregistry.ArgOr(args, "calories", 0)
	if err != nil {
		return nil, err
	}
	if calories < 0 {
		return nil, toolregistry.InvalidArgumentf("calories cannot be negative")
	}

	return store.AddMeal(ctx, Meal{UserID: userID, Description: description, Calories: calories})
}

func getRecent(ctx context.Context, args toolregistry.Args) (any, error) {
	store, err := toolregistry.Dep[DataStore](args, "store")
	if err != nil {
		return nil, err
	}
	userID, _ := args.CallerID()

	limit, err := toolregistry.ArgOr(args, "limit", 10)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > maxRecentRows {
		return nil, toolregistry.InvalidArgumentf("limit must be between 1 and %d", maxRecentRows)
	}

	meals, err := store.RecentMeals(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, m := range meals {
		total += m.Calories
	}
	return map[string]any{"meals": meals, "total_calories": total}, nil
}

func estimate(ctx context.Context, args toolregistry.Args) (any, error) {
	ai, err := toolregistry.Dep[Estimator](args, "ai")
	if err != nil {
		return nil, err
	}

	description, err := toolregistry.Arg[string](args, "description")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(description) == "" {
		return nil, toolregistry.InvalidArgumentf("description cannot be empty")
	}

	return ai.Estimate(ctx, description)
}

func purge(ctx context.Context, args toolregistry.Args) (any, error) {
	store, err := toolregistry.Dep[DataStore](args, "store")
	if err != nil {
		return nil, err
	}

	target, err := toolregistry.Arg[string](args, "target_user_id")
	if err != nil {
		return nil, err
	}

	deleted, err := store.Purge(ctx, target)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user_id": target, "deleted": deleted}, nil
}

var gramsPerUnit = map[string]float64{
	"g":  1,
	"kg": 1000,
	"mg": 0.001,
	"oz": 28.349523125,
	"lb": 453.59237,
}

func toGrams(params map[string]interface{}) (interface{}, error) {
	amount, ok := params["amount"].(float64)
	if !ok {
		return nil, toolregistry.InvalidArgumentf("amount must be a number")
	}
	unit, _ := params["unit"].(string)

	factor, ok := gramsPerUnit[strings.ToLower(unit)]
	if !ok {
		return nil, toolregistry.InvalidArgumentf("unknown unit %q", unit)
	}
	if amount < 0 {
		return nil, toolregistry.InvalidArgumentf("amount cannot be negative")
	}

	return map[string]interface{}{
		"grams": math.Round(amount*factor*100) / 100,
	}, nil
}
