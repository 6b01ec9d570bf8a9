// Package nutrition is a sample tool module: meal logging backed by SQLite and
// calorie estimates from an AI service. Its tools take both collaborators as
// runtime dependencies so they can be swapped per request.
package nutrition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harun/toolgate/internal/tracing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "toolgate.nutrition"

// Meal is one logged meal
type Meal struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	Calories    int       `json:"calories"`
	EatenAt     time.Time `json:"eaten_at"`
}

// DataStore persists meals per user
type DataStore interface {
	AddMeal(ctx context.Context, meal Meal) (Meal, error)
	RecentMeals(ctx context.Context, userID string, limit int) ([]Meal, error)
	Purge(ctx context.Context, userID string) (int64, error)
}

// SQLiteStore is the DataStore backed by a SQLite file
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "nutrition_store").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Debug().Str("path", path).Msg("Meal store opened")
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS meals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			description TEXT NOT NULL,
			calories INTEGER NOT NULL,
			eaten_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_meals_user_eaten ON meals(user_id, eaten_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AddMeal stores meal and returns it with its assigned id. A zero EatenAt is
// set to now.
func (s *SQLiteStore) AddMeal(ctx context.Context, meal Meal) (Meal, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "nutrition.add_meal",
		attribute.String("user_id", meal.UserID))
	defer span.End()

	if meal.EatenAt.IsZero() {
		meal.EatenAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO meals (user_id, description, calories, eaten_at) VALUES (?, ?, ?, ?)",
		meal.UserID, meal.Description, meal.Calories, meal.EatenAt.UnixNano())
	if err != nil {
		return Meal{}, fmt.Errorf("failed to insert meal: %w", err)
	}

	meal.ID, err = res.LastInsertId()
	if err != nil {
		return Meal{}, fmt.Errorf("failed to read meal id: %w", err)
	}
	return meal, nil
}

// RecentMeals returns up to limit meals for userID, newest first
func (s *SQLiteStore) RecentMeals(ctx context.Context, userID string, limit int) ([]Meal, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "nutrition.recent_meals",
		attribute.String("user_id", userID), attribute.Int("limit", limit))
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, description, calories, eaten_at FROM meals
		 WHERE user_id = ? ORDER BY eaten_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}
	defer rows.Close()

	meals := []Meal{}
	for rows.Next() {
		var (
			m       Meal
			eatenAt int64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Description, &m.Calories, &eatenAt); err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		m.EatenAt = time.Unix(0, eatenAt).UTC()
		meals = append(meals, m)
	}
	return meals, rows.Err()
}

// Purge deletes every meal of userID and reports how many were removed
func (s *SQLiteStore) Purge(ctx context.Context, userID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "nutrition.purge",
		attribute.String("user_id", userID))
	defer span.End()

	res, err := s.db.ExecContext(ctx, "DELETE FROM meals WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge meals: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("user_id", userID).Int64("deleted", n).Msg("Meals purged")
	return n, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
