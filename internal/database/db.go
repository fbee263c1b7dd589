package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// ErrUnavailable marks a transient connectivity failure. Callers retry
// with backoff; for the consumer the record stays unacknowledged.
var ErrUnavailable = errors.New("store unavailable")

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	// Read all migration files
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	// Filter and sort SQL files
	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	// Execute each migration
	for _, filename := range sqlFiles {
		fmt.Printf("Running migration: %s\n", filename)

		filePath := filepath.Join(migrationsDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	fmt.Println("All migrations completed successfully")
	return nil
}

// wrapErr classifies a driver error: a pq error means the server
// answered and the failure is permanent for this statement; anything
// else is a connectivity problem and marked ErrUnavailable.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return fmt.Errorf("failed to %s: %w: %v", op, ErrUnavailable, err)
}

// UpsertLocation inserts or updates a monitored location
func (db *DB) UpsertLocation(ctx context.Context, loc *Location) error {
	query := `
		INSERT INTO locations (name, station_id, latitude, longitude)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET station_id = EXCLUDED.station_id,
		    latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    updated_at = CURRENT_TIMESTAMP
	`
	_, err := db.ExecContext(ctx, query, loc.Name, loc.StationID, loc.Latitude, loc.Longitude)
	return wrapErr("upsert location", err)
}

// GetLocations retrieves all monitored locations
func (db *DB) GetLocations(ctx context.Context) ([]*Location, error) {
	query := `
		SELECT name, station_id, latitude, longitude, created_at, updated_at
		FROM locations
		ORDER BY name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr("query locations", err)
	}
	defer rows.Close()

	var locations []*Location
	for rows.Next() {
		var loc Location
		if err := rows.Scan(
			&loc.Name,
			&loc.StationID,
			&loc.Latitude,
			&loc.Longitude,
			&loc.CreatedAt,
			&loc.UpdatedAt,
		); err != nil {
			return nil, wrapErr("scan location", err)
		}
		locations = append(locations, &loc)
	}

	return locations, rows.Err()
}
