package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the sqlite database and creates the schema if needed.
// The path comes from SPRINT_DB_PATH, defaulting to ./sprints.db.
func InitDB() (*sql.DB, error) {
	path := os.Getenv("SPRINT_DB_PATH")
	if path == "" {
		path = "./sprints.db"
	}
	return InitDBAt(path)
}

// InitDBAt opens the sqlite database at an explicit path.
func InitDBAt(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create users table
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL,
		email TEXT NOT NULL,
		password TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create users table: %w", err)
	}

	// Create sprints table (one JSON document per sprint)
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sprints (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create sprints table: %w", err)
	}

	// Create comments table, queried by associated id
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		associated_id TEXT NOT NULL,
		associated_type TEXT NOT NULL,
		user_id TEXT NOT NULL,
		description TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create comments table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_comments_associated
		ON comments (associated_id)`)
	if err != nil {
		return nil, fmt.Errorf("failed to index comments table: %w", err)
	}

	// Create change history table, append-only
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS changes (
		id TEXT PRIMARY KEY,
		associated_id TEXT NOT NULL,
		associated_type TEXT NOT NULL,
		field TEXT NOT NULL,
		old_value TEXT NOT NULL,
		new_value TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create changes table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_changes_associated
		ON changes (associated_id)`)
	if err != nil {
		return nil, fmt.Errorf("failed to index changes table: %w", err)
	}

	log.Println("Database initialized successfully")
	return db, nil
}
