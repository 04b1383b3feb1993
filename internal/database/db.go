package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	conn *sql.DB
}

// New connects to PostgreSQL and verifies the connection
func New(connStr string) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the underlying connection pool
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable
func (db *DB) Ping() error {
	return db.conn.Ping()
}
