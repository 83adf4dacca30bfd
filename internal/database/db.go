package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// schema holds the tables owned by the auth subsystem. Statements are
// idempotent so every worker can run them at startup; memo/category
// tables belong to the CRUD service and are not created here.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(190) NOT NULL UNIQUE,
		password_hash VARCHAR(120) NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'REGULAR',
		status VARCHAR(16) NOT NULL DEFAULT 'NEW',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS config (
		id TINYINT UNSIGNED PRIMARY KEY,
		enable_auth BOOLEAN NOT NULL DEFAULT TRUE,
		allowed_domains TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		id CHAR(36) PRIMARY KEY,
		purpose VARCHAR(32) NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		consumed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_tokens_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id CHAR(36) PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		role VARCHAR(16) NOT NULL,
		issued_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		last_activity DATETIME NOT NULL,
		KEY idx_sessions_user (user_id)
	)`,
}

// Migrate creates the auth tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
