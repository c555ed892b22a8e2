// Package database opens the MySQL pool and applies the bundled schema.
package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/iliyamo/hotel-reservation/internal/logger"
)

//go:embed schema.sql
var schema string

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps stay dates on UTC midnight
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings. Commits hold a row lock across the gateway call, so
	// keep enough connections for concurrent bookings.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies schema.sql.  Every statement is CREATE ... IF NOT
// EXISTS so running it on each start is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := Statements()
	logger.DatabaseCall("migrate", "statements", len(stmts))
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.DatabaseResult("migrate", i, err)
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	logger.DatabaseResult("migrate", len(stmts), nil)
	return nil
}

// Statements splits the embedded schema on semicolons, dropping comment
// lines.
func Statements() []string {
	var out []string
	for _, chunk := range strings.Split(schema, ";") {
		var b strings.Builder
		for _, line := range strings.Split(chunk, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
