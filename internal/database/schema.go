package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// statements splits an embedded schema file on ";" terminators. The schema
// files contain no procedures or string literals with semicolons.
func statements(name string) ([]string, error) {
	raw, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, stmt := range strings.Split(string(raw), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// ApplyMySQLSchema creates the tables if they do not exist.
func ApplyMySQLSchema(ctx context.Context, db *sql.DB) error {
	stmts, err := statements("mysql.sql")
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// ApplyPostgresSchema creates the tables if they do not exist.
func ApplyPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts, err := statements("postgres.sql")
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
