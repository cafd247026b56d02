package storage

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/lvaldez/tarotdesk/libs/db"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the embedded schema. Every statement is idempotent
// (CREATE ... IF NOT EXISTS), so running it on each startup is safe.
func Migrate(ctx context.Context, pool *db.Pool) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			// The exclusion constraint cannot use IF NOT EXISTS; ignore the
			// duplicate error on re-runs.
			if IsDuplicateObject(err) {
				continue
			}
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func splitStatements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(sql, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
