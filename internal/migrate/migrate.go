// Package migrate applies the embedded SQL migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/clinical-insight/migrations"
)

// Commands accepted by Run.
var Commands = []string{"up", "down", "status", "version", "redo"}

// Up runs all pending migrations.
func Up(ctx context.Context, dsn string) error {
	return Run(ctx, dsn, "up")
}

// Run executes a goose command against the embedded migrations.
func Run(ctx context.Context, dsn, command string) error {
	if !supported(command) {
		return fmt.Errorf("unsupported migrate command %q", command)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.RunContext(ctx, command, db, ".")
}

func supported(cmd string) bool {
	for _, c := range Commands {
		if c == cmd {
			return true
		}
	}
	return false
}
