package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/internal/infrastructure/persistence/sqlite"
)

// executor covers both *sql.DB and *sql.Tx
type executor = sqlite.Executor

// getExecutor returns the context's transaction or db
func getExecutor(ctx context.Context, db *sql.DB) executor {
	return sqlite.ExecutorFor(ctx, db)
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func parseStoredDate(s string) (entity.Date, error) {
	if s == "" {
		return entity.Date{}, nil
	}
	return entity.ParseDate(s)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
