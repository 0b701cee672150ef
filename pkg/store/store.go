// Package store implements the engine's storage contracts on top of
// ent's dialect/sql builder. Every statement runs on the driver or on an
// explicit transaction so SQLite and PostgreSQL behave alike.
package store

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/territoryengine/pkg/domain"
)

var validate = validator.New()

// validateModel enforces the struct's validate tags before a write.
func validateModel(kind string, v any) error {
	if err := validate.Struct(v); err != nil {
		return domain.NewValidationError(fmt.Sprintf("invalid %s: %v", kind, err))
	}
	return nil
}

// scanner is the subset of *sql.Rows a row mapper needs.
type scanner interface {
	Scan(dest ...any) error
}

func queryRows(ctx context.Context, q dialect.ExecQuerier, query string, args []any, scan func(scanner) error) error {
	rows := &sql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func queryCount(ctx context.Context, q dialect.ExecQuerier, query string, args []any) (int, error) {
	var count int
	err := queryRows(ctx, q, query, args, func(s scanner) error {
		return s.Scan(&count)
	})
	return count, err
}

func execAffected(ctx context.Context, q dialect.ExecQuerier, query string, args []any) (int64, error) {
	var res stdsql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) stdsql.NullString {
	return stdsql.NullString{String: s, Valid: s != ""}
}

func utc(t time.Time) time.Time {
	return t.UTC()
}
