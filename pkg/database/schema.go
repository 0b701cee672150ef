package database

import (
	"context"
	"fmt"
	"log"
	"strings"

	"entgo.io/ent/dialect"
)

// columnTypes holds the dialect-specific spelling of the column types we use.
type columnTypes struct {
	Timestamp string
	Float     string
}

func typesFor(d string) columnTypes {
	if d == dialect.Postgres {
		return columnTypes{Timestamp: "TIMESTAMPTZ", Float: "DOUBLE PRECISION"}
	}
	// go-sqlite3 only converts columns declared exactly as TIMESTAMP to time.Time.
	return columnTypes{Timestamp: "TIMESTAMP", Float: "REAL"}
}

// schema returns the DDL statements for the engine tables.
func schema(d string) []string {
	t := typesFor(d)
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS territories (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type VARCHAR(32) NOT NULL,
			status VARCHAR(32) NOT NULL,
			user_id VARCHAR(36),
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_territories_status ON territories (status)`,
		`CREATE TABLE IF NOT EXISTS territory_rules (
			id VARCHAR(36) PRIMARY KEY,
			territory_id VARCHAR(36) NOT NULL REFERENCES territories (id) ON DELETE CASCADE,
			type VARCHAR(32) NOT NULL,
			field VARCHAR(128) NOT NULL,
			operator VARCHAR(32) NOT NULL,
			value TEXT,
			priority INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at {{ts}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_territory_rules_territory ON territory_rules (territory_id, is_active, priority)`,
		`CREATE TABLE IF NOT EXISTS territory_assignments (
			id VARCHAR(36) PRIMARY KEY,
			territory_id VARCHAR(36) NOT NULL REFERENCES territories (id) ON DELETE CASCADE,
			assignable_type VARCHAR(32) NOT NULL,
			assignable_id VARCHAR(36) NOT NULL,
			assigned_by VARCHAR(36),
			assignment_type VARCHAR(16) NOT NULL,
			assigned_at {{ts}} NOT NULL,
			is_current BOOLEAN NOT NULL DEFAULT TRUE,
			superseded_at {{ts}}
		)`,
		`CREATE INDEX IF NOT EXISTS idx_territory_assignments_territory ON territory_assignments (territory_id, is_current, assigned_at)`,
		`CREATE INDEX IF NOT EXISTS idx_territory_assignments_assignable ON territory_assignments (assignable_type, assignable_id)`,
		// At most one current assignment per entity.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_territory_assignments_current ON territory_assignments (assignable_type, assignable_id) WHERE is_current`,
		`CREATE TABLE IF NOT EXISTS leads (
			id VARCHAR(36) PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			lead_value {{float}} NOT NULL DEFAULT 0,
			stage_code VARCHAR(32) NOT NULL,
			source VARCHAR(64) NOT NULL DEFAULT '',
			industry VARCHAR(64) NOT NULL DEFAULT '',
			country VARCHAR(64) NOT NULL DEFAULT '',
			region VARCHAR(64) NOT NULL DEFAULT '',
			city VARCHAR(128) NOT NULL DEFAULT '',
			user_id VARCHAR(36),
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS organizations (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			industry VARCHAR(64) NOT NULL DEFAULT '',
			country VARCHAR(64) NOT NULL DEFAULT '',
			region VARCHAR(64) NOT NULL DEFAULT '',
			city VARCHAR(128) NOT NULL DEFAULT '',
			employee_count INTEGER NOT NULL DEFAULT 0,
			annual_revenue {{float}} NOT NULL DEFAULT 0,
			user_id VARCHAR(36),
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS persons (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL DEFAULT '',
			job_title VARCHAR(128) NOT NULL DEFAULT '',
			organization_id VARCHAR(36),
			country VARCHAR(64) NOT NULL DEFAULT '',
			city VARCHAR(128) NOT NULL DEFAULT '',
			user_id VARCHAR(36),
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL
		)`,
	}

	r := strings.NewReplacer("{{ts}}", t.Timestamp, "{{float}}", t.Float)
	for i := range stmts {
		stmts[i] = r.Replace(stmts[i])
	}
	return stmts
}

// Migrate creates the engine tables and indexes when missing.
func (c *Client) Migrate(ctx context.Context) error {
	for _, stmt := range schema(c.Dialect()) {
		if err := c.Driver.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("failed applying schema: %w", err)
		}
	}

	log.Println("✅ Database schema applied")
	return nil
}
