// Package migration creates the governance schema and seeds default policy.
package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docgov/internal/model"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id           UUID        PRIMARY KEY,
  owner_id     TEXT        NOT NULL,
  role         TEXT        NOT NULL,
  filename     TEXT        NOT NULL,
  content_type TEXT        NOT NULL,
  storage_key  TEXT        NOT NULL,
  raw_text     TEXT        NOT NULL DEFAULT '',
  doc_type     TEXT        NOT NULL DEFAULT '',
  status       TEXT        NOT NULL CHECK (status IN ('ingested', 'pending_review', 'completed', 'rejected')),
  reason       TEXT        NOT NULL DEFAULT '',
  attempts     INTEGER     NOT NULL DEFAULT 0,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  pending_audit JSONB
);`,
	},
	{
		Name: "create_index_documents_status_updated_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_status_updated_at ON documents (status, updated_at);`,
	},
	{
		Name: "create_index_documents_owner_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_owner_id ON documents (owner_id);`,
	},
	{
		Name: "create_index_documents_pending_audit",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_pending_audit ON documents (updated_at) WHERE pending_audit IS NOT NULL;`,
	},
	{
		Name: "create_table_summaries",
		SQL: `CREATE TABLE IF NOT EXISTS summaries (
  doc_id       UUID        PRIMARY KEY REFERENCES documents (id),
  summary_text TEXT        NOT NULL,
  notes_json   TEXT        NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_policies",
		SQL: `CREATE TABLE IF NOT EXISTS policies (
  key_name   TEXT        PRIMARY KEY,
  value      TEXT        NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_audit_entries",
		SQL: `CREATE TABLE IF NOT EXISTS audit_entries (
  id             UUID        PRIMARY KEY,
  ts             TIMESTAMPTZ NOT NULL,
  doc_id         UUID        NOT NULL,
  owner_id       TEXT        NOT NULL,
  kind           TEXT        NOT NULL CHECK (kind IN ('summarized', 'flagged')),
  override       BOOLEAN     NOT NULL DEFAULT false,
  doc_type       TEXT        NOT NULL DEFAULT '',
  summary_length INTEGER     NOT NULL DEFAULT 0,
  reason         TEXT        NOT NULL DEFAULT '',
  role           TEXT        NOT NULL DEFAULT '',
  action         TEXT        NOT NULL DEFAULT '',
  reviewer_id    TEXT        NOT NULL DEFAULT ''
);`,
	},
	{
		Name: "create_index_audit_entries_doc_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_audit_entries_doc_id ON audit_entries (doc_id, ts);`,
	},
}

// DefaultPolicies is the policy written on first start.
func DefaultPolicies() map[string]string {
	keywords, _ := json.Marshal([]string{"self-harm", "hate", "terror"})
	templates, _ := json.Marshal(map[string]string{
		"academic": "Write a concise 500-word abstract of this academic paper.",
		"news":     "List 5 key bullet points summarizing this news article.",
		"slides":   "Generate a 10-point outline of this presentation.",
		"other":    model.DefaultTemplate,
	})
	return map[string]string{
		model.PolicyProhibitedKeywords: string(keywords),
		model.PolicyMaxWordsFree:       "2000",
		model.PolicyTemplates:          string(templates),
	}
}

const seedPolicySQL = `INSERT INTO policies (key_name, value) VALUES ($1, $2) ON CONFLICT (key_name) DO NOTHING`

// seedOrder keeps seeding deterministic.
var seedOrder = []string{model.PolicyProhibitedKeywords, model.PolicyMaxWordsFree, model.PolicyTemplates}

// EnsureMigrated creates the schema when the documents table is missing and
// then seeds any policy key that has no value yet.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *zap.Logger, dbHost string) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "database"), zap.String("db_host", dbHost))
	start := time.Now()

	log.Info("db_migration_check", zap.String("status", "starting"))

	var exists bool
	query := "SELECT to_regclass('public.documents') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			zap.String("status", "error"),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip", zap.String("status", "success"), zap.String("reason", "schema already exists"))
	} else {
		log.Info("db_migration_start", zap.String("status", "in_progress"))
		for _, step := range steps {
			stepStart := time.Now()
			if _, err := db.ExecContext(ctx, step.SQL); err != nil {
				log.Error("db_migration_failed",
					zap.String("status", "error"),
					zap.String("migration_step", step.Name),
					zap.Error(err),
					zap.Duration("duration", time.Since(start)),
				)
				return fmt.Errorf("migration step %s failed: %w", step.Name, err)
			}
			log.Info("db_migration_step",
				zap.String("status", "success"),
				zap.String("migration_step", step.Name),
				zap.Duration("step_duration", time.Since(stepStart)),
			)
		}
	}

	if err := seedPolicies(ctx, db); err != nil {
		log.Error("db_policy_seed_failed", zap.String("status", "error"), zap.Error(err))
		return err
	}

	log.Info("db_migration_success", zap.String("status", "success"), zap.Duration("duration", time.Since(start)))
	return nil
}

func seedPolicies(ctx context.Context, db *sql.DB) error {
	defaults := DefaultPolicies()
	for _, key := range seedOrder {
		if _, err := db.ExecContext(ctx, seedPolicySQL, key, defaults[key]); err != nil {
			return fmt.Errorf("seed policy %s: %w", key, err)
		}
	}
	return nil
}
