package schema

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schemaSQL string

// requiredTables are the tables whose absence triggers bootstrap.
var requiredTables = []string{"storage_cache", "customers", "thread_ticket_mappings"}

const (
	statementTimeout = 60 * time.Second
	bootstrapTimeout = 120 * time.Second
)

// Ensure detects the persistent schema and creates it when missing.
//
// Detection and creation are not serialised across replicas; concurrent
// startups converge because every statement is IF NOT EXISTS / OR REPLACE.
// The whole operation is capped at 120s and a timeout is a fatal startup
// error for the caller.
func Ensure(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	missing, err := missingTables(ctx, pool)
	if err != nil {
		return fmt.Errorf("schema detection: %w", err)
	}
	if len(missing) == 0 {
		log.Info().Msg("persistent schema present, skipping bootstrap")
		return nil
	}
	log.Info().Strs("missing_tables", missing).Msg("bootstrapping persistent schema")

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("schema bootstrap: acquire connection: %w", err)
	}
	defer conn.Release()

	// Session-scoped so a single runaway DDL statement cannot hold the
	// bootstrap past its budget.
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = '%ds'", int(statementTimeout.Seconds()))); err != nil {
		return fmt.Errorf("schema bootstrap: set statement_timeout: %w", err)
	}

	statements := SplitStatements(schemaSQL)
	for i, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema bootstrap: statement %d/%d: %w", i+1, len(statements), err)
		}
	}

	log.Info().Int("statements", len(statements)).Msg("persistent schema created")
	return nil
}

func missingTables(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = ANY($1)
	`, requiredTables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := make(map[string]bool, len(requiredTables))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, t := range requiredTables {
		if !present[t] {
			missing = append(missing, t)
		}
	}
	return missing, nil
}
