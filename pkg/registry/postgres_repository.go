package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistryRepository implements RegistryRepository over a JSONB
// document table in a control database (see migrations/registry_db.sql).
type PostgresRegistryRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistryRepository creates a PostgreSQL-backed repository.
func NewPostgresRegistryRepository(pool *pgxpool.Pool) *PostgresRegistryRepository {
	return &PostgresRegistryRepository{pool: pool}
}

// Get returns the record for a scope, or ErrRecordNotFound.
func (r *PostgresRegistryRepository) Get(ctx context.Context, scope Scope) (*Record, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		"SELECT doc FROM role_registry WHERE doc_id = $1",
		scope.DocumentID(),
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get registry record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(doc, &record); err != nil {
		return nil, fmt.Errorf("failed to decode registry record: %w", err)
	}
	if record.Roles == nil {
		record.Roles = make(map[string]RoleState)
	}
	return &record, nil
}

// Put replaces the record for a scope, last-writer-wins.
func (r *PostgresRegistryRepository) Put(ctx context.Context, scope Scope, record *Record) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode registry record: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO role_registry (doc_id, project_id, instance_name, database_name, doc, last_updated)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (doc_id)
		DO UPDATE SET doc = EXCLUDED.doc, last_updated = now()`,
		scope.DocumentID(), scope.ProjectID, scope.InstanceName, scope.DatabaseName, doc)
	if err != nil {
		return fmt.Errorf("failed to put registry record: %w", err)
	}
	return nil
}

// Touch updates a single role's state inside the document. The
// read-modify-write runs in a transaction with the row locked.
func (r *PostgresRegistryRepository) Touch(ctx context.Context, scope Scope, roleName string, state RoleState) error {
	return r.update(ctx, scope, func(record *Record) {
		record.Roles[roleName] = state
	})
}

// AppendHistory appends an action entry to the document's history.
func (r *PostgresRegistryRepository) AppendHistory(ctx context.Context, scope Scope, entry HistoryEntry) error {
	return r.update(ctx, scope, func(record *Record) {
		record.History = append(record.History, entry)
	})
}

func (r *PostgresRegistryRepository) update(ctx context.Context, scope Scope, mutate func(*Record)) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin registry transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	record := NewRecord(scope)
	var doc []byte
	err = tx.QueryRow(ctx,
		"SELECT doc FROM role_registry WHERE doc_id = $1 FOR UPDATE",
		scope.DocumentID(),
	).Scan(&doc)
	if err == nil {
		if err := json.Unmarshal(doc, record); err != nil {
			return fmt.Errorf("failed to decode registry record: %w", err)
		}
		if record.Roles == nil {
			record.Roles = make(map[string]RoleState)
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to lock registry record: %w", err)
	}

	mutate(record)
	record.LastUpdated = time.Now().UTC()

	updated, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode registry record: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO role_registry (doc_id, project_id, instance_name, database_name, doc, last_updated)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (doc_id)
		DO UPDATE SET doc = EXCLUDED.doc, last_updated = now()`,
		scope.DocumentID(), scope.ProjectID, scope.InstanceName, scope.DatabaseName, updated)
	if err != nil {
		return fmt.Errorf("failed to update registry record: %w", err)
	}
	return tx.Commit(ctx)
}
