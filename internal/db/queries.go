package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/stash"
)

// Store persists bindings, ignored cells, tab names and batch history.
// It implements engine.ConfigStore and engine.Recorder.
type Store struct {
	db *sql.DB
}

// NewStore wraps an initialized database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// LoadBindings returns every binding in insertion order.
func (s *Store) LoadBindings(ctx context.Context) ([]stash.Binding, error) {
	query := `
		SELECT identity, group_name, rule_name, tab_index, tab_name
		FROM bindings
		ORDER BY rowid
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	bindings := make([]stash.Binding, 0)
	for rows.Next() {
		var b stash.Binding
		if err := rows.Scan(&b.Identity, &b.Group, &b.Rule, &b.Index, &b.Name); err != nil {
			return nil, errors.NewInternal(err)
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return bindings, nil
}

// GetBinding retrieves one binding by rule identity.
func (s *Store) GetBinding(ctx context.Context, identity string) (*stash.Binding, error) {
	query := `
		SELECT identity, group_name, rule_name, tab_index, tab_name
		FROM bindings
		WHERE identity = ?
	`

	var b stash.Binding
	err := s.db.QueryRowContext(ctx, query, identity).Scan(&b.Identity, &b.Group, &b.Rule, &b.Index, &b.Name)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("binding", identity)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return &b, nil
}

// SaveBindings upserts bindings by identity in one transaction.
func (s *Store) SaveBindings(ctx context.Context, bindings []stash.Binding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertBindings(ctx, tx, bindings); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ReplaceBindings makes bindings the whole binding table in one transaction:
// rows whose identity is not listed are deleted and the rest upserted.
func (s *Store) ReplaceBindings(ctx context.Context, bindings []stash.Binding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	identities := make([]string, len(bindings))
	for i, b := range bindings {
		identities[i] = b.Identity
	}
	if err := deleteBindingsExcept(ctx, tx, identities); err != nil {
		return err
	}
	if err := upsertBindings(ctx, tx, bindings); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func upsertBindings(ctx context.Context, tx *sql.Tx, bindings []stash.Binding) error {
	query := `
		INSERT INTO bindings (identity, group_name, rule_name, tab_index, tab_name, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
		  group_name = excluded.group_name,
		  rule_name  = excluded.rule_name,
		  tab_index  = excluded.tab_index,
		  tab_name   = excluded.tab_name,
		  updated_at = excluded.updated_at
		WHERE tab_index != excluded.tab_index OR tab_name != excluded.tab_name
		   OR group_name != excluded.group_name OR rule_name != excluded.rule_name
	`

	now := time.Now().Unix()
	for _, b := range bindings {
		if _, err := tx.ExecContext(ctx, query, b.Identity, b.Group, b.Rule, b.Index, b.Name, now); err != nil {
			return errors.NewInternal(err)
		}
	}
	return nil
}

// deleteBindingsExcept removes every binding whose identity is not listed.
func deleteBindingsExcept(ctx context.Context, tx *sql.Tx, identities []string) error {
	query := "DELETE FROM bindings"
	args := make([]any, 0, len(identities))
	if len(identities) > 0 {
		query += " WHERE identity NOT IN (?" + strings.Repeat(", ?", len(identities)-1) + ")"
		for _, id := range identities {
			args = append(args, id)
		}
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LoadIgnoredCells returns the persisted mask.
func (s *Store) LoadIgnoredCells(ctx context.Context) (stash.CellMask, error) {
	var mask stash.CellMask

	rows, err := s.db.QueryContext(ctx, "SELECT row, col FROM ignored_cells")
	if err != nil {
		return mask, errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var row, col int
		if err := rows.Scan(&row, &col); err != nil {
			return mask, errors.NewInternal(err)
		}
		mask.Set(col, row, true)
	}
	if err := rows.Err(); err != nil {
		return mask, errors.NewInternal(err)
	}

	return mask, nil
}

// SaveIgnoredCells replaces the persisted mask.
func (s *Store) SaveIgnoredCells(ctx context.Context, mask stash.CellMask) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM ignored_cells"); err != nil {
		return errors.NewInternal(err)
	}
	for _, c := range mask.Cells() {
		if _, err := tx.ExecContext(ctx, "INSERT INTO ignored_cells (row, col) VALUES (?, ?)", c.Y, c.X); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LoadContainerNames returns the cached live tab names in order.
func (s *Store) LoadContainerNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM tab_names ORDER BY position")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.NewInternal(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return names, nil
}

// SaveContainerNames replaces the cached tab names.
func (s *Store) SaveContainerNames(ctx context.Context, names []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM tab_names"); err != nil {
		return errors.NewInternal(err)
	}
	for i, name := range names {
		if _, err := tx.ExecContext(ctx, "INSERT INTO tab_names (position, name) VALUES (?, ?)", i, name); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// RecordBatch appends a batch to the history, assigning a ULID when the
// record has no id.
func (s *Store) RecordBatch(ctx context.Context, rec stash.BatchRecord) (stash.BatchRecord, error) {
	if rec.ID == "" {
		id, err := generateULID()
		if err != nil {
			return rec, errors.NewInternal(err)
		}
		rec.ID = id
	}

	query := `
		INSERT INTO batch_runs (
			id, started_at, finished_at, outcome, initial_tab,
			planned, clicked, skipped, code, message, simulated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.StartedAt, rec.FinishedAt, rec.Outcome, rec.Initial,
		rec.Planned, rec.Clicked, rec.Skipped,
		toNullString(rec.Code), toNullString(rec.Message), rec.Simulated,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return rec, errors.NewConflict("batch already recorded: " + rec.ID)
		}
		return rec, errors.NewInternal(err)
	}

	return rec, nil
}

// ListBatches returns batches newest first, optionally filtered by outcome,
// along with the total matching count.
func (s *Store) ListBatches(ctx context.Context, outcome string, limit, offset int) ([]stash.BatchRecord, int, error) {
	where := ""
	args := []any{}
	if outcome != "" {
		where = " WHERE outcome = ?"
		args = append(args, outcome)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM batch_runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT id, started_at, finished_at, outcome, initial_tab,
			planned, clicked, skipped, code, message, simulated
		FROM batch_runs` + where + `
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	records := make([]stash.BatchRecord, 0)
	for rows.Next() {
		var (
			r       stash.BatchRecord
			code    sql.NullString
			message sql.NullString
		)
		err := rows.Scan(
			&r.ID, &r.StartedAt, &r.FinishedAt, &r.Outcome, &r.Initial,
			&r.Planned, &r.Clicked, &r.Skipped, &code, &message, &r.Simulated,
		)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		r.Code = fromNullString(code)
		r.Message = fromNullString(message)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return records, total, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// toNullString maps "" to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// fromNullString maps NULL to "".
func fromNullString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
