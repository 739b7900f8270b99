package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
)

// PostgresSchema creates the state tables. Every statement is idempotent.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS fusion_thresholds (
		id         SMALLINT PRIMARY KEY,
		data       JSONB NOT NULL,
		version    BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fusion_reliability (
		module_id  TEXT PRIMARY KEY,
		data       JSONB NOT NULL,
		version    BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// PostgresStore keeps thresholds and reliability durable. Writes are
// compare-and-set: insert when the expected version is 0, otherwise update the
// row still at the expected version.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
	now     func() time.Time
}

var _ domrepo.StateStore = (*PostgresStore)(nil)

func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout, now: time.Now}
}

// Migrate applies PostgresSchema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range PostgresSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetThresholds(ctx context.Context) (models.AdaptiveThresholds, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var t models.AdaptiveThresholds
	err := s.getJSON(ctx, `SELECT data, version FROM fusion_thresholds WHERE id = 1`, &t, &t.Version)
	return t, err
}

func (s *PostgresStore) SwapThresholds(ctx context.Context, expectedVersion int64, t models.AdaptiveThresholds) (models.AdaptiveThresholds, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	t = t.Clamp()
	t.Version = expectedVersion + 1
	t.UpdatedAt = s.now().UTC()
	b, err := json.Marshal(t)
	if err != nil {
		return models.AdaptiveThresholds{}, fmt.Errorf("encode thresholds: %w", err)
	}

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO fusion_thresholds (id, data, version, updated_at) VALUES (1, $1, $2, $3)
			 ON CONFLICT (id) DO NOTHING`,
			b, t.Version, t.UpdatedAt)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE fusion_thresholds SET data = $1, version = $2, updated_at = $3
			 WHERE id = 1 AND version = $4`,
			b, t.Version, t.UpdatedAt, expectedVersion)
	}
	if err := swapped(res, err, "thresholds"); err != nil {
		return models.AdaptiveThresholds{}, err
	}
	return t, nil
}

func (s *PostgresStore) GetReliability(ctx context.Context, moduleID string) (models.ModuleReliability, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var r models.ModuleReliability
	err := s.getJSON(ctx, `SELECT data, version FROM fusion_reliability WHERE module_id = $1`, &r, &r.Version, moduleID)
	return r, err
}

func (s *PostgresStore) ListReliability(ctx context.Context) (map[string]models.ModuleReliability, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []struct {
		ModuleID string `db:"module_id"`
		Data     []byte `db:"data"`
		Version  int64  `db:"version"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT module_id, data, version FROM fusion_reliability`); err != nil {
		return nil, fmt.Errorf("list reliability: %w", err)
	}
	out := make(map[string]models.ModuleReliability, len(rows))
	for _, row := range rows {
		var r models.ModuleReliability
		if err := json.Unmarshal(row.Data, &r); err != nil {
			return nil, fmt.Errorf("decode reliability %s: %w", row.ModuleID, err)
		}
		r.Version = row.Version
		out[row.ModuleID] = r
	}
	return out, nil
}

func (s *PostgresStore) SwapReliability(ctx context.Context, expectedVersion int64, r models.ModuleReliability) (models.ModuleReliability, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r.Version = expectedVersion + 1
	b, err := json.Marshal(r)
	if err != nil {
		return models.ModuleReliability{}, fmt.Errorf("encode reliability: %w", err)
	}
	now := s.now().UTC()

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO fusion_reliability (module_id, data, version, updated_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (module_id) DO NOTHING`,
			r.ModuleID, b, r.Version, now)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE fusion_reliability SET data = $1, version = $2, updated_at = $3
			 WHERE module_id = $4 AND version = $5`,
			b, r.Version, now, r.ModuleID, expectedVersion)
	}
	if err := swapped(res, err, "reliability "+r.ModuleID); err != nil {
		return models.ModuleReliability{}, err
	}
	return r, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) getJSON(ctx context.Context, q string, dest interface{}, version *int64, args ...interface{}) error {
	var data []byte
	var v int64
	err := s.db.QueryRowxContext(ctx, q, args...).Scan(&data, &v)
	if errors.Is(err, sql.ErrNoRows) {
		return domrepo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query state: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	*version = v
	return nil
}

func swapped(res sql.Result, err error, what string) error {
	if err != nil {
		return fmt.Errorf("save %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save %s: %w", what, err)
	}
	if n == 0 {
		return domrepo.ErrVersionConflict
	}
	return nil
}
