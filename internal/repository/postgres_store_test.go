package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
)

func newMockedPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	s := NewPostgresStore(sqlx.NewDb(db, "sqlmock"), time.Second)
	s.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { _ = db.Close() })
	return s, mock
}

func TestPostgresGetThresholds(t *testing.T) {
	s, mock := newMockedPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT data, version FROM fusion_thresholds").
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}))
	_, err := s.GetThresholds(ctx)
	assert.ErrorIs(t, err, domrepo.ErrNotFound)

	b, _ := json.Marshal(models.DefaultThresholds())
	mock.ExpectQuery("SELECT data, version FROM fusion_thresholds").
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow(b, int64(4)))
	got, err := s.GetThresholds(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, 0.75, got.EntropyCurrent)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSwapThresholds(t *testing.T) {
	s, mock := newMockedPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO fusion_thresholds").
		WithArgs(sqlmock.AnyArg(), int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	got, err := s.SwapThresholds(ctx, 0, models.DefaultThresholds())
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, fixedNow, got.UpdatedAt)

	mock.ExpectExec("UPDATE fusion_thresholds SET data").
		WithArgs(sqlmock.AnyArg(), int64(3), sqlmock.AnyArg(), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = s.SwapThresholds(ctx, 2, models.DefaultThresholds())
	assert.ErrorIs(t, err, domrepo.ErrVersionConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReliability(t *testing.T) {
	s, mock := newMockedPostgresStore(t)
	ctx := context.Background()

	r := models.NewModuleReliability("technical")
	mock.ExpectExec("UPDATE fusion_reliability SET data").
		WithArgs(sqlmock.AnyArg(), int64(6), sqlmock.AnyArg(), "technical", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	saved, err := s.SwapReliability(ctx, 5, r)
	require.NoError(t, err)
	assert.Equal(t, int64(6), saved.Version)

	b, _ := json.Marshal(saved)
	mock.ExpectQuery("SELECT module_id, data, version FROM fusion_reliability").
		WillReturnRows(sqlmock.NewRows([]string{"module_id", "data", "version"}).AddRow("technical", b, int64(6)))
	all, err := s.ListReliability(ctx)
	require.NoError(t, err)
	require.Contains(t, all, "technical")
	assert.Equal(t, int64(6), all["technical"].Version)

	mock.ExpectQuery("SELECT data, version FROM fusion_reliability").
		WithArgs("news").
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}))
	_, err = s.GetReliability(ctx, "news")
	assert.ErrorIs(t, err, domrepo.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
