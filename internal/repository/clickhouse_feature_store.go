package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	applogger "SignalFusion/pkg/logger"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// CHFeatureStore implements FeatureStore backed by a ClickHouse candle table
// keyed by (symbol, timeframe, bucket).
type CHFeatureStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ domrepo.FeatureStore = (*CHFeatureStore)(nil)

func NewCHFeatureStore(db *sql.DB, table string, l *applogger.Logger) (*CHFeatureStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid candle table name %q", table)
	}
	return &CHFeatureStore{db: db, table: table, l: l}, nil
}

// GetLatestNCandles returns up to n most recent bars in ascending time order.
func (s *CHFeatureStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT bucket, symbol, open, high, low, close, volume
        FROM %s
        WHERE symbol = ? AND timeframe = ?
        ORDER BY bucket DESC
        LIMIT ?
    `, s.table)

	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), n)
	if err != nil {
		s.l.Error("clickhouse latest_candles query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse latest_candles ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("limit", n),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// ErrNoCandleStore is returned when no candle backend is configured.
var ErrNoCandleStore = errors.New("no candle store configured")

// NoFeatureStore stands in when ClickHouse is disabled; cycles then need
// candles passed in directly.
type NoFeatureStore struct{}

func (NoFeatureStore) GetLatestNCandles(context.Context, string, int, domrepo.Timeframe) ([]models.Candle, error) {
	return nil, ErrNoCandleStore
}
