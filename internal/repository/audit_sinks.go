package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	pkgkafka "SignalFusion/pkg/kafka"
	applogger "SignalFusion/pkg/logger"
)

// CHAuditSink appends audit records to a ClickHouse table.
type CHAuditSink struct {
	db    *sqlx.DB
	table string
}

var _ domrepo.AuditSink = (*CHAuditSink)(nil)

func NewCHAuditSink(db *sql.DB, table string) (*CHAuditSink, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid audit table name %q", table)
	}
	return &CHAuditSink{db: sqlx.NewDb(db, "clickhouse"), table: table}, nil
}

// AuditSchema returns the DDL for the audit table.
func AuditSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
        decision_id String,
        pair LowCardinality(String),
        timeframe LowCardinality(String),
        outcome LowCardinality(String),
        direction LowCardinality(String),
        factor_count UInt16,
        fused_probability Float64,
        entropy Float64,
        confluence_score Float64,
        net_edge Float64,
        signal_quality Float64,
        position_size_pct Float64,
        regime LowCardinality(String),
        created_at DateTime64(3, 'UTC')
    ) ENGINE = MergeTree ORDER BY (pair, created_at)`, table)
}

type auditRow struct {
	DecisionID       string    `db:"decision_id"`
	Pair             string    `db:"pair"`
	Timeframe        string    `db:"timeframe"`
	Outcome          string    `db:"outcome"`
	Direction        string    `db:"direction"`
	FactorCount      int       `db:"factor_count"`
	FusedProbability float64   `db:"fused_probability"`
	Entropy          float64   `db:"entropy"`
	ConfluenceScore  float64   `db:"confluence_score"`
	NetEdge          float64   `db:"net_edge"`
	SignalQuality    float64   `db:"signal_quality"`
	PositionSizePct  float64   `db:"position_size_pct"`
	Regime           string    `db:"regime"`
	CreatedAt        time.Time `db:"created_at"`
}

func (s *CHAuditSink) Record(ctx context.Context, rec models.AuditRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s (decision_id, pair, timeframe, outcome, direction, factor_count,
        fused_probability, entropy, confluence_score, net_edge, signal_quality, position_size_pct, regime, created_at)
        VALUES (:decision_id, :pair, :timeframe, :outcome, :direction, :factor_count,
        :fused_probability, :entropy, :confluence_score, :net_edge, :signal_quality, :position_size_pct, :regime, :created_at)`, s.table)
	_, err := s.db.NamedExecContext(ctx, q, auditRow{
		DecisionID:       rec.DecisionID,
		Pair:             rec.Pair,
		Timeframe:        rec.Timeframe,
		Outcome:          rec.Outcome,
		Direction:        string(rec.Direction),
		FactorCount:      rec.FactorCount,
		FusedProbability: rec.FusedProbability,
		Entropy:          rec.Entropy,
		ConfluenceScore:  rec.ConfluenceScore,
		NetEdge:          rec.NetEdge,
		SignalQuality:    rec.SignalQuality,
		PositionSizePct:  rec.PositionSizePct,
		Regime:           rec.Regime,
		CreatedAt:        rec.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert audit %s: %w", rec.DecisionID, err)
	}
	return nil
}

// Close leaves the pool to its owner.
func (s *CHAuditSink) Close() error { return nil }

// LogAuditSink writes audit records to the structured log.
type LogAuditSink struct {
	l *applogger.Logger
}

func NewLogAuditSink(l *applogger.Logger) *LogAuditSink { return &LogAuditSink{l: l} }

func (s *LogAuditSink) Record(_ context.Context, rec models.AuditRecord) error {
	s.l.Info("audit",
		applogger.String("decision_id", rec.DecisionID),
		applogger.String("pair", rec.Pair),
		applogger.String("timeframe", rec.Timeframe),
		applogger.String("outcome", rec.Outcome),
		applogger.String("direction", string(rec.Direction)),
		applogger.Int("factor_count", rec.FactorCount),
		applogger.Float64("fused_probability", rec.FusedProbability),
		applogger.Float64("entropy", rec.Entropy),
		applogger.Float64("confluence_score", rec.ConfluenceScore),
		applogger.Float64("net_edge", rec.NetEdge),
		applogger.Float64("position_size_pct", rec.PositionSizePct),
		applogger.String("regime", rec.Regime),
	)
	return nil
}

func (s *LogAuditSink) Close() error { return nil }

// KafkaAuditSink publishes audit records keyed by pair.
type KafkaAuditSink struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaAuditSink(producer *pkgkafka.Producer, topic string) *KafkaAuditSink {
	return &KafkaAuditSink{producer: producer, topic: topic}
}

func (s *KafkaAuditSink) Record(ctx context.Context, rec models.AuditRecord) error {
	return s.producer.Publish(ctx, s.topic, []byte(rec.Pair), rec)
}

// Close leaves the shared producer to its owner.
func (s *KafkaAuditSink) Close() error { return nil }

// MultiAuditSink fans a record out to every sink and joins their errors.
type MultiAuditSink []domrepo.AuditSink

func (m MultiAuditSink) Record(ctx context.Context, rec models.AuditRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiAuditSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// KafkaDecisionPublisher publishes full decisions keyed by pair.
type KafkaDecisionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.DecisionPublisher = (*KafkaDecisionPublisher)(nil)

func NewKafkaDecisionPublisher(producer *pkgkafka.Producer, topic string) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

func (p *KafkaDecisionPublisher) PublishDecision(ctx context.Context, d models.FusedDecision) error {
	return p.producer.Publish(ctx, p.topic, []byte(d.Pair), d)
}
