package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStore opens and pings the database.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStore{db: db, logger: cfg.Logger}, nil
}

func (p *PostgresStore) RecordEvent(ctx context.Context, ev *MirrorEvent) error {
	query := `
		INSERT INTO mirror_events (
			kind, source_order_id, mirror_order_id, contract, side,
			trigger_price, contracts, final_ratio, detail, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := p.db.ExecContext(ctx, query,
		string(ev.Kind),
		ev.SourceOrderID,
		ev.MirrorOrderID,
		ev.Contract,
		ev.Side,
		ev.TriggerPrice,
		ev.Contracts,
		ev.FinalRatio,
		ev.Detail,
		ev.At,
	)
	if err != nil {
		return fmt.Errorf("insert mirror event: %w", err)
	}

	p.logger.Debug("mirror-event-stored",
		zap.String("kind", string(ev.Kind)),
		zap.String("source_order_id", ev.SourceOrderID))
	return nil
}

func (p *PostgresStore) RecordRatioChange(ctx context.Context, ra *RatioAudit) error {
	query := `
		INSERT INTO ratio_audit (old_ratio, new_ratio, changed_by, delta_pct, changed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := p.db.ExecContext(ctx, query, ra.Old, ra.New, ra.By, ra.DeltaPct, ra.At)
	if err != nil {
		return fmt.Errorf("insert ratio audit: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
