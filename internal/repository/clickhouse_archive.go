package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	applogger "CardSignals/pkg/logger"
)

// ArchiveSchema creates the append-only history tables.
var ArchiveSchema = []string{
	`CREATE TABLE IF NOT EXISTS snapshot_history (
        card_id       String,
        window_days   UInt16,
        median_cents  Int64,
        p05_cents     Int64,
        p95_cents     Int64,
        volume        UInt32,
        volatility_bp Int64,
        updated_at    DateTime64(3, 'UTC')
    ) ENGINE = MergeTree
    ORDER BY (card_id, window_days, updated_at)`,
	`CREATE TABLE IF NOT EXISTS signal_history (
        id         String,
        card_id    String,
        listing_id String,
        kind       LowCardinality(String),
        edge_bp    Int64,
        confidence Float64,
        created_at DateTime64(3, 'UTC')
    ) ENGINE = MergeTree
    ORDER BY (card_id, created_at)`,
}

const (
	insertSnapshotHistorySQL = `INSERT INTO snapshot_history
        (card_id, window_days, median_cents, p05_cents, p95_cents, volume, volatility_bp, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	insertSignalHistorySQL = `INSERT INTO signal_history
        (id, card_id, listing_id, kind, edge_bp, confidence, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

	snapshotHistorySQL = `
        SELECT card_id, window_days, median_cents, p05_cents, p95_cents, volume, volatility_bp, updated_at
        FROM snapshot_history
        WHERE card_id = ?
        ORDER BY updated_at DESC, window_days ASC
        LIMIT ?
    `
)

// CHArchive implements HistoryStore on ClickHouse through database/sql.
type CHArchive struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHArchive(db *sql.DB) *CHArchive {
	return &CHArchive{db: db}
}

// SetLogger injects a structured logger.
func (a *CHArchive) SetLogger(l *applogger.Logger) { a.l = l }

func (a *CHArchive) AppendSnapshots(ctx context.Context, snaps []models.FeatureSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	return a.batch(ctx, "snapshot_history", insertSnapshotHistorySQL, len(snaps), func(stmt *sql.Stmt, i int) error {
		s := snaps[i]
		_, err := stmt.ExecContext(ctx, s.CardID, s.WindowDays, s.MedianCents, s.P05Cents, s.P95Cents, s.Volume, s.VolatilityBp, s.UpdatedAt)
		return err
	})
}

func (a *CHArchive) AppendSignals(ctx context.Context, sigs []models.Signal) error {
	if len(sigs) == 0 {
		return nil
	}
	return a.batch(ctx, "signal_history", insertSignalHistorySQL, len(sigs), func(stmt *sql.Stmt, i int) error {
		s := sigs[i]
		_, err := stmt.ExecContext(ctx, s.ID, s.CardID, s.ListingID, string(s.Kind), s.EdgeBp, s.Confidence, s.CreatedAt)
		return err
	})
}

// batch runs one prepared insert per row inside a transaction, which the
// clickhouse driver sends as a single block.
func (a *CHArchive) batch(ctx context.Context, table, query string, n int, exec func(*sql.Stmt, int) error) error {
	if a.db == nil {
		return domrepo.ErrNotConfigured
	}
	start := time.Now()
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s batch: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare %s batch: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			_ = tx.Rollback()
			if a.l != nil {
				a.l.Error("clickhouse append error", applogger.String("table", table), applogger.Error(err))
			}
			return fmt.Errorf("append %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s batch: %w", table, err)
	}
	if a.l != nil {
		a.l.Debug("clickhouse append ok",
			applogger.String("table", table),
			applogger.Int("rows", n),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return nil
}

func (a *CHArchive) SnapshotHistory(ctx context.Context, cardID string, limit int) ([]models.FeatureSnapshot, error) {
	if a.db == nil {
		return nil, domrepo.ErrNotConfigured
	}
	start := time.Now()
	rows, err := a.db.QueryContext(ctx, snapshotHistorySQL, cardID, limit)
	if err != nil {
		if a.l != nil {
			a.l.Error("clickhouse snapshot_history query error",
				applogger.String("card_id", cardID),
				applogger.Int("limit", limit),
				applogger.Error(err))
		}
		return nil, fmt.Errorf("snapshot history: %w", err)
	}
	defer rows.Close()

	out := make([]models.FeatureSnapshot, 0, limit)
	for rows.Next() {
		var s models.FeatureSnapshot
		if err := rows.Scan(&s.CardID, &s.WindowDays, &s.MedianCents, &s.P05Cents, &s.P95Cents, &s.Volume, &s.VolatilityBp, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot history: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if a.l != nil {
		a.l.Debug("clickhouse snapshot_history ok",
			applogger.String("card_id", cardID),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return out, nil
}

func (a *CHArchive) Health(ctx context.Context) error {
	if a.db == nil {
		return domrepo.ErrNotConfigured
	}
	return a.db.PingContext(ctx)
}

func (a *CHArchive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

var _ domrepo.HistoryStore = (*CHArchive)(nil)
