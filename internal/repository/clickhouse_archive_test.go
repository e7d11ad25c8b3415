package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"CardSignals/internal/domain/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var archiveTime = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestCHArchiveAppendSnapshots(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO snapshot_history"))
	prep.ExpectExec().WithArgs("c1", 30, int64(100), int64(90), int64(110), 5, int64(300), archiveTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("c1", 90, int64(105), int64(91), int64(120), 9, int64(250), archiveTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a := NewCHArchive(db)
	err = a.AppendSnapshots(context.Background(), []models.FeatureSnapshot{
		{CardID: "c1", WindowDays: 30, MedianCents: 100, P05Cents: 90, P95Cents: 110, Volume: 5, VolatilityBp: 300, UpdatedAt: archiveTime},
		{CardID: "c1", WindowDays: 90, MedianCents: 105, P05Cents: 91, P95Cents: 120, Volume: 9, VolatilityBp: 250, UpdatedAt: archiveTime},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHArchiveAppendSignalsRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO signal_history"))
	prep.ExpectExec().WithArgs("s1", "c1", "l1", "UNDERVALUED", int64(1500), 0.8, archiveTime).
		WillReturnError(errors.New("too many parts"))
	mock.ExpectRollback()

	a := NewCHArchive(db)
	err = a.AppendSignals(context.Background(), []models.Signal{
		{ID: "s1", CardID: "c1", ListingID: "l1", Kind: models.SignalUndervalued, EdgeBp: 1500, Confidence: 0.8, CreatedAt: archiveTime},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many parts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHArchiveAppendEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a := NewCHArchive(db)
	require.NoError(t, a.AppendSnapshots(context.Background(), nil))
	require.NoError(t, a.AppendSignals(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHArchiveSnapshotHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"card_id", "window_days", "median_cents", "p05_cents", "p95_cents", "volume", "volatility_bp", "updated_at"}).
		AddRow("c1", 30, 100, 90, 110, 5, 300, archiveTime).
		AddRow("c1", 90, 105, 91, 120, 9, 250, archiveTime.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("FROM snapshot_history")).WithArgs("c1", 10).WillReturnRows(rows)

	a := NewCHArchive(db)
	got, err := a.SnapshotHistory(context.Background(), "c1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(100), got[0].MedianCents)
	assert.Equal(t, 90, got[1].WindowDays)
	assert.NoError(t, mock.ExpectationsWereMet())
}
