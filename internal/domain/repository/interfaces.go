package repository

import (
	"context"
	"time"

	"CardSignals/internal/domain/models"
)

type CardReader interface {
	GetCard(ctx context.Context, id string) (*models.Card, error)
	FindCards(ctx context.Context, name, setCode, number string) ([]models.Card, error)
}

type CardWriter interface {
	UpsertCard(ctx context.Context, c models.Card) error
}

// CompReader reads comps across several cards for the query surface.
type CompReader interface {
	CompsForCards(ctx context.Context, cardIDs []string, since time.Time, limit int) ([]models.CompSale, error)
}

type SaleWriter interface {
	// InsertSale ignores a duplicate (source, external id) and reports whether a row was written.
	InsertSale(ctx context.Context, s models.CompSale) (bool, error)
}

type ListingWriter interface {
	UpsertListing(ctx context.Context, l models.Listing) error
}

type SignalReader interface {
	LatestSignals(ctx context.Context, f models.SignalFilter, fetch int) ([]models.SignalRow, error)
	GetSignal(ctx context.Context, id string) (*models.Signal, error)
}

type ListingLookup interface {
	GetListing(ctx context.Context, id string) (*models.Listing, error)
}

type FxReader interface {
	FxRates(ctx context.Context) ([]models.FxRate, error)
}

// Locker takes a cross-process lock for a batch run. acquired is false when
// another holder has it; unlock must be called when acquired is true.
type Locker interface {
	TryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// HistoryStore is the append-only archive of snapshots and signals.
type HistoryStore interface {
	AppendSnapshots(ctx context.Context, snaps []models.FeatureSnapshot) error
	AppendSignals(ctx context.Context, sigs []models.Signal) error
	SnapshotHistory(ctx context.Context, cardID string, limit int) ([]models.FeatureSnapshot, error)
	Health(ctx context.Context) error
	Close() error
}

// SignalPublisher fans a newly created signal out to alert channels.
type SignalPublisher interface {
	Publish(ctx context.Context, ev models.SignalEvent) error
	Close() error
}

type Metrics interface {
	RecordSnapshotWritten(windowDays int)
	RecordSignal(kind models.SignalKind)
	RecordDropped(reason string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
