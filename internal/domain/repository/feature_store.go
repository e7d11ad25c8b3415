package repository

import (
	"context"
	"time"

	"CardSignals/internal/domain/models"
)

// SaleReader reads completed sales for one card.
type SaleReader interface {
	ListSalesSince(ctx context.Context, cardID string, since time.Time) ([]models.CompSale, error)
}

// TouchedCardReader lists distinct cards with at least one sale since a cutoff.
type TouchedCardReader interface {
	TouchedCards(ctx context.Context, since time.Time) ([]string, error)
}

// SnapshotWriter persists a snapshot, replacing any prior one for (card, window).
type SnapshotWriter interface {
	PutSnapshot(ctx context.Context, s models.FeatureSnapshot) error
}

// SnapshotReader returns the current snapshots of a card for the requested windows.
type SnapshotReader interface {
	GetSnapshots(ctx context.Context, cardID string, windows []int) ([]models.FeatureSnapshot, error)
}

// ListingReader returns the newest listings by last-seen, newest first.
type ListingReader interface {
	RecentListings(ctx context.Context, limit int) ([]models.Listing, error)
}

// SignalWriter appends a signal. Signals are never updated.
type SignalWriter interface {
	AppendSignal(ctx context.Context, s models.Signal) error
}

// FeatureStore is the slice of the primary store the batch pipeline needs.
type FeatureStore interface {
	SaleReader
	TouchedCardReader
	SnapshotWriter
	SnapshotReader
	ListingReader
	SignalWriter
}

// Store is the whole primary store: Postgres in production, memory otherwise.
type Store interface {
	FeatureStore
	CardReader
	CardWriter
	CompReader
	SaleWriter
	ListingWriter
	SignalReader
	ListingLookup
	FxReader
	Locker
	Health(ctx context.Context) error
}
