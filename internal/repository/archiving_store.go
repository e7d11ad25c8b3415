package repository

import (
	"context"
	"time"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	applogger "CardSignals/pkg/logger"
)

// ArchivingStore copies every successful snapshot and signal write into the
// history archive. Archive failures are logged and never surface.
type ArchivingStore struct {
	domrepo.FeatureStore
	history domrepo.HistoryStore
	timeout time.Duration
	l       *applogger.Logger
}

func NewArchivingStore(primary domrepo.FeatureStore, history domrepo.HistoryStore, l *applogger.Logger) *ArchivingStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &ArchivingStore{FeatureStore: primary, history: history, timeout: 3 * time.Second, l: l}
}

func (s *ArchivingStore) PutSnapshot(ctx context.Context, snap models.FeatureSnapshot) error {
	if err := s.FeatureStore.PutSnapshot(ctx, snap); err != nil {
		return err
	}
	s.archive(ctx, "snapshot", func(ctx context.Context) error {
		return s.history.AppendSnapshots(ctx, []models.FeatureSnapshot{snap})
	})
	return nil
}

func (s *ArchivingStore) AppendSignal(ctx context.Context, sig models.Signal) error {
	if err := s.FeatureStore.AppendSignal(ctx, sig); err != nil {
		return err
	}
	s.archive(ctx, "signal", func(ctx context.Context) error {
		return s.history.AppendSignals(ctx, []models.Signal{sig})
	})
	return nil
}

func (s *ArchivingStore) archive(ctx context.Context, what string, fn func(context.Context) error) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.l.Warn("archive write failed", applogger.String("kind", what), applogger.Error(err))
	}
}

var _ domrepo.FeatureStore = (*ArchivingStore)(nil)
