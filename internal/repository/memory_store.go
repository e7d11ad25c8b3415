package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
)

// MemoryStore keeps every table in process memory. It backs local runs
// without Postgres and the usecase tests.
type MemoryStore struct {
	mu        sync.RWMutex
	cards     map[string]models.Card
	sales     []models.CompSale
	saleKeys  map[string]struct{}
	listings  map[string]models.Listing
	snapshots map[models.SnapshotKey]models.FeatureSnapshot
	signals   []models.Signal
	fx        map[string]float64
	locks     map[int64]struct{}
	nextSale  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:     make(map[string]models.Card),
		saleKeys:  make(map[string]struct{}),
		listings:  make(map[string]models.Listing),
		snapshots: make(map[models.SnapshotKey]models.FeatureSnapshot),
		fx:        make(map[string]float64),
		locks:     make(map[int64]struct{}),
	}
}

func (m *MemoryStore) UpsertCard(_ context.Context, c models.Card) error {
	if c.ID == "" {
		return models.ErrMissingCardID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCard(_ context.Context, id string) (*models.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cards[id]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return &c, nil
}

// FindCards matches name and set case-insensitively by substring; number
// must match exactly when given.
func (m *MemoryStore) FindCards(_ context.Context, name, setCode, number string) ([]models.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, setCode = strings.ToLower(name), strings.ToLower(setCode)
	var out []models.Card
	for _, c := range m.cards {
		if !strings.Contains(strings.ToLower(c.Name), name) || !strings.Contains(strings.ToLower(c.SetCode), setCode) {
			continue
		}
		if number != "" && c.Number != number {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) InsertSale(_ context.Context, s models.CompSale) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ExternalID != "" {
		key := s.Source + "\x00" + s.ExternalID
		if _, dup := m.saleKeys[key]; dup {
			return false, nil
		}
		m.saleKeys[key] = struct{}{}
	}
	m.nextSale++
	s.ID = m.nextSale
	m.sales = append(m.sales, s)
	return true, nil
}

func (m *MemoryStore) ListSalesSince(_ context.Context, cardID string, since time.Time) ([]models.CompSale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CompSale
	for _, s := range m.sales {
		if s.CardID == cardID && !s.SoldAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) TouchedCards(_ context.Context, since time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, s := range m.sales {
		if s.SoldAt.Before(since) {
			continue
		}
		if _, ok := seen[s.CardID]; ok {
			continue
		}
		seen[s.CardID] = struct{}{}
		out = append(out, s.CardID)
	}
	sort.Strings(out)
	return out, nil
}

// CompsForCards returns sales of the given cards, newest first. A zero since
// means no lower bound.
func (m *MemoryStore) CompsForCards(_ context.Context, cardIDs []string, since time.Time, limit int) ([]models.CompSale, error) {
	ids := make(map[string]struct{}, len(cardIDs))
	for _, id := range cardIDs {
		ids[id] = struct{}{}
	}
	m.mu.RLock()
	var out []models.CompSale
	for _, s := range m.sales {
		if _, ok := ids[s.CardID]; !ok {
			continue
		}
		if !since.IsZero() && s.SoldAt.Before(since) {
			continue
		}
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].SoldAt.After(out[j].SoldAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) PutSnapshot(_ context.Context, s models.FeatureSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.Key()] = s
	return nil
}

// GetSnapshots returns stored snapshots for the windows, largest window first.
func (m *MemoryStore) GetSnapshots(_ context.Context, cardID string, windows []int) ([]models.FeatureSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.FeatureSnapshot
	for _, w := range windows {
		if s, ok := m.snapshots[models.SnapshotKey{CardID: cardID, WindowDays: w}]; ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowDays > out[j].WindowDays })
	return out, nil
}

func (m *MemoryStore) UpsertListing(_ context.Context, l models.Listing) error {
	if l.ID == "" {
		return models.ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.ID] = l
	return nil
}

func (m *MemoryStore) GetListing(_ context.Context, id string) (*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return &l, nil
}

func (m *MemoryStore) RecentListings(_ context.Context, limit int) ([]models.Listing, error) {
	m.mu.RLock()
	out := make([]models.Listing, 0, len(m.listings))
	for _, l := range m.listings {
		out = append(out, l)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].SeenAt.Equal(out[j].SeenAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SeenAt.After(out[j].SeenAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendSignal(_ context.Context, s models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, s)
	return nil
}

func (m *MemoryStore) GetSignal(_ context.Context, id string) (*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.signals {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, domrepo.ErrNotFound
}

// Signals returns a copy of every appended signal in insertion order.
func (m *MemoryStore) Signals() []models.Signal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Signal(nil), m.signals...)
}

func (m *MemoryStore) LatestSignals(_ context.Context, f models.SignalFilter, fetch int) ([]models.SignalRow, error) {
	m.mu.RLock()
	rows := make([]models.SignalRow, 0, len(m.signals))
	for _, s := range m.signals {
		if f.MinEdgeBp != nil && s.EdgeBp < *f.MinEdgeBp {
			continue
		}
		if f.MinConfidence != nil && s.Confidence < *f.MinConfidence {
			continue
		}
		if !f.IncludeBlank && s.Thesis == "" {
			continue
		}
		rows = append(rows, models.SignalRow{Signal: s, Card: m.cards[s.CardID], Listing: m.listings[s.ListingID]})
	}
	m.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool { return signalLess(f.Sort, rows[i].Signal, rows[j].Signal) })
	if fetch > 0 && len(rows) > fetch {
		rows = rows[:fetch]
	}
	return rows, nil
}

func signalLess(sortBy string, a, b models.Signal) bool {
	switch sortBy {
	case "conf":
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
	case "recent":
	default:
		if a.EdgeBp != b.EdgeBp {
			return a.EdgeBp > b.EdgeBp
		}
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// SetFxRate records USD per unit for a currency code.
func (m *MemoryStore) SetFxRate(code string, usdPerUnit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fx[strings.ToUpper(code)] = usdPerUnit
}

func (m *MemoryStore) FxRates(_ context.Context) ([]models.FxRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.FxRate, 0, len(m.fx))
	for code, rate := range m.fx {
		out = append(out, models.FxRate{Code: code, USDPerUnit: rate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) Health(context.Context) error { return nil }

// TryLock is a process-local advisory lock.
func (m *MemoryStore) TryLock(_ context.Context, key int64) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[key]; held {
		return nil, false, nil
	}
	m.locks[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.locks, key)
			m.mu.Unlock()
		})
	}, true, nil
}

var (
	_ domrepo.Store         = (*MemoryStore)(nil)
	_ domrepo.FeatureStore  = (*MemoryStore)(nil)
	_ domrepo.CardReader    = (*MemoryStore)(nil)
	_ domrepo.CardWriter    = (*MemoryStore)(nil)
	_ domrepo.CompReader    = (*MemoryStore)(nil)
	_ domrepo.SaleWriter    = (*MemoryStore)(nil)
	_ domrepo.ListingWriter = (*MemoryStore)(nil)
	_ domrepo.ListingLookup = (*MemoryStore)(nil)
	_ domrepo.SignalReader  = (*MemoryStore)(nil)
	_ domrepo.FxReader      = (*MemoryStore)(nil)
	_ domrepo.Locker        = (*MemoryStore)(nil)
)
