package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	applogger "CardSignals/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	upsertCardSQL = `INSERT INTO cards (id, name, set_code, number, variant_key)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (id) DO UPDATE
    SET name        = EXCLUDED.name,
        set_code    = EXCLUDED.set_code,
        number      = EXCLUDED.number,
        variant_key = EXCLUDED.variant_key;`

	getCardSQL = `SELECT id, name, set_code, number, variant_key FROM cards WHERE id = $1;`

	findCardsSQL = `SELECT id, name, set_code, number, variant_key
    FROM cards
    WHERE lower(name) LIKE '%' || lower($1) || '%'
      AND lower(set_code) LIKE '%' || lower($2) || '%'
      AND ($3 = '' OR number = $3)
    ORDER BY id
    LIMIT 50;`

	insertSaleSQL = `INSERT INTO comp_sales (card_id, source, external_id, price_cents, price_cents_usd, currency, sold_at)
    VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7)
    ON CONFLICT (source, external_id) DO NOTHING;`

	saleColumns = `id, card_id, source, COALESCE(external_id, ''), price_cents, price_cents_usd, currency, sold_at`

	listSalesSinceSQL = `SELECT ` + saleColumns + `
    FROM comp_sales
    WHERE card_id = $1 AND sold_at >= $2
    ORDER BY sold_at;`

	touchedCardsSQL = `SELECT DISTINCT card_id FROM comp_sales WHERE sold_at >= $1 ORDER BY card_id;`

	compsForCardsSQL = `SELECT ` + saleColumns + `
    FROM comp_sales
    WHERE card_id = ANY($1) AND sold_at >= $2
    ORDER BY sold_at DESC
    LIMIT $3;`

	upsertSnapshotSQL = `INSERT INTO feature_snapshots (
        card_id, window_days, median_cents, p05_cents, p95_cents, volume, volatility_bp, updated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    ON CONFLICT (card_id, window_days) DO UPDATE
    SET median_cents  = EXCLUDED.median_cents,
        p05_cents     = EXCLUDED.p05_cents,
        p95_cents     = EXCLUDED.p95_cents,
        volume        = EXCLUDED.volume,
        volatility_bp = EXCLUDED.volatility_bp,
        updated_at    = EXCLUDED.updated_at;`

	getSnapshotsSQL = `SELECT card_id, window_days, median_cents, p05_cents, p95_cents, volume, volatility_bp, updated_at
    FROM feature_snapshots
    WHERE card_id = $1 AND window_days = ANY($2)
    ORDER BY window_days DESC;`

	upsertListingSQL = `INSERT INTO market_listings (
        id, card_id, source, price_cents, price_cents_usd, currency, condition, grade, url, seen_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    ON CONFLICT (id) DO UPDATE
    SET card_id         = EXCLUDED.card_id,
        source          = EXCLUDED.source,
        price_cents     = EXCLUDED.price_cents,
        price_cents_usd = EXCLUDED.price_cents_usd,
        currency        = EXCLUDED.currency,
        condition       = EXCLUDED.condition,
        grade           = EXCLUDED.grade,
        url             = EXCLUDED.url,
        seen_at         = EXCLUDED.seen_at;`

	listingColumns = `id, card_id, source, price_cents, price_cents_usd, currency, condition, grade, url, seen_at`

	recentListingsSQL = `SELECT ` + listingColumns + ` FROM market_listings ORDER BY seen_at DESC, id LIMIT $1;`

	getListingSQL = `SELECT ` + listingColumns + ` FROM market_listings WHERE id = $1;`

	insertSignalSQL = `INSERT INTO signals (id, card_id, listing_id, kind, edge_bp, confidence, thesis, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

	getSignalSQL = `SELECT id, card_id, listing_id, kind, edge_bp, confidence, thesis, created_at
    FROM signals WHERE id = $1;`

	latestSignalsSQL = `SELECT
        s.id, s.card_id, s.listing_id, s.kind, s.edge_bp, s.confidence, s.thesis, s.created_at,
        COALESCE(c.name, ''), COALESCE(c.set_code, ''), COALESCE(c.number, ''), COALESCE(c.variant_key, ''),
        COALESCE(l.source, ''), COALESCE(l.price_cents, 0), l.price_cents_usd, COALESCE(l.currency, ''), COALESCE(l.url, '')
    FROM signals s
    LEFT JOIN cards c ON c.id = s.card_id
    LEFT JOIN market_listings l ON l.id = s.listing_id`

	fxRatesSQL = `SELECT code, usd_per_unit FROM fx_rates ORDER BY code;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PGStore is the primary Postgres-backed store.
type PGStore struct {
	pool *pgxpool.Pool
	l    *applogger.Logger
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// SetLogger injects a structured logger.
func (s *PGStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *PGStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PGStore) Health(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// Migrate applies the idempotent schema.
func (s *PGStore) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range Schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	if s.l != nil {
		s.l.Info("postgres schema applied", applogger.Int("statements", len(Schema)))
	}
	return nil
}

func (s *PGStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, domrepo.ErrNotConfigured
	}
	return s.pool, nil
}

func (s *PGStore) logErr(op string, err error, fields ...applogger.Field) {
	if s.l == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.l.Error("postgres "+op+" error", append(fields, applogger.Error(err))...)
}

func (s *PGStore) UpsertCard(ctx context.Context, c models.Card) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, upsertCardSQL, c.ID, c.Name, c.SetCode, c.Number, c.VariantKey); err != nil {
		s.logErr("upsert_card", err, applogger.String("card_id", c.ID))
		return fmt.Errorf("upsert card: %w", err)
	}
	return nil
}

func (s *PGStore) GetCard(ctx context.Context, id string) (*models.Card, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	var c models.Card
	err = pool.QueryRow(ctx, getCardSQL, id).Scan(&c.ID, &c.Name, &c.SetCode, &c.Number, &c.VariantKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}
	return &c, nil
}

func (s *PGStore) FindCards(ctx context.Context, name, setCode, number string) ([]models.Card, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, findCardsSQL, name, setCode, number)
	if err != nil {
		s.logErr("find_cards", err, applogger.String("name", name), applogger.String("set", setCode))
		return nil, fmt.Errorf("find cards: %w", err)
	}
	defer rows.Close()

	var out []models.Card
	for rows.Next() {
		var c models.Card
		if err := rows.Scan(&c.ID, &c.Name, &c.SetCode, &c.Number, &c.VariantKey); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) InsertSale(ctx context.Context, sale models.CompSale) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, err := pool.Exec(ctx, insertSaleSQL,
		sale.CardID, sale.Source, sale.ExternalID, sale.PriceCents, sale.PriceCentsUSD, sale.Currency, sale.SoldAt)
	if err != nil {
		s.logErr("insert_sale", err, applogger.String("card_id", sale.CardID))
		return false, fmt.Errorf("insert sale: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) ListSalesSince(ctx context.Context, cardID string, since time.Time) ([]models.CompSale, error) {
	start := time.Now()
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listSalesSinceSQL, cardID, since)
	if err != nil {
		s.logErr("list_sales", err, applogger.String("card_id", cardID))
		return nil, fmt.Errorf("list sales: %w", err)
	}
	out, err := scanSales(rows)
	if err != nil {
		return nil, err
	}
	if s.l != nil {
		s.l.Debug("postgres list_sales ok",
			applogger.String("card_id", cardID),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return out, nil
}

func (s *PGStore) TouchedCards(ctx context.Context, since time.Time) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, touchedCardsSQL, since)
	if err != nil {
		s.logErr("touched_cards", err)
		return nil, fmt.Errorf("touched cards: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("touched cards: %w", err)
	}
	return ids, nil
}

// CompsForCards returns sales newest first. A zero since means no lower bound.
func (s *PGStore) CompsForCards(ctx context.Context, cardIDs []string, since time.Time, limit int) ([]models.CompSale, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := pool.Query(ctx, compsForCardsSQL, cardIDs, since, limit)
	if err != nil {
		s.logErr("comps_for_cards", err, applogger.Strings("card_ids", cardIDs))
		return nil, fmt.Errorf("comps for cards: %w", err)
	}
	return scanSales(rows)
}

func scanSales(rows pgx.Rows) ([]models.CompSale, error) {
	defer rows.Close()
	var out []models.CompSale
	for rows.Next() {
		var c models.CompSale
		if err := rows.Scan(&c.ID, &c.CardID, &c.Source, &c.ExternalID, &c.PriceCents, &c.PriceCentsUSD, &c.Currency, &c.SoldAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *PGStore) PutSnapshot(ctx context.Context, f models.FeatureSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, upsertSnapshotSQL,
		f.CardID, f.WindowDays, f.MedianCents, f.P05Cents, f.P95Cents, f.Volume, f.VolatilityBp, f.UpdatedAt)
	if err != nil {
		s.logErr("put_snapshot", err, applogger.String("card_id", f.CardID), applogger.Int("window_days", f.WindowDays))
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

func (s *PGStore) GetSnapshots(ctx context.Context, cardID string, windows []int) ([]models.FeatureSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, getSnapshotsSQL, cardID, windows)
	if err != nil {
		s.logErr("get_snapshots", err, applogger.String("card_id", cardID))
		return nil, fmt.Errorf("get snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.FeatureSnapshot
	for rows.Next() {
		var f models.FeatureSnapshot
		if err := rows.Scan(&f.CardID, &f.WindowDays, &f.MedianCents, &f.P05Cents, &f.P95Cents, &f.Volume, &f.VolatilityBp, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PGStore) UpsertListing(ctx context.Context, l models.Listing) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, upsertListingSQL,
		l.ID, l.CardID, l.Source, l.PriceCents, l.PriceCentsUSD, l.Currency, l.Condition, l.Grade, l.URL, l.SeenAt)
	if err != nil {
		s.logErr("upsert_listing", err, applogger.String("listing_id", l.ID))
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}

func (s *PGStore) RecentListings(ctx context.Context, limit int) ([]models.Listing, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, recentListingsSQL, limit)
	if err != nil {
		s.logErr("recent_listings", err, applogger.Int("limit", limit))
		return nil, fmt.Errorf("recent listings: %w", err)
	}
	defer rows.Close()

	out := make([]models.Listing, 0, limit)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PGStore) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	l, err := scanListing(pool.QueryRow(ctx, getListingSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanListing(row pgx.Row) (models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.ID, &l.CardID, &l.Source, &l.PriceCents, &l.PriceCentsUSD, &l.Currency, &l.Condition, &l.Grade, &l.URL, &l.SeenAt)
	if err != nil {
		return l, fmt.Errorf("scan listing: %w", err)
	}
	return l, nil
}

func (s *PGStore) AppendSignal(ctx context.Context, sig models.Signal) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, insertSignalSQL,
		sig.ID, sig.CardID, sig.ListingID, string(sig.Kind), sig.EdgeBp, sig.Confidence, sig.Thesis, sig.CreatedAt)
	if err != nil {
		s.logErr("append_signal", err, applogger.String("listing_id", sig.ListingID))
		return fmt.Errorf("append signal: %w", err)
	}
	return nil
}

func (s *PGStore) GetSignal(ctx context.Context, id string) (*models.Signal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	var sig models.Signal
	var kind string
	err = pool.QueryRow(ctx, getSignalSQL, id).Scan(
		&sig.ID, &sig.CardID, &sig.ListingID, &kind, &sig.EdgeBp, &sig.Confidence, &sig.Thesis, &sig.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal: %w", err)
	}
	sig.Kind = models.SignalKind(kind)
	return &sig, nil
}

func (s *PGStore) LatestSignals(ctx context.Context, f models.SignalFilter, fetch int) ([]models.SignalRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	q, args := buildLatestSignalsQuery(f, fetch)
	rows, err := pool.Query(ctx, q, args...)
	if err != nil {
		s.logErr("latest_signals", err, applogger.String("sort", f.Sort))
		return nil, fmt.Errorf("latest signals: %w", err)
	}
	defer rows.Close()

	out := make([]models.SignalRow, 0, fetch)
	for rows.Next() {
		var r models.SignalRow
		var kind string
		if err := rows.Scan(
			&r.Signal.ID, &r.Signal.CardID, &r.Signal.ListingID, &kind, &r.Signal.EdgeBp, &r.Signal.Confidence, &r.Signal.Thesis, &r.Signal.CreatedAt,
			&r.Card.Name, &r.Card.SetCode, &r.Card.Number, &r.Card.VariantKey,
			&r.Listing.Source, &r.Listing.PriceCents, &r.Listing.PriceCentsUSD, &r.Listing.Currency, &r.Listing.URL,
		); err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		r.Signal.Kind = models.SignalKind(kind)
		r.Card.ID = r.Signal.CardID
		r.Listing.ID = r.Signal.ListingID
		r.Listing.CardID = r.Signal.CardID
		out = append(out, r)
	}
	return out, rows.Err()
}

// buildLatestSignalsQuery applies the store-level filters and ordering.
func buildLatestSignalsQuery(f models.SignalFilter, fetch int) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.MinEdgeBp != nil {
		args = append(args, *f.MinEdgeBp)
		where = append(where, fmt.Sprintf("s.edge_bp >= $%d", len(args)))
	}
	if f.MinConfidence != nil {
		args = append(args, *f.MinConfidence)
		where = append(where, fmt.Sprintf("s.confidence >= $%d", len(args)))
	}
	if !f.IncludeBlank {
		where = append(where, "s.thesis <> ''")
	}

	var b strings.Builder
	b.WriteString(latestSignalsSQL)
	if len(where) > 0 {
		b.WriteString("\n    WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	switch f.Sort {
	case "conf":
		b.WriteString("\n    ORDER BY s.confidence DESC, s.created_at DESC")
	case "recent":
		b.WriteString("\n    ORDER BY s.created_at DESC")
	default:
		b.WriteString("\n    ORDER BY s.edge_bp DESC, s.created_at DESC")
	}
	args = append(args, fetch)
	fmt.Fprintf(&b, "\n    LIMIT $%d;", len(args))
	return b.String(), args
}

func (s *PGStore) FxRates(ctx context.Context) ([]models.FxRate, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, fxRatesSQL)
	if err != nil {
		s.logErr("fx_rates", err)
		return nil, fmt.Errorf("fx rates: %w", err)
	}
	defer rows.Close()

	var out []models.FxRate
	for rows.Next() {
		var r models.FxRate
		if err := rows.Scan(&r.Code, &r.USDPerUnit); err != nil {
			return nil, fmt.Errorf("scan fx rate: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TryLock takes a session-level advisory lock on a dedicated connection and
// returns a release func.
func (s *PGStore) TryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			s.logErr("advisory_unlock", err, applogger.Int64("key", key))
		}
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ domrepo.Store         = (*PGStore)(nil)
	_ domrepo.FeatureStore  = (*PGStore)(nil)
	_ domrepo.CardReader    = (*PGStore)(nil)
	_ domrepo.CardWriter    = (*PGStore)(nil)
	_ domrepo.CompReader    = (*PGStore)(nil)
	_ domrepo.SaleWriter    = (*PGStore)(nil)
	_ domrepo.ListingWriter = (*PGStore)(nil)
	_ domrepo.ListingLookup = (*PGStore)(nil)
	_ domrepo.SignalReader  = (*PGStore)(nil)
	_ domrepo.FxReader      = (*PGStore)(nil)
	_ domrepo.Locker        = (*PGStore)(nil)
)
