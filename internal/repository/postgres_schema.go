package repository

// Schema is applied by `migrate`. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS cards (
        id          TEXT PRIMARY KEY,
        name        TEXT NOT NULL,
        set_code    TEXT NOT NULL DEFAULT '',
        number      TEXT NOT NULL DEFAULT '',
        variant_key TEXT NOT NULL DEFAULT ''
    );`,
	`CREATE INDEX IF NOT EXISTS cards_name_set_idx ON cards (lower(name), lower(set_code));`,
	`CREATE TABLE IF NOT EXISTS comp_sales (
        id              BIGSERIAL PRIMARY KEY,
        card_id         TEXT NOT NULL,
        source          TEXT NOT NULL,
        external_id     TEXT,
        price_cents     BIGINT NOT NULL,
        price_cents_usd BIGINT,
        currency        TEXT NOT NULL DEFAULT 'USD',
        sold_at         TIMESTAMPTZ NOT NULL,
        UNIQUE (source, external_id)
    );`,
	`CREATE INDEX IF NOT EXISTS comp_sales_card_sold_idx ON comp_sales (card_id, sold_at DESC);`,
	`CREATE INDEX IF NOT EXISTS comp_sales_sold_idx ON comp_sales (sold_at);`,
	`CREATE TABLE IF NOT EXISTS market_listings (
        id              TEXT PRIMARY KEY,
        card_id         TEXT NOT NULL,
        source          TEXT NOT NULL,
        price_cents     BIGINT NOT NULL,
        price_cents_usd BIGINT,
        currency        TEXT NOT NULL DEFAULT 'USD',
        condition       TEXT NOT NULL DEFAULT '',
        grade           TEXT NOT NULL DEFAULT '',
        url             TEXT NOT NULL DEFAULT '',
        seen_at         TIMESTAMPTZ NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS market_listings_seen_idx ON market_listings (seen_at DESC);`,
	`CREATE TABLE IF NOT EXISTS feature_snapshots (
        card_id       TEXT NOT NULL,
        window_days   INT NOT NULL,
        median_cents  BIGINT NOT NULL,
        p05_cents     BIGINT NOT NULL,
        p95_cents     BIGINT NOT NULL,
        volume        INT NOT NULL,
        volatility_bp BIGINT NOT NULL,
        updated_at    TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (card_id, window_days)
    );`,
	`CREATE TABLE IF NOT EXISTS signals (
        id         TEXT PRIMARY KEY,
        card_id    TEXT NOT NULL,
        listing_id TEXT NOT NULL,
        kind       TEXT NOT NULL,
        edge_bp    BIGINT NOT NULL,
        confidence DOUBLE PRECISION NOT NULL,
        thesis     TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS signals_created_idx ON signals (created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS fx_rates (
        code         TEXT PRIMARY KEY,
        usd_per_unit DOUBLE PRECISION NOT NULL,
        updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
}
