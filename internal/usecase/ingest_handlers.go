package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	applogger "CardSignals/pkg/logger"
	pkgkafka "CardSignals/pkg/kafka"
	"CardSignals/pkg/metrics"
	"CardSignals/pkg/money"
	"CardSignals/pkg/util"
)

// cardMsg is the optional card identity carried by feed messages.
type cardMsg struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SetCode    string `json:"set_code"`
	Number     string `json:"number"`
	VariantKey string `json:"variant_key"`
}

// saleMsg schema: {card_id, card?, source, external_id, price_cents, currency, sold_at}
type saleMsg struct {
	CardID     string   `json:"card_id"`
	Card       *cardMsg `json:"card,omitempty"`
	Source     string   `json:"source"`
	ExternalID string   `json:"external_id"`
	PriceCents int64    `json:"price_cents"`
	Currency   string   `json:"currency"`
	SoldAt     string   `json:"sold_at"`
}

type listingMsg struct {
	ID         string   `json:"id"`
	CardID     string   `json:"card_id"`
	Card       *cardMsg `json:"card,omitempty"`
	Source     string   `json:"source"`
	PriceCents int64    `json:"price_cents"`
	Currency   string   `json:"currency"`
	Condition  string   `json:"condition"`
	Grade      string   `json:"grade"`
	URL        string   `json:"url"`
	SeenAt     string   `json:"seen_at"`
}

// IngestStore is the write side used by the feed handlers.
type IngestStore interface {
	domrepo.CardWriter
	domrepo.SaleWriter
	domrepo.ListingWriter
}

// KafkaSalesHandler consumes completed-sale messages into comp_sales.
type KafkaSalesHandler struct {
	topic   string
	store   IngestStore
	fx      *FxNormalizer
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewKafkaSalesHandler(topic string, store IngestStore, fx *FxNormalizer, m domrepo.Metrics, l *applogger.Logger) *KafkaSalesHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaSalesHandler{topic: topic, store: store, fx: fx, metrics: m, l: l}
}

func (h *KafkaSalesHandler) Topic() string { return h.topic }

// Handle skips malformed messages and returns store errors so the consumer retries.
func (h *KafkaSalesHandler) Handle(ctx context.Context, b []byte) error {
	var m saleMsg
	if err := json.Unmarshal(b, &m); err != nil {
		h.skip("sale_unmarshal", err)
		return nil
	}
	soldAt, ok := util.ParseTime(m.SoldAt)
	if !ok {
		h.skip("sale_timestamp", fmt.Errorf("bad sold_at %q", m.SoldAt))
		return nil
	}
	sale := models.CompSale{
		CardID:     firstNonEmpty(m.CardID, cardID(m.Card)),
		Source:     strings.ToLower(strings.TrimSpace(m.Source)),
		ExternalID: m.ExternalID,
		PriceCents: m.PriceCents,
		Currency:   money.NormalizeCode(m.Currency),
		SoldAt:     soldAt.UTC(),
	}
	if err := sale.Validate(); err != nil {
		h.skip("sale_invalid", err)
		return nil
	}
	if sale.ExternalID == "" {
		h.skip("sale_invalid", fmt.Errorf("external_id is required"))
		return nil
	}

	usd, err := h.fx.USDCents(ctx, sale.PriceCents, sale.Currency)
	if err != nil {
		return err
	}
	sale.PriceCentsUSD = usd

	start := time.Now()
	if err := upsertCard(ctx, h.store, sale.CardID, m.Card); err != nil {
		h.metrics.RecordError("ingest_card")
		return err
	}
	inserted, err := h.store.InsertSale(ctx, sale)
	h.metrics.RecordLatency("ingest_sale", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("ingest_sale")
		return fmt.Errorf("insert sale %s/%s: %w", sale.Source, sale.ExternalID, err)
	}
	if !inserted {
		h.l.Debug("duplicate sale ignored", applogger.String("source", sale.Source), applogger.String("external_id", sale.ExternalID))
	}
	return nil
}

func (h *KafkaSalesHandler) skip(kind string, err error) {
	h.metrics.RecordError(kind)
	h.l.Warn("skipping malformed sale message", applogger.String("kind", kind), applogger.Error(err))
}

// KafkaListingsHandler consumes live listing observations.
type KafkaListingsHandler struct {
	topic   string
	store   IngestStore
	fx      *FxNormalizer
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewKafkaListingsHandler(topic string, store IngestStore, fx *FxNormalizer, m domrepo.Metrics, l *applogger.Logger) *KafkaListingsHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaListingsHandler{topic: topic, store: store, fx: fx, metrics: m, l: l}
}

func (h *KafkaListingsHandler) Topic() string { return h.topic }

func (h *KafkaListingsHandler) Handle(ctx context.Context, b []byte) error {
	var m listingMsg
	if err := json.Unmarshal(b, &m); err != nil {
		h.skip("listing_unmarshal", err)
		return nil
	}
	seenAt, ok := util.ParseTime(m.SeenAt)
	if !ok {
		h.skip("listing_timestamp", fmt.Errorf("bad seen_at %q", m.SeenAt))
		return nil
	}
	l := models.Listing{
		ID:         m.ID,
		CardID:     firstNonEmpty(m.CardID, cardID(m.Card)),
		Source:     strings.ToLower(strings.TrimSpace(m.Source)),
		PriceCents: m.PriceCents,
		Currency:   money.NormalizeCode(m.Currency),
		Condition:  m.Condition,
		Grade:      m.Grade,
		URL:        m.URL,
		SeenAt:     seenAt.UTC(),
	}
	if err := l.Validate(); err != nil {
		h.skip("listing_invalid", err)
		return nil
	}

	usd, err := h.fx.USDCents(ctx, l.PriceCents, l.Currency)
	if err != nil {
		return err
	}
	l.PriceCentsUSD = usd

	start := time.Now()
	if err := upsertCard(ctx, h.store, l.CardID, m.Card); err != nil {
		h.metrics.RecordError("ingest_card")
		return err
	}
	err = h.store.UpsertListing(ctx, l)
	h.metrics.RecordLatency("ingest_listing", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("ingest_listing")
		return fmt.Errorf("upsert listing %s: %w", l.ID, err)
	}
	return nil
}

func (h *KafkaListingsHandler) skip(kind string, err error) {
	h.metrics.RecordError(kind)
	h.l.Warn("skipping malformed listing message", applogger.String("kind", kind), applogger.Error(err))
}

func upsertCard(ctx context.Context, w domrepo.CardWriter, id string, c *cardMsg) error {
	if c == nil || c.Name == "" {
		return nil
	}
	err := w.UpsertCard(ctx, models.Card{
		ID:         id,
		Name:       strings.TrimSpace(c.Name),
		SetCode:    strings.TrimSpace(c.SetCode),
		Number:     strings.TrimSpace(c.Number),
		VariantKey: strings.TrimSpace(c.VariantKey),
	})
	if err != nil {
		return fmt.Errorf("upsert card %s: %w", id, err)
	}
	return nil
}

func cardID(c *cardMsg) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var (
	_ pkgkafka.MessageHandler = (*KafkaSalesHandler)(nil)
	_ pkgkafka.MessageHandler = (*KafkaListingsHandler)(nil)
)
