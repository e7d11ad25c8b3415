package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	domsvc "CardSignals/internal/domain/service"
	"CardSignals/internal/services/analytics"
	"CardSignals/pkg/cache"
	applogger "CardSignals/pkg/logger"
	"CardSignals/pkg/money"
	"CardSignals/pkg/util"
)

// FairValueService answers ad-hoc "what is this card worth" queries by
// reconciling recent comps with external quote sources.
type FairValueService struct {
	cards        domrepo.CardReader
	comps        domrepo.CompReader
	sources      []domsvc.QuoteSource
	reconciler   domsvc.Reconciler
	rule         analytics.QualifyRule
	cache        cache.Service
	ttl          time.Duration
	lookbackDays int
	compLimit    int
	quoteTimeout time.Duration
	l            *applogger.Logger
	now          func() time.Time
}

type FairValueOption func(*FairValueService)

func WithQuoteSources(sources ...domsvc.QuoteSource) FairValueOption {
	return func(s *FairValueService) { s.sources = append(s.sources, sources...) }
}

func WithQualifyRule(r analytics.QualifyRule) FairValueOption {
	return func(s *FairValueService) { s.rule = r }
}

func WithFairValueCache(c cache.Service, ttl time.Duration) FairValueOption {
	return func(s *FairValueService) {
		s.cache = c
		s.ttl = ttl
	}
}

func WithCompWindow(lookbackDays, limit int) FairValueOption {
	return func(s *FairValueService) {
		if lookbackDays > 0 {
			s.lookbackDays = lookbackDays
		}
		if limit > 0 {
			s.compLimit = limit
		}
	}
}

func WithQuoteTimeout(d time.Duration) FairValueOption {
	return func(s *FairValueService) { s.quoteTimeout = d }
}

func WithFairValueLogger(l *applogger.Logger) FairValueOption {
	return func(s *FairValueService) { s.l = l }
}

func WithFairValueClock(now func() time.Time) FairValueOption {
	return func(s *FairValueService) { s.now = now }
}

func NewFairValueService(cards domrepo.CardReader, comps domrepo.CompReader, reconciler domsvc.Reconciler, opts ...FairValueOption) *FairValueService {
	s := &FairValueService{
		cards:        cards,
		comps:        comps,
		reconciler:   reconciler,
		rule:         analytics.DefaultQualifyRule(),
		lookbackDays: 90,
		compLimit:    50,
		quoteTimeout: 3 * time.Second,
		l:            applogger.Nop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reconciler == nil {
		s.reconciler = analytics.NewReconciler()
	}
	return s
}

// Normalize trims the identity fields and applies the grade and language defaults.
func Normalize(req models.FairValueRequest) models.FairValueRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Set = strings.TrimSpace(req.Set)
	req.Number = strings.TrimSpace(req.Number)
	req.Grade = strings.ToUpper(strings.TrimSpace(req.Grade))
	if req.Grade == "" {
		req.Grade = "RAW"
	}
	req.Language = strings.ToUpper(strings.TrimSpace(req.Language))
	if req.Language == "" {
		req.Language = "EN"
	}
	return req
}

// SanitizeComps drops comps without a usable positive price.
func SanitizeComps(comps []models.CompSale) []models.CompSale {
	out := make([]models.CompSale, 0, len(comps))
	for _, c := range comps {
		if c.NormalizedCents() <= 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ErrInvalidQuery is returned for a request missing its identity or price.
var ErrInvalidQuery = errors.New("name, set and a positive list price are required")

// Quote computes the fair value of the requested card against its list price.
func (s *FairValueService) Quote(ctx context.Context, req models.FairValueRequest) (*models.FairValueQuote, error) {
	req = Normalize(req)
	if req.Name == "" || req.Set == "" || !(req.ListPrice > 0) || !util.Finite(req.ListPrice) {
		return nil, ErrInvalidQuery
	}

	key := s.cacheKey(req)
	if s.cache != nil {
		var cached models.FairValueQuote
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.l.Warn("fair value cache read failed", applogger.String("key", key), applogger.Error(err))
		}
	}

	comps, err := s.lookupComps(ctx, req)
	if err != nil {
		return nil, err
	}
	usable := SanitizeComps(comps)

	quotes := make([]models.PriceQuote, 0, len(usable)+len(s.sources))
	for _, c := range usable {
		quotes = append(quotes, models.Quote(c.Source, money.CentsToDollars(c.NormalizedCents())))
	}
	quotes = append(quotes, s.externalQuotes(ctx, req)...)

	fv := s.reconciler.Reconcile(req.ListPrice, quotes)
	fair := fv.Estimate
	if len(fv.SourcesUsed) == 0 {
		// nothing to go on: the reconciler echoes the reference price back
		fair = 0
	}
	q := s.rule.Qualify(fair, req.ListPrice, analytics.ReconcilerConfidence01(fv.Confidence))

	out := &models.FairValueQuote{
		Name:        req.Name,
		Set:         req.Set,
		Grade:       req.Grade,
		Language:    req.Language,
		ListPrice:   req.ListPrice,
		FairValue:   q.FairValue,
		DiscountPct: q.DiscountPct,
		Confidence:  q.Confidence,
		Qualified:   q.Qualified,
		Comps:       len(usable),
		Sources:     fv.SourcesUsed,
		Reconciled:  fv,
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, key, out, s.ttl); err != nil {
			s.l.Warn("fair value cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return out, nil
}

func (s *FairValueService) lookupComps(ctx context.Context, req models.FairValueRequest) ([]models.CompSale, error) {
	if s.cards == nil || s.comps == nil {
		return nil, nil
	}
	cards, err := s.cards.FindCards(ctx, req.Name, req.Set, req.Number)
	if err != nil {
		return nil, fmt.Errorf("find cards: %w", err)
	}
	if len(cards) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(cards))
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	comps, err := s.comps.CompsForCards(ctx, ids, util.DaysAgo(s.now(), s.lookbackDays), s.compLimit)
	if err != nil {
		return nil, fmt.Errorf("comps for cards: %w", err)
	}
	return comps, nil
}

// externalQuotes asks every source in parallel. A failing source contributes
// an absent quote.
func (s *FairValueService) externalQuotes(ctx context.Context, req models.FairValueRequest) []models.PriceQuote {
	if len(s.sources) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.quoteTimeout)
	defer cancel()

	out := make([]models.PriceQuote, len(s.sources))
	var wg sync.WaitGroup
	for i, src := range s.sources {
		wg.Add(1)
		go func(i int, src domsvc.QuoteSource) {
			defer wg.Done()
			q, err := src.Quote(ctx, req)
			if err != nil {
				s.l.Warn("quote source failed", applogger.String("source", src.Name()), applogger.Error(err))
				q = models.PriceQuote{Source: src.Name()}
			}
			out[i] = q
		}(i, src)
	}
	wg.Wait()
	return out
}

func (s *FairValueService) cacheKey(req models.FairValueRequest) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%.2f", strings.ToLower(req.Name), strings.ToLower(req.Set), req.Number, req.Grade, req.Language, req.ListPrice)
	return cache.GenerateKey("fv", cache.HashKey(raw))
}
