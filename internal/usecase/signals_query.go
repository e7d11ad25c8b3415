package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	"CardSignals/pkg/money"
	"CardSignals/pkg/util"
)

const (
	maxSignalFetch = 200
	proofComps     = 5
	sparklineBase  = "https://quickchart.io/chart?c="
)

// SignalsQueryService serves the read side of signals: the latest list,
// per-signal proof and per-card snapshot views.
type SignalsQueryService struct {
	signals   domrepo.SignalReader
	cards     domrepo.CardReader
	listings  domrepo.ListingLookup
	snaps     domrepo.SnapshotReader
	comps     domrepo.CompReader
	history   domrepo.HistoryStore
	proofBase string
	timeout   time.Duration
}

type SignalsQueryDeps struct {
	Signals  domrepo.SignalReader
	Cards    domrepo.CardReader
	Listings domrepo.ListingLookup
	Snaps    domrepo.SnapshotReader
	Comps    domrepo.CompReader
	History  domrepo.HistoryStore // optional
}

func NewSignalsQueryService(deps SignalsQueryDeps, proofBase string) *SignalsQueryService {
	return &SignalsQueryService{
		signals:   deps.Signals,
		cards:     deps.Cards,
		listings:  deps.Listings,
		snaps:     deps.Snaps,
		comps:     deps.Comps,
		history:   deps.History,
		proofBase: proofBase,
		timeout:   10 * time.Second,
	}
}

// Latest returns the best signal per card under the requested ordering.
func (s *SignalsQueryService) Latest(ctx context.Context, req models.LatestSignalsRequest) ([]models.LatestSignal, error) {
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Sort == "" {
		req.Sort = "edge"
	}
	filter := models.SignalFilter{
		Sort:          req.Sort,
		IncludeBlank:  req.IncludeBlank,
		Limit:         req.Limit,
		MinEdgeBp:     req.MinEdgeBp,
		MinConfidence: req.MinConf,
	}
	if req.MinEdgeBp != nil && *req.MinEdgeBp <= 0 {
		filter.MinEdgeBp = nil
	}
	if req.MinConf != nil && *req.MinConf <= 0 {
		filter.MinConfidence = nil
	}
	if req.MinPriceUSD != nil && *req.MinPriceUSD > 0 {
		cents := money.DollarsToCents(*req.MinPriceUSD)
		filter.MinPriceCents = &cents
	}

	// over-fetch so that per-card de-duplication can still fill the page
	fetch := req.Limit * 3
	if fetch > maxSignalFetch {
		fetch = maxSignalFetch
	}
	if fetch < req.Limit {
		fetch = req.Limit
	}

	rows, err := s.signals.LatestSignals(ctx, filter, fetch)
	if err != nil {
		return nil, fmt.Errorf("latest signals: %w", err)
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([]models.LatestSignal, 0, req.Limit)
	for _, r := range rows {
		if filter.MinPriceCents != nil && r.Listing.AskCents() < *filter.MinPriceCents {
			continue
		}
		if _, ok := seen[r.Signal.CardID]; ok {
			continue
		}
		seen[r.Signal.CardID] = struct{}{}
		out = append(out, s.present(r))
		if len(out) >= req.Limit {
			break
		}
	}
	return out, nil
}

func (s *SignalsQueryService) present(r models.SignalRow) models.LatestSignal {
	edgePct := money.Round(float64(r.Signal.EdgeBp)/100, 1)
	sign := ""
	if r.Signal.EdgeBp >= 0 {
		sign = "+"
	}
	variant := r.Card.VariantKey
	if variant == "" {
		variant = "EN"
	}
	return models.LatestSignal{
		ID:         r.Signal.ID,
		CreatedAt:  r.Signal.CreatedAt,
		CardID:     r.Signal.CardID,
		CardName:   r.Card.Name,
		SetCode:    r.Card.SetCode,
		Number:     r.Card.Number,
		VariantKey: r.Card.VariantKey,
		CardSlug:   util.Slugify(r.Card.SetCode, r.Card.Number, variant),
		ListingID:  r.Signal.ListingID,
		ListingURL: r.Listing.URL,
		Source:     r.Listing.Source,
		PriceCents: r.Listing.PriceCents,
		PriceUSD:   money.CentsToDollars(r.Listing.AskCents()),
		Currency:   r.Listing.Currency,
		Kind:       string(r.Signal.Kind),
		EdgeBp:     r.Signal.EdgeBp,
		EdgePct:    edgePct,
		EdgePctStr: sign + strconv.FormatFloat(edgePct, 'f', -1, 64) + "%",
		Confidence: money.Round(r.Signal.Confidence, 2),
		Thesis:     r.Signal.Thesis,
		ProofURL:   ProofURL(s.proofBase, r.Signal.ID),
	}
}

// Proof gathers the evidence behind one signal. Unknown ids return domrepo.ErrNotFound.
func (s *SignalsQueryService) Proof(ctx context.Context, id string) (*models.SignalProof, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sig, err := s.signals.GetSignal(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &models.SignalProof{Signal: *sig, Comps: []models.CompView{}}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 4)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := s.cards.GetCard(ctx, sig.CardID)
		ch <- item{"card", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := s.listings.GetListing(ctx, sig.ListingID)
		ch <- item{"listing", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := s.snaps.GetSnapshots(ctx, sig.CardID, []int{models.Window30})
		ch <- item{"features", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := s.comps.CompsForCards(ctx, []string{sig.CardID}, time.Time{}, proofComps)
		ch <- item{"comps", v, err}
	}()

	go func() { wg.Wait(); close(ch) }()

	var errs []error
	for it := range ch {
		if it.err != nil {
			if !errors.Is(it.err, domrepo.ErrNotFound) {
				errs = append(errs, fmt.Errorf("%s: %w", it.name, it.err))
			}
			continue
		}
		switch it.name {
		case "card":
			res.Card = it.val.(*models.Card)
		case "listing":
			res.Listing = it.val.(*models.Listing)
		case "features":
			for _, sn := range it.val.([]models.FeatureSnapshot) {
				if sn.WindowDays == models.Window30 {
					sn := sn
					res.Features = &sn
				}
			}
		case "comps":
			for _, c := range it.val.([]models.CompSale) {
				res.Comps = append(res.Comps, models.CompView{Source: c.Source, PriceCents: c.PriceCents, Currency: c.Currency, SoldAt: c.SoldAt})
			}
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("signal proof %s: %w", id, errors.Join(errs...))
	}
	if res.Features != nil {
		res.SparklineURL = SparklineURL([]int64{res.Features.P05Cents, res.Features.MedianCents, res.Features.P95Cents})
	}
	return res, nil
}

// SparklineURL renders a quickchart sparkline for the series.
func SparklineURL(series []int64) string {
	data, _ := json.Marshal(series)
	return sparklineBase + `{"type":"sparkline","data":{"datasets":[{"data":` + url.QueryEscape(string(data)) + `}]}}`
}

// CardSnapshots returns the current snapshots of a card for the canonical windows.
func (s *SignalsQueryService) CardSnapshots(ctx context.Context, cardID string) ([]models.FeatureSnapshot, error) {
	snaps, err := s.snaps.GetSnapshots(ctx, cardID, models.CanonicalWindows)
	if err != nil {
		return nil, fmt.Errorf("card snapshots: %w", err)
	}
	return snaps, nil
}

// CardHistory reads the archived snapshots of a card, newest first.
func (s *SignalsQueryService) CardHistory(ctx context.Context, cardID string, limit int) ([]models.FeatureSnapshot, error) {
	if s.history == nil {
		return nil, domrepo.ErrNotConfigured
	}
	h, err := s.history.SnapshotHistory(ctx, cardID, limit)
	if err != nil {
		return nil, fmt.Errorf("card history: %w", err)
	}
	return h, nil
}
