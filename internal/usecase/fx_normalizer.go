package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	domrepo "CardSignals/internal/domain/repository"
	"CardSignals/pkg/money"

	"github.com/shopspring/decimal"
)

// FxNormalizer converts minor-unit prices to USD with a periodically
// reloaded rate table.
type FxNormalizer struct {
	reader domrepo.FxReader
	ttl    time.Duration
	mu     sync.RWMutex
	rates  money.RateTable
	loaded time.Time
	now    func() time.Time
}

func NewFxNormalizer(reader domrepo.FxReader, ttl time.Duration) *FxNormalizer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &FxNormalizer{reader: reader, ttl: ttl, now: time.Now}
}

// USDCents returns the USD amount, or nil when the amount is already USD or
// no rate is known for the currency.
func (n *FxNormalizer) USDCents(ctx context.Context, cents int64, currency string) (*int64, error) {
	if n == nil {
		return nil, nil
	}
	if money.NormalizeCode(currency) == money.USD {
		return nil, nil
	}
	rates, err := n.table(ctx)
	if err != nil {
		return nil, err
	}
	usd, ok := money.ToUSDCents(cents, currency, rates)
	if !ok {
		return nil, nil
	}
	return &usd, nil
}

func (n *FxNormalizer) table(ctx context.Context) (money.RateTable, error) {
	n.mu.RLock()
	if n.rates != nil && n.now().Sub(n.loaded) < n.ttl {
		r := n.rates
		n.mu.RUnlock()
		return r, nil
	}
	n.mu.RUnlock()

	if n.reader == nil {
		return money.RateTable{}, nil
	}
	rows, err := n.reader.FxRates(ctx)
	if err != nil {
		n.mu.RLock()
		stale := n.rates
		n.mu.RUnlock()
		if stale != nil {
			return stale, nil
		}
		return nil, fmt.Errorf("load fx rates: %w", err)
	}
	table := make(money.RateTable, len(rows))
	for _, r := range rows {
		table[money.NormalizeCode(r.Code)] = decimal.NewFromFloat(r.USDPerUnit)
	}

	n.mu.Lock()
	n.rates = table
	n.loaded = n.now()
	n.mu.Unlock()
	return table, nil
}
