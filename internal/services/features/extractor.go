package features

import (
	"math"
	"sort"
	"time"

	"CardSignals/internal/domain/models"
	"CardSignals/pkg/util"
)

// MinSales is the smallest sample that yields a snapshot.
const MinSales = 3

// SortedPrices returns the normalized prices of the valid sales, ascending.
// Malformed rows are skipped; the second result counts them.
func SortedPrices(sales []models.CompSale) ([]int64, int) {
	prices := make([]int64, 0, len(sales))
	skipped := 0
	for _, s := range sales {
		if s.Validate() != nil {
			skipped++
			continue
		}
		prices = append(prices, s.NormalizedCents())
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	return prices, skipped
}

// Median of an ascending slice. Even lengths take the half-up rounded mean
// of the two central elements. Empty input yields 0.
func Median(sorted []int64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	a, b := sorted[n/2-1], sorted[n/2]
	mid := a/2 + b/2
	switch a%2 + b%2 {
	case 1, 2:
		mid++
	case -2:
		mid--
	}
	return mid
}

// Percentile uses the floor index p/100*(n-1), clamped to the slice.
func Percentile(sorted []int64, p float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(p / 100 * float64(n-1)))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// VolatilityBp is the mean relative step between consecutive ascending
// prices, in basis points. Steps from a zero price are skipped.
func VolatilityBp(sorted []int64) int64 {
	sum := 0.0
	pairs := 0
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1]
		if prev == 0 {
			continue
		}
		sum += math.Abs(float64(sorted[i]-prev)) / float64(prev)
		pairs++
	}
	if pairs < 1 {
		pairs = 1
	}
	return int64(util.RoundHalfUp(sum / float64(pairs) * 10000))
}

// BuildSnapshot summarises the sales of one card over one window.
// It returns nil when fewer than MinSales valid rows remain.
func BuildSnapshot(cardID string, windowDays int, sales []models.CompSale, now time.Time) *models.FeatureSnapshot {
	prices, _ := SortedPrices(sales)
	if len(prices) < MinSales {
		return nil
	}
	return &models.FeatureSnapshot{
		CardID:       cardID,
		WindowDays:   windowDays,
		MedianCents:  Median(prices),
		P05Cents:     Percentile(prices, 5),
		P95Cents:     Percentile(prices, 95),
		Volume:       len(prices),
		VolatilityBp: VolatilityBp(prices),
		UpdatedAt:    now,
	}
}
