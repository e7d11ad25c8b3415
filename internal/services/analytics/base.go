package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CardSignals/internal/domain/models"
	domsvc "CardSignals/internal/domain/service"
	xhttp "CardSignals/pkg/http"
	"CardSignals/pkg/util"
)

// HTTPServiceBase wraps a JSON-over-HTTP endpoint with bounded retry.
type HTTPServiceBase struct {
	url    string
	client *xhttp.Client
}

func NewHTTPServiceBase(url string, timeout time.Duration) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPServiceBase{url: url, client: xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithUserAgent("cardsignals-quotes/1.0"))}
}

// PostJSON posts payload and decodes the JSON response into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, payload interface{}, dest interface{}) error {
	if b.client == nil || b.url == "" {
		return errors.New("quote client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.url,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", b.url, err)
	}
	return nil
}

// PostJSONWithRetry retries with linear backoff. A 4xx other than 429 is
// returned at once, as is cancellation.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, payload interface{}, dest interface{}, attempts int) error {
	if attempts <= 1 {
		return b.PostJSON(ctx, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = b.PostJSON(ctx, payload, dest); err == nil {
			return nil
		}
		var se *xhttp.StatusError
		if i == attempts || (errors.As(err, &se) && !se.Retryable()) {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

type quoteReq struct {
	Name     string `json:"name"`
	Set      string `json:"set"`
	Number   string `json:"number,omitempty"`
	Grade    string `json:"grade"`
	Language string `json:"language"`
}

// quoteResp carries a dollar price; null or missing means no data.
type quoteResp struct {
	Price *float64 `json:"price"`
}

// HTTPQuoteSource asks an external provider for a fair-value quote.
type HTTPQuoteSource struct {
	name     string
	base     *HTTPServiceBase
	attempts int
}

func NewHTTPQuoteSource(name, url string, timeout time.Duration) *HTTPQuoteSource {
	return &HTTPQuoteSource{name: name, base: NewHTTPServiceBase(url, timeout), attempts: 2}
}

func (s *HTTPQuoteSource) Name() string { return s.name }

func (s *HTTPQuoteSource) Quote(ctx context.Context, req models.FairValueRequest) (models.PriceQuote, error) {
	q := models.PriceQuote{Source: s.name}
	var resp quoteResp
	err := s.base.PostJSONWithRetry(ctx, quoteReq{
		Name: req.Name, Set: req.Set, Number: req.Number, Grade: req.Grade, Language: req.Language,
	}, &resp, s.attempts)
	if err != nil {
		return q, fmt.Errorf("quote %s: %w", s.name, err)
	}
	if resp.Price != nil && util.Finite(*resp.Price) && *resp.Price > 0 {
		q.Price = resp.Price
	}
	return q, nil
}

var _ domsvc.QuoteSource = (*HTTPQuoteSource)(nil)
