package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/anrvee/optionflow/internal/market"
	"github.com/anrvee/optionflow/internal/observ"
)

// ErrBudgetExhausted means the daily request cap was hit; callers stop
// warming up rather than retry.
var ErrBudgetExhausted = fmt.Errorf("daily request budget exhausted")

// RESTClient fetches minute-bar history for warm-up. Requests pass a
// token-bucket limiter and a hard daily cap so a wide warm-up cannot
// trip the vendor's quotas.
type RESTClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	mu       sync.Mutex
	used     int
	dailyCap int
}

func NewRESTClient(baseURL string, perMinute, dailyCap int) *RESTClient {
	return &RESTClient{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		dailyCap: dailyCap,
	}
}

type restBar struct {
	TS     int64   `json:"ts"` // unix millis, minute open
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	OI     float64 `json:"oi"`
	IV     float64 `json:"iv"`
	Spot   float64 `json:"spot"`
}

type restResponse struct {
	Bars []restBar `json:"bars"`
}

func (c *RESTClient) take() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.used >= c.dailyCap {
		return ErrBudgetExhausted
	}
	c.used++
	return nil
}

// Used reports requests spent against the daily cap.
func (c *RESTClient) Used() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Bars fetches one contract-day of minute bars. Transient failures are
// retried three times with doubling backoff.
func (c *RESTClient) Bars(ctx context.Context, inst string, key market.ContractKey, day string) ([]market.Bar, error) {
	if err := c.take(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/bars?symbol=%s&date=%s", c.baseURL, Symbol(inst, key), day)
	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		raw, err := c.get(ctx, url)
		if err != nil {
			lastErr = err
			observ.IncCounter("rest_retries_total", map[string]string{"instrument": inst})
			continue
		}
		var resp restResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode bars: %w", err)
		}
		bars := make([]market.Bar, 0, len(resp.Bars))
		for _, rb := range resp.Bars {
			bars = append(bars, market.Bar{
				TS:           time.UnixMilli(rb.TS).UTC(),
				Instrument:   inst,
				Key:          key,
				Open:         rb.Open,
				High:         rb.High,
				Low:          rb.Low,
				Close:        rb.Close,
				Volume:       rb.Volume,
				OpenInterest: rb.OI,
				IV:           rb.IV,
				Spot:         rb.Spot,
			})
		}
		return bars, nil
	}
	return nil, fmt.Errorf("fetch %s %s: %w", Symbol(inst, key), day, lastErr)
}

func (c *RESTClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
