package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"arb_go/internal/domain"

	"github.com/shopspring/decimal"
)

// dunamuResponse represents the Dunamu Forex API response
type dunamuResponse struct {
	Code         string          `json:"code"`
	CurrencyCode string          `json:"currencyCode"`
	Date         string          `json:"date"`
	Time         string          `json:"time"`
	BasePrice    decimal.Decimal `json:"basePrice"`
	ChangePrice  decimal.Decimal `json:"changePrice"`
	Timestamp    int64           `json:"timestamp"`
}

var errEmptyRate = errors.New("empty response from Dunamu API")

// ExchangeRateClient polls the USD/KRW rate used to compare KRW and USDT books.
type ExchangeRateClient struct {
	onUpdate     func(decimal.Decimal)
	rate         decimal.Decimal
	mu           sync.RWMutex
	pollInterval time.Duration
	apiURL       string
	httpClient   *http.Client
	retryDelay   func(attempt int) time.Duration
}

// NewExchangeRateClient creates a client. onUpdate runs whenever the rate changes.
func NewExchangeRateClient(cfg ExchangeRateConfig, onUpdate func(decimal.Decimal)) *ExchangeRateClient {
	c := &ExchangeRateClient{
		onUpdate:     onUpdate,
		rate:         decimal.Zero,
		pollInterval: 60 * time.Second, // Default: 1 minute
		apiURL:       cfg.URL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelay: func(attempt int) time.Duration {
			// Exponential backoff: 1s, 2s, 4s
			return CalculateBackoff(attempt - 1)
		},
	}
	if cfg.PollIntervalSec > 0 {
		c.pollInterval = time.Duration(cfg.PollIntervalSec) * time.Second
	}
	return c
}

// Run fetches once, then polls until ctx is done. Fetch failures are logged
// and retried on the next tick.
func (c *ExchangeRateClient) Run(ctx context.Context) error {
	if err := c.fetchRate(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("Initial exchange rate fetch failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Exchange rate polling stopped")
			return nil
		case <-ticker.C:
			if err := c.fetchRate(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("Exchange rate fetch failed", slog.Any("error", err))
			}
		}
	}
}

// fetchRate fetches the current exchange rate with up to three attempts.
func (c *ExchangeRateClient) fetchRate(ctx context.Context) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			delay := c.retryDelay(i)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.doFetch(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !domain.IsRetriable(err) {
			return err
		}
		slog.Warn("Exchange rate fetch attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))
	}
	return lastErr
}

func (c *ExchangeRateClient) doFetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return domain.NewFatalNetworkError("fx request", err)
	}

	// Add browser-like User-Agent to avoid bot detection
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError("fx fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.NewNetworkError("fx fetch", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError("fx read", err)
	}

	var data []dunamuResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return domain.NewFatalNetworkError("fx decode", err)
	}
	if len(data) == 0 || !data[0].BasePrice.IsPositive() {
		return domain.NewNetworkError("fx decode", errEmptyRate)
	}

	// Use basePrice (매매기준율) as the exchange rate
	newRate := data[0].BasePrice

	c.mu.Lock()
	oldRate := c.rate
	c.rate = newRate
	c.mu.Unlock()

	// Notify if rate changed
	if !oldRate.Equal(newRate) && c.onUpdate != nil {
		slog.Info("💱 Exchange rate updated",
			slog.String("rate", newRate.String()),
			slog.String("old_rate", oldRate.String()),
		)
		c.onUpdate(newRate)
	}
	return nil
}

// GetRate returns the current exchange rate
func (c *ExchangeRateClient) GetRate() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate
}
