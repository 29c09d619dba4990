// Package markets fetches active prediction-market instruments and caches
// them with a TTL so every cluster mapped in a tick sees the same instrument
// snapshot without refetching.
package markets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/chatterbet/chatterbet/internal/backoff"
	"github.com/chatterbet/chatterbet/internal/logger"
	"github.com/chatterbet/chatterbet/internal/models"
)

// Client provides access to the market-data API.
type Client struct {
	apiBaseURL string
	httpClient *http.Client
	policy     backoff.Policy

	cacheTTL  time.Duration
	mu        sync.Mutex
	cached    []models.MarketInstrument
	fetchedAt time.Time

	now func() time.Time
}

// apiInstrument is an instrument as the market API returns it. Prices come
// back as decimal strings.
type apiInstrument struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Outcomes      []string `json:"outcomes"`
	OutcomePrices []string `json:"outcome_prices"`
	Volume        float64  `json:"volume"`
	Liquidity     float64  `json:"liquidity"`
	EndDate       string   `json:"end_date"`
	Active        bool     `json:"active"`
}

// NewClient creates a market-data client.
func NewClient(apiBaseURL string, timeout, cacheTTL time.Duration) *Client {
	return &Client{
		apiBaseURL: apiBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		policy:     backoff.DefaultPolicy,
		cacheTTL:   cacheTTL,
		now:        time.Now,
	}
}

// ListActiveInstruments returns up to limit active instruments ordered by
// volume descending, served from cache while it is fresh.
func (c *Client) ListActiveInstruments(ctx context.Context, limit int) ([]models.MarketInstrument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.now().Sub(c.fetchedAt) < c.cacheTTL {
		return top(c.cached, limit), nil
	}

	instruments, err := c.fetchInstruments(ctx)
	if err != nil {
		// Serve a stale cache rather than dropping the tick.
		if c.cached != nil {
			logger.Warn("Instrument fetch failed, serving stale cache: %v", err)
			return top(c.cached, limit), nil
		}
		return nil, err
	}

	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i].Volume > instruments[j].Volume
	})
	c.cached = instruments
	c.fetchedAt = c.now()

	return top(c.cached, limit), nil
}

// Invalidate drops the cache so the next call refetches.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}

func (c *Client) fetchInstruments(ctx context.Context) ([]models.MarketInstrument, error) {
	url := fmt.Sprintf("%s/markets?active=true&limit=100", c.apiBaseURL)

	var instruments []models.MarketInstrument
	err := backoff.Do(ctx, c.policy, backoff.IsTransient, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &backoff.TransientError{Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &backoff.TransientError{Err: fmt.Errorf("market API returned %d", resp.StatusCode)}
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("market API returned %d", resp.StatusCode)
		}

		var response struct {
			Markets []apiInstrument `json:"markets"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return fmt.Errorf("failed to decode instruments: %w", err)
		}

		instruments = instruments[:0]
		for _, ai := range response.Markets {
			inst, err := convertInstrument(ai)
			if err != nil {
				logger.Warn("Skipping instrument %s: %v", ai.ID, err)
				continue
			}
			instruments = append(instruments, inst)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instruments: %w", err)
	}
	return instruments, nil
}

// convertInstrument parses an API instrument into the internal model. The
// API serves prices as strings keyed by outcome order.
func convertInstrument(ai apiInstrument) (models.MarketInstrument, error) {
	inst := models.MarketInstrument{
		ID:        ai.ID,
		Question:  ai.Question,
		Outcomes:  ai.Outcomes,
		Volume:    ai.Volume,
		Liquidity: ai.Liquidity,
		Active:    ai.Active,
	}

	if len(ai.Outcomes) != len(ai.OutcomePrices) {
		return inst, fmt.Errorf("outcome/price count mismatch: %d vs %d", len(ai.Outcomes), len(ai.OutcomePrices))
	}
	for i, outcome := range ai.Outcomes {
		price, err := strconv.ParseFloat(ai.OutcomePrices[i], 64)
		if err != nil {
			return inst, fmt.Errorf("unparseable price %q for outcome %s: %w", ai.OutcomePrices[i], outcome, err)
		}
		switch outcome {
		case "Yes":
			inst.YesPrice = price
		case "No":
			inst.NoPrice = price
		}
	}

	if ai.EndDate != "" {
		endDate, err := time.Parse(time.RFC3339, ai.EndDate)
		if err != nil {
			return inst, fmt.Errorf("unparseable end date %q: %w", ai.EndDate, err)
		}
		inst.EndDate = endDate
	}

	if err := inst.Validate(); err != nil {
		return inst, err
	}
	return inst, nil
}

func top(instruments []models.MarketInstrument, limit int) []models.MarketInstrument {
	if limit > len(instruments) {
		limit = len(instruments)
	}
	out := make([]models.MarketInstrument, limit)
	copy(out, instruments[:limit])
	return out
}
