// Package execution submits executed trades to the brokerage API. Money and
// prices cross the wire as decimal strings, never floats, so sizing survives
// serialization exactly.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chatterbet/chatterbet/internal/backoff"
	"github.com/chatterbet/chatterbet/internal/models"
)

// Client provides access to the order-execution API.
type Client struct {
	apiBaseURL string
	apiKey     string
	httpClient *http.Client
	policy     backoff.Policy
}

// NewClient creates an execution client.
func NewClient(apiBaseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiBaseURL: apiBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		policy:     backoff.DefaultPolicy,
	}
}

// wireOrder is the JSON payload for order placement.
type wireOrder struct {
	ClientOrderID string `json:"client_order_id"`
	InstrumentID  string `json:"instrument_id"`
	Direction     string `json:"direction"`
	AmountUSD     string `json:"amount_usd"`
	LimitPrice    string `json:"limit_price"`
}

// wireExitRules is the JSON payload for attaching exit rules to an order.
type wireExitRules struct {
	StopLoss   string `json:"stop_loss"`
	TakeProfit string `json:"take_profit"`
}

// PlaceOrder submits a TRADE order as a limit order at the entry price and
// returns the broker's order ID. The order's own ID doubles as the client
// order ID, making resubmission after a crash idempotent on the broker side.
func (c *Client) PlaceOrder(ctx context.Context, order *models.TradeOrder) (string, error) {
	if order.Decision != models.DecisionTrade {
		return "", fmt.Errorf("refusing to place non-TRADE order %s", order.ID)
	}

	payload := wireOrder{
		ClientOrderID: order.ID,
		InstrumentID:  order.InstrumentID,
		Direction:     string(order.Direction),
		AmountUSD:     decimal.NewFromInt(int64(order.SizeUSD)).StringFixed(2),
		LimitPrice:    decimal.NewFromFloat(order.EntryPrice).StringFixed(4),
	}

	var response struct {
		OrderID string `json:"order_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders", payload, &response); err != nil {
		return "", fmt.Errorf("failed to place order %s: %w", order.ID, err)
	}
	if response.OrderID == "" {
		return "", fmt.Errorf("order placement for %s returned no order ID", order.ID)
	}
	return response.OrderID, nil
}

// SetExitRules attaches stop-loss and take-profit prices to a placed order.
func (c *Client) SetExitRules(ctx context.Context, brokerOrderID string, stopLoss, takeProfit float64) error {
	payload := wireExitRules{
		StopLoss:   decimal.NewFromFloat(stopLoss).StringFixed(4),
		TakeProfit: decimal.NewFromFloat(takeProfit).StringFixed(4),
	}
	path := fmt.Sprintf("/orders/%s/exit-rules", brokerOrderID)
	if err := c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("failed to set exit rules on %s: %w", brokerOrderID, err)
	}
	return nil
}

// OpenPositions returns the broker's view of currently open positions.
func (c *Client) OpenPositions(ctx context.Context) ([]models.Position, error) {
	var response struct {
		Positions []struct {
			InstrumentID string    `json:"instrument_id"`
			Question     string    `json:"question"`
			Direction    string    `json:"direction"`
			EntryPrice   string    `json:"entry_price"`
			AmountUSD    string    `json:"amount_usd"`
			EnteredAt    time.Time `json:"entered_at"`
		} `json:"positions"`
	}
	if err := c.do(ctx, http.MethodGet, "/positions", nil, &response); err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	positions := make([]models.Position, 0, len(response.Positions))
	for _, p := range response.Positions {
		entry, err := decimal.NewFromString(p.EntryPrice)
		if err != nil {
			return nil, fmt.Errorf("unparseable entry price %q for %s: %w", p.EntryPrice, p.InstrumentID, err)
		}
		amount, err := decimal.NewFromString(p.AmountUSD)
		if err != nil {
			return nil, fmt.Errorf("unparseable amount %q for %s: %w", p.AmountUSD, p.InstrumentID, err)
		}
		positions = append(positions, models.Position{
			InstrumentID: p.InstrumentID,
			Question:     p.Question,
			Direction:    models.Direction(p.Direction),
			EntryPrice:   entry.InexactFloat64(),
			SizeUSD:      int(amount.IntPart()),
			EnteredAt:    p.EnteredAt,
		})
	}
	return positions, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	return backoff.Do(ctx, c.policy, backoff.IsTransient, func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.apiBaseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &backoff.TransientError{Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
		case resp.StatusCode == http.StatusTooManyRequests:
			return &backoff.TransientError{
				Err:   fmt.Errorf("execution API rate limited (%d)", resp.StatusCode),
				After: retryAfter(resp),
			}
		case resp.StatusCode >= 500:
			return &backoff.TransientError{Err: fmt.Errorf("execution API returned %d", resp.StatusCode)}
		default:
			return fmt.Errorf("execution API returned %d", resp.StatusCode)
		}

		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	return 0
}
