// Package social talks to the mention-source API: inbound mentions with
// conversation context, and outbound posts published as reply threads.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/chatterbet/chatterbet/internal/backoff"
	"github.com/chatterbet/chatterbet/internal/models"
)

// Client provides access to the social platform API.
type Client struct {
	apiBaseURL  string
	bearerToken string
	botHandle   string
	httpClient  *http.Client
	policy      backoff.Policy
}

// NewClient creates a social API client.
func NewClient(apiBaseURL, bearerToken, botHandle string, timeout time.Duration) *Client {
	return &Client{
		apiBaseURL:  apiBaseURL,
		bearerToken: bearerToken,
		botHandle:   botHandle,
		httpClient:  &http.Client{Timeout: timeout},
		policy:      backoff.DefaultPolicy,
	}
}

// FetchMentions returns the mentions of the bot since the cursor, oldest
// first, along with the cursor to persist for the next fetch. An empty
// sinceCursor fetches from the platform's default horizon.
func (c *Client) FetchMentions(ctx context.Context, sinceCursor string) ([]*models.RawMention, string, error) {
	query := url.Values{}
	query.Set("handle", c.botHandle)
	if sinceCursor != "" {
		query.Set("cursor", sinceCursor)
	}
	endpoint := fmt.Sprintf("%s/mentions?%s", c.apiBaseURL, query.Encode())

	var response struct {
		Mentions   []*models.RawMention `json:"mentions"`
		NextCursor string               `json:"next_cursor"`
	}
	err := backoff.Do(ctx, c.policy, backoff.IsTransient, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &backoff.TransientError{Err: err}
		}
		defer resp.Body.Close()

		if err := checkStatus(resp); err != nil {
			return err
		}
		return json.NewDecoder(resp.Body).Decode(&response)
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch mentions: %w", err)
	}

	// A missing cursor means nothing new; the caller keeps the old one.
	if response.NextCursor == "" {
		response.NextCursor = sinceCursor
	}
	return response.Mentions, response.NextCursor, nil
}

// PostThread publishes texts as a reply chain: the first post stands alone,
// each following post replies to the previous one. Returns the IDs of the
// published posts. A mid-thread failure returns the IDs posted so far along
// with the error.
func (c *Client) PostThread(ctx context.Context, texts []string) ([]string, error) {
	ids := make([]string, 0, len(texts))
	replyTo := ""
	for i, text := range texts {
		id, err := c.post(ctx, text, replyTo)
		if err != nil {
			return ids, fmt.Errorf("failed to post thread part %d/%d: %w", i+1, len(texts), err)
		}
		ids = append(ids, id)
		replyTo = id
	}
	return ids, nil
}

func (c *Client) post(ctx context.Context, text, replyToID string) (string, error) {
	payload := struct {
		Text      string `json:"text"`
		ReplyToID string `json:"reply_to_id,omitempty"`
	}{Text: text, ReplyToID: replyToID}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal post: %w", err)
	}

	var response struct {
		ID string `json:"id"`
	}
	err = backoff.Do(ctx, c.policy, backoff.IsTransient, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+"/posts", bytes.NewReader(body))
		if err != nil {
			return err
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &backoff.TransientError{Err: err}
		}
		defer resp.Body.Close()

		if err := checkStatus(resp); err != nil {
			return err
		}
		return json.NewDecoder(resp.Body).Decode(&response)
	})
	if err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", fmt.Errorf("post response carried no ID")
	}
	return response.ID, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
}

// checkStatus maps HTTP status codes onto the retry policy: 429 and 5xx are
// transient (429 honoring Retry-After), everything else non-2xx is terminal.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &backoff.TransientError{
			Err:   fmt.Errorf("social API rate limited (%d)", resp.StatusCode),
			After: retryAfter(resp),
		}
	case resp.StatusCode >= 500:
		return &backoff.TransientError{Err: fmt.Errorf("social API returned %d", resp.StatusCode)}
	default:
		return fmt.Errorf("social API returned %d", resp.StatusCode)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := time.ParseDuration(v + "s"); err == nil {
			return seconds
		}
	}
	return 0
}
