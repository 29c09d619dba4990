package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/chatterbet/chatterbet/internal/backoff"
)

// Client talks to an OpenAI-compatible chat-completions endpoint. Requests
// are paced by a token-bucket limiter and retried per the backoff policy on
// transient failures.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     backoff.Policy
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelayBase    time.Duration
	RequestsPerSecond float64
}

// NewClient creates a classification collaborator client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2.0
	}
	policy := backoff.DefaultPolicy
	if opts.MaxRetries > 0 {
		policy.MaxRetries = opts.MaxRetries
	}
	if opts.RetryDelayBase > 0 {
		policy.BaseDelay = opts.RetryDelayBase
	}

	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		policy:     policy,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete performs one chat-completions call and returns the raw assistant
// text. 429 and 5xx responses are retried; other failures are not.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var content string
	err = backoff.Do(ctx, c.policy, backoff.IsTransient, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &backoff.TransientError{Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &backoff.TransientError{
				Err:   fmt.Errorf("completion request failed: status %d", resp.StatusCode),
				After: retryAfter(resp),
			}
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("completion request failed: status %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &backoff.TransientError{Err: err}
		}
		var parsed chatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to decode completion response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("completion response has no choices")
		}
		content = parsed.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

const classifySystemPrompt = `You classify social-media mentions for a prediction-market trading desk.
Given the conversation context, respond with a single JSON object:
{"signal_type": "news|data|rumor|sentiment|onchain|market_pointer|noise",
 "core_claim": "<one sentence stating the substantive claim>",
 "urgency": "breaking|developing|slow",
 "topics": ["<topic>", ...],
 "is_noise": <true when the mention carries no tradable information>}`

// ClassifyMention classifies a mention context document. Unparseable output
// degrades to a noise classification rather than an error.
func (c *Client) ClassifyMention(ctx context.Context, doc string) (Parsed[MentionClassification], error) {
	raw, err := c.complete(ctx, classifySystemPrompt, doc)
	if err != nil {
		return Parsed[MentionClassification]{}, err
	}

	var mc MentionClassification
	if !decodeInto(raw, &mc) {
		return Fallback(MentionClassification{IsNoise: true}, "unparseable classification output"), nil
	}
	return OK(mc), nil
}

const groupSystemPrompt = `You group classified trading signals into named narrative clusters.
Given numbered signal summaries, respond with a single JSON object:
{"clusters": [{"name": "<short narrative name>",
               "signal_indices": [<index>, ...],
               "sentiment": "bullish|bearish|mixed",
               "confidence": <0..1, near 0.5 when mixed>}]}
Each signal index may appear in at most one cluster. Only group signals that
genuinely share a narrative; singletons are not clusters.`

// GroupSignals groups signal summaries into named clusters. Unparseable
// output degrades to an empty grouping.
func (c *Client) GroupSignals(ctx context.Context, summaries []SignalSummary) (Parsed[GroupingResult], error) {
	user, err := json.Marshal(map[string]interface{}{"signals": summaries})
	if err != nil {
		return Parsed[GroupingResult]{}, fmt.Errorf("failed to marshal summaries: %w", err)
	}

	raw, err := c.complete(ctx, groupSystemPrompt, string(user))
	if err != nil {
		return Parsed[GroupingResult]{}, err
	}

	var gr GroupingResult
	if !decodeInto(raw, &gr) {
		return Fallback(GroupingResult{}, "unparseable grouping output"), nil
	}
	return OK(gr), nil
}

const mapSystemPrompt = `You map a social-signal narrative cluster onto prediction-market instruments.
Given a cluster summary and numbered instruments, respond with a single JSON object:
{"mappings": [{"instrument_index": <index>,
               "direction": "YES|NO",
               "implied_probability": <0..1 probability the signals imply>,
               "reasoning": "<one or two sentences>"}]}
Only include instruments the narrative genuinely bears on; an empty mappings
list is a valid answer.`

// MapCluster proposes instrument mappings for a cluster. Unparseable output
// degrades to an empty mapping list.
func (c *Client) MapCluster(ctx context.Context, cluster ClusterSummary, instruments []InstrumentSummary) (Parsed[MappingResult], error) {
	user, err := json.Marshal(map[string]interface{}{
		"cluster":     cluster,
		"instruments": instruments,
	})
	if err != nil {
		return Parsed[MappingResult]{}, fmt.Errorf("failed to marshal mapping request: %w", err)
	}

	raw, err := c.complete(ctx, mapSystemPrompt, string(user))
	if err != nil {
		return Parsed[MappingResult]{}, err
	}

	var mr MappingResult
	if !decodeInto(raw, &mr) {
		return Fallback(MappingResult{}, "unparseable mapping output"), nil
	}
	return OK(mr), nil
}

const arbitrateSystemPrompt = `You are the final sanity check on a prediction-market trade.
Given the opportunity summary, respond with a single JSON object:
{"decision": "TRADE|PASS|WATCH",
 "reasoning": "<your reasoning>",
 "pass_reason": "<set when decision is PASS>",
 "watch_condition": "<set when decision is WATCH>",
 "confidence_adjustment": <-0.2..0.2>}
Prefer PASS when the signals could be stale, circular, or already priced in.`

// Arbitrate runs the final qualitative pass on an opportunity. Unparseable
// output degrades to PASS with a diagnostic reasoning string.
func (c *Client) Arbitrate(ctx context.Context, req ArbitrationRequest) (Parsed[Verdict], error) {
	user, err := json.Marshal(req)
	if err != nil {
		return Parsed[Verdict]{}, fmt.Errorf("failed to marshal arbitration request: %w", err)
	}

	raw, err := c.complete(ctx, arbitrateSystemPrompt, string(user))
	if err != nil {
		return Parsed[Verdict]{}, err
	}

	var v Verdict
	if !decodeInto(raw, &v) {
		return Fallback(Verdict{
			Decision:   "PASS",
			Reasoning:  "arbitration output could not be parsed; defaulting to PASS",
			PassReason: "unparseable arbitration output",
		}, "unparseable arbitration output"), nil
	}
	return OK(v), nil
}
