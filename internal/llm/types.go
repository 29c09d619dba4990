// Package llm is the natural-language classification collaborator. It exposes
// the three call shapes the pipeline needs (mention enrichment, signal
// grouping, trade arbitration) over an OpenAI-compatible chat-completions API.
//
// Collaborator output is dynamic-shaped JSON, so every call returns a tagged
// Parsed result: either the parsed value or the documented safe default
// (noise / no clusters / PASS). Malformed output never propagates as an
// error; transport failures do, after the retry policy is exhausted.
package llm

// Parsed is a tagged result for dynamic-shaped collaborator responses.
// Defaulted is true when the raw output could not be parsed and Value holds
// the safe fallback; Note carries a diagnostic for logging.
type Parsed[T any] struct {
	Value     T
	Defaulted bool
	Note      string
}

// OK wraps a successfully parsed value.
func OK[T any](v T) Parsed[T] {
	return Parsed[T]{Value: v}
}

// Fallback wraps a safe default with a diagnostic note.
func Fallback[T any](v T, note string) Parsed[T] {
	return Parsed[T]{Value: v, Defaulted: true, Note: note}
}

// MentionClassification is the enrichment call result.
type MentionClassification struct {
	SignalType string   `json:"signal_type"`
	CoreClaim  string   `json:"core_claim"`
	Urgency    string   `json:"urgency"`
	Topics     []string `json:"topics"`
	IsNoise    bool     `json:"is_noise"`
}

// SignalSummary is the compact per-signal line submitted for grouping.
type SignalSummary struct {
	Index   int      `json:"index"`
	Claim   string   `json:"claim"`
	Topics  []string `json:"topics"`
	Type    string   `json:"type"`
	Urgency string   `json:"urgency"`
	Weight  float64  `json:"weight"`
	Author  string   `json:"author"`
}

// ClusterGroup is one named cluster returned by the grouping call. Signal
// indices refer into the submitted summary slice; the clusterer enforces
// range and uniqueness, not this package.
type ClusterGroup struct {
	Name                string  `json:"name"`
	SignalIndices       []int   `json:"signal_indices"`
	SentimentDirection  string  `json:"sentiment"`
	SentimentConfidence float64 `json:"confidence"`
}

// GroupingResult is the grouping call result.
type GroupingResult struct {
	Clusters []ClusterGroup `json:"clusters"`
}

// ClusterSummary describes one cluster for the mapping and arbitration calls.
type ClusterSummary struct {
	Name           string   `json:"name"`
	SignalCount    int      `json:"signal_count"`
	MeanEngagement float64  `json:"mean_engagement"`
	Sentiment      string   `json:"sentiment"`
	TopClaims      []string `json:"top_claims"`
}

// InstrumentSummary describes one tradable instrument for the mapping call.
type InstrumentSummary struct {
	Index    int     `json:"index"`
	ID       string  `json:"id"`
	Question string  `json:"question"`
	YesPrice float64 `json:"yes_price"`
	NoPrice  float64 `json:"no_price"`
	Volume   float64 `json:"volume"`
}

// InstrumentMapping maps a cluster onto one instrument.
type InstrumentMapping struct {
	InstrumentIndex    int     `json:"instrument_index"`
	Direction          string  `json:"direction"`
	ImpliedProbability float64 `json:"implied_probability"`
	Reasoning          string  `json:"reasoning"`
}

// MappingResult is the mapping call result.
type MappingResult struct {
	Mappings []InstrumentMapping `json:"mappings"`
}

// PortfolioSummary is the portfolio snapshot included in arbitration calls.
type PortfolioSummary struct {
	Bankroll      float64 `json:"bankroll"`
	CashAvailable float64 `json:"cash_available"`
	OpenPositions int     `json:"open_positions"`
	RealizedPnL   float64 `json:"realized_pnl"`
	Day           int     `json:"day"`
}

// ArbitrationRequest is the structured summary submitted for the final
// qualitative sanity check.
type ArbitrationRequest struct {
	Cluster   ClusterSummary   `json:"cluster"`
	Question  string           `json:"question"`
	Direction string           `json:"direction"`
	YesPrice  float64          `json:"yes_price"`
	NoPrice   float64          `json:"no_price"`
	EdgeScore float64          `json:"edge_score"`
	Portfolio PortfolioSummary `json:"portfolio"`
}

// Verdict is the arbitration call result.
type Verdict struct {
	Decision        string  `json:"decision"`
	Reasoning       string  `json:"reasoning"`
	PassReason      string  `json:"pass_reason"`
	WatchCondition  string  `json:"watch_condition"`
	ConfidenceDelta float64 `json:"confidence_adjustment"`
}
