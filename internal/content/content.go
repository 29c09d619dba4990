// Package content renders the bot's public posts: trade announcement
// threads, watch notices, and the daily digest.
package content

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/chatterbet/chatterbet/internal/models"
	"github.com/chatterbet/chatterbet/internal/storage"
)

// maxContributorsInDigest bounds the leaderboard section of the digest.
const maxContributorsInDigest = 3

// TradeThread renders a TRADE order as a post thread: headline, reasoning,
// and credit to the signal authors.
func TradeThread(order *models.TradeOrder) []string {
	headline := fmt.Sprintf("📊 TRADE: %s %s at %s\n\nSize: $%s | Edge: %.0f%%\nStop: %s | Target: %s",
		order.Direction, order.Question, price(order.EntryPrice),
		humanize.Comma(int64(order.SizeUSD)), order.EdgeScore*100,
		price(order.StopLoss), price(order.TakeProfit))

	thread := []string{headline}
	if order.Reasoning != "" {
		thread = append(thread, "Why: "+order.Reasoning)
	}
	if credit := creditLine(order); credit != "" {
		thread = append(thread, credit)
	}
	return thread
}

// WatchPost renders a WATCH order as a single post.
func WatchPost(order *models.TradeOrder) []string {
	return []string{fmt.Sprintf("👀 WATCHING: %s\n\n%s", order.Question, order.WatchCondition)}
}

// PassPost renders a PASS order as a single transparency post.
func PassPost(order *models.TradeOrder) []string {
	return []string{fmt.Sprintf("🙅 PASSING on %s\n\nWhy: %s", order.Question, order.PassReason)}
}

// Digest renders the daily performance summary.
func Digest(day int, stats storage.TradeStats, bankroll float64, openPositions int, contributors []storage.Contributor, now time.Time) []string {
	var b strings.Builder

	fmt.Fprintf(&b, "📅 Day %d — %s\n\n", day, now.UTC().Format("Jan 2, 2006"))
	fmt.Fprintf(&b, "Record: %d W / %d L\n", stats.Wins, stats.Losses)
	fmt.Fprintf(&b, "Realized PnL: %s\n", signedUSD(stats.RealizedPnL))
	fmt.Fprintf(&b, "Bankroll: $%s\n", humanize.CommafWithDigits(bankroll, 2))
	fmt.Fprintf(&b, "Open positions: %d | Trades today: %d", openPositions, stats.TradesOnDay)

	thread := []string{b.String()}

	if len(contributors) > 0 {
		var c strings.Builder
		c.WriteString("🏆 Top signal contributors:\n")
		n := len(contributors)
		if n > maxContributorsInDigest {
			n = maxContributorsInDigest
		}
		for i, contributor := range contributors[:n] {
			fmt.Fprintf(&c, "%d. @%s — %s signals, %.1f pts\n",
				i+1, contributor.Handle, humanize.Comma(int64(contributor.SignalCount)), contributor.AttributionPoints)
		}
		thread = append(thread, strings.TrimRight(c.String(), "\n"))
	}
	return thread
}

// creditLine names the handles behind the trade's signals, deduplicated in
// first-seen order.
func creditLine(order *models.TradeOrder) string {
	seen := make(map[string]bool)
	var handles []string
	for _, sig := range order.Signals {
		h := sig.Mention.AuthorHandle
		if !seen[h] {
			seen[h] = true
			handles = append(handles, "@"+h)
		}
	}
	if len(handles) == 0 {
		return ""
	}
	return "Signal credit: " + strings.Join(handles, ", ")
}

// price renders a probability as cents, the register traders read.
func price(p float64) string {
	return fmt.Sprintf("%.0f¢", p*100)
}

func signedUSD(v float64) string {
	if v < 0 {
		return "-$" + humanize.CommafWithDigits(-v, 2)
	}
	return "+$" + humanize.CommafWithDigits(v, 2)
}
