// Package telegram sends operational notifications via the Telegram Bot API:
// trade notices, daily digests, and campaign health alerts. Delivery uses a
// simple linear retry since Telegram outages are short and alerts are not
// latency sensitive.
package telegram

import (
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chatterbet/chatterbet/internal/models"
)

// Client handles Telegram notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendTradeNotice notifies the ops channel about an executed trade.
func (c *Client) SendTradeNotice(order *models.TradeOrder) error {
	return c.send(formatTradeNotice(order))
}

// SendDigest forwards the daily digest thread to the ops channel as one
// message.
func (c *Client) SendDigest(parts []string) error {
	message := "📅 *Daily Digest*\n\n"
	for i, part := range parts {
		if i > 0 {
			message += "\n\n"
		}
		message += escapeMarkdownV2(part)
	}
	return c.send(message)
}

// SendAlert notifies the ops channel that the campaign loop is failing.
func (c *Client) SendAlert(consecutiveFailures int, lastErr error) error {
	message := fmt.Sprintf("🚨 *Campaign loop failing*\n\n%d consecutive tick failures\\.\nLast error: %s",
		consecutiveFailures, escapeMarkdownV2(lastErr.Error()))
	return c.send(message)
}

// SendRecovery notifies the ops channel that the campaign loop recovered.
func (c *Client) SendRecovery() error {
	return c.send("✅ *Campaign loop recovered*")
}

// send delivers a MarkdownV2 message with retry
func (c *Client) send(message string) error {
	msg := tgbotapi.NewMessage(c.chatID, message)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatTradeNotice formats an executed trade for the ops channel
func formatTradeNotice(order *models.TradeOrder) string {
	question := escapeMarkdownV2(order.Question)
	entry := escapeMarkdownV2(fmt.Sprintf("%.0f¢", order.EntryPrice*100))
	stop := escapeMarkdownV2(fmt.Sprintf("%.0f¢", order.StopLoss*100))
	take := escapeMarkdownV2(fmt.Sprintf("%.0f¢", order.TakeProfit*100))
	edge := escapeMarkdownV2(fmt.Sprintf("%.0f%%", order.EdgeScore*100))

	message := fmt.Sprintf("📊 *Trade executed*\n\n%s\n", question)
	message += fmt.Sprintf("Direction: *%s* at %s\n", order.Direction, entry)
	message += fmt.Sprintf("Size: $%d \\| Edge: %s\n", order.SizeUSD, edge)
	message += fmt.Sprintf("Stop: %s \\| Target: %s", stop, take)
	return message
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . !

	result := ""
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			result += "\\" + string(char)
		default:
			result += string(char)
		}
	}
	return result
}
