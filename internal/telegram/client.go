// Package telegram delivers enriched deals to Telegram channels. Deals are
// routed to chats by riding discipline, sent as a photo with an HTML caption
// when an image survived enrichment, and as a plain message otherwise.
package telegram

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ldelaire/dealsniper/internal/logger"
	"github.com/ldelaire/dealsniper/internal/models"
)

// defaultRoute is the routing key used when a deal's category has no
// configured chat.
const defaultRoute = "default"

// Client handles Telegram notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	routes         map[string][]int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client. routes maps lowercased category
// names to chat IDs; the "default" entry catches everything unrouted.
func NewClient(botToken string, routes map[string][]int64, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	normalized := make(map[string][]int64, len(routes))
	for category, chats := range routes {
		normalized[strings.ToLower(strings.TrimSpace(category))] = chats
	}

	return &Client{
		bot:            bot,
		routes:         normalized,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendDeal delivers one deal to every chat routed for its category. index is
// the 1-based position of the deal within its newsletter, shown in the
// caption so readers can cross-reference the mail.
//
// A category with no configured chats and no default route is treated as an
// operator decision to mute that category: the deal is logged and reported
// as delivered so it does not block its thread.
func (c *Client) SendDeal(deal *models.Deal, index int) error {
	chats := c.chatsFor(deal.Category)
	if len(chats) == 0 {
		logger.Warn("telegram: no chat route for category %q, deal %s not sent", deal.Category, deal.ID)
		return nil
	}

	caption := FormatCaption(deal, index)
	keyboard := dealKeyboard(deal.URL)

	for _, chatID := range chats {
		var msg tgbotapi.Chattable
		if deal.Image != "" {
			photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(deal.Image))
			photo.Caption = caption
			photo.ParseMode = tgbotapi.ModeHTML
			if keyboard != nil {
				photo.ReplyMarkup = keyboard
			}
			msg = photo
		} else {
			text := tgbotapi.NewMessage(chatID, caption)
			text.ParseMode = tgbotapi.ModeHTML
			if keyboard != nil {
				text.ReplyMarkup = keyboard
			}
			text.DisableWebPagePreview = false
			msg = text
		}

		if err := c.sendWithRetry(msg); err != nil {
			return fmt.Errorf("failed to send deal to chat %d: %w", chatID, err)
		}
	}
	return nil
}

// dealKeyboard builds the link button row, or nil when the deal resolved no
// URL. The Bot API rejects URL buttons with an empty URL, and content-keyed
// deals legitimately have none.
func dealKeyboard(url string) *tgbotapi.InlineKeyboardMarkup {
	if url == "" {
		return nil
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Voir le deal", url),
		),
	)
	return &keyboard
}

// chatsFor resolves the chat list for a category, falling back to the
// default route.
func (c *Client) chatsFor(category string) []int64 {
	if chats, ok := c.routes[strings.ToLower(strings.TrimSpace(category))]; ok && len(chats) > 0 {
		return chats
	}
	return c.routes[defaultRoute]
}

func (c *Client) sendWithRetry(msg tgbotapi.Chattable) error {
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

// FormatCaption renders the HTML caption for a deal.
func FormatCaption(deal *models.Deal, index int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("<b>%d. %s</b>\n\n", index, escapeHTML(deal.Title)))
	sb.WriteString(fmt.Sprintf("💰 <b>%.2f €</b> <s>%.2f €</s> (-%d%%)\n",
		deal.PriceCurrent, deal.PriceOriginal, deal.DiscountPercent))

	if deal.CouponCode != "" {
		sb.WriteString(fmt.Sprintf("🎟 Code : <code>%s</code>\n", escapeHTML(deal.CouponCode)))
	}
	if deal.Summary != "" {
		sb.WriteString(fmt.Sprintf("\n%s\n", escapeHTML(deal.Summary)))
	}
	if deal.Category != "" {
		sb.WriteString(fmt.Sprintf("\n#%s", hashtag(deal.Category)))
	}

	return sb.String()
}

// escapeHTML escapes the characters Telegram's HTML parse mode treats
// specially.
func escapeHTML(text string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(text)
}

// hashtag turns a category label into a single hashtag-safe word.
func hashtag(category string) string {
	var b strings.Builder
	for _, r := range category {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '/':
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
