package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"NewsDigest/internal/config"
	"NewsDigest/internal/ports"
)

// MaxMessageLength is the Bot API limit for one text message.
const MaxMessageLength = 4096

// Channel sends digests to a Telegram chat via the Bot API.
type Channel struct {
	botToken string
	chatID   string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

var _ ports.Channel = (*Channel)(nil)

// NewChannel registers bot token and chat identifier. chatID is either a
// numeric id or an @channel username.
func NewChannel(cfg config.TelegramConfig) *Channel {
	return &Channel{
		botToken: cfg.BotToken,
		chatID:   strings.TrimSpace(cfg.ChatID),
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// WithEndpoint overrides the Bot API endpoint format ("<base>/bot%s/%s").
func (c *Channel) WithEndpoint(endpoint string, client *http.Client) *Channel {
	c.endpoint = endpoint
	if client != nil {
		c.client = client
	}
	return c
}

// Name identifies the channel in logs.
func (c *Channel) Name() string {
	return "telegram"
}

// Configured reports whether both token and chat id are present.
func (c *Channel) Configured() bool {
	return c.botToken != "" && c.chatID != ""
}

// MaxMessageLength returns the Bot API text limit.
func (c *Channel) MaxMessageLength() int {
	return MaxMessageLength
}

// Send posts a plain-text message.
func (c *Channel) Send(ctx context.Context, message string) error {
	if !c.Configured() {
		return errors.New("telegram channel misconfigured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bot, err := c.botAPI()
	if err != nil {
		return err
	}

	if _, err := bot.Send(c.newMessage(message)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (c *Channel) newMessage(text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(c.chatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	return tgbotapi.NewMessageToChannel(c.chatID, text)
}

// botAPI connects on first use; a failed handshake is retried on the next send.
func (c *Channel) botAPI() (*tgbotapi.BotAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bot != nil {
		return c.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(c.botToken, c.endpoint, c.client)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	c.bot = bot
	return bot, nil
}
