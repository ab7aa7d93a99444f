// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/oidelta/internal/format"
	"github.com/rewired-gh/oidelta/internal/logger"
)

// DefaultChunkSize keeps each message under Telegram's 4096 character limit.
const DefaultChunkSize = 4000

// sender is the subset of the bot API used for outgoing messages.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Options tunes delivery. Zero values take the defaults noted per field.
type Options struct {
	MaxRetries     int           // 3
	RetryDelayBase time.Duration // 1s, multiplied by the attempt number
	ChunkSize      int           // DefaultChunkSize
	ChunkDelay     time.Duration // 500ms
	APIEndpoint    string        // tgbotapi.APIEndpoint
}

// Client handles Telegram notifications.
type Client struct {
	bot  *tgbotapi.BotAPI
	api  sender
	chat chatTarget
	opts Options

	listening bool
	stopOnce  sync.Once
}

// chatTarget is either a numeric chat ID or a public @channel username.
type chatTarget struct {
	id       int64
	username string
}

func parseChatID(s string) (chatTarget, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "@") && len(s) > 1 {
		return chatTarget{username: s}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return chatTarget{}, fmt.Errorf("invalid chat ID %q: want a number or @channel", s)
	}
	return chatTarget{id: id}, nil
}

func (t chatTarget) message(text string) tgbotapi.MessageConfig {
	if t.username != "" {
		return tgbotapi.NewMessageToChannel(t.username, text)
	}
	return tgbotapi.NewMessage(t.id, text)
}

// NewClient creates a new Telegram client. chatID may be numeric or an
// @channel username.
func NewClient(botToken, chatID string, opts Options) (*Client, error) {
	chat, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}
	if botToken == "" {
		return nil, errors.New("bot token is required")
	}

	endpoint := opts.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(botToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	logger.Info("Authorized on Telegram as @%s", bot.Self.UserName)

	c := newClient(bot, chat, opts)
	c.bot = bot
	return c, nil
}

func newClient(api sender, chat chatTarget, opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelayBase <= 0 {
		opts.RetryDelayBase = time.Second
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkDelay < 0 {
		opts.ChunkDelay = 0
	} else if opts.ChunkDelay == 0 {
		opts.ChunkDelay = 500 * time.Millisecond
	}
	return &Client{api: api, chat: chat, opts: opts}
}

// Close stops update polling started by ListenForCommands.
func (c *Client) Close() {
	if c.bot == nil || !c.listening {
		return
	}
	c.stopOnce.Do(c.bot.StopReceivingUpdates)
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
// status supplies the reply to /status.
func (c *Client) ListenForCommands(ctx context.Context, status func() string) {
	if c.bot == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)
	c.listening = true

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.Close()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message, status)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message, status func() string) {
	var text string
	switch msg.Command() {
	case "ping":
		text = "Pong"
	case "status":
		text = "No cycle has run yet"
		if status != nil {
			if s := status(); s != "" {
				text = s
			}
		}
	default:
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	if _, err := c.api.Send(reply); err != nil {
		logger.Warn("Failed to answer /%s: %v", msg.Command(), err)
	}
}

// Send delivers a MarkdownV2 message, splitting it into chunks of at most
// ChunkSize characters with ChunkDelay between them.
func (c *Client) Send(ctx context.Context, text string) error {
	chunks := SplitMessage(text, c.opts.ChunkSize)
	for i, chunk := range chunks {
		if i > 0 {
			if err := sleep(ctx, c.opts.ChunkDelay); err != nil {
				return err
			}
		}
		if err := c.sendMarkdownV2(ctx, chunk); err != nil {
			return fmt.Errorf("failed to send part %d/%d: %w", i+1, len(chunks), err)
		}
	}
	logger.Debug("Message sent (%d chars, %d parts)", len([]rune(text)), len(chunks))
	return nil
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(ctx context.Context, cycleErr error) error {
	text := fmt.Sprintf("⚠️ *OI tracker error*\n`%s`", format.EscapeCode(cycleErr.Error()))
	return c.sendMarkdownV2(ctx, text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(ctx context.Context, failureCount int) error {
	text := fmt.Sprintf("✅ *OI tracker recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(ctx, text)
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry. A flood
// control reply waits for the interval Telegram asks for.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := c.chat.message(text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < c.opts.MaxRetries; i++ {
		_, err := c.api.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		delay := c.opts.RetryDelayBase * time.Duration(i+1)
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			if apiErr.RetryAfter > 0 {
				delay = time.Duration(apiErr.RetryAfter) * time.Second
			} else if apiErr.Code == 400 {
				break
			}
		}
		if i == c.opts.MaxRetries-1 {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.opts.MaxRetries, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
