// Package telegram implements the chat Adapter for Telegram using long polling.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/velikov/smetabot/internal/chat"
)

// pollTimeout is the long-poll timeout in seconds for GetUpdates.
const pollTimeout = 30

// botAPI abstracts the tgbotapi.BotAPI methods we use, enabling test mocks.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	StopReceivingUpdates()
	Self() tgbotapi.User
}

// realBot wraps *tgbotapi.BotAPI to implement the botAPI interface.
type realBot struct {
	b *tgbotapi.BotAPI
}

func (r *realBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return r.b.GetUpdatesChan(config)
}
func (r *realBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return r.b.Send(c)
}
func (r *realBot) StopReceivingUpdates() {
	r.b.StopReceivingUpdates()
}
func (r *realBot) Self() tgbotapi.User {
	return r.b.Self
}

// Adapter implements chat.Adapter for Telegram via the Bot API long-poll
// transport.
type Adapter struct {
	bot       botAPI
	token     string
	botUserID string
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan chat.InboundMessage
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	Token string // Telegram bot token
	// For testing: inject a mock bot instead of the real Bot API.
	Bot botAPI
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Bot == nil && opts.Token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	return &Adapter{
		bot:     opts.Bot,
		token:   opts.Token,
		inbound: make(chan chat.InboundMessage, 100),
	}, nil
}

// Connect authenticates against the Bot API.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.bot == nil {
		b, err := tgbotapi.NewBotAPI(a.token)
		if err != nil {
			return fmt.Errorf("telegram: authenticate: %w", err)
		}
		a.bot = &realBot{b: b}
	}

	self := a.bot.Self()
	a.botUserID = strconv.FormatInt(self.ID, 10)
	log.Printf("telegram: connected as @%s (ID: %d)", self.UserName, self.ID)

	a.connected = true
	return nil
}

// Listen starts the long-poll loop and returns the inbound channel. Must be
// called after Connect. The channel closes when the context is cancelled or
// the adapter is closed.
func (a *Adapter) Listen(ctx context.Context) (<-chan chat.InboundMessage, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("telegram: not connected")
	}
	bot := a.bot
	a.mu.Unlock()

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := bot.GetUpdatesChan(cfg)

	go func() {
		defer close(a.inbound)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || update.Message.From == nil {
					continue
				}
				msg := chat.InboundMessage{
					Platform:  "telegram",
					ChatID:    strconv.FormatInt(update.Message.Chat.ID, 10),
					UserID:    strconv.FormatInt(update.Message.From.ID, 10),
					UserName:  update.Message.From.UserName,
					Text:      update.Message.Text,
					Timestamp: update.Message.Time(),
				}
				select {
				case a.inbound <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return a.inbound, nil
}

// Send delivers a message to Telegram. Choices become a one-column reply
// keyboard; files are uploaded as documents after the text.
func (a *Adapter) Send(ctx context.Context, msg chat.OutboundMessage) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("telegram: not connected")
	}
	bot := a.bot
	a.mu.Unlock()

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", msg.ChatID, err)
	}

	if msg.Text != "" {
		m := tgbotapi.NewMessage(chatID, msg.Text)
		switch {
		case len(msg.Choices) > 0:
			m.ReplyMarkup = buildKeyboard(msg.Choices)
		case msg.RemoveKeyboard:
			m.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		}
		if _, err := bot.Send(m); err != nil {
			return fmt.Errorf("telegram: send message: %w", err)
		}
	}

	for _, path := range msg.Files {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
		if _, err := bot.Send(doc); err != nil {
			return fmt.Errorf("telegram: send document %q: %w", path, err)
		}
	}
	return nil
}

// Close gracefully shuts down the adapter. The long-poll loop drains and
// the inbound channel closes once Telegram returns the final batch.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.bot != nil {
		a.bot.StopReceivingUpdates()
	}
	return nil
}

// BotUserID returns the bot's Telegram user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// buildKeyboard renders choices as a one-button-per-row reply keyboard.
func buildKeyboard(choices []string) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(choices))
	for _, c := range choices {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(c)))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}
