// Package telegram подключает роутер бота к Telegram Bot API (long polling).
package telegram

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/psds-microservice/support-bot/internal/bot"
)

// maxMessageLen: лимит Telegram на длину одного сообщения в символах.
const maxMessageLen = 4096

type api interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client: источник входящих событий и bot.Sink для исходящих.
type Client struct {
	api         api
	logger      *log.Logger
	pollTimeout int
}

// New авторизуется по токену и возвращает готовый клиент.
func New(token string, logger *log.Logger) (*Client, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	c := newClient(botAPI, logger)
	c.logger.Printf("telegram: authorized as @%s", botAPI.Self.UserName)
	return c, nil
}

func newClient(a api, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{api: a, logger: logger, pollTimeout: 60}
}

// Poll передаёт апдейты в out до отмены ctx или закрытия канала апдейтов.
// При выходе out закрывается.
func (c *Client) Poll(ctx context.Context, out chan<- bot.Event) error {
	defer close(out)
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.pollTimeout
	updates := c.api.GetUpdatesChan(u)
	defer c.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			ev, ok := toEvent(upd)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// toEvent: только текстовые сообщения из личных чатов.
func toEvent(upd tgbotapi.Update) (bot.Event, bool) {
	m := upd.Message
	if m == nil || m.From == nil || m.Text == "" {
		return bot.Event{}, false
	}
	if m.Chat != nil && !m.Chat.IsPrivate() {
		return bot.Event{}, false
	}
	intent, ticketID := ParseIntent(m.Text)
	return bot.Event{
		SenderID:   m.From.ID,
		SenderName: displayName(m.From),
		Text:       m.Text,
		Intent:     intent,
		TicketID:   ticketID,
	}, true
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Send реализует bot.Sink. Длинный текст режется на части, клавиатура
// прикрепляется к последней.
func (c *Client) Send(ctx context.Context, n bot.Notification) error {
	parts := splitText(n.Text, maxMessageLen)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.RecipientID, part)
		if i == len(parts)-1 && n.Affordances != nil {
			msg.ReplyMarkup = keyboard(n.Affordances)
		}
		if _, err := c.api.Send(msg); err != nil {
			return fmt.Errorf("telegram: send: %w", err)
		}
	}
	return nil
}

// keyboard: каждый тикет на своей строке, остальные действия на общих строках.
func keyboard(actions []bot.Affordance) interface{} {
	if len(actions) == 0 {
		return tgbotapi.NewRemoveKeyboard(true)
	}
	var rows [][]tgbotapi.KeyboardButton
	var row []tgbotapi.KeyboardButton
	flush := func() {
		if len(row) > 0 {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(row...))
			row = nil
		}
	}
	for _, a := range actions {
		btn := tgbotapi.NewKeyboardButton(Label(a))
		if a.Intent == bot.IntentSelectTicket {
			flush()
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(btn))
			continue
		}
		row = append(row, btn)
	}
	flush()
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

// splitText режет текст на куски не длиннее limit рун, по возможности по переводу строки.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
