package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/psds-microservice/support-bot/internal/kafka"
	"github.com/psds-microservice/support-bot/internal/model"
	"github.com/psds-microservice/support-bot/internal/store"
)

// TicketServicer: интерфейс менеджера жизненного цикла тикетов для бота и HTTP.
type TicketServicer interface {
	AdminID() int64
	OpenTicket(ctx context.Context, ownerID int64, ownerLabel, firstMessage string) (*model.Ticket, error)
	OpenTicketWithHistory(ctx context.Context, ownerID int64, ownerLabel string, history []Turn) (*model.Ticket, error)
	AppendMessage(ctx context.Context, ticketID uint64, senderID int64, body string) error
	Acknowledge(ctx context.Context, ticketID uint64) error
	CloseTicket(ctx context.Context, ticketID uint64) (*model.Ticket, error)
	ListOpenTickets(ctx context.Context) ([]model.Ticket, error)
	CountUnseen(ctx context.Context) (int64, error)
	GetOpenTicketFor(ctx context.Context, ownerID int64) (*model.Ticket, error)
	GetTicket(ctx context.Context, id uint64) (*model.Ticket, error)
	GetConversation(ctx context.Context, ticketID uint64) ([]model.Message, error)
}

// Turn: одна запись истории, с которой открывается тикет.
type Turn struct {
	SenderID int64
	Body     string
}

type Option func(*TicketService)

func WithProducer(p kafka.TicketEventProducer) Option {
	return func(s *TicketService) { s.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *TicketService) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *TicketService) { s.logger = l }
}

// TicketService отвечает за переходы состояний тикета. Администратор задаётся
// при создании и определяет флаг непросмотренной активности при каждом сообщении.
type TicketService struct {
	store   *store.TicketStore
	adminID int64
	events  kafka.TicketEventProducer
	queue   *eventQueue
	locks   *keyedLocker
	now     func() time.Time
	logger  *log.Logger
}

func NewTicketService(st *store.TicketStore, adminID int64, opts ...Option) *TicketService {
	s := &TicketService{
		store:   st,
		adminID: adminID,
		locks:   newKeyedLocker(),
		now:     time.Now,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events != nil {
		s.queue = newEventQueue(s.events, s.logger)
	}
	return s
}

// Close отправляет накопленные события тикетов. Вызывать до закрытия продюсера.
func (s *TicketService) Close() {
	if s.queue != nil {
		s.queue.close()
	}
}

func (s *TicketService) AdminID() int64 { return s.adminID }

func (s *TicketService) OpenTicket(ctx context.Context, ownerID int64, ownerLabel, firstMessage string) (*model.Ticket, error) {
	return s.OpenTicketWithHistory(ctx, ownerID, ownerLabel, []Turn{{SenderID: ownerID, Body: firstMessage}})
}

// OpenTicketWithHistory создаёт тикет с историей в исходном порядке.
// Первым сообщением тикета становится первая запись владельца.
func (s *TicketService) OpenTicketWithHistory(ctx context.Context, ownerID int64, ownerLabel string, history []Turn) (*model.Ticket, error) {
	if ownerID == s.adminID {
		return nil, errs.ErrForbidden
	}
	if len(history) == 0 {
		return nil, errors.New("open ticket: empty history")
	}
	unlock := s.locks.Lock(ownerKey(ownerID))
	defer unlock()

	existing, err := s.store.FindOpenByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("open ticket: %w", err)
	}
	if existing != nil {
		return nil, errs.ErrConflict
	}

	first := history[0].Body
	for _, turn := range history {
		if turn.SenderID == ownerID {
			first = turn.Body
			break
		}
	}
	messages := make([]model.Message, 0, len(history))
	for _, turn := range history {
		messages = append(messages, model.Message{SenderID: turn.SenderID, Body: turn.Body})
	}
	t := &model.Ticket{
		OwnerID:      ownerID,
		OwnerLabel:   ownerLabel,
		FirstMessage: first,
		Status:       model.TicketStatusOpen,
		Unseen:       s.isUnseen(history[len(history)-1].SenderID),
	}
	if err := s.store.CreateTicket(ctx, t, messages); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("open ticket: %w", err)
	}
	s.logger.Printf("tickets: opened #%d for %d (%d messages)", t.ID, ownerID, len(messages))
	s.publish(kafka.EventTicketCreated, t, nil, first)
	return t, nil
}

func (s *TicketService) AppendMessage(ctx context.Context, ticketID uint64, senderID int64, body string) error {
	unlock := s.locks.Lock(ticketKey(ticketID))
	defer unlock()

	unseen := s.isUnseen(senderID)
	m := &model.Message{TicketID: ticketID, SenderID: senderID, Body: body}
	if err := s.store.AppendMessage(ctx, m, unseen); err != nil {
		return err
	}
	if t, err := s.store.GetTicket(ctx, ticketID); err == nil {
		s.publish(kafka.EventTicketMessage, t, &senderID, body)
	}
	return nil
}

// Acknowledge снимает флаг непросмотренной активности без нового сообщения.
func (s *TicketService) Acknowledge(ctx context.Context, ticketID uint64) error {
	unlock := s.locks.Lock(ticketKey(ticketID))
	defer unlock()
	return s.store.SetUnseen(ctx, ticketID, false)
}

func (s *TicketService) CloseTicket(ctx context.Context, ticketID uint64) (*model.Ticket, error) {
	unlock := s.locks.Lock(ticketKey(ticketID))
	defer unlock()

	t, err := s.store.Close(ctx, ticketID, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Printf("tickets: closed #%d", t.ID)
	s.publish(kafka.EventTicketClosed, t, nil, "")
	return t, nil
}

func (s *TicketService) ListOpenTickets(ctx context.Context) ([]model.Ticket, error) {
	return s.store.ListOpen(ctx)
}

func (s *TicketService) CountUnseen(ctx context.Context) (int64, error) {
	return s.store.CountUnseen(ctx)
}

func (s *TicketService) GetOpenTicketFor(ctx context.Context, ownerID int64) (*model.Ticket, error) {
	return s.store.FindOpenByOwner(ctx, ownerID)
}

func (s *TicketService) GetTicket(ctx context.Context, id uint64) (*model.Ticket, error) {
	return s.store.GetTicket(ctx, id)
}

func (s *TicketService) GetConversation(ctx context.Context, ticketID uint64) ([]model.Message, error) {
	return s.store.ListMessages(ctx, ticketID)
}

func (s *TicketService) isUnseen(senderID int64) bool {
	return senderID != s.adminID
}

// publish ставит событие в очередь. Вызывается под блокировкой тикета,
// поэтому события одного тикета уходят в том порядке, в каком менялось его состояние.
func (s *TicketService) publish(event string, t *model.Ticket, senderID *int64, body string) {
	if s.queue == nil || t == nil {
		return
	}
	s.queue.push(s.event(event, t, senderID, body))
}

// PublishSnapshots синхронно отправляет ticket.snapshot по каждому открытому тикету,
// чтобы потребители могли восстановить состояние. Возвращает число отправленных событий.
func (s *TicketService) PublishSnapshots(ctx context.Context) (int, error) {
	if s.events == nil {
		return 0, nil
	}
	tickets, err := s.store.ListOpen(ctx)
	if err != nil {
		return 0, err
	}
	for i := range tickets {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		s.events.ProduceTicketEvent(ctx, s.event(kafka.EventTicketSnapshot, &tickets[i], nil, tickets[i].FirstMessage))
	}
	return len(tickets), nil
}

func (s *TicketService) event(name string, t *model.Ticket, senderID *int64, body string) kafka.TicketEvent {
	return kafka.TicketEvent{
		Event:      name,
		TicketID:   t.ID,
		OwnerID:    t.OwnerID,
		OwnerLabel: t.OwnerLabel,
		Status:     string(t.Status),
		Unseen:     t.Unseen,
		SenderID:   senderID,
		Body:       body,
		At:         s.now(),
	}
}

func ownerKey(id int64) string   { return fmt.Sprintf("owner:%d", id) }
func ticketKey(id uint64) string { return fmt.Sprintf("ticket:%d", id) }
