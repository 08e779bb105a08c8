package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/psds-microservice/support-bot/internal/assistant"
	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/psds-microservice/support-bot/internal/metrics"
	"github.com/psds-microservice/support-bot/internal/model"
	"github.com/psds-microservice/support-bot/internal/service"
	"github.com/psds-microservice/support-bot/internal/session"
)

type RouterOption func(*Router)

// WithAssistant ставит классификатор перед поддержкой. Свободный текст пользователя
// без тикета уходит классификатору, пока в ответе не появится marker.
func WithAssistant(c assistant.Classifier, marker string) RouterOption {
	return func(r *Router) {
		r.classifier = c
		r.marker = marker
	}
}

func WithMetrics(m *metrics.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

func WithRouterLogger(l *log.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// Router: каждой комбинации (роль, намерение, состояние сессии) соответствует ровно одно действие.
type Router struct {
	tickets    service.TicketServicer
	sessions   *session.Store
	sink       Sink
	classifier assistant.Classifier
	marker     string
	metrics    *metrics.Metrics
	logger     *log.Logger
}

func NewRouter(tickets service.TicketServicer, sessions *session.Store, sink Sink, opts ...RouterOption) *Router {
	r := &Router{
		tickets:  tickets,
		sessions: sessions,
		sink:     sink,
		marker:   assistant.DefaultEscalationMarker,
		logger:   log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle обрабатывает событие до конца. Ошибки наружу не выходят:
// каждая превращается в ответ отправителю.
func (r *Router) Handle(ctx context.Context, ev Event) {
	admin := r.isAdmin(ev.SenderID)
	role := "user"
	if admin {
		role = "admin"
	}
	r.metrics.Event(role, ev.Intent.String())

	var err error
	if admin {
		err = r.handleAdmin(ctx, ev)
	} else {
		err = r.handleUser(ctx, ev)
	}
	if err != nil {
		r.fail(ctx, ev, admin, err)
	}
}

func (r *Router) isAdmin(id int64) bool { return id == r.tickets.AdminID() }

func (r *Router) handleUser(ctx context.Context, ev Event) error {
	switch ev.Intent {
	case IntentStart:
		return r.userStart(ctx, ev)
	case IntentCreateTicket:
		return r.userCreate(ctx, ev)
	case IntentCloseTicket:
		return r.userClose(ctx, ev)
	case IntentText:
		return r.userText(ctx, ev)
	default:
		return errs.ErrForbidden
	}
}

func (r *Router) userStart(ctx context.Context, ev Event) error {
	r.dropPendingDescription(ev.SenderID)
	t, err := r.tickets.GetOpenTicketFor(ctx, ev.SenderID)
	if err != nil {
		return err
	}
	if t != nil {
		r.reply(ctx, ev.SenderID, fmt.Sprintf(msgUserHelloOpen, t.ID), closeActions())
		return nil
	}
	r.reply(ctx, ev.SenderID, msgUserHelloIdle, createActions())
	return nil
}

func (r *Router) userCreate(ctx context.Context, ev Event) error {
	t, err := r.tickets.GetOpenTicketFor(ctx, ev.SenderID)
	if err != nil {
		return err
	}
	if t != nil {
		r.reply(ctx, ev.SenderID, msgAlreadyOpen, closeActions())
		return nil
	}
	r.sessions.Update(ev.SenderID, func(st *session.State) {
		st.AwaitingDescription = true
		st.Conversation = nil
	})
	r.reply(ctx, ev.SenderID, msgDescribe, nil)
	return nil
}

func (r *Router) userClose(ctx context.Context, ev Event) error {
	t, err := r.tickets.GetOpenTicketFor(ctx, ev.SenderID)
	if err != nil {
		return err
	}
	if t == nil {
		r.dropPendingDescription(ev.SenderID)
		r.reply(ctx, ev.SenderID, msgNoOpenTicket, createActions())
		return nil
	}
	closed, err := r.tickets.CloseTicket(ctx, t.ID)
	if err != nil {
		return err
	}
	r.metrics.TicketClosed("user")
	r.sessions.Clear(ev.SenderID)
	r.reply(ctx, ev.SenderID, fmt.Sprintf(msgUserClosed, closed.ID), createActions())
	if err := r.notify(ctx, Notification{
		RecipientID: r.tickets.AdminID(),
		Text:        userClosedNotice(closed),
		Affordances: r.adminActions(ctx),
	}); err != nil {
		r.logger.Printf("router: %v", err)
	}
	return nil
}

func (r *Router) userText(ctx context.Context, ev Event) error {
	if r.claimDescription(ev.SenderID) {
		return r.openFromDescription(ctx, ev)
	}

	t, err := r.tickets.GetOpenTicketFor(ctx, ev.SenderID)
	if err != nil {
		return err
	}
	if t != nil {
		if err := r.tickets.AppendMessage(ctx, t.ID, ev.SenderID, ev.Text); err != nil {
			return err
		}
		r.reply(ctx, ev.SenderID, fmt.Sprintf(msgMessageAdded, t.ID), nil)
		r.notifyAdmin(ctx, ev.SenderID, updatedTicketNotice(t, ev.Text), t.ID)
		return nil
	}

	if r.classifier != nil {
		return r.consultAssistant(ctx, ev, r.sessions.Get(ev.SenderID).Conversation)
	}
	r.reply(ctx, ev.SenderID, msgUseButtons, createActions())
	return nil
}

// claimDescription снимает флаг ожидания описания и сообщает, был ли он выставлен.
// Проверка и сброс идут под одной блокировкой хранилища, поэтому очистка сессий
// не может отменить описание, которое уже превращается в тикет.
func (r *Router) claimDescription(userID int64) bool {
	var pending bool
	r.sessions.Update(userID, func(st *session.State) {
		pending = st.AwaitingDescription
		st.AwaitingDescription = false
	})
	return pending
}

func (r *Router) dropPendingDescription(userID int64) {
	r.sessions.Update(userID, func(st *session.State) { st.AwaitingDescription = false })
}

func (r *Router) openFromDescription(ctx context.Context, ev Event) error {
	t, err := r.tickets.OpenTicket(ctx, ev.SenderID, label(ev), ev.Text)
	if err != nil {
		return err
	}
	r.metrics.TicketOpened()
	r.reply(ctx, ev.SenderID, fmt.Sprintf(msgTicketCreated, t.ID), closeActions())
	r.notifyAdmin(ctx, ev.SenderID, newTicketNotice(t, ev.Text), t.ID)
	return nil
}

// consultAssistant: один ход диалога с ассистентом до эскалации. История растёт
// только при успешном ответе, поэтому неудачный ход можно повторить.
func (r *Router) consultAssistant(ctx context.Context, ev Event, history []assistant.Message) error {
	conv := append(history, assistant.Message{Role: assistant.RoleUser, Content: ev.Text})
	answer, err := r.classifier.Classify(ctx, conv)
	if err != nil {
		if !errors.Is(err, errs.ErrClassifier) {
			err = fmt.Errorf("%w: %v", errs.ErrClassifier, err)
		}
		return err
	}
	if !assistant.IsEscalation(answer, r.marker) {
		r.sessions.Update(ev.SenderID, func(st *session.State) {
			st.Conversation = append(conv, assistant.Message{Role: assistant.RoleAssistant, Content: answer})
		})
		r.reply(ctx, ev.SenderID, answer, nil)
		return nil
	}

	turns := make([]service.Turn, 0, len(conv))
	for _, m := range conv {
		sender := ev.SenderID
		if m.Role == assistant.RoleAssistant {
			sender = model.BotSenderID
		}
		turns = append(turns, service.Turn{SenderID: sender, Body: m.Content})
	}
	t, err := r.tickets.OpenTicketWithHistory(ctx, ev.SenderID, label(ev), turns)
	if err != nil {
		return err
	}
	r.sessions.Update(ev.SenderID, func(st *session.State) { st.Conversation = nil })
	r.metrics.Escalated()
	r.metrics.TicketOpened()

	r.reply(ctx, ev.SenderID, answer, nil)
	r.reply(ctx, ev.SenderID, fmt.Sprintf(msgEscalated, t.ID), closeActions())

	var transcript strings.Builder
	for _, m := range turns {
		fmt.Fprintf(&transcript, "%s: %s\n", senderName(m.SenderID, r.tickets.AdminID()), m.Body)
	}
	r.notifyAdmin(ctx, ev.SenderID, escalatedTicketNotice(t, transcript.String()), t.ID)
	return nil
}

func (r *Router) handleAdmin(ctx context.Context, ev Event) error {
	switch ev.Intent {
	case IntentStart:
		r.sessions.Update(ev.SenderID, func(st *session.State) { st.ClearSelection() })
		r.reply(ctx, ev.SenderID, msgAdminHello, r.adminActions(ctx))
		return nil
	case IntentListTickets:
		return r.adminList(ctx, ev)
	case IntentSelectTicket:
		return r.adminSelect(ctx, ev)
	case IntentBack:
		r.sessions.Update(ev.SenderID, func(st *session.State) { st.ClearSelection() })
		r.reply(ctx, ev.SenderID, msgBackToMenu, r.adminActions(ctx))
		return nil
	case IntentCloseTicket:
		return r.adminClose(ctx, ev)
	case IntentText:
		return r.adminText(ctx, ev)
	default:
		r.reply(ctx, ev.SenderID, msgAdminIsAdmin, r.adminActions(ctx))
		return nil
	}
}

func (r *Router) adminList(ctx context.Context, ev Event) error {
	r.sessions.Update(ev.SenderID, func(st *session.State) { st.ClearSelection() })
	tickets, err := r.tickets.ListOpenTickets(ctx)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		r.reply(ctx, ev.SenderID, msgNoActiveTickets, r.adminActions(ctx))
		return nil
	}
	actions := make([]Affordance, 0, len(tickets)+1)
	for _, t := range tickets {
		actions = append(actions, Affordance{Intent: IntentSelectTicket, TicketID: t.ID})
	}
	actions = append(actions, Affordance{Intent: IntentBack})
	r.reply(ctx, ev.SenderID, renderTicketList(tickets), actions)
	return nil
}

func (r *Router) adminSelect(ctx context.Context, ev Event) error {
	t, err := r.tickets.GetTicket(ctx, ev.TicketID)
	if errors.Is(err, errs.ErrTicketNotFound) || (err == nil && !t.IsOpen()) {
		r.sessions.Update(ev.SenderID, func(st *session.State) { st.ClearSelection() })
		r.reply(ctx, ev.SenderID, msgNotFoundOrClosed, r.adminActions(ctx))
		return nil
	}
	if err != nil {
		return err
	}
	messages, err := r.tickets.GetConversation(ctx, t.ID)
	if err != nil {
		return err
	}
	r.sessions.Update(ev.SenderID, func(st *session.State) { st.Select(t.ID) })
	r.reply(ctx, ev.SenderID, renderConversation(t, messages, r.tickets.AdminID()), selectedActions())
	return nil
}

func (r *Router) adminText(ctx context.Context, ev Event) error {
	st := r.sessions.Get(ev.SenderID)
	if !st.AwaitingReply {
		r.reply(ctx, ev.SenderID, msgAdminUseButtons, r.adminActions(ctx))
		return nil
	}
	id := st.SelectedTicketID
	if err := r.tickets.AppendMessage(ctx, id, ev.SenderID, ev.Text); err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) || errors.Is(err, errs.ErrTicketClosed) {
			r.sessions.Update(ev.SenderID, func(st *session.State) { st.ClearSelection() })
		}
		return err
	}
	// обновляем активность, чтобы очистка не сбросила выбор
	r.sessions.Update(ev.SenderID, func(st *session.State) { st.Select(id) })

	t, err := r.tickets.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := r.notify(ctx, Notification{
		RecipientID: t.OwnerID,
		Text:        fmt.Sprintf(msgAdminReplyToUser, t.ID, ev.Text),
	}); err != nil {
		r.reply(ctx, ev.SenderID, fmt.Sprintf(msgReplyNotDelivered, t.ID, t.OwnerLabel, err), selectedActions())
		return nil
	}
	r.reply(ctx, ev.SenderID, fmt.Sprintf(msgReplySent, t.OwnerLabel), selectedActions())
	return nil
}

func (r *Router) adminClose(ctx context.Context, ev Event) error {
	st := r.sessions.Get(ev.SenderID)
	if !st.AwaitingReply {
		r.reply(ctx, ev.SenderID, msgSelectFirst, r.adminActions(ctx))
		return nil
	}
	r.sessions.Update(ev.SenderID, func(st *session.State) { st.ClearSelection() })
	t, err := r.tickets.CloseTicket(ctx, st.SelectedTicketID)
	if err != nil {
		return err
	}
	r.metrics.TicketClosed("admin")
	// владелец мог быть в диалоге с ассистентом
	r.sessions.Clear(t.OwnerID)

	if err := r.notify(ctx, Notification{
		RecipientID: t.OwnerID,
		Text:        fmt.Sprintf(msgClosedByAdmin, t.ID),
		Affordances: createActions(),
	}); err != nil {
		r.reply(ctx, ev.SenderID, fmt.Sprintf(msgOwnerNotNotified, t.ID, t.OwnerLabel, err), r.adminActions(ctx))
		return nil
	}
	r.reply(ctx, ev.SenderID, fmt.Sprintf(msgAdminClosed, t.ID), r.adminActions(ctx))
	return nil
}

// ExpireSessions удаляет сессии, простоявшие дольше ttl, и сообщает владельцам.
// Возвращает число удалённых.
func (r *Router) ExpireSessions(ctx context.Context, ttl time.Duration) int {
	expired := r.sessions.Sweep(ttl)
	for _, st := range expired {
		switch {
		case st.AwaitingReply:
			r.reply(ctx, st.UserID, fmt.Sprintf(msgReplyExpired, st.SelectedTicketID), r.adminActions(ctx))
		case st.AwaitingDescription:
			r.reply(ctx, st.UserID, msgDescribeExpired, createActions())
		case len(st.Conversation) > 0:
			r.reply(ctx, st.UserID, msgAssistantExpired, createActions())
		}
	}
	r.metrics.SessionsExpired(len(expired))
	return len(expired)
}

func (r *Router) notifyAdmin(ctx context.Context, userID int64, text string, ticketID uint64) {
	err := r.notify(ctx, Notification{
		RecipientID: r.tickets.AdminID(),
		Text:        text,
		Affordances: []Affordance{{Intent: IntentSelectTicket, TicketID: ticketID}},
	})
	if err != nil {
		r.logger.Printf("router: %v", err)
		r.reply(ctx, userID, msgAdminNotNotified, nil)
	}
}

// notify доставляет уведомление. Запись в хранилище к этому моменту уже сделана;
// ошибка оборачивается в ErrDelivery.
func (r *Router) notify(ctx context.Context, n Notification) error {
	if err := r.sink.Send(ctx, n); err != nil {
		r.metrics.Failure("delivery")
		return fmt.Errorf("%w to %d: %w", errs.ErrDelivery, n.RecipientID, err)
	}
	return nil
}

// reply отвечает инициатору. Ошибку сообщить уже некому, она только логируется.
func (r *Router) reply(ctx context.Context, to int64, text string, actions []Affordance) {
	if err := r.notify(ctx, Notification{RecipientID: to, Text: text, Affordances: actions}); err != nil {
		r.logger.Printf("router: reply: %v", err)
	}
}

func (r *Router) fail(ctx context.Context, ev Event, admin bool, err error) {
	var text, kind string
	var actions []Affordance
	switch {
	case errors.Is(err, errs.ErrForbidden):
		kind, text = "forbidden", msgForbidden
	case errors.Is(err, errs.ErrConflict):
		kind, text, actions = "conflict", msgAlreadyOpen, closeActions()
	case errors.Is(err, errs.ErrTicketNotFound), errors.Is(err, errs.ErrTicketClosed):
		kind, text = "not_found", msgNotFoundOrClosed
		if !admin {
			text = msgNoOpenTicket
			actions = createActions()
		}
	case errors.Is(err, errs.ErrClassifier):
		kind, text = "classifier", msgAssistantFailed
	default:
		kind, text = "internal", msgInternal
	}
	if admin && actions == nil {
		actions = r.adminActions(ctx)
	}
	r.metrics.Failure(kind)
	r.logger.Printf("router: %s from %d: %v", ev.Intent, ev.SenderID, err)
	r.reply(ctx, ev.SenderID, text, actions)
}

func (r *Router) adminActions(ctx context.Context) []Affordance {
	n, err := r.tickets.CountUnseen(ctx)
	if err != nil {
		r.logger.Printf("router: count unseen: %v", err)
		n = 0
	}
	return []Affordance{{Intent: IntentListTickets, Count: n}}
}

func createActions() []Affordance { return []Affordance{{Intent: IntentCreateTicket}} }

func closeActions() []Affordance { return []Affordance{{Intent: IntentCloseTicket}} }

func selectedActions() []Affordance {
	return []Affordance{{Intent: IntentCloseTicket}, {Intent: IntentBack}}
}

// label: отображаемое имя владельца, иначе его id.
func label(ev Event) string {
	if name := strings.TrimSpace(ev.SenderName); name != "" {
		return name
	}
	return fmt.Sprintf("user %d", ev.SenderID)
}
