// Package bot маршрутизирует входящие события чата между пользователями и администратором.
//
// Транспорт превращает сообщение в Event с Intent из закрытого набора. Router решает,
// что делать, по роли отправителя, его сессии и тикетам, и отвечает через Sink.
package bot

import "context"

type Intent int

const (
	IntentText Intent = iota
	IntentStart
	IntentCreateTicket
	IntentCloseTicket
	IntentListTickets
	IntentSelectTicket
	IntentBack
)

func (i Intent) String() string {
	switch i {
	case IntentText:
		return "text"
	case IntentStart:
		return "start"
	case IntentCreateTicket:
		return "create_ticket"
	case IntentCloseTicket:
		return "close_ticket"
	case IntentListTickets:
		return "list_tickets"
	case IntentSelectTicket:
		return "select_ticket"
	case IntentBack:
		return "back"
	default:
		return "unknown"
	}
}

// Event: одно входящее сообщение. TicketID заполнен только для IntentSelectTicket.
type Event struct {
	SenderID   int64
	SenderName string
	Text       string
	Intent     Intent
	TicketID   uint64
}

// Affordance: действие, предложенное получателю (обычно кнопка).
// Count: счётчик на кнопке списка тикетов.
type Affordance struct {
	Intent   Intent
	TicketID uint64
	Count    int64
}

type Notification struct {
	RecipientID int64
	Text        string
	// Affordances заменяют текущие действия получателя; nil оставляет их как есть.
	Affordances []Affordance
}

// Sink доставляет уведомления участникам чата.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}
