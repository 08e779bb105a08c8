package errs

import "errors"

// Ошибки сервиса; роутер и HTTP переводят их в ответы.
var (
	// ErrTicketNotFound: тикета с таким id нет.
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrConflict: у пользователя уже есть открытый тикет.
	ErrConflict = errors.New("user already has an open ticket")
	// ErrTicketClosed: тикет закрыт, писать в него и закрывать повторно нельзя.
	ErrTicketClosed = errors.New("ticket is closed")
	// ErrDelivery: сообщение не доставлено в Telegram; запись в БД уже сделана.
	ErrDelivery = errors.New("notification delivery failed")
	// ErrClassifier: ассистент не ответил.
	ErrClassifier = errors.New("assistant unavailable")
	// ErrForbidden: команда не предназначена для роли отправителя.
	ErrForbidden = errors.New("command not allowed for this role")
)
