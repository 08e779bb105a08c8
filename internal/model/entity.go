package model

import "time"

type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// BotSenderID: отправитель сообщений, написанных ассистентом.
const BotSenderID int64 = -1

type Ticket struct {
	ID           uint64       `gorm:"primaryKey" json:"id"`
	OwnerID      int64        `gorm:"index;not null" json:"owner_id"`
	OwnerLabel   string       `gorm:"type:varchar(255)" json:"owner_label"`
	FirstMessage string       `gorm:"type:text;not null" json:"first_message"`
	Status       TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	// Unseen: последнее сообщение оставил не администратор.
	Unseen bool `gorm:"not null;default:false" json:"has_unseen_user_activity"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

func (t *Ticket) IsOpen() bool { return t.Status == TicketStatusOpen }

type Message struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	TicketID  uint64    `gorm:"index;not null" json:"ticket_id"`
	SenderID  int64     `gorm:"not null" json:"sender_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `json:"timestamp"`
}

func (Message) TableName() string { return "ticket_messages" }
