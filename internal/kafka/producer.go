package kafka

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	EventTicketCreated  = "ticket.created"
	EventTicketMessage  = "ticket.message"
	EventTicketClosed   = "ticket.closed"
	EventTicketSnapshot = "ticket.snapshot"
)

// TicketEvent: тело сообщения в топике тикетов.
type TicketEvent struct {
	EventID    string    `json:"event_id"`
	Event      string    `json:"event"`
	TicketID   uint64    `json:"ticket_id"`
	OwnerID    int64     `json:"owner_id"`
	OwnerLabel string    `json:"owner_label,omitempty"`
	Status     string    `json:"status"`
	Unseen     bool      `json:"has_unseen_user_activity"`
	SenderID   *int64    `json:"sender_id,omitempty"`
	Body       string    `json:"body,omitempty"`
	At         time.Time `json:"at"`
}

// TicketEventProducer: интерфейс для отправки событий тикета (для подмены в тестах).
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, ev TicketEvent)
}

// Producer пишет события тикетов в топик Kafka (best-effort: ошибки только логируются).
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer создаёт продюсер. Если brokers или topic пустые, методы ничего не делают.
func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{}
	}
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Enabled сообщает, настроен ли writer.
func (p *Producer) Enabled() bool { return p.writer != nil }

// ProduceTicketEvent синхронно отправляет событие; ключом служит ticket_id, чтобы события
// одного тикета попадали в одну партицию. Порядок сохраняется, если вызывающий
// отправляет события тикета последовательно.
func (p *Producer) ProduceTicketEvent(ctx context.Context, ev TicketEvent) {
	if p.writer == nil {
		return
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("kafka: marshal ticket event: %v", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(ev.TicketID, 10)),
		Value: body,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("kafka: write %s for ticket %d: %v", ev.Event, ev.TicketID, err)
	}
}

// Close закрывает writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers разбивает строку брокеров "host1:9092,host2:9092" на слайс.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
