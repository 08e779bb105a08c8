package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/psds-microservice/support-bot/internal/kafka"
)

const (
	eventQueueSize    = 256
	eventWriteTimeout = 5 * time.Second
)

// eventQueue: единственная горутина, которая пишет события в продюсер в порядке постановки.
// Если очередь переполнена, событие отбрасывается, обработка сообщений не ждёт Kafka.
type eventQueue struct {
	producer kafka.TicketEventProducer
	logger   *log.Logger
	ch       chan kafka.TicketEvent
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newEventQueue(p kafka.TicketEventProducer, logger *log.Logger) *eventQueue {
	q := &eventQueue{
		producer: p,
		logger:   logger,
		ch:       make(chan kafka.TicketEvent, eventQueueSize),
		done:     make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *eventQueue) push(ev kafka.TicketEvent) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Printf("kafka: queue closed, dropped %s for ticket %d", ev.Event, ev.TicketID)
		return
	}
	select {
	case q.ch <- ev:
	default:
		q.logger.Printf("kafka: queue full, dropped %s for ticket %d", ev.Event, ev.TicketID)
	}
}

func (q *eventQueue) loop() {
	defer close(q.done)
	for ev := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), eventWriteTimeout)
		q.producer.ProduceTicketEvent(ctx, ev)
		cancel()
	}
}

// close дожидается отправки всего, что уже стоит в очереди.
func (q *eventQueue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}
