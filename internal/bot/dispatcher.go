package bot

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// Handler обрабатывает одно событие до конца.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// Dispatcher раздаёт события фиксированному числу воркеров. События одного
// отправителя всегда попадают к одному воркеру и обрабатываются в порядке поступления;
// разные пользователи обрабатываются параллельно.
type Dispatcher struct {
	handler Handler
	workers int
	timeout time.Duration
	logger  *log.Logger
	verbose bool
}

func NewDispatcher(h Handler, workers int, logger *log.Logger, verbose bool) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		handler: h,
		workers: workers,
		timeout: 30 * time.Second,
		logger:  logger,
		verbose: verbose,
	}
}

// Run читает events до отмены ctx или закрытия канала, затем дожидается
// обработки уже поставленных в очередь событий.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event) error {
	queues := make([]chan Event, d.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan Event, 16)
		wg.Add(1)
		go func(q <-chan Event) {
			defer wg.Done()
			for ev := range q {
				d.process(context.WithoutCancel(ctx), ev)
			}
		}(queues[i])
	}
	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			queues[d.shard(ev.SenderID)] <- ev
		}
	}
}

func (d *Dispatcher) shard(senderID int64) int {
	return int(uint64(senderID) % uint64(d.workers))
}

func (d *Dispatcher) process(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Printf("dispatcher: panic handling %s from %d: %v\n%s", ev.Intent, ev.SenderID, rec, debug.Stack())
		}
	}()
	start := time.Now()
	d.handler.Handle(ctx, ev)
	if d.verbose {
		d.logger.Printf("dispatcher: %s from %d handled in %s", ev.Intent, ev.SenderID, time.Since(start))
	}
}
