package service

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/psds-microservice/support-bot/internal/kafka"
	"github.com/psds-microservice/support-bot/internal/model"
	"github.com/psds-microservice/support-bot/internal/store"
	"github.com/psds-microservice/support-bot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminID int64 = 1

type recordingProducer struct {
	delay  map[string]time.Duration
	mu     sync.Mutex
	events []kafka.TicketEvent
}

func (p *recordingProducer) ProduceTicketEvent(_ context.Context, ev kafka.TicketEvent) {
	if d := p.delay[ev.Event]; d > 0 {
		time.Sleep(d)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingProducer) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Event)
	}
	return out
}

func newService(t *testing.T, opts ...Option) *TicketService {
	t.Helper()
	opts = append([]Option{WithLogger(log.New(io.Discard, "", 0))}, opts...)
	svc := NewTicketService(store.NewTicketStore(testutil.NewDB(t)), adminID, opts...)
	t.Cleanup(svc.Close)
	return svc
}

func TestOpenTicketCreatesFirstMessage(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	tk, err := svc.OpenTicket(ctx, 10, "alice", "help")
	require.NoError(t, err)
	assert.True(t, tk.Unseen)
	assert.Equal(t, model.TicketStatusOpen, tk.Status)
	assert.Equal(t, "help", tk.FirstMessage)

	msgs, err := svc.GetConversation(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(10), msgs[0].SenderID)
	assert.Equal(t, "help", msgs[0].Body)

	n, err := svc.CountUnseen(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestOpenTicketConflict(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.OpenTicket(ctx, 10, "alice", "help")
	require.NoError(t, err)
	_, err = svc.OpenTicket(ctx, 10, "alice", "again")
	assert.ErrorIs(t, err, errs.ErrConflict)

	open, err := svc.ListOpenTickets(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestAdminCannotOpenTicket(t *testing.T) {
	_, err := newService(t).OpenTicket(context.Background(), adminID, "admin", "x")
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestUnseenFollowsLastSender(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	tk, err := svc.OpenTicket(ctx, 10, "alice", "help")
	require.NoError(t, err)

	steps := []struct {
		sender int64
		unseen bool
	}{
		{adminID, false},
		{10, true},
		{10, true},
		{adminID, false},
		{adminID, false},
		{model.BotSenderID, true},
	}
	for _, step := range steps {
		require.NoError(t, svc.AppendMessage(ctx, tk.ID, step.sender, "m"))
		got, err := svc.GetTicket(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, step.unseen, got.Unseen, "after message from %d", step.sender)
	}
}

func TestTicketIDsIncrease(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	var last uint64
	for owner := int64(10); owner < 15; owner++ {
		tk, err := svc.OpenTicket(ctx, owner, "u", "hi")
		require.NoError(t, err)
		assert.Greater(t, tk.ID, last)
		last = tk.ID
	}
	open, err := svc.ListOpenTickets(ctx)
	require.NoError(t, err)
	require.Len(t, open, 5)
	for i := 1; i < len(open); i++ {
		assert.Less(t, open[i-1].ID, open[i].ID)
	}
}

func TestCloseTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	tk, err := svc.OpenTicket(ctx, 10, "alice", "help")
	require.NoError(t, err)

	closed, err := svc.CloseTicket(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusClosed, closed.Status)

	assert.ErrorIs(t, svc.AppendMessage(ctx, tk.ID, 10, "more"), errs.ErrTicketClosed)
	assert.ErrorIs(t, svc.AppendMessage(ctx, tk.ID, adminID, "more"), errs.ErrTicketClosed)
	_, err = svc.CloseTicket(ctx, tk.ID)
	assert.ErrorIs(t, err, errs.ErrTicketClosed)

	got, err := svc.GetTicket(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusClosed, got.Status)

	open, err := svc.ListOpenTickets(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
	n, err := svc.CountUnseen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// история остаётся доступной
	msgs, err := svc.GetConversation(ctx, tk.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	assert.ErrorIs(t, svc.AppendMessage(ctx, 5, 10, "x"), errs.ErrTicketNotFound)
	_, err := svc.CloseTicket(ctx, 5)
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
	_, err = svc.GetConversation(ctx, 5)
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
	assert.ErrorIs(t, svc.Acknowledge(ctx, 5), errs.ErrTicketNotFound)
}

func TestAcknowledgeClearsFlag(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	tk, err := svc.OpenTicket(ctx, 10, "alice", "help")
	require.NoError(t, err)

	require.NoError(t, svc.Acknowledge(ctx, tk.ID))
	n, err := svc.CountUnseen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	msgs, err := svc.GetConversation(ctx, tk.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestOpenTicketWithHistory(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	history := []Turn{
		{SenderID: 10, Body: "my order is late"},
		{SenderID: model.BotSenderID, Body: "please share the order number"},
		{SenderID: 10, Body: "I want a human"},
	}
	tk, err := svc.OpenTicketWithHistory(ctx, 10, "alice", history)
	require.NoError(t, err)
	assert.Equal(t, "my order is late", tk.FirstMessage)
	assert.True(t, tk.Unseen)

	msgs, err := svc.GetConversation(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	var users, bots int
	for i, m := range msgs {
		assert.Equal(t, history[i].Body, m.Body)
		switch m.SenderID {
		case 10:
			users++
		case model.BotSenderID:
			bots++
		}
	}
	assert.Equal(t, 2, users)
	assert.Equal(t, 1, bots)

	_, err = svc.OpenTicketWithHistory(ctx, 11, "bob", nil)
	assert.Error(t, err)
}

func TestConcurrentOpenKeepsOneTicket(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.OpenTicket(ctx, 10, "alice", "help")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, errs.ErrConflict)
	}
	assert.Equal(t, 1, ok)
	assert.Zero(t, svc.locks.size())
}

func TestEventsArePublished(t *testing.T) {
	ctx := context.Background()
	p := &recordingProducer{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := newService(t, WithProducer(p), WithClock(func() time.Time { return fixed }))

	tk, err := svc.OpenTicket(ctx, 10, "alice", "help")
	require.NoError(t, err)
	require.NoError(t, svc.AppendMessage(ctx, tk.ID, adminID, "fixed"))
	_, err = svc.CloseTicket(ctx, tk.ID)
	require.NoError(t, err)

	svc.Close()
	assert.Equal(t,
		[]string{kafka.EventTicketCreated, kafka.EventTicketMessage, kafka.EventTicketClosed},
		p.names())
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range p.events {
		assert.Equal(t, tk.ID, ev.TicketID)
		assert.Equal(t, fixed, ev.At)
	}
}

func TestEventsKeepOrderWithSlowProducer(t *testing.T) {
	ctx := context.Background()
	p := &recordingProducer{delay: map[string]time.Duration{kafka.EventTicketCreated: 50 * time.Millisecond}}
	svc := newService(t, WithProducer(p))

	tk, err := svc.OpenTicket(ctx, 10, "alice", "help")
	require.NoError(t, err)
	require.NoError(t, svc.AppendMessage(ctx, tk.ID, 10, "more"))
	_, err = svc.CloseTicket(ctx, tk.ID)
	require.NoError(t, err)

	svc.Close()
	assert.Equal(t,
		[]string{kafka.EventTicketCreated, kafka.EventTicketMessage, kafka.EventTicketClosed},
		p.names())
}

func TestCloseDrainsQueueAndDropsLateEvents(t *testing.T) {
	ctx := context.Background()
	p := &recordingProducer{delay: map[string]time.Duration{kafka.EventTicketCreated: 20 * time.Millisecond}}
	svc := newService(t, WithProducer(p))

	for owner := int64(10); owner < 13; owner++ {
		_, err := svc.OpenTicket(ctx, owner, "u", "hi")
		require.NoError(t, err)
	}
	svc.Close()
	assert.Len(t, p.names(), 3)

	_, err := svc.OpenTicket(ctx, 20, "late", "hi")
	require.NoError(t, err)
	svc.Close()
	assert.Len(t, p.names(), 3)
}

func TestPublishSnapshots(t *testing.T) {
	ctx := context.Background()
	p := &recordingProducer{}
	svc := newService(t, WithProducer(p))

	a, err := svc.OpenTicket(ctx, 10, "alice", "help")
	require.NoError(t, err)
	b, err := svc.OpenTicket(ctx, 20, "bob", "broken")
	require.NoError(t, err)
	_, err = svc.CloseTicket(ctx, a.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(p.names()) == 3 }, time.Second, 10*time.Millisecond)

	n, err := svc.PublishSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p.mu.Lock()
	last := p.events[len(p.events)-1]
	p.mu.Unlock()
	assert.Equal(t, kafka.EventTicketSnapshot, last.Event)
	assert.Equal(t, b.ID, last.TicketID)
	assert.Equal(t, "broken", last.Body)
	assert.Equal(t, "open", last.Status)
}

func TestPublishSnapshotsWithoutProducer(t *testing.T) {
	svc := newService(t)
	_, err := svc.OpenTicket(context.Background(), 10, "alice", "help")
	require.NoError(t, err)

	n, err := svc.PublishSnapshots(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
