// Package scheduler по расписанию очищает неактивные сессии чата.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper удаляет сессии, простоявшие дольше ttl, и возвращает их число.
type Sweeper interface {
	ExpireSessions(ctx context.Context, ttl time.Duration) int
}

// Service запускает Sweeper по cron-расписанию.
type Service struct {
	sweeper  Sweeper
	schedule cron.Schedule
	spec     string
	ttl      time.Duration
	cron     *cron.Cron
	logger   *log.Logger
	running  sync.Mutex
	rootCtx  context.Context
	stopOnce sync.Once
}

// NewService проверяет spec (стандартный cron или дескриптор вида "@every 1m")
// и возвращает ещё не запущенный планировщик.
func NewService(sweeper Sweeper, spec string, ttl time.Duration, opts ...Option) (*Service, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("scheduler: session ttl must be positive, got %s", ttl)
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", spec, err)
	}
	engine := o.Cron
	if engine == nil {
		engine = cron.New(cron.WithLocation(o.Location))
	}
	return &Service{
		sweeper:  sweeper,
		schedule: schedule,
		spec:     spec,
		ttl:      ttl,
		cron:     engine,
		logger:   o.Logger,
		rootCtx:  context.Background(),
	}, nil
}

// Run ставит очистку в расписание и блокируется до отмены ctx.
// Уже идущая очистка доводится до конца.
func (s *Service) Run(ctx context.Context) error {
	s.rootCtx = ctx
	s.cron.Schedule(s.schedule, cron.FuncJob(s.sweep))
	s.cron.Start()
	s.logger.Printf("scheduler: session sweep %q, ttl %s", s.spec, s.ttl)

	<-ctx.Done()
	s.stop()
	return nil
}

// sweep пропускает тик, если предыдущий ещё выполняется.
func (s *Service) sweep() {
	if !s.running.TryLock() {
		s.logger.Printf("scheduler: previous sweep still running, skipping")
		return
	}
	defer s.running.Unlock()

	ctx := context.WithoutCancel(s.rootCtx)
	start := time.Now()
	if n := s.sweeper.ExpireSessions(ctx, s.ttl); n > 0 {
		s.logger.Printf("scheduler: expired %d sessions in %s", n, time.Since(start))
	}
}

func (s *Service) stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
	})
}
