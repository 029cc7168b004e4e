// Package scheduler реализует кооперативный планировщик медиа задач.
//
// Планировщик является единственным двигателем прогресса для медиа
// компонентов: источники не создают собственных горутин, а ставят задачи
// в очереди с приоритетами. За один проход (по умолчанию каждые 20мс)
// очереди обходятся в порядке политики, management очередь опустошается
// раньше очередей данных.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/arzzra/media_core/pkg/clock"
)

type runQueue struct {
	mu    sync.Mutex
	tasks deque.Deque[*Task]
}

func (q *runQueue) push(t *Task) {
	q.mu.Lock()
	q.tasks.PushBack(t)
	q.mu.Unlock()
}

// drain забирает все задачи, поставленные до начала обхода очереди
func (q *runQueue) drain() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := make([]*Task, 0, q.tasks.Len())
	for q.tasks.Len() > 0 {
		batch = append(batch, q.tasks.PopFront())
	}
	return batch
}

func (q *runQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

// Scheduler кооперативный планировщик с очередями приоритетов
type Scheduler struct {
	clock   clock.Clock
	config  Config
	queues  map[Queue]*runQueue
	metrics *metrics
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New создает планировщик. Политика очередей берется из конфигурации.
func New(c clock.Clock, config Config) (*Scheduler, error) {
	if c == nil {
		return nil, fmt.Errorf("clock обязателен")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("неверная конфигурация планировщика: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		clock:   c,
		config:  config,
		queues:  make(map[Queue]*runQueue),
		metrics: newMetrics(config.Registerer),
		logger:  logger.With(slog.String("component", "scheduler")),
	}
	for _, q := range config.Policy.queues() {
		s.queues[q] = &runQueue{}
	}
	return s, nil
}

// Clock возвращает часы планировщика
func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// Submit активирует задачу и ставит ее в очередь. Безопасен для вызова
// из любой горутины. Повторная постановка уже ожидающей задачи не
// приводит к двойному выполнению.
func (s *Scheduler) Submit(task *Task) error {
	if task == nil {
		return fmt.Errorf("задача не может быть nil")
	}
	q, ok := s.queues[task.queue]
	if !ok {
		return fmt.Errorf("неизвестная очередь %s для задачи %s", task.queue, task.name)
	}

	task.active.Store(true)
	if task.queued.CompareAndSwap(false, true) {
		q.push(task)
	}
	return nil
}

// Pending возвращает число задач, ожидающих в очереди
func (s *Scheduler) Pending(queue Queue) int {
	q, ok := s.queues[queue]
	if !ok {
		return 0
	}
	return q.len()
}

// RunCycle выполняет один проход по всем очередям согласно политике.
// Задачи, перепоставленные во время прохода, выполняются на следующем.
func (s *Scheduler) RunCycle() {
	started := time.Now()

	s.runQueue(s.config.Policy.Management)
	for _, q := range s.config.Policy.DataPlane {
		s.runQueue(q)
		s.runQueue(s.config.Policy.Management)
	}

	s.metrics.cycles.Inc()
	s.metrics.cycleDuration.Observe(time.Since(started).Seconds())
}

func (s *Scheduler) runQueue(queue Queue) {
	q := s.queues[queue]
	batch := q.drain()
	if len(batch) == 0 {
		return
	}

	if s.config.Workers == 1 || len(batch) == 1 {
		for _, task := range batch {
			s.execute(q, task)
		}
		return
	}

	var wg sync.WaitGroup
	next := make(chan *Task)
	workers := min(s.config.Workers, len(batch))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range next {
				s.execute(q, task)
			}
		}()
	}
	for _, task := range batch {
		next <- task
	}
	close(next)
	wg.Wait()
}

func (s *Scheduler) execute(q *runQueue, task *Task) {
	task.queued.Store(false)
	if !task.active.Load() {
		return
	}

	hint := s.perform(task)
	s.metrics.executed.WithLabelValues(task.queue.String()).Inc()

	if hint < 0 {
		return
	}
	if task.active.Load() && task.queued.CompareAndSwap(false, true) {
		q.push(task)
	}
}

// perform выполняет задачу, перехватывая панику
func (s *Scheduler) perform(task *Task) (hint int64) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.failures.WithLabelValues(task.queue.String()).Inc()
			s.logger.Error("сбой задачи",
				slog.String("task", task.name),
				slog.String("queue", task.queue.String()),
				slog.Any("panic", r))
			hint = Remove
		}
	}()
	return task.performer.Perform()
}

// Start запускает цикл планировщика в отдельной горутине
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)

	s.logger.Info("планировщик запущен",
		slog.Duration("cycle", s.config.Cycle),
		slog.Int("workers", s.config.Workers))
	return nil
}

// Stop останавливает цикл и ждет завершения текущего прохода
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("планировщик остановлен")
}

// IsRunning сообщает, работает ли цикл
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	next := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.RunCycle()

		next = next.Add(s.config.Cycle)
		wait := time.Until(next)
		if wait < 0 {
			s.metrics.lateCycles.Inc()
			next = time.Now()
			wait = 0
		}
		timer.Reset(wait)
	}
}
