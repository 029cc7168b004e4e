package component

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/arzzra/media_core/pkg/scheduler"
)

// DefaultBudget объем медиа времени, генерируемый за одну активацию
const DefaultBudget = 20 * time.Millisecond

// Submitter ставит задачи на выполнение
type Submitter interface {
	Submit(task *scheduler.Task) error
}

// Source источник кадров, работающий по расписанию планировщика.
//
// На каждой активации источник вызывает Evolve у MediaProducer и передает
// кадры подключенному приемнику, пока не будет израсходован бюджет медиа
// времени. Если первый же вызов Evolve не вернул кадр, источник
// рассинхронизируется и не ставит задачу повторно до Wakeup.
type Source struct {
	name      string
	producer  MediaProducer
	submitter Submitter
	task      *scheduler.Task
	logger    *slog.Logger

	mu   sync.Mutex
	sink *Sink

	budget        atomic.Int64
	started       atomic.Bool
	synchronized  atomic.Bool
	timestamp     atomic.Int64
	initialOffset atomic.Int64
	duration      atomic.Int64
	sequence      atomic.Uint32

	txPackets atomic.Uint64
	txBytes   atomic.Uint64

	// epoch меняется при каждом Start и Stop, активация прежней эпохи
	// не обновляет состояние источника
	epoch atomic.Uint64
	// wakePending Wakeup пришел во время синхронизированной активации
	wakePending atomic.Bool

	listeners listeners
}

// NewSource создает источник, задача которого выполняется в очереди queue
func NewSource(name string, producer MediaProducer, submitter Submitter, queue scheduler.Queue) *Source {
	s := &Source{
		name:      name,
		producer:  producer,
		submitter: submitter,
		logger:    slog.Default().With(slog.String("component", name)),
	}
	s.task = scheduler.NewTask(name, queue, scheduler.PerformerFunc(s.perform))
	s.budget.Store(int64(DefaultBudget))
	s.duration.Store(-1)
	return s
}

// Name возвращает имя источника
func (s *Source) Name() string {
	return s.name
}

// SetBudget задает объем медиа времени на одну активацию
func (s *Source) SetBudget(budget time.Duration) {
	if budget > 0 {
		s.budget.Store(int64(budget))
	}
}

// SetLogger заменяет логгер источника
func (s *Source) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger.With(slog.String("component", s.name))
	}
}

// AddListener регистрирует обработчик событий источника
func (s *Source) AddListener(fn Listener) {
	s.listeners.add(fn)
}

// Connect подключает приемник. Предыдущее подключение заменяется.
func (s *Source) Connect(sink *Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sink = sink
	if sink != nil && s.started.Load() {
		sink.Start()
	}
}

// Disconnect отключает приемник
func (s *Source) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = nil
}

// Sink возвращает подключенный приемник
func (s *Source) Sink() *Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

// SetInitialOffset задает медиа время, с которого начнется следующий запуск
func (s *Source) SetInitialOffset(offset int64) {
	s.initialOffset.Store(offset)
}

// SetDuration задает длительность потока в наносекундах, отрицательное значение означает бесконечный поток
func (s *Source) SetDuration(duration int64) {
	s.duration.Store(duration)
}

// Duration возвращает длительность потока
func (s *Source) Duration() int64 {
	return s.duration.Load()
}

// MediaTime возвращает текущее медиа время источника
func (s *Source) MediaTime() int64 {
	return s.timestamp.Load()
}

// IsStarted сообщает, запущен ли источник
func (s *Source) IsStarted() bool {
	return s.started.Load()
}

// IsSynchronized сообщает, генерирует ли источник кадры без ожидания Wakeup
func (s *Source) IsSynchronized() bool {
	return s.synchronized.Load()
}

// PacketsTransmitted число переданных кадров с момента запуска
func (s *Source) PacketsTransmitted() uint64 {
	return s.txPackets.Load()
}

// BytesTransmitted число переданных байт с момента запуска
func (s *Source) BytesTransmitted() uint64 {
	return s.txBytes.Load()
}

// Start запускает генерацию кадров. Повторный вызов ничего не делает.
// Ошибка конфигурации логируется, источник остается остановленным.
func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		return
	}
	if err := s.validate(); err != nil {
		s.logger.Error("не удалось запустить источник", slog.String("error", err.Error()))
		return
	}

	s.epoch.Inc()
	s.wakePending.Store(false)
	s.txPackets.Store(0)
	s.txBytes.Store(0)
	s.timestamp.Store(s.initialOffset.Swap(0))
	s.sequence.Store(0)
	s.started.Store(true)
	s.synchronized.Store(true)

	if s.sink != nil {
		s.sink.Start()
	}

	if err := s.submitter.Submit(s.task); err != nil {
		s.started.Store(false)
		s.logger.Error("не удалось запланировать источник", slog.String("error", err.Error()))
		return
	}

	s.listeners.notify(Event{Type: EventStarted, Component: s.name})
}

func (s *Source) validate() error {
	if s.submitter == nil {
		return fmt.Errorf("планировщик не задан")
	}
	if s.producer == nil {
		return fmt.Errorf("производитель кадров не задан")
	}
	return nil
}

// Stop останавливает генерацию кадров и подключенный приемник.
// Безопасен при выполняющейся в другом потоке активации.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch.Inc()
	wasStarted := s.started.Swap(false)
	s.task.Cancel()
	if s.sink != nil {
		s.sink.Stop()
	}
	s.timestamp.Store(0)
	s.txPackets.Store(0)
	s.txBytes.Store(0)

	if wasStarted {
		s.listeners.notify(Event{Type: EventStopped, Component: s.name})
	}
}

// Activate синоним Start
func (s *Source) Activate() {
	s.Start()
}

// Deactivate синоним Stop
func (s *Source) Deactivate() {
	s.Stop()
}

// Wakeup возобновляет генерацию после рассинхронизации. Вызов во время
// активации, которая еще не успела рассинхронизироваться, не теряется:
// активация перепоставит себя вместо снятия.
func (s *Source) Wakeup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Load() {
		return
	}
	if s.synchronized.Load() {
		s.wakePending.Store(true)
		return
	}
	s.synchronized.Store(true)
	if err := s.submitter.Submit(s.task); err != nil {
		s.synchronized.Store(false)
		s.logger.Error("не удалось возобновить источник", slog.String("error", err.Error()))
	}
}

// perform одна активация источника
func (s *Source) perform() int64 {
	epoch := s.epoch.Load()
	if !s.started.Load() {
		return scheduler.Remove
	}
	// Данные, о которых сообщили до этой точки, увидит Evolve ниже
	s.wakePending.Store(false)

	budget := s.budget.Load()
	var spent int64
	reads := 0

	for spent < budget {
		timestamp := s.timestamp.Load()
		frame := s.producer.Evolve(timestamp)
		if frame == nil {
			if reads == 0 {
				return s.desynchronize(epoch)
			}
			return scheduler.Resubmit
		}
		reads++

		frame.Timestamp = timestamp
		frame.Sequence = uint16(s.sequence.Inc() - 1)

		next := timestamp + frame.Duration
		if duration := s.duration.Load(); duration > 0 && next >= duration {
			frame.EOM = true
		}
		if !s.update(epoch, func() { s.timestamp.Store(next) }) {
			return scheduler.Remove
		}
		spent += frame.Duration

		if sink := s.Sink(); sink != nil {
			sink.Perform(frame)
		}
		counted := s.update(epoch, func() {
			s.txPackets.Inc()
			s.txBytes.Add(uint64(frame.Length()))
			if frame.EOM {
				s.started.Store(false)
			}
		})
		if !counted {
			return scheduler.Remove
		}

		if frame.EOM {
			s.listeners.notify(Event{Type: EventCompleted, Component: s.name})
			return scheduler.Remove
		}
		if frame.Duration <= 0 {
			return s.desynchronize(epoch)
		}
	}
	return scheduler.Resubmit
}

// update применяет изменение состояния, если источник не был остановлен
// или перезапущен с начала активации
func (s *Source) update(epoch uint64, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch.Load() != epoch || !s.started.Load() {
		return false
	}
	apply()
	return true
}

// desynchronize снимает задачу до Wakeup либо перепоставляет ее, если
// Wakeup уже был вызван во время активации
func (s *Source) desynchronize(epoch uint64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch.Load() != epoch || !s.started.Load() {
		return scheduler.Remove
	}
	if s.wakePending.Swap(false) {
		return scheduler.Resubmit
	}
	s.synchronized.Store(false)
	return scheduler.Remove
}
