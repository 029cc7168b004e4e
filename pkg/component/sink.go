package component

import (
	"log/slog"

	"go.uber.org/atomic"
)

// Sink приемник кадров. Perform выполняется синхронно внутри активации
// источника, ошибка MediaConsumer останавливает приемник и порождает
// событие EventFailed.
type Sink struct {
	name     string
	consumer MediaConsumer
	logger   *slog.Logger

	started   atomic.Bool
	rxPackets atomic.Uint64
	rxBytes   atomic.Uint64

	listeners listeners
}

// NewSink создает приемник, передающий кадры consumer
func NewSink(name string, consumer MediaConsumer) *Sink {
	return &Sink{
		name:     name,
		consumer: consumer,
		logger:   slog.Default().With(slog.String("component", name)),
	}
}

// Name возвращает имя приемника
func (s *Sink) Name() string {
	return s.name
}

// AddListener регистрирует обработчик событий приемника
func (s *Sink) AddListener(fn Listener) {
	s.listeners.add(fn)
}

// Start включает прием и сбрасывает счетчики
func (s *Sink) Start() {
	if s.started.Swap(true) {
		return
	}
	s.rxPackets.Store(0)
	s.rxBytes.Store(0)
	s.listeners.notify(Event{Type: EventStarted, Component: s.name})
}

// Stop выключает прием
func (s *Sink) Stop() {
	if s.started.Swap(false) {
		s.listeners.notify(Event{Type: EventStopped, Component: s.name})
	}
}

// IsStarted сообщает, принимает ли приемник кадры
func (s *Sink) IsStarted() bool {
	return s.started.Load()
}

// PacketsReceived число принятых кадров
func (s *Sink) PacketsReceived() uint64 {
	return s.rxPackets.Load()
}

// BytesReceived число принятых байт
func (s *Sink) BytesReceived() uint64 {
	return s.rxBytes.Load()
}

// Perform принимает кадр от источника
func (s *Sink) Perform(frame *Frame) {
	if frame == nil || !s.started.Load() {
		return
	}

	s.rxPackets.Inc()
	s.rxBytes.Add(uint64(frame.Length()))

	if s.consumer == nil {
		return
	}
	if err := s.consumer.OnMediaTransfer(frame); err != nil {
		s.logger.Warn("ошибка обработки кадра, приемник остановлен",
			slog.String("error", err.Error()))
		s.Stop()
		s.listeners.notify(Event{Type: EventFailed, Component: s.name, Err: err})
	}
}
