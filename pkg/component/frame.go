// Package component содержит базовые абстракции медиа графа: кадр,
// источник, который по расписанию планировщика вытягивает кадры из
// MediaProducer, и приемник, который передает их MediaConsumer.
package component

import (
	"time"

	"github.com/arzzra/media_core/pkg/format"
)

// Frame медиа кадр, передаваемый между компонентами
type Frame struct {
	Payload []byte
	Format  format.Format

	// Timestamp медиа время начала кадра, наносекунды
	Timestamp int64
	// Duration длительность кадра, наносекунды
	Duration int64
	// Sequence номер кадра в потоке источника, переполняется через 65535
	Sequence uint16
	// EOM признак последнего кадра потока
	EOM bool
	// Marker соответствует биту marker RTP заголовка
	Marker bool
}

// Length размер полезной нагрузки в байтах
func (f *Frame) Length() int {
	return len(f.Payload)
}

// DurationTime длительность кадра как time.Duration
func (f *Frame) DurationTime() time.Duration {
	return time.Duration(f.Duration)
}

// Clone возвращает копию кадра с отдельным буфером
func (f *Frame) Clone() *Frame {
	c := *f
	c.Payload = append([]byte(nil), f.Payload...)
	return &c
}

// MediaProducer производит кадры по запросу источника.
// Evolve не должен блокироваться: при отсутствии данных возвращается nil.
type MediaProducer interface {
	Evolve(timestamp int64) *Frame
}

// MediaConsumer обрабатывает кадры, доставленные приемнику
type MediaConsumer interface {
	OnMediaTransfer(frame *Frame) error
}

// ProducerFunc адаптер функции к MediaProducer
type ProducerFunc func(timestamp int64) *Frame

// Evolve вызывает f(timestamp)
func (f ProducerFunc) Evolve(timestamp int64) *Frame {
	return f(timestamp)
}

// ConsumerFunc адаптер функции к MediaConsumer
type ConsumerFunc func(frame *Frame) error

// OnMediaTransfer вызывает f(frame)
func (f ConsumerFunc) OnMediaTransfer(frame *Frame) error {
	return f(frame)
}
