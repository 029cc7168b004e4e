package media

import (
	"log/slog"

	"github.com/arzzra/media_core/pkg/component"
	"github.com/arzzra/media_core/pkg/format"
	"github.com/arzzra/media_core/pkg/scheduler"
)

// RtpInput источник кадров, читающий принятое аудио из jitter buffer.
//
// Кадры в формате, отличном от канонического формата медиа графа,
// преобразуются через Processor. Кадр, который не удалось преобразовать,
// пропускается. RtpInput возобновляет работу по событию BufferFilled.
type RtpInput struct {
	*component.Source

	buffer    *JitterBuffer
	processor Processor
	target    format.Format
	logger    *slog.Logger
}

// NewRtpInput создает вход. target задает канонический формат, нулевое
// значение отключает преобразование.
func NewRtpInput(name string, submitter component.Submitter, buffer *JitterBuffer, processor Processor, target format.Format) *RtpInput {
	in := &RtpInput{
		buffer:    buffer,
		processor: processor,
		target:    target,
		logger:    slog.Default().With(slog.String("component", name)),
	}
	in.Source = component.NewSource(name, component.ProducerFunc(in.evolve), submitter, scheduler.InputQueue)

	buffer.Subscribe(func(event BufferEvent) {
		if event == BufferFilled {
			in.Wakeup()
		}
	})
	return in
}

// Buffer возвращает jitter buffer входа
func (in *RtpInput) Buffer() *JitterBuffer {
	return in.buffer
}

func (in *RtpInput) evolve(timestamp int64) *component.Frame {
	for {
		frame := in.buffer.Read(timestamp)
		if frame == nil {
			return nil
		}

		out, err := transcode(in.processor, frame, in.target)
		if err != nil {
			in.logger.Warn("кадр пропущен", slog.String("error", err.Error()))
			continue
		}
		return out
	}
}

// Deactivate останавливает вход и очищает буфер
func (in *RtpInput) Deactivate() {
	in.Stop()
	in.buffer.Restart()
}
