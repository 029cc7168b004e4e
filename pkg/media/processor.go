package media

import (
	"github.com/arzzra/media_core/pkg/component"
	"github.com/arzzra/media_core/pkg/format"
)

// Processor внешний DSP модуль преобразования кадров между форматами
type Processor interface {
	Process(frame *component.Frame, source, target format.Format) (*component.Frame, error)
}

// ProcessorFunc адаптер функции к Processor
type ProcessorFunc func(frame *component.Frame, source, target format.Format) (*component.Frame, error)

// Process вызывает f
func (f ProcessorFunc) Process(frame *component.Frame, source, target format.Format) (*component.Frame, error) {
	return f(frame, source, target)
}

// transcode приводит кадр к формату target. Без процессора или при
// совпадении форматов кадр возвращается без изменений.
func transcode(p Processor, frame *component.Frame, target format.Format) (*component.Frame, error) {
	if p == nil || target.IsZero() || frame.Format.Matches(target) {
		return frame, nil
	}
	out, err := p.Process(frame, frame.Format, target)
	if err != nil {
		return nil, WrapMediaError(ErrorCodeTranscodingFailed,
			"ошибка преобразования "+frame.Format.String()+" -> "+target.String(), err)
	}
	if out == nil {
		return nil, NewMediaError(ErrorCodeTranscodingFailed, "процессор вернул пустой кадр")
	}
	if out.Duration == 0 {
		out.Duration = frame.Duration
	}
	out.Marker = frame.Marker
	return out, nil
}
