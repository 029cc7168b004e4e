package media

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/atomic"

	"github.com/arzzra/media_core/pkg/component"
	"github.com/arzzra/media_core/pkg/format"
)

// G711Processor преобразует кадры между G.711 (μ-law, A-law) и
// каноническим форматом format.Linear: 16 бит PCM, little-endian.
type G711Processor struct {
	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewG711Processor создает процессор G.711
func NewG711Processor() *G711Processor {
	return &G711Processor{}
}

// Process реализует Processor
func (p *G711Processor) Process(frame *component.Frame, source, target format.Format) (*component.Frame, error) {
	payload, err := p.convert(frame.Payload, source, target)
	if err != nil {
		p.failed.Inc()
		return nil, err
	}
	p.processed.Inc()

	return &component.Frame{
		Payload:   payload,
		Format:    target,
		Timestamp: frame.Timestamp,
		Duration:  frame.Duration,
		Marker:    frame.Marker,
	}, nil
}

func (p *G711Processor) convert(payload []byte, source, target format.Format) ([]byte, error) {
	if source.Matches(target) {
		return payload, nil
	}

	var pcm []int16
	switch {
	case source.Matches(format.Linear):
		if len(payload)%2 != 0 {
			return nil, NewMediaError(ErrorCodeTranscodingFailed,
				fmt.Sprintf("нечетная длина PCM кадра: %d", len(payload)))
		}
		pcm = make([]int16, len(payload)/2)
		for i := range pcm {
			pcm[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
		}
	case source.Matches(format.PCMU):
		pcm = make([]int16, len(payload))
		for i, b := range payload {
			pcm[i] = ulawToLinear(b)
		}
	case source.Matches(format.PCMA):
		pcm = make([]int16, len(payload))
		for i, b := range payload {
			pcm[i] = alawToLinear(b)
		}
	default:
		return nil, NewMediaError(ErrorCodeFormatUnsupported, "неподдерживаемый исходный формат "+source.String())
	}

	switch {
	case target.Matches(format.Linear):
		out := make([]byte, len(pcm)*2)
		for i, s := range pcm {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
		}
		return out, nil
	case target.Matches(format.PCMU):
		out := make([]byte, len(pcm))
		for i, s := range pcm {
			out[i] = linearToUlaw(s)
		}
		return out, nil
	case target.Matches(format.PCMA):
		out := make([]byte, len(pcm))
		for i, s := range pcm {
			out[i] = linearToAlaw(s)
		}
		return out, nil
	default:
		return nil, NewMediaError(ErrorCodeFormatUnsupported, "неподдерживаемый целевой формат "+target.String())
	}
}

// G711Statistics счетчики процессора
type G711Statistics struct {
	FramesProcessed uint64
	FramesFailed    uint64
}

// Statistics возвращает счетчики процессора
func (p *G711Processor) Statistics() G711Statistics {
	return G711Statistics{
		FramesProcessed: p.processed.Load(),
		FramesFailed:    p.failed.Load(),
	}
}

// ITU-T G.711

const (
	ulawBias = 0x84
	ulawClip = 32635
)

var alawSegmentEnd = [8]int{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

func linearToUlaw(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

func ulawToLinear(u byte) int16 {
	u = ^u
	exponent := int(u>>4) & 0x07
	mantissa := int(u & 0x0F)
	s := ((mantissa<<3)+ulawBias)<<exponent - ulawBias
	if u&0x80 != 0 {
		return int16(-s)
	}
	return int16(s)
}

func linearToAlaw(sample int16) byte {
	s := int(sample) >> 3
	mask := 0xD5
	if s < 0 {
		mask = 0x55
		s = -s - 1
	}

	segment := 0
	for segment < len(alawSegmentEnd) && s > alawSegmentEnd[segment] {
		segment++
	}
	if segment == len(alawSegmentEnd) {
		return byte(0x7F ^ mask)
	}

	value := segment << 4
	if segment < 2 {
		value |= (s >> 1) & 0x0F
	} else {
		value |= (s >> segment) & 0x0F
	}
	return byte(value ^ mask)
}

func alawToLinear(a byte) int16 {
	a ^= 0x55
	t := int(a&0x0F) << 4
	segment := int(a&0x70) >> 4
	switch segment {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= segment - 1
	}
	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}
