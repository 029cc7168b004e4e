// Package format описывает аудио форматы медиа кадров.
package format

import (
	"fmt"
	"strings"
)

// Format описание аудио формата: имя кодека, частота и число каналов
type Format struct {
	Name       string
	ClockRate  int
	Channels   int
	SampleSize int // бит на отсчет, 0 для сжатых форматов
}

// Известные форматы
var (
	// Linear внутренний канонический формат медиа графа: 16 бит PCM 8кГц
	Linear = Format{Name: "linear", ClockRate: 8000, Channels: 1, SampleSize: 16}

	PCMU           = Format{Name: "pcmu", ClockRate: 8000, Channels: 1, SampleSize: 8}
	PCMA           = Format{Name: "pcma", ClockRate: 8000, Channels: 1, SampleSize: 8}
	GSM            = Format{Name: "gsm", ClockRate: 8000, Channels: 1}
	G722           = Format{Name: "g722", ClockRate: 8000, Channels: 1}
	G729           = Format{Name: "g729", ClockRate: 8000, Channels: 1}
	TelephoneEvent = Format{Name: "telephone-event", ClockRate: 8000, Channels: 1}
)

// New создает формат с нормализованным именем
func New(name string, clockRate, channels int) Format {
	if channels <= 0 {
		channels = 1
	}
	return Format{Name: strings.ToLower(name), ClockRate: clockRate, Channels: channels}
}

// Matches сравнивает форматы по имени, частоте и числу каналов
func (f Format) Matches(other Format) bool {
	return strings.EqualFold(f.Name, other.Name) &&
		f.ClockRate == other.ClockRate &&
		f.channels() == other.channels()
}

// IsZero сообщает, что формат не задан
func (f Format) IsZero() bool {
	return f.Name == ""
}

// IsDTMF сообщает, что формат несет события telephone-event
func (f Format) IsDTMF() bool {
	return strings.EqualFold(f.Name, TelephoneEvent.Name)
}

func (f Format) channels() int {
	if f.Channels <= 0 {
		return 1
	}
	return f.Channels
}

func (f Format) String() string {
	if f.channels() > 1 {
		return fmt.Sprintf("%s/%d/%d", f.Name, f.ClockRate, f.Channels)
	}
	return fmt.Sprintf("%s/%d", f.Name, f.ClockRate)
}
