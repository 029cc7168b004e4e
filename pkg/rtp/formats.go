package rtp

import (
	"fmt"
	"strings"
	"sync"

	"github.com/arzzra/media_core/pkg/format"
)

// PayloadType тип полезной нагрузки RTP согласно RFC 3551
type PayloadType uint8

// Статические типы профиля RTP/AVP и распространенный динамический тип DTMF
const (
	PayloadTypePCMU PayloadType = 0  // μ-law
	PayloadTypeGSM  PayloadType = 3  // GSM 06.10
	PayloadTypePCMA PayloadType = 8  // A-law
	PayloadTypeG722 PayloadType = 9  // G.722
	PayloadTypeG729 PayloadType = 18 // G.729

	PayloadTypeTelephoneEvent PayloadType = 101 // RFC 4733

	// MinDynamicPayloadType начало динамического диапазона
	MinDynamicPayloadType PayloadType = 96
	// MaxPayloadType максимальное значение 7-битного поля
	MaxPayloadType PayloadType = 127
)

// IsDynamic сообщает, что тип из динамического диапазона
func (pt PayloadType) IsDynamic() bool {
	return pt >= MinDynamicPayloadType && pt <= MaxPayloadType
}

// RTPFormat связь типа полезной нагрузки с аудио форматом
type RTPFormat struct {
	PayloadType PayloadType
	Format      format.Format
	// Fmtp параметры формата для SDP, например "0-15" для telephone-event
	Fmtp string
}

// ClockRate частота RTP часов формата
func (f RTPFormat) ClockRate() int {
	return f.Format.ClockRate
}

// IsDTMF сообщает, что формат несет события telephone-event
func (f RTPFormat) IsDTMF() bool {
	return f.Format.IsDTMF()
}

func (f RTPFormat) String() string {
	return fmt.Sprintf("%d %s", f.PayloadType, f.Format)
}

// RTPFormats таблица согласованных форматов, упорядоченная по предпочтению.
// Методы безопасны для конкурентного использования.
type RTPFormats struct {
	mu      sync.RWMutex
	formats []RTPFormat
}

// NewRTPFormats создает таблицу из списка форматов
func NewRTPFormats(formats ...RTPFormat) *RTPFormats {
	t := &RTPFormats{}
	for _, f := range formats {
		t.Add(f)
	}
	return t
}

// Add добавляет формат, заменяя формат с тем же типом полезной нагрузки
func (t *RTPFormats) Add(f RTPFormat) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.formats {
		if t.formats[i].PayloadType == f.PayloadType {
			t.formats[i] = f
			return
		}
	}
	t.formats = append(t.formats, f)
}

// Find ищет формат по типу полезной нагрузки
func (t *RTPFormats) Find(pt PayloadType) (RTPFormat, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, f := range t.formats {
		if f.PayloadType == pt {
			return f, true
		}
	}
	return RTPFormat{}, false
}

// FindFormat ищет запись по аудио формату
func (t *RTPFormats) FindFormat(f format.Format) (RTPFormat, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, candidate := range t.formats {
		if candidate.Format.Matches(f) {
			return candidate, true
		}
	}
	return RTPFormat{}, false
}

// FindByName ищет формат по имени кодека и частоте, как в атрибуте rtpmap
func (t *RTPFormats) FindByName(name string, clockRate int) (RTPFormat, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, f := range t.formats {
		if strings.EqualFold(f.Format.Name, name) && f.Format.ClockRate == clockRate {
			return f, true
		}
	}
	return RTPFormat{}, false
}

// List копия записей в порядке предпочтения
func (t *RTPFormats) List() []RTPFormat {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]RTPFormat(nil), t.formats...)
}

// Len число записей
func (t *RTPFormats) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.formats)
}

// IsEmpty сообщает, что таблица пуста
func (t *RTPFormats) IsEmpty() bool {
	return t.Len() == 0
}

// HasAudio сообщает, что в таблице есть хотя бы один аудио кодек кроме DTMF
func (t *RTPFormats) HasAudio() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, f := range t.formats {
		if !f.IsDTMF() {
			return true
		}
	}
	return false
}

// Preferred первый аудио формат таблицы, используемый для отправки
func (t *RTPFormats) Preferred() (RTPFormat, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, f := range t.formats {
		if !f.IsDTMF() {
			return f, true
		}
	}
	return RTPFormat{}, false
}

// DTMF формат telephone-event, если он согласован
func (t *RTPFormats) DTMF() (RTPFormat, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, f := range t.formats {
		if f.IsDTMF() {
			return f, true
		}
	}
	return RTPFormat{}, false
}

// PayloadTypes типы полезной нагрузки в порядке предпочтения
func (t *RTPFormats) PayloadTypes() []PayloadType {
	t.mu.RLock()
	defer t.mu.RUnlock()

	types := make([]PayloadType, 0, len(t.formats))
	for _, f := range t.formats {
		types = append(types, f.PayloadType)
	}
	return types
}

// Intersection возвращает форматы offered, поддерживаемые таблицей.
// Порядок и типы полезной нагрузки берутся из offered, так как ответ
// должен использовать нумерацию предлагающей стороны.
func (t *RTPFormats) Intersection(offered *RTPFormats) *RTPFormats {
	result := NewRTPFormats()
	for _, f := range offered.List() {
		if _, ok := t.FindFormat(f.Format); ok {
			result.Add(f)
		}
	}
	return result
}

// Clone копия таблицы
func (t *RTPFormats) Clone() *RTPFormats {
	return NewRTPFormats(t.List()...)
}

func (t *RTPFormats) String() string {
	list := t.List()
	parts := make([]string, 0, len(list))
	for _, f := range list {
		parts = append(parts, f.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// avProfile стандартные аудио назначения профиля RTP/AVP (RFC 3551)
// и динамический telephone-event 101
var avProfile = []RTPFormat{
	{PayloadType: PayloadTypePCMU, Format: format.PCMU},
	{PayloadType: PayloadTypeGSM, Format: format.GSM},
	{PayloadType: PayloadTypePCMA, Format: format.PCMA},
	{PayloadType: PayloadTypeG722, Format: format.G722},
	{PayloadType: PayloadTypeG729, Format: format.G729},
	{PayloadType: PayloadTypeTelephoneEvent, Format: format.TelephoneEvent, Fmtp: "0-15"},
}

// AVProfile возвращает новую таблицу стандартного профиля
func AVProfile() *RTPFormats {
	return NewRTPFormats(avProfile...)
}

// StaticFormat назначение статического типа полезной нагрузки
func StaticFormat(pt PayloadType) (RTPFormat, bool) {
	if pt.IsDynamic() {
		return RTPFormat{}, false
	}
	for _, f := range avProfile {
		if f.PayloadType == pt {
			return f, true
		}
	}
	return RTPFormat{}, false
}
