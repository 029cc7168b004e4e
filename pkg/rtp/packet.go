package rtp

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/pion/rtp"
)

// Константы формата RTP согласно RFC 3550
const (
	// HeaderLength длина фиксированного заголовка
	HeaderLength = 12
	// Version единственная поддерживаемая версия протокола
	Version = 2
	// MaxPacketSize предел размера датаграммы (MTU Ethernet)
	MaxPacketSize = 1500
)

// MalformedPacketError ошибка разбора RTP пакета
type MalformedPacketError struct {
	Length int
	Reason string
	Err    error
}

func (e *MalformedPacketError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("некорректный RTP пакет (%d байт): %s: %v", e.Length, e.Reason, e.Err)
	}
	return fmt.Sprintf("некорректный RTP пакет (%d байт): %s", e.Length, e.Reason)
}

func (e *MalformedPacketError) Unwrap() error {
	return e.Err
}

// Packet RTP пакет. Заголовок и полезная нагрузка хранятся в формате pion/rtp,
// полезная нагрузка не ссылается на буфер, из которого пакет был разобран.
type Packet struct {
	rtp.Packet
}

// NewPacket создает пакет версии 2 с заданными полями. Для пакета с
// выравниванием нужно выставить Padding и PaddingSize > 0, иначе Marshal
// вернет ошибку.
func NewPacket(payloadType uint8, sequence uint16, timestamp, ssrc uint32, payload []byte) *Packet {
	return &Packet{Packet: rtp.Packet{
		Header: rtp.Header{
			Version:        Version,
			PayloadType:    payloadType,
			SequenceNumber: sequence,
			Timestamp:      timestamp,
			SSRC:           ssrc,
		},
		Payload: payload,
	}}
}

// Parse разбирает RTP пакет из буфера. Буфер копируется, поэтому
// вызывающая сторона может переиспользовать его.
func Parse(data []byte) (*Packet, error) {
	if len(data) < HeaderLength {
		return nil, &MalformedPacketError{Length: len(data), Reason: "короче фиксированного заголовка"}
	}
	if end, ok := headerBound(data); !ok || end > len(data) {
		return nil, &MalformedPacketError{Length: len(data), Reason: "переменная часть заголовка выходит за буфер"}
	}

	// pion отклоняет элемент расширения, который заканчивается ровно на
	// границе датаграммы, поэтому заголовок разбирается с запасом в один байт.
	buf := make([]byte, len(data)+1)
	copy(buf, data)

	p := &Packet{}
	n, err := p.Header.Unmarshal(buf)
	if err != nil || n > len(data) {
		return nil, &MalformedPacketError{Length: len(data), Reason: "переменная часть заголовка выходит за буфер", Err: err}
	}

	end := len(data)
	if p.Header.Padding {
		padding := int(data[end-1])
		if padding == 0 || end-padding < n {
			return nil, &MalformedPacketError{Length: len(data), Reason: fmt.Sprintf("некорректное выравнивание %d", padding)}
		}
		p.Header.PaddingSize = byte(padding)
		end -= padding
	}
	p.Payload = buf[n:end:end]
	return p, nil
}

// headerBound длина фиксированной части, CSRC и блока расширения
// по полям первого слова
func headerBound(data []byte) (int, bool) {
	end := HeaderLength + int(data[0]&0x0F)*4
	if data[0]&0x10 == 0 {
		return end, true
	}
	if len(data) < end+4 {
		return end + 4, false
	}
	words := int(data[end+2])<<8 | int(data[end+3])
	return end + 4 + words*4, true
}

// Length размер пакета на проводе
func (p *Packet) Length() int {
	return p.MarshalSize()
}

// Equal сравнивает все поля заголовка и полезную нагрузку
func (p *Packet) Equal(other *Packet) bool {
	if p == nil || other == nil {
		return p == other
	}
	a, b := &p.Header, &other.Header
	if a.Version != b.Version ||
		a.Padding != b.Padding ||
		a.Extension != b.Extension ||
		a.Marker != b.Marker ||
		a.PayloadType != b.PayloadType ||
		a.SequenceNumber != b.SequenceNumber ||
		a.Timestamp != b.Timestamp ||
		a.SSRC != b.SSRC ||
		a.ExtensionProfile != b.ExtensionProfile {
		return false
	}
	if len(a.CSRC) != len(b.CSRC) {
		return false
	}
	for i := range a.CSRC {
		if a.CSRC[i] != b.CSRC[i] {
			return false
		}
	}
	if p.paddingSize() != other.paddingSize() {
		return false
	}
	ids := a.GetExtensionIDs()
	if !slices.Equal(ids, b.GetExtensionIDs()) {
		return false
	}
	for _, id := range ids {
		if !bytes.Equal(a.GetExtension(id), b.GetExtension(id)) {
			return false
		}
	}
	return bytes.Equal(p.Payload, other.Payload)
}

// paddingSize число байт выравнивания, учитываемых при сериализации
func (p *Packet) paddingSize() byte {
	if !p.Header.Padding {
		return 0
	}
	return p.Header.PaddingSize
}

func (p *Packet) String() string {
	return fmt.Sprintf("RTP[pt=%d seq=%d ts=%d ssrc=%d len=%d]",
		p.PayloadType, p.SequenceNumber, p.Timestamp, p.SSRC, len(p.Payload))
}
