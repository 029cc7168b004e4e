package media

import (
	"fmt"
	"strings"
	"time"
)

// DTMFDigit представляет DTMF цифру согласно RFC 4733
type DTMFDigit uint8

const (
	DTMF0     DTMFDigit = 0
	DTMF1     DTMFDigit = 1
	DTMF2     DTMFDigit = 2
	DTMF3     DTMFDigit = 3
	DTMF4     DTMFDigit = 4
	DTMF5     DTMFDigit = 5
	DTMF6     DTMFDigit = 6
	DTMF7     DTMFDigit = 7
	DTMF8     DTMFDigit = 8
	DTMF9     DTMFDigit = 9
	DTMFStar  DTMFDigit = 10 // *
	DTMFPound DTMFDigit = 11 // #
	DTMFA     DTMFDigit = 12
	DTMFB     DTMFDigit = 13
	DTMFC     DTMFDigit = 14
	DTMFD     DTMFDigit = 15
)

const dtmfSymbols = "0123456789*#ABCD"

func (d DTMFDigit) String() string {
	if int(d) < len(dtmfSymbols) {
		return dtmfSymbols[d : d+1]
	}
	return "?"
}

// ParseDTMFString преобразует строку в последовательность DTMF цифр
func ParseDTMFString(s string) ([]DTMFDigit, error) {
	digits := make([]DTMFDigit, 0, len(s))
	for _, r := range strings.ToUpper(s) {
		i := strings.IndexRune(dtmfSymbols, r)
		if i < 0 {
			return nil, fmt.Errorf("недопустимый DTMF символ: %c", r)
		}
		digits = append(digits, DTMFDigit(i))
	}
	return digits, nil
}

// DTMFEvent обнаруженное или отправляемое DTMF событие
type DTMFEvent struct {
	Digit     DTMFDigit     // DTMF цифра
	Duration  time.Duration // Длительность нажатия
	Volume    int8          // Уровень громкости (от 0 до -63 dBm)
	Timestamp uint32        // RTP timestamp события
}

// DTMFPayloadSize размер полезной нагрузки telephone-event
const DTMFPayloadSize = 4

// DTMFPayload полезная нагрузка telephone-event согласно RFC 4733
type DTMFPayload struct {
	Event    uint8  // DTMF digit (0-15)
	EndFlag  bool   // End of event flag
	Reserved bool   // Reserved bit (должен быть 0)
	Volume   uint8  // Volume level (0-63, представляет -dBm)
	Duration uint16 // Duration in timestamp units
}

// ParseDTMFPayload разбирает полезную нагрузку telephone-event
func ParseDTMFPayload(data []byte) (DTMFPayload, error) {
	if len(data) < DTMFPayloadSize {
		return DTMFPayload{}, NewMediaError(ErrorCodeDTMFPayloadInvalid,
			fmt.Sprintf("некорректный размер DTMF payload: %d", len(data)))
	}

	return DTMFPayload{
		Event:    data[0],
		EndFlag:  data[1]&0x80 != 0,
		Reserved: data[1]&0x40 != 0,
		Volume:   data[1] & 0x3F,
		Duration: uint16(data[2])<<8 | uint16(data[3]),
	}, nil
}

// Marshal сериализует полезную нагрузку
func (p DTMFPayload) Marshal() []byte {
	data := make([]byte, DTMFPayloadSize)
	data[0] = p.Event
	if p.EndFlag {
		data[1] |= 0x80
	}
	if p.Reserved {
		data[1] |= 0x40
	}
	data[1] |= p.Volume & 0x3F
	data[2] = byte(p.Duration >> 8)
	data[3] = byte(p.Duration)
	return data
}

// IsDigit сообщает, что событие является DTMF цифрой (0-15)
func (p DTMFPayload) IsDigit() bool {
	return p.Event <= uint8(DTMFD)
}
