package rtp_channel

import (
	"fmt"
	"sync"

	"github.com/arzzra/media_core/pkg/rtp"
)

// Encoder сериализует исходящие пакеты и передает их транспорту.
// Изменяет только исходящую статистику.
type Encoder struct {
	statistics *rtp.Statistics

	mu        sync.RWMutex
	transport rtp.Transport
}

// NewEncoder создает кодировщик без транспорта
func NewEncoder(statistics *rtp.Statistics) *Encoder {
	return &Encoder{statistics: statistics}
}

// SetTransport задает транспорт отправки
func (e *Encoder) SetTransport(transport rtp.Transport) {
	e.mu.Lock()
	e.transport = transport
	e.mu.Unlock()
}

// Encode сериализует пакет в байты для сети
func (e *Encoder) Encode(packet *rtp.Packet) ([]byte, error) {
	data, err := packet.Marshal()
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации RTP пакета: %w", err)
	}
	return data, nil
}

// Send сериализует и отправляет пакет
func (e *Encoder) Send(packet *rtp.Packet) error {
	e.mu.RLock()
	transport := e.transport
	e.mu.RUnlock()

	if transport == nil || !transport.IsOpen() {
		return fmt.Errorf("транспорт канала не открыт")
	}

	data, err := e.Encode(packet)
	if err != nil {
		return err
	}
	if err := transport.Send(data); err != nil {
		return err
	}
	e.statistics.OnRtpSent(packet)
	return nil
}
