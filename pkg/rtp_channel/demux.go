package rtp_channel

import (
	"log/slog"
	"net"
	"sync"

	"github.com/pion/rtcp"
	"go.uber.org/atomic"

	"github.com/arzzra/media_core/pkg/rtp"
)

// PacketClass класс датаграммы по первому байту (RFC 7983)
type PacketClass int

const (
	ClassUnknown PacketClass = iota
	ClassSTUN
	ClassDTLS
	ClassTURN
	ClassRTP
	ClassRTCP
)

func (c PacketClass) String() string {
	switch c {
	case ClassSTUN:
		return "stun"
	case ClassDTLS:
		return "dtls"
	case ClassTURN:
		return "turn"
	case ClassRTP:
		return "rtp"
	case ClassRTCP:
		return "rtcp"
	default:
		return "unknown"
	}
}

const stunHeaderLength = 20

// Classify определяет протокол датаграммы.
//
// RTP и RTCP различаются по второму байту: типы RTCP 192-223 (RFC 5761)
// не пересекаются с допустимыми payload type RTP.
func Classify(data []byte) PacketClass {
	if len(data) == 0 {
		return ClassUnknown
	}

	b := data[0]
	switch {
	case b <= 3:
		if len(data) >= stunHeaderLength {
			return ClassSTUN
		}
	case b >= 20 && b <= 63:
		return ClassDTLS
	case b >= 64 && b <= 79:
		return ClassTURN
	case b >= 128 && b <= 191:
		if len(data) < 2 {
			return ClassUnknown
		}
		if data[1] >= 192 && data[1] <= 223 {
			return ClassRTCP
		}
		return ClassRTP
	}
	return ClassUnknown
}

// Demultiplexer разбирает датаграммы общего порта.
//
// RTP датаграммы декодируются и возвращаются для дальнейшей обработки.
// RTCP учитывается в статистике, остальные протоколы передаются
// зарегистрированным обработчикам или отбрасываются.
type Demultiplexer struct {
	statistics *rtp.Statistics
	logger     *slog.Logger

	mu       sync.RWMutex
	handlers map[PacketClass]rtp.DatagramHandler
	onRtcp   func([]rtcp.Packet)

	unhandled atomic.Uint64
}

// NewDemultiplexer создает демультиплексор, учитывающий пакеты в statistics
func NewDemultiplexer(statistics *rtp.Statistics) *Demultiplexer {
	return &Demultiplexer{
		statistics: statistics,
		handlers:   make(map[PacketClass]rtp.DatagramHandler),
		logger:     slog.Default().With(slog.String("component", "rtp_demux")),
	}
}

// SetProtocolHandler регистрирует обработчик для не-RTP протокола (STUN, DTLS, TURN)
func (d *Demultiplexer) SetProtocolHandler(class PacketClass, handler rtp.DatagramHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if handler == nil {
		delete(d.handlers, class)
		return
	}
	d.handlers[class] = handler
}

// OnRtcp регистрирует получателя разобранных RTCP пакетов
func (d *Demultiplexer) OnRtcp(fn func([]rtcp.Packet)) {
	d.mu.Lock()
	d.onRtcp = fn
	d.mu.Unlock()
}

// Unhandled число датаграмм, для которых не нашлось обработчика
func (d *Demultiplexer) Unhandled() uint64 {
	return d.unhandled.Load()
}

// Handle разбирает датаграмму. Возвращает RTP пакет, если датаграмма
// содержит RTP и успешно декодирована.
func (d *Demultiplexer) Handle(data []byte, from *net.UDPAddr) (*rtp.Packet, bool) {
	class := Classify(data)
	switch class {
	case ClassRTP:
		packet, err := rtp.Parse(data)
		if err != nil {
			d.statistics.OnMalformed()
			d.logger.Debug("некорректный RTP пакет", slog.String("error", err.Error()))
			return nil, false
		}
		return packet, true

	case ClassRTCP:
		d.HandleRtcp(data)
		return nil, false
	}

	d.mu.RLock()
	handler := d.handlers[class]
	d.mu.RUnlock()

	if handler == nil {
		d.unhandled.Inc()
		d.logger.Debug("датаграмма не обработана",
			slog.String("class", class.String()),
			slog.Int("length", len(data)))
		return nil, false
	}
	handler(data, from)
	return nil, false
}

// HandleRtcp декодирует составной RTCP пакет и учитывает его в статистике
func (d *Demultiplexer) HandleRtcp(data []byte) {
	packets, err := rtcp.Unmarshal(data)
	if err != nil {
		d.statistics.OnMalformed()
		d.logger.Debug("некорректный RTCP пакет", slog.String("error", err.Error()))
		return
	}
	d.statistics.OnRtcpReceive(len(packets), len(data))

	d.mu.RLock()
	fn := d.onRtcp
	d.mu.RUnlock()
	if fn != nil {
		fn(packets)
	}
}
