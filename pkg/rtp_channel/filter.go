package rtp_channel

import (
	"log/slog"

	"go.uber.org/atomic"

	"github.com/arzzra/media_core/pkg/rtp"
)

// Payload type 72-76 совпадают с типами RTCP SR, RR, SDES, BYE и APP
// при установленном маркере и запрещены для RTP (RFC 5761)
const (
	reservedPayloadTypeMin = 72
	reservedPayloadTypeMax = 76
)

// Filter пропускает к обработчику только пакеты, соответствующие RTP
// версии 2. Несоответствующие пакеты отбрасываются и учитываются.
type Filter struct {
	statistics *rtp.Statistics
	logger     *slog.Logger
	dropped    atomic.Uint64
}

// NewFilter создает фильтр
func NewFilter(statistics *rtp.Statistics) *Filter {
	return &Filter{
		statistics: statistics,
		logger:     slog.Default().With(slog.String("component", "rtp_filter")),
	}
}

// Check возвращает true, если пакет можно передать дальше.
// Внутри Channel версию уже отсекает Classify, проверка версии нужна
// при прямом вызове фильтра.
func (f *Filter) Check(packet *rtp.Packet) bool {
	reason := ""
	switch {
	case packet.Version != rtp.Version:
		reason = "неподдерживаемая версия"
	case packet.PayloadType >= reservedPayloadTypeMin && packet.PayloadType <= reservedPayloadTypeMax:
		reason = "payload type из диапазона RTCP"
	}
	if reason == "" {
		return true
	}

	f.dropped.Inc()
	f.statistics.OnNonConformant()
	f.logger.Debug("пакет отброшен фильтром",
		slog.String("reason", reason),
		slog.Int("version", int(packet.Version)),
		slog.Int("pt", int(packet.PayloadType)))
	return false
}

// Dropped число отброшенных пакетов
func (f *Filter) Dropped() uint64 {
	return f.dropped.Load()
}
