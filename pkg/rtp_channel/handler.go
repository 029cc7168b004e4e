package rtp_channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/atomic"

	"github.com/arzzra/media_core/pkg/media"
	"github.com/arzzra/media_core/pkg/rtp"
)

// Состояния обработчика входящих пакетов
const (
	StateIdle   = "idle"
	StateActive = "active"
)

const (
	eventActivate   = "activate"
	eventDeactivate = "deactivate"
)

// InboundHandler распределяет входящие RTP пакеты между jitter buffer и
// DTMF входом по согласованной таблице форматов.
//
// PacketReceived вызывается в потоке ввода-вывода. Пакеты принимаются
// только в состоянии active при разрешенном приеме. Пакет с неизвестным
// payload type отбрасывается без изменения статистики.
type InboundHandler struct {
	fsm        *fsm.FSM
	rtpInput   *media.RtpInput
	dtmfInput  *media.DtmfInput
	statistics *rtp.Statistics
	logger     *slog.Logger

	mu       sync.RWMutex
	formats  *rtp.RTPFormats
	loopback media.PacketSender

	receivable atomic.Bool
	loopable   atomic.Bool
	unknown    atomic.Uint64
	stateMu    sync.Mutex
}

// NewInboundHandler создает обработчик в состоянии idle с режимом sendrecv
func NewInboundHandler(rtpInput *media.RtpInput, dtmfInput *media.DtmfInput, statistics *rtp.Statistics) *InboundHandler {
	h := &InboundHandler{
		rtpInput:   rtpInput,
		dtmfInput:  dtmfInput,
		statistics: statistics,
		formats:    rtp.NewRTPFormats(),
		logger:     slog.Default().With(slog.String("component", "rtp_handler")),
	}
	h.UpdateMode(rtp.ModeSendRecv)

	h.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventActivate, Src: []string{StateIdle}, Dst: StateActive},
			{Name: eventDeactivate, Src: []string{StateActive}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_" + StateActive: func(_ context.Context, _ *fsm.Event) {
				h.rtpInput.Activate()
				h.dtmfInput.Activate()
			},
			"enter_" + StateIdle: func(_ context.Context, _ *fsm.Event) {
				h.rtpInput.Deactivate()
				h.dtmfInput.Deactivate()
			},
			"after_event": func(_ context.Context, e *fsm.Event) {
				h.logger.Info("смена состояния", slog.String("from", e.Src), slog.String("to", e.Dst))
			},
		},
	)
	return h
}

// Activate переводит обработчик в active и запускает входы.
// Повторная активация ничего не делает.
func (h *InboundHandler) Activate() error {
	return h.transition(eventActivate, StateActive)
}

// Deactivate переводит обработчик в idle и останавливает входы
func (h *InboundHandler) Deactivate() error {
	return h.transition(eventDeactivate, StateIdle)
}

func (h *InboundHandler) transition(event, target string) error {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if h.fsm.Is(target) {
		return nil
	}
	err := h.fsm.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}

// State текущее состояние обработчика
func (h *InboundHandler) State() string {
	return h.fsm.Current()
}

// IsActive сообщает, находится ли обработчик в состоянии active
func (h *InboundHandler) IsActive() bool {
	return h.fsm.Is(StateActive)
}

// UpdateMode задает прием и эхо входящих пакетов по режиму соединения
func (h *InboundHandler) UpdateMode(mode rtp.ConnectionMode) {
	h.receivable.Store(mode.CanReceive() && !mode.IsLoopback())
	h.loopable.Store(mode.IsLoopback())
}

// IsReceivable сообщает, принимаются ли пакеты в jitter buffer
func (h *InboundHandler) IsReceivable() bool {
	return h.receivable.Load()
}

// IsLoopable сообщает, возвращаются ли пакеты отправителю
func (h *InboundHandler) IsLoopable() bool {
	return h.loopable.Load()
}

// SetFormats заменяет таблицу согласованных форматов
func (h *InboundHandler) SetFormats(formats *rtp.RTPFormats) {
	if formats == nil {
		formats = rtp.NewRTPFormats()
	}
	h.mu.Lock()
	h.formats = formats.Clone()
	h.mu.Unlock()
}

// Formats возвращает таблицу согласованных форматов
func (h *InboundHandler) Formats() *rtp.RTPFormats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.formats
}

// SetLoopback задает отправитель для режима network loopback
func (h *InboundHandler) SetLoopback(sender media.PacketSender) {
	h.mu.Lock()
	h.loopback = sender
	h.mu.Unlock()
}

// UnknownPayloadDrops число пакетов, отброшенных из-за неизвестного payload type
func (h *InboundHandler) UnknownPayloadDrops() uint64 {
	return h.unknown.Load()
}

// PacketReceived обрабатывает принятый пакет
func (h *InboundHandler) PacketReceived(packet *rtp.Packet) {
	if packet == nil || !h.IsActive() {
		return
	}

	if h.loopable.Load() {
		h.echo(packet)
		return
	}
	if !h.receivable.Load() || len(packet.Payload) == 0 {
		return
	}

	h.mu.RLock()
	format, ok := h.formats.Find(rtp.PayloadType(packet.PayloadType))
	h.mu.RUnlock()

	if !ok {
		h.unknown.Inc()
		h.logger.Debug("неизвестный payload type, пакет отброшен",
			slog.Int("pt", int(packet.PayloadType)))
		return
	}

	// Первый пакет потока начинает буферизацию заново
	if h.statistics.RtpPacketsReceived() == 0 {
		h.rtpInput.Buffer().Restart()
	}
	h.statistics.OnRtpReceive(packet)

	if format.IsDTMF() {
		h.dtmfInput.Write(packet)
		return
	}
	h.rtpInput.Buffer().Write(packet, format)
}

func (h *InboundHandler) echo(packet *rtp.Packet) {
	h.mu.RLock()
	sender := h.loopback
	h.mu.RUnlock()

	if sender == nil {
		return
	}
	h.statistics.OnRtpReceive(packet)
	if err := sender.Send(packet); err != nil {
		h.logger.Debug("ошибка отправки эха", slog.String("error", err.Error()))
	}
}
