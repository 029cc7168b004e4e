package media

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pion/randutil"
	"go.uber.org/atomic"

	"github.com/arzzra/media_core/pkg/clock"
	"github.com/arzzra/media_core/pkg/component"
	"github.com/arzzra/media_core/pkg/rtp"
)

// PacketSender передает RTP пакеты в исходящий тракт канала
type PacketSender interface {
	Send(packet *rtp.Packet) error
}

// RtpOutput приемник кадров приложения, формирующий исходящие RTP пакеты.
//
// Кадр приводится к согласованному формату, получает номер
// последовательности и RTP timestamp от медиа времени кадра. Кадр,
// который не удалось преобразовать, пропускается. Ошибка отправки
// останавливает приемник.
type RtpOutput struct {
	*component.Sink

	sender    PacketSender
	processor Processor
	ssrc      uint32
	logger    *slog.Logger
	enabled   atomic.Bool

	mu       sync.Mutex
	audio    rtp.RTPFormat
	hasAudio bool
	dtmf     rtp.RTPFormat
	hasDTMF  bool
	sequence uint16
	tsBase   uint32
	lastTs   uint32
	marker   bool
	dropped  uint64
}

// NewRtpOutput создает выход с заданным SSRC
func NewRtpOutput(name string, ssrc uint32, sender PacketSender, processor Processor) *RtpOutput {
	random := randutil.NewMathRandomGenerator()
	out := &RtpOutput{
		sender:    sender,
		processor: processor,
		ssrc:      ssrc,
		logger:    slog.Default().With(slog.String("component", name)),
		sequence:  uint16(random.Uint32()),
		tsBase:    random.Uint32(),
	}
	out.Sink = component.NewSink(name, out)
	out.Sink.AddListener(func(e component.Event) {
		if e.Type == component.EventStarted {
			out.mu.Lock()
			out.marker = true
			out.mu.Unlock()
		}
	})
	return out
}

// SSRC идентификатор исходящего потока
func (o *RtpOutput) SSRC() uint32 {
	return o.ssrc
}

// SetFormats выбирает формат отправки и формат DTMF из согласованной таблицы
func (o *RtpOutput) SetFormats(formats *rtp.RTPFormats) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.audio, o.hasAudio = formats.Preferred()
	o.dtmf, o.hasDTMF = formats.DTMF()
}

// SetEnabled разрешает или запрещает отправку, например по режиму соединения
func (o *RtpOutput) SetEnabled(enabled bool) {
	o.enabled.Store(enabled)
}

// IsEnabled сообщает, разрешена ли отправка
func (o *RtpOutput) IsEnabled() bool {
	return o.enabled.Load()
}

// Dropped число кадров, пропущенных из-за ошибок преобразования
func (o *RtpOutput) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// OnMediaTransfer реализует component.MediaConsumer
func (o *RtpOutput) OnMediaTransfer(frame *component.Frame) error {
	if !o.enabled.Load() {
		return nil
	}

	packet, err := o.packetize(frame)
	if err != nil {
		o.logger.Warn("кадр пропущен", slog.String("error", err.Error()))
		return nil
	}
	if packet == nil {
		return nil
	}

	if err := o.sender.Send(packet); err != nil {
		return WrapMediaError(ErrorCodeSendFailed, "ошибка отправки RTP пакета", err)
	}
	return nil
}

func (o *RtpOutput) packetize(frame *component.Frame) (*rtp.Packet, error) {
	o.mu.Lock()
	target, ok := o.audio, o.hasAudio
	if frame.Format.IsDTMF() {
		target, ok = o.dtmf, o.hasDTMF
	}
	o.mu.Unlock()

	if !ok {
		return nil, NewMediaError(ErrorCodeOutputNotReady, "формат отправки не согласован")
	}

	if !frame.Format.IsDTMF() {
		converted, err := transcode(o.processor, frame, target.Format)
		if err != nil {
			o.mu.Lock()
			o.dropped++
			o.mu.Unlock()
			return nil, err
		}
		frame = converted
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	units := clock.NanosToUnits(frame.Timestamp, target.ClockRate())
	timestamp := o.tsBase + uint32(units)
	packet := rtp.NewPacket(uint8(target.PayloadType), o.sequence, timestamp, o.ssrc, frame.Payload)
	packet.Marker = o.marker || frame.Marker

	o.sequence++
	o.lastTs = timestamp
	o.marker = false
	return packet, nil
}

// SendDTMF отправляет событие telephone-event: три пакета события
// и три пакета окончания с общим timestamp
func (o *RtpOutput) SendDTMF(event DTMFEvent) error {
	if event.Duration <= 0 {
		return NewMediaError(ErrorCodeDTMFPayloadInvalid, "длительность DTMF должна быть положительной")
	}

	o.mu.Lock()
	if !o.hasDTMF {
		o.mu.Unlock()
		return NewMediaError(ErrorCodeDTMFNotNegotiated, "telephone-event не согласован")
	}
	format := o.dtmf
	timestamp := event.Timestamp
	if timestamp == 0 {
		timestamp = o.lastTs
	}
	volume := uint8(0)
	if event.Volume < 0 {
		volume = uint8(min(-int(event.Volume), 63))
	}
	payload := DTMFPayload{
		Event:    uint8(event.Digit),
		Volume:   volume,
		Duration: uint16(int64(event.Duration) * int64(format.ClockRate()) / int64(time.Second)),
	}

	packets := make([]*rtp.Packet, 0, 6)
	for i := range 6 {
		payload.EndFlag = i >= 3
		packet := rtp.NewPacket(uint8(format.PayloadType), o.sequence, timestamp, o.ssrc, payload.Marshal())
		packet.Marker = i == 0
		packets = append(packets, packet)
		o.sequence++
	}
	o.mu.Unlock()

	for _, packet := range packets {
		if err := o.sender.Send(packet); err != nil {
			return WrapMediaError(ErrorCodeSendFailed, "ошибка отправки DTMF", err)
		}
	}
	return nil
}
