package media

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/arzzra/media_core/pkg/component"
	"github.com/arzzra/media_core/pkg/format"
	"github.com/arzzra/media_core/pkg/rtp"
	"github.com/arzzra/media_core/pkg/scheduler"
)

// Параметры генерации тона по принятому событию
const (
	dtmfFramePeriod  = 20 * time.Millisecond
	dtmfToneFrames   = 7
	dtmfEndFrames    = 3
	dtmfDurationStep = 160
	// окна, в которых пакет с той же цифрой считается повтором текущего события
	dtmfSequenceWindow = 8
	dtmfDurationWindow = 1280
)

// DtmfInput источник кадров telephone-event.
//
// Write вызывается в потоке ввода-вывода: новое событие порождает серию
// кадров фиксированной длительности и будит источник. Повторы и пакеты
// окончания события новых кадров не порождают.
type DtmfInput struct {
	*component.Source

	logger *slog.Logger

	mu           sync.Mutex
	frames       deque.Deque[*component.Frame]
	hasTone      bool
	lastTone     uint8
	lastSeq      uint16
	lastDuration uint16
	lastTs       uint32
	ended        bool

	digitMu sync.RWMutex
	onDigit []func(DTMFEvent)
}

// NewDtmfInput создает DTMF вход
func NewDtmfInput(name string, submitter component.Submitter) *DtmfInput {
	in := &DtmfInput{logger: slog.Default().With(slog.String("component", name))}
	in.Source = component.NewSource(name, component.ProducerFunc(in.evolve), submitter, scheduler.InputQueue)
	return in
}

// OnDigit регистрирует обработчик обнаруженных цифр.
// Вызывается один раз на событие в потоке записи.
func (in *DtmfInput) OnDigit(fn func(DTMFEvent)) {
	if fn == nil {
		return
	}
	in.digitMu.Lock()
	in.onDigit = append(in.onDigit, fn)
	in.digitMu.Unlock()
}

// Write обрабатывает принятый пакет telephone-event
func (in *DtmfInput) Write(packet *rtp.Packet) {
	payload, err := ParseDTMFPayload(packet.Payload)
	if err != nil {
		in.logger.Debug("пакет DTMF отброшен", slog.String("error", err.Error()))
		return
	}

	event, isNew := in.accept(packet, payload)
	if !isNew {
		return
	}

	in.digitMu.RLock()
	listeners := in.onDigit
	in.digitMu.RUnlock()
	for _, fn := range listeners {
		fn(event)
	}

	in.Wakeup()
}

func (in *DtmfInput) accept(packet *rtp.Packet, payload DTMFPayload) (DTMFEvent, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if payload.EndFlag {
		if in.hasTone && payload.Event == in.lastTone {
			in.ended = true
		}
		return DTMFEvent{}, false
	}

	if in.hasTone && payload.Event == in.lastTone && in.isSameEvent(packet, payload) {
		in.lastSeq = packet.SequenceNumber
		in.lastDuration = payload.Duration
		return DTMFEvent{}, false
	}

	in.hasTone = true
	in.ended = false
	in.lastTone = payload.Event
	in.lastSeq = packet.SequenceNumber
	in.lastDuration = payload.Duration
	in.lastTs = packet.Timestamp

	in.generate(payload)

	return DTMFEvent{
		Digit:     DTMFDigit(payload.Event),
		Duration:  time.Duration(payload.Duration) * time.Second / 8000,
		Volume:    -int8(payload.Volume),
		Timestamp: packet.Timestamp,
	}, true
}

// isSameEvent пакет относится к текущему событию: тот же timestamp
// или, пока окончание не получено, близкие номер и длительность
func (in *DtmfInput) isSameEvent(packet *rtp.Packet, payload DTMFPayload) bool {
	if packet.Timestamp == in.lastTs {
		return true
	}
	if in.ended {
		return false
	}
	seqDiff := int(int16(packet.SequenceNumber - in.lastSeq))
	durDiff := int(payload.Duration) - int(in.lastDuration)
	return abs(seqDiff) <= dtmfSequenceWindow && abs(durDiff) <= dtmfDurationWindow
}

// generate ставит в очередь кадры тона и окончания события
func (in *DtmfInput) generate(payload DTMFPayload) {
	total := dtmfToneFrames + dtmfEndFrames
	for i := 1; i <= total; i++ {
		p := DTMFPayload{
			Event:    payload.Event,
			Volume:   payload.Volume,
			EndFlag:  i > dtmfToneFrames,
			Duration: uint16(min(i, dtmfToneFrames+1) * dtmfDurationStep),
		}
		in.frames.PushBack(&component.Frame{
			Payload:  p.Marshal(),
			Format:   format.TelephoneEvent,
			Duration: int64(dtmfFramePeriod),
			Marker:   i == 1,
		})
	}
}

func (in *DtmfInput) evolve(int64) *component.Frame {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.frames.Len() == 0 {
		return nil
	}
	return in.frames.PopFront()
}

// Pending число кадров в очереди
func (in *DtmfInput) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.frames.Len()
}

// Deactivate останавливает вход и очищает очередь
func (in *DtmfInput) Deactivate() {
	in.Stop()

	in.mu.Lock()
	in.frames.Clear()
	in.hasTone = false
	in.mu.Unlock()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
