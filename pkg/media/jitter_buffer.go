package media

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/arzzra/media_core/pkg/clock"
	"github.com/arzzra/media_core/pkg/component"
	"github.com/arzzra/media_core/pkg/rtp"
)

// BufferEvent событие изменения состояния jitter buffer
type BufferEvent int

const (
	// BufferEmpty буфер опустел после выдачи последнего кадра
	BufferEmpty BufferEvent = iota
	// BufferFilled буфер накопил порог и готов к выдаче
	BufferFilled
)

func (e BufferEvent) String() string {
	if e == BufferFilled {
		return "BUFFER_FILLED"
	}
	return "BUFFER_EMPTY"
}

// BufferListener обработчик событий буфера. Вызывается в потоке записи
// или чтения и не должен блокироваться.
type BufferListener func(BufferEvent)

// JitterBufferConfig конфигурация jitter buffer
type JitterBufferConfig struct {
	// MinFill объем медиа, который нужно накопить перед первой выдачей
	MinFill time.Duration `yaml:"min_fill"`
	// Capacity максимальное число пакетов в буфере
	Capacity int `yaml:"capacity"`
	// Buffering при false кадры выдаются без накопления
	Buffering bool `yaml:"buffering"`
	// DefaultFrameDuration длительность кадра, пока ее нельзя вычислить по соседям
	DefaultFrameDuration time.Duration `yaml:"default_frame_duration"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultJitterBufferConfig 50мс накопления, 10 пакетов, 20мс кадры
func DefaultJitterBufferConfig() JitterBufferConfig {
	return JitterBufferConfig{
		MinFill:              50 * time.Millisecond,
		Capacity:             10,
		Buffering:            true,
		DefaultFrameDuration: 20 * time.Millisecond,
	}
}

// Validate проверяет корректность конфигурации
func (c JitterBufferConfig) Validate() error {
	if c.Capacity < 2 {
		return NewMediaError(ErrorCodeJitterBufferConfigInvalid,
			fmt.Sprintf("емкость буфера должна быть не меньше 2, получено %d", c.Capacity))
	}
	if c.MinFill < 0 {
		return NewMediaError(ErrorCodeJitterBufferConfigInvalid, "порог накопления не может быть отрицательным")
	}
	if c.DefaultFrameDuration <= 0 {
		return NewMediaError(ErrorCodeJitterBufferConfigInvalid, "длительность кадра должна быть положительной")
	}
	return nil
}

type bufferEntry struct {
	payload   []byte
	format    rtp.RTPFormat
	sequence  uint16
	mediaTime int64
	duration  int64
	marker    bool
}

// JitterBuffer упорядочивает принятые пакеты по RTP timestamp и выдает
// их кадрами в порядке воспроизведения.
//
// Запись выполняется в потоке ввода-вывода, чтение в потоке планировщика.
// Пакеты старше точки воспроизведения отбрасываются, при переполнении
// удаляется самый старый пакет.
type JitterBuffer struct {
	config   JitterBufferConfig
	wall     clock.Clock
	rtpClock *clock.RtpClock
	logger   *slog.Logger

	mu              sync.Mutex
	queue           []*bufferEntry
	format          rtp.RTPFormat
	hasFormat       bool
	ready           bool
	arrivalDeadline int64
	deadlineSet     bool
	droppedInRow    int

	// RFC 3550 A.8: jitter хранится умноженным на 16
	jitter      int64
	lastTransit int64
	haveTransit bool

	lateDrops      atomic.Uint64
	duplicateDrops atomic.Uint64
	overflowDrops  atomic.Uint64

	listenersMu sync.RWMutex
	listeners   []BufferListener
}

// NewJitterBuffer создает буфер. Часы используются для синхронизации
// RTP времени и оценки jitter.
func NewJitterBuffer(wall clock.Clock, config JitterBufferConfig) (*JitterBuffer, error) {
	if wall == nil {
		return nil, fmt.Errorf("clock обязателен")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JitterBuffer{
		config:   config,
		wall:     wall,
		rtpClock: clock.NewRtpClock(wall),
		logger:   logger.With(slog.String("component", "jitter_buffer")),
	}, nil
}

// Subscribe регистрирует обработчик событий буфера
func (jb *JitterBuffer) Subscribe(listener BufferListener) {
	if listener == nil {
		return
	}
	jb.listenersMu.Lock()
	jb.listeners = append(jb.listeners, listener)
	jb.listenersMu.Unlock()
}

func (jb *JitterBuffer) fire(event BufferEvent) {
	jb.listenersMu.RLock()
	listeners := jb.listeners
	jb.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Write помещает пакет в буфер. Пакет без формата отбрасывается.
func (jb *JitterBuffer) Write(packet *rtp.Packet, f rtp.RTPFormat) {
	if packet == nil || f.Format.IsZero() {
		return
	}

	filled := jb.write(packet, f)
	if filled {
		jb.fire(BufferFilled)
	}
}

func (jb *JitterBuffer) write(packet *rtp.Packet, f rtp.RTPFormat) bool {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	if !jb.hasFormat || jb.format.PayloadType != f.PayloadType || !jb.format.Format.Matches(f.Format) {
		if jb.hasFormat {
			jb.logger.Info("смена формата потока",
				slog.String("from", jb.format.String()),
				slog.String("to", f.String()))
		}
		jb.format = f
		jb.hasFormat = true
		jb.rtpClock.SetClockRate(f.ClockRate())
	}

	if !jb.rtpClock.IsSynchronized() {
		jb.rtpClock.Synchronize(packet.Timestamp)
	} else {
		jb.estimateJitter(packet.Timestamp)
	}

	mediaTime := jb.rtpClock.ConvertToAbsoluteTime(packet.Timestamp)

	if jb.deadlineSet && mediaTime < jb.arrivalDeadline {
		jb.droppedInRow++
		if jb.droppedInRow < jb.config.Capacity/2 {
			jb.lateDrops.Inc()
			jb.logger.Debug("пакет опоздал", slog.Int("seq", int(packet.SequenceNumber)))
			return false
		}
		// Серия опозданий означает перезапуск потока у удаленной стороны
		jb.logger.Info("сброс точки воспроизведения после серии опозданий",
			slog.Int("dropped", jb.droppedInRow))
		jb.deadlineSet = false
	}
	jb.droppedInRow = 0

	for _, e := range jb.queue {
		if e.sequence == packet.SequenceNumber {
			jb.duplicateDrops.Inc()
			return false
		}
	}

	entry := &bufferEntry{
		payload:   packet.Payload,
		format:    f,
		sequence:  packet.SequenceNumber,
		mediaTime: mediaTime,
		marker:    packet.Marker,
	}
	i := sort.Search(len(jb.queue), func(i int) bool { return jb.queue[i].mediaTime > mediaTime })
	jb.queue = append(jb.queue, nil)
	copy(jb.queue[i+1:], jb.queue[i:])
	jb.queue[i] = entry

	jb.updateDurations()

	if len(jb.queue) > jb.config.Capacity {
		jb.queue[0] = nil
		jb.queue = jb.queue[1:]
		jb.overflowDrops.Inc()
	}

	if !jb.ready && (!jb.config.Buffering || (jb.span() >= int64(jb.config.MinFill) && len(jb.queue) > 1)) {
		jb.ready = true
		return true
	}
	return false
}

// updateDurations вычисляет длительность кадров по расстоянию до следующего
func (jb *JitterBuffer) updateDurations() {
	last := int64(jb.config.DefaultFrameDuration)
	for i := 0; i+1 < len(jb.queue); i++ {
		if d := jb.queue[i+1].mediaTime - jb.queue[i].mediaTime; d > 0 {
			jb.queue[i].duration = d
			last = d
		} else {
			jb.queue[i].duration = last
		}
	}
	if n := len(jb.queue); n > 0 {
		jb.queue[n-1].duration = last
	}
}

// span объем медиа в буфере
func (jb *JitterBuffer) span() int64 {
	if len(jb.queue) == 0 {
		return 0
	}
	first, last := jb.queue[0], jb.queue[len(jb.queue)-1]
	return last.mediaTime + last.duration - first.mediaTime
}

// estimateJitter обновляет оценку межпакетного jitter (RFC 3550 A.8)
func (jb *JitterBuffer) estimateJitter(timestamp uint32) {
	arrival := clock.NanosToUnits(jb.wall.Now(), jb.rtpClock.ClockRate())
	transit := arrival - int64(timestamp)

	if jb.haveTransit {
		d := transit - jb.lastTransit
		if d < 0 {
			d = -d
		}
		jb.jitter += d - ((jb.jitter + 8) >> 4)
	}
	jb.lastTransit = transit
	jb.haveTransit = true
}

// Read выдает очередной кадр в порядке воспроизведения. Возвращает nil,
// пока буфер не накопил порог или пуст. Аргумент задает медиа время
// потребителя и не влияет на выбор кадра.
func (jb *JitterBuffer) Read(timestamp int64) *component.Frame {
	frame, drained := jb.read()
	if drained {
		jb.fire(BufferEmpty)
	}
	return frame
}

func (jb *JitterBuffer) read() (*component.Frame, bool) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	if !jb.ready || len(jb.queue) == 0 {
		return nil, false
	}

	entry := jb.queue[0]
	jb.queue[0] = nil
	jb.queue = jb.queue[1:]

	jb.arrivalDeadline = entry.mediaTime + entry.duration
	jb.deadlineSet = true

	drained := false
	if len(jb.queue) == 0 {
		jb.ready = false
		drained = true
	}

	return &component.Frame{
		Payload:   entry.payload,
		Format:    entry.format.Format,
		Timestamp: entry.mediaTime,
		Duration:  entry.duration,
		Marker:    entry.marker,
	}, drained
}

// Restart очищает буфер и сбрасывает синхронизацию
func (jb *JitterBuffer) Restart() {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	jb.queue = nil
	jb.ready = false
	jb.deadlineSet = false
	jb.arrivalDeadline = 0
	jb.droppedInRow = 0
	jb.hasFormat = false
	jb.jitter = 0
	jb.haveTransit = false
	jb.rtpClock.Reset()
}

// Size число пакетов в буфере
func (jb *JitterBuffer) Size() int {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return len(jb.queue)
}

// IsReady сообщает, выдает ли буфер кадры
func (jb *JitterBuffer) IsReady() bool {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return jb.ready
}

// EstimatedJitter оценка jitter в единицах RTP timestamp
func (jb *JitterBuffer) EstimatedJitter() int64 {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return jb.jitter >> 4
}

// DropCount число отброшенных пакетов по всем причинам
func (jb *JitterBuffer) DropCount() uint64 {
	return jb.lateDrops.Load() + jb.duplicateDrops.Load() + jb.overflowDrops.Load()
}

// JitterBufferStatistics счетчики буфера
type JitterBufferStatistics struct {
	Size            int
	LateDrops       uint64
	DuplicateDrops  uint64
	OverflowDrops   uint64
	EstimatedJitter int64
}

// Statistics возвращает счетчики буфера
func (jb *JitterBuffer) Statistics() JitterBufferStatistics {
	jb.mu.Lock()
	size := len(jb.queue)
	jitter := jb.jitter >> 4
	jb.mu.Unlock()

	return JitterBufferStatistics{
		Size:            size,
		LateDrops:       jb.lateDrops.Load(),
		DuplicateDrops:  jb.duplicateDrops.Load(),
		OverflowDrops:   jb.overflowDrops.Load(),
		EstimatedJitter: jitter,
	}
}
