package clock

import (
	"sync"
	"time"
)

// RtpClock связывает RTP timestamp потока с медиа временем.
//
// Часы синхронизируются по первому принятому пакету: его timestamp
// соответствует текущему значению базовых часов. Переполнение 32-битного
// timestamp раскрывается инкрементально относительно последнего
// сконвертированного значения.
type RtpClock struct {
	wallClock Clock

	mu           sync.Mutex
	clockRate    int
	synchronized bool
	originRtp    uint32
	originTime   int64
	lastRtp      uint32
	lastExtended int64
}

// NewRtpClock создает несинхронизированные RTP часы
func NewRtpClock(wallClock Clock) *RtpClock {
	return &RtpClock{wallClock: wallClock, clockRate: 8000}
}

// SetClockRate задает частоту дискретизации потока в Гц
func (c *RtpClock) SetClockRate(rate int) {
	if rate <= 0 {
		return
	}
	c.mu.Lock()
	c.clockRate = rate
	c.mu.Unlock()
}

// ClockRate возвращает частоту дискретизации
func (c *RtpClock) ClockRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clockRate
}

// Synchronize привязывает RTP timestamp к текущему времени базовых часов
func (c *RtpClock) Synchronize(rtpTimestamp uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.originRtp = rtpTimestamp
	c.originTime = c.wallClock.Now()
	c.lastRtp = rtpTimestamp
	c.lastExtended = 0
	c.synchronized = true
}

// IsSynchronized сообщает, была ли выполнена синхронизация
func (c *RtpClock) IsSynchronized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synchronized
}

// Reset сбрасывает синхронизацию
func (c *RtpClock) Reset() {
	c.mu.Lock()
	c.synchronized = false
	c.lastExtended = 0
	c.mu.Unlock()
}

// ConvertToAbsoluteTime переводит RTP timestamp в медиа время (наносекунды)
func (c *RtpClock) ConvertToAbsoluteTime(rtpTimestamp uint32) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	extended := c.lastExtended + int64(int32(rtpTimestamp-c.lastRtp))
	c.lastRtp = rtpTimestamp
	c.lastExtended = extended

	return c.originTime + scale(extended, int64(time.Second), int64(c.clockRate))
}

// ConvertToRtpTime переводит медиа время (наносекунды) в RTP timestamp
func (c *RtpClock) ConvertToRtpTime(mediaTime int64) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	units := NanosToUnits(mediaTime-c.originTime, c.clockRate)
	return c.originRtp + uint32(units)
}

// RtpUnits переводит длительность в единицы RTP timestamp
func (c *RtpClock) RtpUnits(d time.Duration) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(NanosToUnits(int64(d), c.clockRate))
}

// NanosToUnits переводит наносекунды в единицы RTP timestamp частоты rate
func NanosToUnits(nanos int64, rate int) int64 {
	return scale(nanos, int64(rate), int64(time.Second))
}

// scale вычисляет value*mul/div без переполнения промежуточного
// произведения на длинных потоках
func scale(value, mul, div int64) int64 {
	return value/div*mul + value%div*mul/div
}
