// Package clock предоставляет источники времени для медиа компонентов.
//
// Все значения времени выражаются в наносекундах (int64) и монотонно
// не убывают. Для тестов используется ManualClock, который продвигается
// вручную и делает работу планировщика детерминированной.
package clock

import (
	"time"

	"go.uber.org/atomic"
)

// Clock источник монотонного времени в наносекундах
type Clock interface {
	Now() int64
}

// WallClock реальные часы на основе монотонного времени процесса
type WallClock struct {
	origin time.Time
}

// NewWallClock создает часы, отсчет которых начинается с момента создания
func NewWallClock() *WallClock {
	return &WallClock{origin: time.Now()}
}

// Now возвращает время в наносекундах с момента создания часов
func (c *WallClock) Now() int64 {
	return int64(time.Since(c.origin))
}

// ManualClock часы с ручным управлением для тестов
type ManualClock struct {
	now atomic.Int64
}

// NewManualClock создает часы с начальным значением start
func NewManualClock(start int64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

// Now возвращает текущее значение часов
func (c *ManualClock) Now() int64 {
	return c.now.Load()
}

// Advance сдвигает часы вперед. Отрицательный сдвиг игнорируется.
func (c *ManualClock) Advance(d time.Duration) int64 {
	if d < 0 {
		return c.now.Load()
	}
	return c.now.Add(int64(d))
}

// Set устанавливает значение часов, если оно не меньше текущего
func (c *ManualClock) Set(value int64) {
	for {
		current := c.now.Load()
		if value < current {
			return
		}
		if c.now.CompareAndSwap(current, value) {
			return
		}
	}
}
