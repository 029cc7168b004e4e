package component

import "sync"

// EventType тип события жизненного цикла компонента
type EventType int

const (
	EventStarted EventType = iota
	EventStopped
	EventCompleted
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event событие жизненного цикла источника или приемника
type Event struct {
	Type      EventType
	Component string
	Err       error
}

// Listener обработчик событий. Вызывается синхронно и не должен блокироваться.
type Listener func(Event)

type listeners struct {
	mu   sync.RWMutex
	list []Listener
}

func (l *listeners) add(fn Listener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.list = append(l.list, fn)
	l.mu.Unlock()
}

func (l *listeners) notify(e Event) {
	l.mu.RLock()
	list := l.list
	l.mu.RUnlock()

	for _, fn := range list {
		fn(e)
	}
}
