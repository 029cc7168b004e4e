package scheduler

import "sync/atomic"

// Подсказки перепланирования, возвращаемые Performer.Perform
const (
	// Resubmit задача ставится в свою очередь на следующий проход
	Resubmit int64 = 0
	// Remove задача снимается с планирования до следующего Submit
	Remove int64 = -1
)

// Performer выполняет одну активацию задачи.
// Неотрицательный результат означает повторную постановку, отрицательный
// снимает задачу с планирования.
type Performer interface {
	Perform() int64
}

// PerformerFunc адаптер функции к Performer
type PerformerFunc func() int64

// Perform вызывает f()
func (f PerformerFunc) Perform() int64 {
	return f()
}

// Task единица работы планировщика.
//
// Задачей владеет создавший ее компонент, планировщик хранит только
// ссылку на время нахождения в очереди. Отмена кооперативная: флаг
// проверяется перед каждым выполнением.
type Task struct {
	name      string
	queue     Queue
	performer Performer

	active atomic.Bool
	queued atomic.Bool
}

// NewTask создает задачу для очереди queue
func NewTask(name string, queue Queue, performer Performer) *Task {
	return &Task{
		name:      name,
		queue:     queue,
		performer: performer,
	}
}

// Name возвращает имя задачи для логов
func (t *Task) Name() string {
	return t.name
}

// Queue возвращает номер очереди задачи
func (t *Task) Queue() Queue {
	return t.queue
}

// Cancel отменяет задачу. Безопасно вызывать во время выполнения задачи
// в другом потоке: текущая активация завершится, следующая не начнется.
func (t *Task) Cancel() {
	t.active.Store(false)
}

// IsActive сообщает, что задача поставлена через Submit и не отменена
func (t *Task) IsActive() bool {
	return t.active.Load()
}
