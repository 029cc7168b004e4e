package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Queue номер очереди планировщика
type Queue int

// Очереди политики по умолчанию
const (
	ManagementQueue Queue = iota
	InputQueue
	MixerQueue
	OutputQueue
)

func (q Queue) String() string {
	switch q {
	case ManagementQueue:
		return "management"
	case InputQueue:
		return "input"
	case MixerQueue:
		return "mixer"
	case OutputQueue:
		return "output"
	default:
		return fmt.Sprintf("queue-%d", int(q))
	}
}

// Policy порядок обхода очередей за один проход.
// Management очередь опустошается перед каждой очередью DataPlane
// и после последней из них.
type Policy struct {
	Management Queue
	DataPlane  []Queue
}

// DefaultPolicy management, затем input, mixer, output
func DefaultPolicy() Policy {
	return Policy{
		Management: ManagementQueue,
		DataPlane:  []Queue{InputQueue, MixerQueue, OutputQueue},
	}
}

// Validate проверяет, что очереди не повторяются
func (p Policy) Validate() error {
	if len(p.DataPlane) == 0 {
		return fmt.Errorf("политика должна содержать хотя бы одну очередь данных")
	}
	seen := map[Queue]bool{p.Management: true}
	for _, q := range p.DataPlane {
		if q < 0 {
			return fmt.Errorf("отрицательный номер очереди: %d", q)
		}
		if seen[q] {
			return fmt.Errorf("очередь %s указана дважды", q)
		}
		seen[q] = true
	}
	return nil
}

func (p Policy) queues() []Queue {
	return append([]Queue{p.Management}, p.DataPlane...)
}

// Config конфигурация планировщика
type Config struct {
	// Cycle период одного прохода по очередям
	Cycle time.Duration `yaml:"cycle"`
	// Workers число горутин, выполняющих задачи одной очереди
	Workers int `yaml:"workers"`
	// Policy порядок очередей
	Policy Policy `yaml:"-"`

	Logger     *slog.Logger          `yaml:"-"`
	Registerer prometheus.Registerer `yaml:"-"`
}

// DefaultConfig возвращает конфигурацию по умолчанию: проход каждые 20мс, один исполнитель
func DefaultConfig() Config {
	return Config{
		Cycle:   20 * time.Millisecond,
		Workers: 1,
		Policy:  DefaultPolicy(),
	}
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if c.Cycle <= 0 {
		return fmt.Errorf("период прохода должен быть положительным")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("число исполнителей должно быть положительным")
	}
	return c.Policy.Validate()
}
