package session

import (
	"fmt"
	"sync"
)

// PortRange диапазон портов для RTP
type PortRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Validate проверяет, что диапазон вмещает хотя бы одну пару портов
func (r PortRange) Validate() error {
	if r.Min <= 0 || r.Max > 65535 {
		return fmt.Errorf("некорректный диапазон портов: %d-%d", r.Min, r.Max)
	}
	if r.Min >= r.Max {
		return fmt.Errorf("минимальный порт должен быть меньше максимального: %d >= %d", r.Min, r.Max)
	}
	if r.Min+r.Min%2+1 > r.Max {
		return fmt.Errorf("в диапазоне %d-%d нет пары портов с четным началом", r.Min, r.Max)
	}
	return nil
}

// PortManager выделяет пары портов RTP/RTCP. RTP получает четный порт,
// RTCP следующий за ним (RFC 3550).
type PortManager struct {
	portRange PortRange
	usedPorts map[int]bool
	mutex     sync.Mutex
	nextPort  int
}

// NewPortManager создает менеджер портов для диапазона
func NewPortManager(portRange PortRange) (*PortManager, error) {
	if err := portRange.Validate(); err != nil {
		return nil, err
	}

	pm := &PortManager{
		portRange: portRange,
		usedPorts: make(map[int]bool),
	}
	pm.nextPort = pm.first()
	return pm, nil
}

func (pm *PortManager) first() int {
	if pm.portRange.Min%2 != 0 {
		return pm.portRange.Min + 1
	}
	return pm.portRange.Min
}

func (pm *PortManager) advance() {
	pm.nextPort += 2
	if pm.nextPort+1 > pm.portRange.Max {
		pm.nextPort = pm.first()
	}
}

// Allocate выделяет свободный четный порт.
// Следующий за ним порт резервируется для RTCP.
func (pm *PortManager) Allocate() (int, error) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	startPort := pm.nextPort
	for {
		port := pm.nextPort
		pm.advance()

		if !pm.usedPorts[port] {
			pm.usedPorts[port] = true
			return port, nil
		}

		// Полный круг: все пары заняты
		if pm.nextPort == startPort {
			return 0, &ResourceUnavailableError{
				Resource: fmt.Sprintf("все порты в диапазоне %d-%d заняты", pm.portRange.Min, pm.portRange.Max),
			}
		}
	}
}

// Release освобождает порт
func (pm *PortManager) Release(port int) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	delete(pm.usedPorts, port)
}

// IsUsed проверяет, выделен ли порт
func (pm *PortManager) IsUsed(port int) bool {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	return pm.usedPorts[port]
}

// Available возвращает количество свободных пар портов
func (pm *PortManager) Available() int {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	total := (pm.portRange.Max - pm.first() + 1) / 2
	return total - len(pm.usedPorts)
}
