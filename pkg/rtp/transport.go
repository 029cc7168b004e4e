package rtp

import (
	"fmt"
	"log/slog"
	"net"
	"time"
)

// Transport датаграммный транспорт RTP канала
type Transport interface {
	// Send отправляет датаграмму удаленной стороне
	Send(data []byte) error

	// LocalAddr возвращает локальный адрес транспорта
	LocalAddr() net.Addr

	// RemoteAddr возвращает удаленный адрес транспорта (если установлен)
	RemoteAddr() net.Addr

	// IsOpen проверяет, привязан ли транспорт к локальному адресу
	IsOpen() bool

	// Close закрывает транспорт
	Close() error
}

// DatagramHandler получает датаграммы из цикла чтения транспорта.
// Буфер data действителен только на время вызова.
type DatagramHandler func(data []byte, from *net.UDPAddr)

// TransportConfig конфигурация UDP транспорта
type TransportConfig struct {
	BufferSize     int           `yaml:"buffer_size"`     // Размер буфера чтения
	ReceiveTimeout time.Duration `yaml:"receive_timeout"` // Период проверки отмены в цикле чтения
	DSCP           int           `yaml:"dscp"`            // DSCP маркировка для QoS (0 = не задавать)
	ReusePort      bool          `yaml:"reuse_port"`      // SO_REUSEPORT
	BindToDevice   string        `yaml:"bind_to_device"`  // Привязка к сетевому интерфейсу (Linux)
	// Symmetric заменяет удаленный адрес адресом первой принятой датаграммы
	Symmetric bool `yaml:"symmetric"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultTransportConfig возвращает конфигурацию по умолчанию
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		BufferSize:     DefaultBufferSize,
		ReceiveTimeout: DefaultReceiveTimeout,
		DSCP:           DSCPExpeditedForwarding,
	}
}

// Validate проверяет корректность конфигурации транспорта
func (c TransportConfig) Validate() error {
	if c.BufferSize < HeaderLength {
		return fmt.Errorf("размер буфера %d меньше RTP заголовка", c.BufferSize)
	}
	if c.ReceiveTimeout <= 0 {
		return fmt.Errorf("таймаут чтения должен быть положительным")
	}
	if c.DSCP < 0 || c.DSCP > 63 {
		return fmt.Errorf("DSCP должен быть в диапазоне 0-63")
	}
	return nil
}
