// Общие настройки UDP сокетов для голосового трафика.
//
// Опции применяются до bind через net.ListenConfig, поэтому SO_REUSEPORT
// и привязка к интерфейсу действуют на сам bind. Платформенные функции
// находятся в transport_socket_*.go.
package rtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// Общие константы для настройки транспортов
const (
	// DefaultBufferSize размер буфера по умолчанию (MTU Ethernet)
	DefaultBufferSize = 1500

	// DefaultReceiveTimeout период, с которым цикл чтения проверяет отмену
	DefaultReceiveTimeout = 100 * time.Millisecond

	// VoiceOptimizedRecvBuffer буфер ядра на прием, ~3 секунды G.711 при 20мс пакетах
	VoiceOptimizedRecvBuffer = 65535
	// VoiceOptimizedSendBuffer буфер ядра на отправку
	VoiceOptimizedSendBuffer = 65535

	// DSCP значения согласно RFC 4594
	DSCPExpeditedForwarding = 46 // EF для интерактивного аудио
	DSCPBestEffort          = 0
)

// listenUDP создает UDP сокет с голосовыми оптимизациями
func listenUDP(ctx context.Context, address string, config TransportConfig) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockOptErr error
			err := c.Control(func(fd uintptr) {
				sockOptErr = applySockOptForVoice(int(fd), config)
			})
			if err != nil {
				return fmt.Errorf("ошибка управления сокетом: %w", err)
			}
			return sockOptErr
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp", address)
	if err != nil {
		return nil, classifyNetworkError("UDP bind "+address, err)
	}
	conn := pc.(*net.UDPConn)

	// Буферы ядра не критичны, ограничения контейнера игнорируются
	_ = conn.SetReadBuffer(VoiceOptimizedRecvBuffer)
	_ = conn.SetWriteBuffer(VoiceOptimizedSendBuffer)

	return conn, nil
}

// applySockOptForVoice применяет опции сокета, выполняется до bind
func applySockOptForVoice(fd int, config TransportConfig) error {
	if config.ReusePort {
		if err := setSockOptReusePort(fd); err != nil {
			return fmt.Errorf("ошибка установки SO_REUSEPORT: %w", err)
		}
	}
	if config.BindToDevice != "" {
		if err := setSockOptBindToDevice(fd, config.BindToDevice); err != nil {
			return fmt.Errorf("ошибка привязки к устройству %s: %w", config.BindToDevice, err)
		}
	}
	if config.DSCP > 0 {
		// В контейнерах маркировка может быть запрещена
		_ = setSockOptDSCP(fd, config.DSCP)
	}
	setSockOptVoicePriority(fd)
	return nil
}

// NetworkErrorType типы сетевых ошибок
type NetworkErrorType int

const (
	ErrorTypeTemporary    NetworkErrorType = iota // Временная ошибка (retry возможен)
	ErrorTypePermanent                            // Постоянная ошибка
	ErrorTypeTimeout                              // Таймаут (нормальное поведение цикла чтения)
	ErrorTypeAddressInUse                         // Порт занят другим сокетом
	ErrorTypeClosed                               // Сокет закрыт
	ErrorTypeUnknown                              // Неклассифицированная ошибка
)

func (t NetworkErrorType) String() string {
	switch t {
	case ErrorTypeTemporary:
		return "temporary"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeAddressInUse:
		return "address-in-use"
	case ErrorTypeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClassifiedError сетевая ошибка с классификацией
type ClassifiedError struct {
	Type      NetworkErrorType
	Operation string
	Err       error
	Retryable bool
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v (type: %s, retryable: %t)", e.Operation, e.Err, e.Type, e.Retryable)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// classifyNetworkError анализирует сетевую ошибку
func classifyNetworkError(operation string, err error) error {
	if err == nil {
		return nil
	}

	classified := &ClassifiedError{Operation: operation, Err: err, Type: ErrorTypeUnknown}

	var netErr net.Error
	switch {
	case errors.Is(err, net.ErrClosed):
		classified.Type = ErrorTypeClosed
	case errors.Is(err, syscall.EADDRINUSE):
		classified.Type = ErrorTypeAddressInUse
		classified.Retryable = true
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EADDRNOTAVAIL), errors.Is(err, syscall.EINVAL):
		classified.Type = ErrorTypePermanent
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR), errors.Is(err, syscall.ECONNREFUSED):
		classified.Type = ErrorTypeTemporary
		classified.Retryable = true
	case errors.As(err, &netErr) && netErr.Timeout():
		classified.Type = ErrorTypeTimeout
		classified.Retryable = true
	}
	return classified
}

// IsErrorType проверяет тип классифицированной ошибки
func IsErrorType(err error, t NetworkErrorType) bool {
	var classified *ClassifiedError
	return errors.As(err, &classified) && classified.Type == t
}
