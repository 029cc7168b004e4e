package rtp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// UDPTransport UDP транспорт RTP или RTCP канала.
//
// Транспорт создается непривязанным, Bind открывает сокет, Connect задает
// удаленную сторону. Serve выполняет цикл чтения в горутине вызывающего
// (поток ввода-вывода) и передает датаграммы обработчику.
type UDPTransport struct {
	config TransportConfig
	logger *slog.Logger

	mutex      sync.RWMutex
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
	open       bool

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	errorsSend      atomic.Uint64
	errorsReceive   atomic.Uint64
}

// NewUDPTransport создает непривязанный транспорт
func NewUDPTransport(config TransportConfig) (*UDPTransport, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("неверная конфигурация транспорта: %w", err)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UDPTransport{
		config: config,
		logger: logger.With(slog.String("component", "udp_transport")),
	}, nil
}

// Bind привязывает транспорт к локальному адресу host:port
func (t *UDPTransport) Bind(ctx context.Context, host string, port int) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.open {
		return fmt.Errorf("транспорт уже привязан к %s", t.conn.LocalAddr())
	}

	conn, err := listenUDP(ctx, net.JoinHostPort(host, strconv.Itoa(port)), t.config)
	if err != nil {
		return err
	}

	t.conn = conn
	t.open = true
	t.logger.Debug("транспорт привязан", slog.String("local", conn.LocalAddr().String()))
	return nil
}

// Connect задает удаленную сторону
func (t *UDPTransport) Connect(host string, port int) error {
	remoteAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("ошибка разрешения удаленного адреса: %w", err)
	}

	t.mutex.Lock()
	t.remoteAddr = remoteAddr
	t.mutex.Unlock()
	return nil
}

// Send отправляет датаграмму удаленной стороне
func (t *UDPTransport) Send(data []byte) error {
	t.mutex.RLock()
	open := t.open
	conn := t.conn
	remoteAddr := t.remoteAddr
	t.mutex.RUnlock()

	if !open {
		return fmt.Errorf("транспорт не привязан")
	}
	if remoteAddr == nil {
		return fmt.Errorf("удаленный адрес не установлен")
	}
	if len(data) > MaxPacketSize {
		return fmt.Errorf("пакет слишком велик: %d байт (максимум %d)", len(data), MaxPacketSize)
	}

	if _, err := conn.WriteToUDP(data, remoteAddr); err != nil {
		t.errorsSend.Inc()
		return classifyNetworkError("UDP write", err)
	}
	t.packetsSent.Inc()
	t.bytesSent.Add(uint64(len(data)))
	return nil
}

// Serve читает датаграммы до отмены ctx или закрытия транспорта.
// Ошибки чтения отдельных датаграмм не прерывают цикл.
func (t *UDPTransport) Serve(ctx context.Context, handler DatagramHandler) error {
	t.mutex.RLock()
	conn := t.conn
	open := t.open
	t.mutex.RUnlock()

	if !open {
		return fmt.Errorf("транспорт не привязан")
	}

	buffer := make([]byte, t.config.BufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		_ = conn.SetReadDeadline(time.Now().Add(t.config.ReceiveTimeout))
		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			classified := classifyNetworkError("UDP read", err)
			switch {
			case IsErrorType(classified, ErrorTypeTimeout):
				continue
			case IsErrorType(classified, ErrorTypeClosed):
				return nil
			}
			t.errorsReceive.Inc()
			t.logger.Debug("ошибка чтения", slog.String("error", classified.Error()))
			continue
		}

		t.packetsReceived.Inc()
		t.bytesReceived.Add(uint64(n))

		if t.config.Symmetric {
			t.mutex.Lock()
			if t.remoteAddr == nil || !t.remoteAddr.IP.Equal(addr.IP) || t.remoteAddr.Port != addr.Port {
				t.remoteAddr = addr
			}
			t.mutex.Unlock()
		}

		handler(buffer[:n], addr)
	}
}

// LocalAddr возвращает локальный адрес
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// LocalPort возвращает локальный порт или 0, если транспорт не привязан
func (t *UDPTransport) LocalPort() int {
	if addr, ok := t.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}

// RemoteAddr возвращает удаленный адрес
func (t *UDPTransport) RemoteAddr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.remoteAddr == nil {
		return nil
	}
	return t.remoteAddr
}

// IsOpen проверяет, привязан ли транспорт
func (t *UDPTransport) IsOpen() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.open
}

// Close закрывает сокет. Повторный вызов ничего не делает.
func (t *UDPTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.open {
		return nil
	}
	t.open = false
	t.remoteAddr = nil
	return t.conn.Close()
}

// Statistics возвращает счетчики транспорта
func (t *UDPTransport) Statistics() TransportStatistics {
	stats := TransportStatistics{
		PacketsSent:     t.packetsSent.Load(),
		PacketsReceived: t.packetsReceived.Load(),
		BytesSent:       t.bytesSent.Load(),
		BytesReceived:   t.bytesReceived.Load(),
		ErrorsSend:      t.errorsSend.Load(),
		ErrorsReceive:   t.errorsReceive.Load(),
	}
	if addr := t.LocalAddr(); addr != nil {
		stats.LocalAddr = addr.String()
	}
	if addr := t.RemoteAddr(); addr != nil {
		stats.RemoteAddr = addr.String()
	}
	return stats
}

// TransportStatistics статистика транспорта
type TransportStatistics struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	ErrorsSend      uint64
	ErrorsReceive   uint64
	LocalAddr       string
	RemoteAddr      string
}
