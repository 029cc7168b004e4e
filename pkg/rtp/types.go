package rtp

import "fmt"

// ConnectionMode режим медиа соединения
type ConnectionMode int

const (
	ModeInactive        ConnectionMode = iota // Неактивно
	ModeSendRecv                              // Отправка и прием
	ModeSendOnly                              // Только отправка
	ModeRecvOnly                              // Только прием
	ModeNetworkLoopback                       // Принятые пакеты возвращаются отправителю
)

func (m ConnectionMode) String() string {
	switch m {
	case ModeSendRecv:
		return "sendrecv"
	case ModeSendOnly:
		return "sendonly"
	case ModeRecvOnly:
		return "recvonly"
	case ModeInactive:
		return "inactive"
	case ModeNetworkLoopback:
		return "netwloop"
	default:
		return "unknown"
	}
}

// ParseConnectionMode разбирает режим по его SDP/MGCP имени
func ParseConnectionMode(s string) (ConnectionMode, error) {
	switch s {
	case "sendrecv":
		return ModeSendRecv, nil
	case "sendonly":
		return ModeSendOnly, nil
	case "recvonly":
		return ModeRecvOnly, nil
	case "inactive":
		return ModeInactive, nil
	case "netwloop":
		return ModeNetworkLoopback, nil
	default:
		return ModeInactive, fmt.Errorf("неизвестный режим соединения: %q", s)
	}
}

// CanSend может ли соединение отправлять медиа приложения
func (m ConnectionMode) CanSend() bool {
	return m == ModeSendRecv || m == ModeSendOnly
}

// CanReceive обрабатываются ли входящие пакеты
func (m ConnectionMode) CanReceive() bool {
	return m == ModeSendRecv || m == ModeRecvOnly || m == ModeNetworkLoopback
}

// IsLoopback возвращаются ли входящие пакеты отправителю
func (m ConnectionMode) IsLoopback() bool {
	return m == ModeNetworkLoopback
}

// Reverse режим, который должна объявить удаленная сторона в ответ
func (m ConnectionMode) Reverse() ConnectionMode {
	switch m {
	case ModeSendOnly:
		return ModeRecvOnly
	case ModeRecvOnly:
		return ModeSendOnly
	default:
		return m
	}
}
