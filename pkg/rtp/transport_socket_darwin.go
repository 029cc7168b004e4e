//go:build darwin

package rtp

import "golang.org/x/sys/unix"

// soTrafficClass SO_TRAFFIC_CLASS, отсутствует в x/sys/unix
const soTrafficClass = 0x1086

// Классы трафика macOS
const (
	trafficClassBestEffort = 0
	trafficClassVideo      = 700
	trafficClassVoice      = 800
)

// setSockOptReusePort включает SO_REUSEADDR и SO_REUSEPORT
func setSockOptReusePort(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// setSockOptBindToDevice на macOS нет SO_BINDTODEVICE, интерфейс
// выбирается локальным адресом
func setSockOptBindToDevice(fd int, device string) error {
	return nil
}

// setSockOptDSCP устанавливает IP_TOS и класс трафика по DSCP
func setSockOptDSCP(fd, dscp int) error {
	tos := dscp << 2
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, tos); err != nil {
		return err
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, soTrafficClass, trafficClassForDSCP(dscp))
	return nil
}

func trafficClassForDSCP(dscp int) int {
	switch {
	case dscp == DSCPExpeditedForwarding:
		return trafficClassVoice
	case dscp >= 32 && dscp < 46:
		return trafficClassVideo
	default:
		return trafficClassBestEffort
	}
}

// setSockOptVoicePriority SO_NOSIGPIPE, приоритета сокета на macOS нет
func setSockOptVoicePriority(fd int) {
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)
}
