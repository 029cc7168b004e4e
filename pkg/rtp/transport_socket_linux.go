//go:build linux

package rtp

import "golang.org/x/sys/unix"

// setSockOptReusePort включает SO_REUSEPORT
func setSockOptReusePort(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// setSockOptBindToDevice привязывает сокет к сетевому интерфейсу
func setSockOptBindToDevice(fd int, device string) error {
	return unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, device)
}

// setSockOptDSCP устанавливает DSCP в старших 6 битах TOS/Traffic Class
func setSockOptDSCP(fd, dscp int) error {
	tos := dscp << 2
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, tos); err != nil {
		return err
	}
	// Для IPv4 сокета опция IPv6 не применяется
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
	return nil
}

// setSockOptVoicePriority приоритет 6 соответствует интерактивному аудио
func setSockOptVoicePriority(fd int) {
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PRIORITY, 6)
}
