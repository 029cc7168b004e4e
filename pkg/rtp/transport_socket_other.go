//go:build !linux && !darwin

package rtp

// На остальных платформах опции сокета не применяются, привязка к интерфейсу
// выполняется выбором локального адреса.

func setSockOptReusePort(fd int) error { return nil }

func setSockOptBindToDevice(fd int, device string) error { return nil }

func setSockOptDSCP(fd, dscp int) error { return nil }

func setSockOptVoicePriority(fd int) {}
