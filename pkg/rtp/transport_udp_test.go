package rtp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoundTransport(t *testing.T, configure ...func(*TransportConfig)) *UDPTransport {
	t.Helper()
	config := DefaultTransportConfig()
	for _, fn := range configure {
		fn(&config)
	}
	transport, err := NewUDPTransport(config)
	require.NoError(t, err)
	require.NoError(t, transport.Bind(context.Background(), "127.0.0.1", 0))
	t.Cleanup(func() { _ = transport.Close() })
	return transport
}

func TestUDPTransportExchange(t *testing.T) {
	sender := newBoundTransport(t)
	receiver := newBoundTransport(t)

	require.NoError(t, sender.Connect("127.0.0.1", receiver.LocalPort()))

	var mu sync.Mutex
	var received [][]byte
	var from *net.UDPAddr
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- receiver.Serve(ctx, func(data []byte, addr *net.UDPAddr) {
			mu.Lock()
			received = append(received, append([]byte(nil), data...))
			from = addr
			mu.Unlock()
		})
	}()

	data, err := NewPacket(0, 1, 160, 99, []byte{1, 2, 3}).Marshal()
	require.NoError(t, err)
	require.NoError(t, sender.Send(data))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, data, received[0])
	assert.Equal(t, sender.LocalPort(), from.Port)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("цикл чтения не завершился")
	}

	stats := sender.Statistics()
	assert.Equal(t, uint64(1), stats.PacketsSent)
	assert.Equal(t, uint64(len(data)), stats.BytesSent)
	assert.Equal(t, uint64(1), receiver.Statistics().PacketsReceived)
}

func TestUDPTransportSymmetricLearnsRemote(t *testing.T) {
	peer := newBoundTransport(t)
	local := newBoundTransport(t, func(c *TransportConfig) { c.Symmetric = true })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = local.Serve(ctx, func([]byte, *net.UDPAddr) {}) }()

	require.NoError(t, peer.Connect("127.0.0.1", local.LocalPort()))
	require.NoError(t, peer.Send([]byte("hello-rtp-datagram")))

	assert.Eventually(t, func() bool {
		addr, ok := local.RemoteAddr().(*net.UDPAddr)
		return ok && addr.Port == peer.LocalPort()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUDPTransportLifecycle(t *testing.T) {
	transport, err := NewUDPTransport(DefaultTransportConfig())
	require.NoError(t, err)

	assert.False(t, transport.IsOpen())
	assert.Error(t, transport.Send([]byte{1}))
	assert.Error(t, transport.Serve(context.Background(), func([]byte, *net.UDPAddr) {}))

	require.NoError(t, transport.Bind(context.Background(), "127.0.0.1", 0))
	assert.True(t, transport.IsOpen())
	assert.Error(t, transport.Bind(context.Background(), "127.0.0.1", 0))
	assert.Error(t, transport.Send([]byte{1}), "удаленный адрес не установлен")

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())
	assert.False(t, transport.IsOpen())
	assert.Nil(t, transport.RemoteAddr())
}

func TestUDPTransportPortInUse(t *testing.T) {
	first := newBoundTransport(t)

	second, err := NewUDPTransport(DefaultTransportConfig())
	require.NoError(t, err)
	err = second.Bind(context.Background(), "127.0.0.1", first.LocalPort())
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeAddressInUse))
}

func TestTransportConfigValidate(t *testing.T) {
	config := DefaultTransportConfig()
	require.NoError(t, config.Validate())

	config.DSCP = 64
	assert.Error(t, config.Validate())

	config = DefaultTransportConfig()
	config.BufferSize = 4
	assert.Error(t, config.Validate())

	_, err := NewUDPTransport(config)
	assert.Error(t, err)
}
