package media

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/media_core/pkg/clock"
	"github.com/arzzra/media_core/pkg/format"
	"github.com/arzzra/media_core/pkg/rtp"
)

var pcmuFormat = rtp.RTPFormat{PayloadType: rtp.PayloadTypePCMU, Format: format.PCMU}

func newTestBuffer(t *testing.T, configure ...func(*JitterBufferConfig)) (*JitterBuffer, *clock.ManualClock) {
	t.Helper()
	wall := clock.NewManualClock(int64(time.Second))
	config := DefaultJitterBufferConfig()
	for _, fn := range configure {
		fn(&config)
	}
	jb, err := NewJitterBuffer(wall, config)
	require.NoError(t, err)
	return jb, wall
}

func audioPacket(seq uint16, timestamp uint32) *rtp.Packet {
	return rtp.NewPacket(0, seq, timestamp, 0x5555, []byte{byte(seq), byte(timestamp)})
}

// TestJitterBufferCreation проверяет валидацию конфигурации
func TestJitterBufferCreation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*JitterBufferConfig)
	}{
		{"Емкость меньше двух", func(c *JitterBufferConfig) { c.Capacity = 1 }},
		{"Отрицательный порог", func(c *JitterBufferConfig) { c.MinFill = -time.Millisecond }},
		{"Нулевая длительность кадра", func(c *JitterBufferConfig) { c.DefaultFrameDuration = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultJitterBufferConfig()
			tt.modify(&config)
			_, err := NewJitterBuffer(clock.NewManualClock(0), config)
			require.Error(t, err)
			assert.True(t, errors.Is(err, NewMediaError(ErrorCodeJitterBufferConfigInvalid, "")))
		})
	}

	_, err := NewJitterBuffer(nil, DefaultJitterBufferConfig())
	assert.Error(t, err)
}

// TestJitterBufferReordering пакеты выдаются в порядке timestamp, а не прихода
func TestJitterBufferReordering(t *testing.T) {
	jb, _ := newTestBuffer(t, func(c *JitterBufferConfig) { c.MinFill = 20 * time.Millisecond })

	jb.Write(audioPacket(3, 300), pcmuFormat)
	jb.Write(audioPacket(1, 100), pcmuFormat)
	jb.Write(audioPacket(2, 200), pcmuFormat)
	require.Equal(t, 3, jb.Size())

	var order []byte
	for _, playout := range []int64{100, 200, 300} {
		frame := jb.Read(playout)
		require.NotNil(t, frame)
		order = append(order, frame.Payload[1])
	}
	assert.Equal(t, []byte{100, 200, 300 - 256}, order)
	assert.Nil(t, jb.Read(400))
}

// TestJitterBufferWarmUp чтение до порога возвращает nil, BUFFER_FILLED срабатывает один раз
func TestJitterBufferWarmUp(t *testing.T) {
	jb, _ := newTestBuffer(t) // 50мс

	var events []BufferEvent
	jb.Subscribe(func(e BufferEvent) { events = append(events, e) })

	jb.Write(audioPacket(1, 0), pcmuFormat)
	assert.Nil(t, jb.Read(0))
	jb.Write(audioPacket(2, 160), pcmuFormat)
	assert.Nil(t, jb.Read(0), "40мс меньше порога")
	assert.Empty(t, events)

	jb.Write(audioPacket(3, 320), pcmuFormat)
	assert.Equal(t, []BufferEvent{BufferFilled}, events)
	assert.True(t, jb.IsReady())

	jb.Write(audioPacket(4, 480), pcmuFormat)
	assert.Len(t, events, 1)

	for range 4 {
		frame := jb.Read(0)
		require.NotNil(t, frame)
		assert.Equal(t, int64(20*time.Millisecond), frame.Duration)
		assert.True(t, frame.Format.Matches(format.PCMU))
	}
	assert.Equal(t, []BufferEvent{BufferFilled, BufferEmpty}, events)
	assert.False(t, jb.IsReady())

	// После опустошения нужен повторный разгон
	jb.Write(audioPacket(5, 640), pcmuFormat)
	assert.Nil(t, jb.Read(0))
	for i := uint16(6); i <= 8; i++ {
		jb.Write(audioPacket(i, uint32(i-1)*160), pcmuFormat)
	}
	assert.Equal(t, []BufferEvent{BufferFilled, BufferEmpty, BufferFilled}, events)
}

func TestJitterBufferWithoutBuffering(t *testing.T) {
	jb, _ := newTestBuffer(t, func(c *JitterBufferConfig) { c.Buffering = false })

	filled := 0
	jb.Subscribe(func(e BufferEvent) {
		if e == BufferFilled {
			filled++
		}
	})

	jb.Write(audioPacket(1, 0), pcmuFormat)
	frame := jb.Read(0)
	require.NotNil(t, frame)
	assert.Equal(t, int64(time.Second), frame.Timestamp)
	assert.Equal(t, 1, filled)
}

func TestJitterBufferDropsLatePackets(t *testing.T) {
	jb, _ := newTestBuffer(t, func(c *JitterBufferConfig) { c.Buffering = false })

	jb.Write(audioPacket(10, 1600), pcmuFormat)
	require.NotNil(t, jb.Read(0))

	// timestamp раньше точки воспроизведения
	jb.Write(audioPacket(9, 1440), pcmuFormat)
	assert.Equal(t, 0, jb.Size())
	assert.Equal(t, uint64(1), jb.Statistics().LateDrops)

	jb.Write(audioPacket(11, 1760), pcmuFormat)
	assert.Equal(t, 1, jb.Size())
}

func TestJitterBufferResyncAfterLateBurst(t *testing.T) {
	jb, _ := newTestBuffer(t, func(c *JitterBufferConfig) {
		c.Buffering = false
		c.Capacity = 10
	})

	jb.Write(audioPacket(1000, 160000), pcmuFormat)
	require.NotNil(t, jb.Read(0))

	// Удаленная сторона перезапустила поток с меньшими timestamp
	for i := uint16(0); i < 4; i++ {
		jb.Write(audioPacket(i, uint32(i)*160), pcmuFormat)
	}
	assert.Equal(t, 0, jb.Size())
	assert.Equal(t, uint64(4), jb.Statistics().LateDrops)

	jb.Write(audioPacket(4, 640), pcmuFormat)
	assert.Equal(t, 1, jb.Size(), "пятое подряд опоздание сбрасывает точку воспроизведения")
}

func TestJitterBufferDuplicateAndOverflow(t *testing.T) {
	jb, _ := newTestBuffer(t, func(c *JitterBufferConfig) {
		c.Capacity = 3
		c.MinFill = time.Second
	})

	jb.Write(audioPacket(1, 0), pcmuFormat)
	jb.Write(audioPacket(1, 0), pcmuFormat)
	assert.Equal(t, 1, jb.Size())
	assert.Equal(t, uint64(1), jb.Statistics().DuplicateDrops)

	for i := uint16(2); i <= 5; i++ {
		jb.Write(audioPacket(i, uint32(i-1)*160), pcmuFormat)
	}
	stats := jb.Statistics()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, uint64(2), stats.OverflowDrops)
	assert.Equal(t, uint64(3), jb.DropCount())
}

func TestJitterBufferIgnoresPacketWithoutFormat(t *testing.T) {
	jb, _ := newTestBuffer(t)
	jb.Write(audioPacket(1, 0), rtp.RTPFormat{})
	jb.Write(nil, pcmuFormat)
	assert.Equal(t, 0, jb.Size())
}

func TestJitterBufferEstimatesJitter(t *testing.T) {
	jb, wall := newTestBuffer(t, func(c *JitterBufferConfig) { c.Capacity = 100 })

	// Ровный поток: jitter не растет
	for i := range 10 {
		jb.Write(audioPacket(uint16(i), uint32(i)*160), pcmuFormat)
		wall.Advance(20 * time.Millisecond)
	}
	assert.Equal(t, int64(0), jb.EstimatedJitter())

	// Пакет опоздал на 10мс (80 единиц)
	wall.Advance(10 * time.Millisecond)
	jb.Write(audioPacket(10, 1600), pcmuFormat)
	assert.Equal(t, int64(5), jb.EstimatedJitter())
}

func TestJitterBufferRestart(t *testing.T) {
	jb, _ := newTestBuffer(t, func(c *JitterBufferConfig) { c.Buffering = false })
	jb.Write(audioPacket(1, 0), pcmuFormat)
	jb.Write(audioPacket(2, 160), pcmuFormat)

	jb.Restart()
	assert.Equal(t, 0, jb.Size())
	assert.False(t, jb.IsReady())
	assert.Nil(t, jb.Read(0))
}
