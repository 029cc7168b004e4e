package rtp

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomPacket(r *rand.Rand) *Packet {
	payload := make([]byte, r.Intn(320))
	r.Read(payload)

	p := NewPacket(uint8(r.Intn(128)), uint16(r.Uint32()), r.Uint32(), r.Uint32(), payload)
	p.Marker = r.Intn(2) == 1
	for range r.Intn(16) {
		p.CSRC = append(p.CSRC, r.Uint32())
	}
	if r.Intn(3) == 0 {
		ext := make([]byte, 1+r.Intn(16))
		r.Read(ext)
		p.Extension = true
		p.ExtensionProfile = 0xBEDE
		if err := p.SetExtension(uint8(1+r.Intn(14)), ext); err != nil {
			panic(err)
		}
	}
	if r.Intn(4) == 0 {
		p.Padding = true
		p.Header.PaddingSize = uint8(1 + r.Intn(32))
	}
	return p
}

func TestPacketRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(3550))

	for i := range 500 {
		original := randomPacket(r)
		data, err := original.Marshal()
		require.NoError(t, err, "пакет %d", i)

		parsed, err := Parse(data)
		require.NoError(t, err, "пакет %d", i)
		require.True(t, original.Equal(parsed), "пакет %d: %s != %s", i, original, parsed)
		assert.Equal(t, len(data), parsed.Length())
	}
}

func TestParseExtensionAtDatagramEnd(t *testing.T) {
	p := NewPacket(0, 7, 160, 0x1234, []byte{})
	p.CSRC = []uint32{1, 2, 3, 4, 5}
	p.Extension = true
	p.ExtensionProfile = 0xBEDE
	require.NoError(t, p.SetExtension(14, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}))

	data, err := p.Marshal()
	require.NoError(t, err)
	require.Len(t, data, 48)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.True(t, p.Equal(parsed), "%s != %s", p, parsed)
	assert.Empty(t, parsed.Payload)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, parsed.GetExtension(14))

	_, err = Parse(data[:len(data)-1])
	assert.Error(t, err, "обрезанный элемент расширения")
}

func TestParsePadding(t *testing.T) {
	p := NewPacket(8, 1, 0, 1, []byte{0xAA, 0xBB})
	p.Padding = true
	p.Header.PaddingSize = 4

	data, err := p.Marshal()
	require.NoError(t, err)
	require.Len(t, data, HeaderLength+2+4)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, parsed.Payload)
	assert.True(t, p.Equal(parsed))

	zero := append([]byte(nil), data...)
	zero[len(zero)-1] = 0
	_, err = Parse(zero)
	assert.Error(t, err, "нулевой счетчик выравнивания")

	tooLong := append([]byte(nil), data...)
	tooLong[len(tooLong)-1] = 7
	_, err = Parse(tooLong)
	assert.Error(t, err, "выравнивание длиннее полезной нагрузки")
}

func TestParseCopiesBuffer(t *testing.T) {
	original := NewPacket(0, 1, 160, 0x1234, []byte{1, 2, 3})
	data, err := original.Marshal()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)

	for i := range data {
		data[i] = 0
	}
	assert.Equal(t, []byte{1, 2, 3}, parsed.Payload)
}

func TestParseMalformed(t *testing.T) {
	valid, err := NewPacket(8, 1, 0, 1, []byte{0xAA}).Marshal()
	require.NoError(t, err)

	csrcOverflow := append([]byte(nil), valid[:HeaderLength]...)
	csrcOverflow[0] |= 0x0F // 15 CSRC без данных

	extensionOverflow := append([]byte(nil), valid[:HeaderLength]...)
	extensionOverflow[0] |= 0x10
	extensionOverflow = append(extensionOverflow, 0xBE, 0xDE, 0x00, 0x10) // 16 слов расширения

	tests := []struct {
		name string
		data []byte
	}{
		{"Пустой буфер", nil},
		{"Короче заголовка", valid[:HeaderLength-1]},
		{"Список CSRC за пределами буфера", csrcOverflow},
		{"Расширение за пределами буфера", extensionOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			require.Error(t, err)

			var malformed *MalformedPacketError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, len(tt.data), malformed.Length)
		})
	}
}

func TestPacketEqual(t *testing.T) {
	a := NewPacket(0, 10, 1600, 42, []byte{1, 2})
	b := NewPacket(0, 10, 1600, 42, []byte{1, 2})
	assert.True(t, a.Equal(b))

	b.Marker = true
	assert.False(t, a.Equal(b))

	c := NewPacket(0, 10, 1600, 42, []byte{1, 3})
	assert.False(t, a.Equal(c))

	d := NewPacket(0, 10, 1600, 42, []byte{1, 2})
	d.CSRC = []uint32{7}
	assert.False(t, a.Equal(d))

	e := NewPacket(0, 10, 1600, 42, []byte{1, 2})
	e.Padding, e.Header.PaddingSize = true, 4
	f := NewPacket(0, 10, 1600, 42, []byte{1, 2})
	f.Padding, f.Header.PaddingSize = true, 8
	assert.False(t, e.Equal(f))
	f.Header.PaddingSize = 4
	assert.True(t, e.Equal(f))

	g := NewPacket(0, 10, 1600, 42, []byte{1, 2})
	g.Extension, g.ExtensionProfile = true, 0xBEDE
	require.NoError(t, g.SetExtension(3, []byte{9}))
	h := NewPacket(0, 10, 1600, 42, []byte{1, 2})
	h.Extension, h.ExtensionProfile = true, 0xBEDE
	require.NoError(t, h.SetExtension(3, []byte{8}))
	assert.False(t, g.Equal(h))

	var nilPacket *Packet
	assert.False(t, a.Equal(nilPacket))
	assert.True(t, nilPacket.Equal(nil))
}
