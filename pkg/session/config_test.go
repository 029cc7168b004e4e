package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/media_core/pkg/format"
	"github.com/arzzra/media_core/pkg/rtp"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())

	formats, err := config.SupportedFormats()
	require.NoError(t, err)
	assert.Equal(t, []rtp.PayloadType{0, 8, 101}, formats.PayloadTypes())

	preferred, ok := formats.Preferred()
	require.True(t, ok)
	assert.True(t, preferred.Format.Matches(format.PCMU))

	dtmf, ok := formats.DTMF()
	require.True(t, ok)
	assert.Equal(t, "0-15", dtmf.Fmtp)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"адрес", func(c *Config) { c.BindAddress = "not-an-ip" }},
		{"локальный адрес", func(c *Config) { c.LocalBindAddress = "localhost:1" }},
		{"порты", func(c *Config) { c.PortRange = PortRange{Min: 5000, Max: 4000} }},
		{"попытки", func(c *Config) { c.MaxBindAttempts = 0 }},
		{"ptime", func(c *Config) { c.Ptime = 0 }},
		{"статический DTMF", func(c *Config) { c.DTMFPayloadType = 18 }},
		{"неизвестный кодек", func(c *Config) { c.Codecs = []string{"speex"} }},
		{"без кодеков", func(c *Config) { c.Codecs = nil }},
		{"jitter buffer", func(c *Config) { c.JitterBuffer.Capacity = 1 }},
		{"транспорт", func(c *Config) { c.Transport.DSCP = 64 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(&config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestSupportedFormatsWithoutDTMF(t *testing.T) {
	config := DefaultConfig()
	config.Codecs = []string{"PCMA"}
	config.DTMFPayloadType = 0

	formats, err := config.SupportedFormats()
	require.NoError(t, err)
	assert.Equal(t, []rtp.PayloadType{8}, formats.PayloadTypes())
}

func TestAdvertisedAddress(t *testing.T) {
	config := DefaultConfig()
	config.BindAddress = "10.0.0.5"
	assert.Equal(t, "10.0.0.5", config.AdvertisedAddress(false))
	assert.Equal(t, "127.0.0.1", config.AdvertisedAddress(true))

	config.ExternalAddress = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", config.AdvertisedAddress(false))
	assert.Equal(t, "127.0.0.1", config.AdvertisedAddress(true))
}

func TestLoadConfig(t *testing.T) {
	yamlConfig := `
bind_address: 10.0.0.5
external_address: 203.0.113.7
port_range:
  min: 20000
  max: 20100
rtcp_mux: true
codecs: [pcma]
ptime: 30ms
jitter_buffer:
  min_fill: 60ms
  capacity: 20
  buffering: true
  default_frame_duration: 30ms
transport:
  buffer_size: 2048
  receive_timeout: 50ms
  symmetric: true
`
	config, err := LoadConfig(strings.NewReader(yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", config.BindAddress)
	assert.Equal(t, "127.0.0.1", config.LocalBindAddress)
	assert.Equal(t, PortRange{Min: 20000, Max: 20100}, config.PortRange)
	assert.True(t, config.RtcpMux)
	assert.Equal(t, []string{"pcma"}, config.Codecs)
	assert.Equal(t, 30*time.Millisecond, config.Ptime)
	assert.Equal(t, 101, config.DTMFPayloadType)
	assert.Equal(t, 60*time.Millisecond, config.JitterBuffer.MinFill)
	assert.Equal(t, 20, config.JitterBuffer.Capacity)
	assert.Equal(t, 2048, config.Transport.BufferSize)
	assert.True(t, config.Transport.Symmetric)
}

func TestLoadConfigEmpty(t *testing.T) {
	config, err := LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().PortRange, config.PortRange)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("unknown_field: 1\n"))
	assert.Error(t, err)

	_, err = LoadConfig(strings.NewReader("port_range: {min: 100, max: 50}\n"))
	assert.Error(t, err)

	_, err = LoadConfig(strings.NewReader("codecs: [pcmu\n"))
	assert.Error(t, err)
}
