package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arzzra/media_core/pkg/format"
	"github.com/arzzra/media_core/pkg/media"
	"github.com/arzzra/media_core/pkg/rtp"
)

// Config конфигурация аудио каналов
type Config struct {
	// BindAddress адрес для сокетов, обращенных к удаленной стороне
	BindAddress string `yaml:"bind_address"`
	// LocalBindAddress адрес для локальных соединений (bind с isLocal=true)
	LocalBindAddress string `yaml:"local_bind_address"`
	// ExternalAddress адрес, объявляемый в SDP. Пустое значение означает BindAddress.
	ExternalAddress string `yaml:"external_address"`

	PortRange       PortRange `yaml:"port_range"`
	MaxBindAttempts int       `yaml:"max_bind_attempts"`
	RtcpMux         bool      `yaml:"rtcp_mux"`

	// Codecs поддерживаемые кодеки в порядке предпочтения
	Codecs          []string      `yaml:"codecs"`
	DTMFPayloadType int           `yaml:"dtmf_payload_type"` // 0 отключает telephone-event
	Ptime           time.Duration `yaml:"ptime"`

	JitterBuffer media.JitterBufferConfig `yaml:"jitter_buffer"`
	Transport    rtp.TransportConfig      `yaml:"transport"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		BindAddress:      "0.0.0.0",
		LocalBindAddress: "127.0.0.1",
		PortRange:        PortRange{Min: 34534, Max: 65534},
		MaxBindAttempts:  5,
		Codecs:           []string{"pcmu", "pcma"},
		DTMFPayloadType:  int(rtp.PayloadTypeTelephoneEvent),
		Ptime:            20 * time.Millisecond,
		JitterBuffer:     media.DefaultJitterBufferConfig(),
		Transport:        rtp.DefaultTransportConfig(),
	}
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if net.ParseIP(c.BindAddress) == nil {
		return fmt.Errorf("некорректный адрес привязки: %q", c.BindAddress)
	}
	if c.LocalBindAddress != "" && net.ParseIP(c.LocalBindAddress) == nil {
		return fmt.Errorf("некорректный локальный адрес привязки: %q", c.LocalBindAddress)
	}
	if err := c.PortRange.Validate(); err != nil {
		return err
	}
	if c.MaxBindAttempts <= 0 {
		return errors.New("число попыток привязки должно быть положительным")
	}
	if c.Ptime <= 0 {
		return errors.New("ptime должен быть положительным")
	}
	if c.DTMFPayloadType != 0 && !rtp.PayloadType(c.DTMFPayloadType).IsDynamic() {
		return fmt.Errorf("payload type DTMF должен быть динамическим (96-127), получено %d", c.DTMFPayloadType)
	}
	if _, err := c.SupportedFormats(); err != nil {
		return err
	}
	if err := c.JitterBuffer.Validate(); err != nil {
		return err
	}
	return c.Transport.Validate()
}

// SupportedFormats строит таблицу поддерживаемых форматов из списка кодеков
func (c Config) SupportedFormats() (*rtp.RTPFormats, error) {
	formats := rtp.NewRTPFormats()
	profile := rtp.AVProfile()

	for _, name := range c.Codecs {
		f, ok := profile.FindByName(name, 8000)
		if !ok || f.IsDTMF() {
			return nil, fmt.Errorf("неподдерживаемый кодек: %q", name)
		}
		formats.Add(f)
	}
	if !formats.HasAudio() {
		return nil, errors.New("список кодеков пуст")
	}

	if c.DTMFPayloadType != 0 {
		formats.Add(rtp.RTPFormat{
			PayloadType: rtp.PayloadType(c.DTMFPayloadType),
			Format:      format.TelephoneEvent,
			Fmtp:        "0-15",
		})
	}
	return formats, nil
}

// AdvertisedAddress адрес для SDP
func (c Config) AdvertisedAddress(isLocal bool) string {
	switch {
	case c.ExternalAddress != "" && !isLocal:
		return c.ExternalAddress
	case isLocal && c.LocalBindAddress != "":
		return c.LocalBindAddress
	default:
		return c.BindAddress
	}
}

// LoadConfig читает YAML поверх значений по умолчанию и проверяет результат
func LoadConfig(r io.Reader) (Config, error) {
	config := DefaultConfig()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("неверная конфигурация: %w", err)
	}
	return config, nil
}
