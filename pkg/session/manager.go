package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ManagerConfig конфигурация менеджера каналов
type ManagerConfig struct {
	Channel Config `yaml:"channel"`
	// MaxChannels предел одновременно существующих каналов
	MaxChannels int `yaml:"max_channels"`
	// RtpTimeout закрывает привязанный канал, не получавший RTP дольше
	// заданного времени. 0 отключает проверку.
	RtpTimeout      time.Duration `yaml:"rtp_timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultManagerConfig возвращает конфигурацию по умолчанию
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Channel:         DefaultConfig(),
		MaxChannels:     1000,
		CleanupInterval: 5 * time.Second,
	}
}

// Validate проверяет корректность конфигурации
func (c ManagerConfig) Validate() error {
	if c.MaxChannels <= 0 {
		return errors.New("максимальное число каналов должно быть положительным")
	}
	if c.RtpTimeout < 0 {
		return errors.New("таймаут RTP не может быть отрицательным")
	}
	if c.RtpTimeout > 0 && c.CleanupInterval <= 0 {
		return errors.New("интервал проверки должен быть положительным")
	}
	return c.Channel.Validate()
}

// ManagerStatistics статистика менеджера
type ManagerStatistics struct {
	ActiveChannels  int
	ChannelsCreated int
	RtpTimeouts     int
	AvailablePorts  int
	LastCleanup     int64
}

type channelEntry struct {
	channel *AudioChannel
	// boundSeen время, когда проверка впервые увидела канал привязанным
	boundSeen int64
}

// Manager создает аудио каналы с общими зависимостями и закрывает
// каналы, переставшие получать RTP
type Manager struct {
	config ManagerConfig
	deps   Dependencies
	logger *slog.Logger

	mutex    sync.Mutex
	channels map[string]*channelEntry
	closed   bool
	created  int
	timeouts int
	cleanup  int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager создает менеджер. Если deps.Ports не задан, менеджер
// создает PortManager по диапазону из конфигурации канала.
func NewManager(deps Dependencies, config ManagerConfig) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("невалидная конфигурация: %w", err)
	}
	if deps.Ports == nil {
		ports, err := NewPortManager(config.Channel.PortRange)
		if err != nil {
			return nil, err
		}
		deps.Ports = ports
	}

	logger := config.Channel.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:   config,
		deps:     deps,
		logger:   logger.With(slog.String("component", "channel_manager")),
		channels: make(map[string]*channelEntry),
		ctx:      ctx,
		cancel:   cancel,
	}

	if config.RtpTimeout > 0 {
		m.wg.Add(1)
		go m.cleanupRoutine()
	}
	return m, nil
}

// Create создает закрытый канал и регистрирует его
func (m *Manager) Create() (*AudioChannel, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return nil, errors.New("менеджер закрыт")
	}
	if len(m.channels) >= m.config.MaxChannels {
		return nil, &ResourceUnavailableError{
			Resource: fmt.Sprintf("достигнут предел каналов (%d)", m.config.MaxChannels),
		}
	}

	channel, err := NewAudioChannel(m.deps, m.config.Channel)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать канал: %w", err)
	}

	m.channels[channel.ID()] = &channelEntry{channel: channel}
	m.created++
	return channel, nil
}

// Get возвращает канал по идентификатору
func (m *Manager) Get(id string) (*AudioChannel, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	entry, ok := m.channels[id]
	if !ok {
		return nil, false
	}
	return entry.channel, true
}

// Release закрывает канал и удаляет его из менеджера
func (m *Manager) Release(id string) error {
	m.mutex.Lock()
	entry, ok := m.channels[id]
	delete(m.channels, id)
	m.mutex.Unlock()

	if !ok {
		return fmt.Errorf("канал %s не найден", id)
	}
	return entry.channel.Close()
}

// Active идентификаторы зарегистрированных каналов
func (m *Manager) Active() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Statistics возвращает статистику менеджера
func (m *Manager) Statistics() ManagerStatistics {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return ManagerStatistics{
		ActiveChannels:  len(m.channels),
		ChannelsCreated: m.created,
		RtpTimeouts:     m.timeouts,
		AvailablePorts:  m.deps.Ports.Available(),
		LastCleanup:     m.cleanup,
	}
}

// Shutdown закрывает все каналы и останавливает проверку таймаутов
func (m *Manager) Shutdown() error {
	m.mutex.Lock()
	if m.closed {
		m.mutex.Unlock()
		return nil
	}
	m.closed = true
	channels := m.channels
	m.channels = make(map[string]*channelEntry)
	m.mutex.Unlock()

	m.cancel()
	m.wg.Wait()

	var errs []error
	for id, entry := range channels {
		if err := entry.channel.Close(); err != nil {
			m.logger.Error("ошибка закрытия канала",
				slog.String("channel_id", id),
				slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) cleanupRoutine() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.expireIdle()
		}
	}
}

// expireIdle закрывает привязанные каналы без входящего RTP дольше RtpTimeout
func (m *Manager) expireIdle() {
	now := m.deps.Clock.Now()
	timeout := int64(m.config.RtpTimeout)

	m.mutex.Lock()
	m.cleanup = now
	var expired []*AudioChannel
	for id, entry := range m.channels {
		if entry.channel.State() != StateBound {
			entry.boundSeen = 0
			continue
		}
		if entry.boundSeen == 0 {
			entry.boundSeen = now
		}

		last := entry.channel.Statistics().RtpReceivedOn()
		if last < entry.boundSeen {
			last = entry.boundSeen
		}
		if now-last > timeout {
			expired = append(expired, entry.channel)
			delete(m.channels, id)
			m.timeouts++
		}
	}
	m.mutex.Unlock()

	for _, channel := range expired {
		m.logger.Info("канал закрыт по таймауту RTP",
			slog.String("channel_id", channel.ID()),
			slog.Duration("timeout", m.config.RtpTimeout))
		if err := channel.Close(); err != nil {
			m.logger.Error("ошибка закрытия канала",
				slog.String("channel_id", channel.ID()),
				slog.String("error", err.Error()))
		}
	}
}
