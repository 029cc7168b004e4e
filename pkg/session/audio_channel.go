package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/pion/sdp/v3"

	"github.com/arzzra/media_core/pkg/clock"
	"github.com/arzzra/media_core/pkg/component"
	"github.com/arzzra/media_core/pkg/format"
	"github.com/arzzra/media_core/pkg/media"
	"github.com/arzzra/media_core/pkg/media_sdp"
	"github.com/arzzra/media_core/pkg/rtp"
	"github.com/arzzra/media_core/pkg/rtp_channel"
)

// Состояния жизненного цикла канала
const (
	StateClosed = "closed"
	StateOpen   = "open"
	StateBound  = "bound"
)

const (
	eventOpen  = "open"
	eventBind  = "bind"
	eventClose = "close"
)

// Dependencies общие объекты сервера, разделяемые каналами
type Dependencies struct {
	Scheduler component.Submitter
	Clock     clock.Clock
	Ports     *PortManager
	SSRC      *rtp.SSRCGenerator
	// Processor преобразует кадры между форматом сети и каноническим
	// форматом медиа графа. nil отключает преобразование.
	Processor media.Processor
	// Collector регистрирует статистику открытых каналов. Необязателен.
	Collector *rtp.StatisticsCollector
}

// AudioChannel RTP сессия одного аудио потока.
//
// Жизненный цикл: Open выделяет порт и привязывает RTP сокет, Bind
// запускает прием и активирует обработчик входящих пакетов, Close
// освобождает ресурсы. После Close канал можно открыть снова.
type AudioChannel struct {
	id     string
	config Config
	deps   Dependencies
	logger *slog.Logger

	lifecycle *fsm.FSM

	statistics *rtp.Statistics
	buffer     *media.JitterBuffer
	rtpInput   *media.RtpInput
	dtmfInput  *media.DtmfInput
	rtpOutput  *media.RtpOutput
	handler    *rtp_channel.InboundHandler
	channel    *rtp_channel.Channel

	mu            sync.Mutex
	supported     *rtp.RTPFormats
	negotiated    *rtp.RTPFormats
	mode          rtp.ConnectionMode
	rtpTransport  *rtp.UDPTransport
	rtcpTransport *rtp.UDPTransport
	port          int
	rtcpMux       bool
	isLocal       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewAudioChannel создает закрытый канал
func NewAudioChannel(deps Dependencies, config Config) (*AudioChannel, error) {
	if deps.Scheduler == nil || deps.Clock == nil || deps.Ports == nil || deps.SSRC == nil {
		return nil, errors.New("не заданы зависимости канала")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("неверная конфигурация канала: %w", err)
	}
	supported, err := config.SupportedFormats()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &AudioChannel{
		id:        uuid.NewString(),
		config:    config,
		deps:      deps,
		supported: supported,
		mode:      rtp.ModeSendRecv,
	}
	c.logger = logger.With(slog.String("component", "audio_channel"), slog.String("channel_id", c.id))

	jbConfig := config.JitterBuffer
	jbConfig.Logger = c.logger
	c.buffer, err = media.NewJitterBuffer(deps.Clock, jbConfig)
	if err != nil {
		return nil, err
	}

	ssrc := deps.SSRC.Generate()
	c.statistics = rtp.NewStatistics(deps.Clock, ssrc)
	c.rtpInput = media.NewRtpInput("rtp-input-"+c.id, deps.Scheduler, c.buffer, deps.Processor, format.Linear)
	c.dtmfInput = media.NewDtmfInput("dtmf-input-"+c.id, deps.Scheduler)
	c.handler = rtp_channel.NewInboundHandler(c.rtpInput, c.dtmfInput, c.statistics)
	c.channel = rtp_channel.NewChannel(c.handler, c.statistics)
	c.rtpOutput = media.NewRtpOutput("rtp-output-"+c.id, ssrc, c.channel, deps.Processor)

	c.applyFormats(supported)
	c.applyMode(c.mode)

	c.lifecycle = fsm.NewFSM(
		StateClosed,
		fsm.Events{
			{Name: eventOpen, Src: []string{StateClosed}, Dst: StateOpen},
			{Name: eventBind, Src: []string{StateOpen}, Dst: StateBound},
			{Name: eventClose, Src: []string{StateOpen, StateBound}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				c.logger.Info("смена состояния канала", slog.String("from", e.Src), slog.String("to", e.Dst))
			},
		},
	)
	return c, nil
}

// ID идентификатор канала
func (c *AudioChannel) ID() string {
	return c.id
}

// State текущее состояние жизненного цикла
func (c *AudioChannel) State() string {
	return c.lifecycle.Current()
}

// Open выделяет порт и привязывает RTP сокет. Занятые порты пропускаются,
// после MaxBindAttempts неудач возвращается ResourceUnavailableError.
func (c *AudioChannel) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lifecycle.Is(StateClosed) {
		return fmt.Errorf("канал уже открыт (%s)", c.lifecycle.Current())
	}

	rtpTransport, err := rtp.NewUDPTransport(c.transportConfig())
	if err != nil {
		return err
	}
	rtcpTransport, err := rtp.NewUDPTransport(c.transportConfig())
	if err != nil {
		return err
	}

	port, err := c.bindPort(rtpTransport, c.config.BindAddress)
	if err != nil {
		return err
	}

	c.rtpTransport = rtpTransport
	c.rtcpTransport = rtcpTransport
	c.port = port
	c.channel.SetTransport(rtpTransport)

	if c.deps.Collector != nil {
		c.deps.Collector.Register(c.id, c.statistics)
	}
	return c.lifecycle.Event(context.Background(), eventOpen)
}

func (c *AudioChannel) transportConfig() rtp.TransportConfig {
	tc := c.config.Transport
	tc.Logger = c.logger
	return tc
}

func (c *AudioChannel) bindPort(transport *rtp.UDPTransport, host string) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxBindAttempts; attempt++ {
		port, err := c.deps.Ports.Allocate()
		if err != nil {
			return 0, err
		}
		if err := transport.Bind(context.Background(), host, port); err != nil {
			c.deps.Ports.Release(port)
			lastErr = err
			c.logger.Debug("порт занят, следующая попытка",
				slog.Int("port", port), slog.Int("attempt", attempt))
			continue
		}
		return port, nil
	}
	return 0, &ResourceUnavailableError{
		Resource: "привязка RTP сокета",
		Attempts: c.config.MaxBindAttempts,
		Err:      lastErr,
	}
}

// Bind завершает привязку сокетов и запускает прием. При isLocal сокет
// переносится на LocalBindAddress. При rtcpMux отдельный RTCP сокет не
// открывается, RTCP принимается на порту RTP.
func (c *AudioChannel) Bind(isLocal, rtcpMux bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.lifecycle.Current() {
	case StateClosed:
		return ErrNotOpen
	case StateBound:
		return fmt.Errorf("канал уже привязан")
	}

	host := c.config.BindAddress
	if isLocal && c.config.LocalBindAddress != "" {
		host = c.config.LocalBindAddress
	}

	ctx := context.Background()
	if host != c.config.BindAddress {
		if err := c.rtpTransport.Close(); err != nil {
			c.logger.Debug("ошибка закрытия сокета", slog.String("error", err.Error()))
		}
		if err := c.rtpTransport.Bind(ctx, host, c.port); err != nil {
			return &ResourceUnavailableError{Resource: "привязка локального RTP сокета", Err: err}
		}
	}
	if !rtcpMux {
		if err := c.rtcpTransport.Bind(ctx, host, c.port+1); err != nil {
			return &ResourceUnavailableError{Resource: "привязка RTCP сокета", Err: err}
		}
	}

	c.isLocal = isLocal
	c.rtcpMux = rtcpMux

	serveCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.serve(serveCtx, c.rtpTransport, c.channel.HandleDatagram)
	if !rtcpMux {
		c.serve(serveCtx, c.rtcpTransport, c.channel.HandleRtcpDatagram)
	}

	if err := c.handler.Activate(); err != nil {
		return err
	}
	c.rtpOutput.Start()

	c.logger.Info("канал привязан",
		slog.String("local", c.rtpTransport.LocalAddr().String()),
		slog.Bool("rtcp_mux", rtcpMux))
	return c.lifecycle.Event(ctx, eventBind)
}

func (c *AudioChannel) serve(ctx context.Context, transport *rtp.UDPTransport, handler rtp.DatagramHandler) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := transport.Serve(ctx, handler); err != nil {
			c.logger.Error("цикл чтения завершился с ошибкой", slog.String("error", err.Error()))
		}
	}()
}

// NegotiateFormats пересекает поддерживаемые форматы с предложением
// удаленной стороны и применяет результат. Отсутствие общих кодеков
// не является ошибкой: его сообщает HasNegotiatedFormats.
func (c *AudioChannel) NegotiateFormats(offer *media_sdp.MediaOffer) error {
	if offer == nil {
		return errors.New("описание удаленной стороны не задано")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	negotiated := media_sdp.Negotiate(c.supported, offer.Formats)
	c.negotiated = negotiated
	c.applyFormats(negotiated)

	c.logger.Debug("форматы согласованы", slog.String("formats", negotiated.String()))
	return nil
}

func (c *AudioChannel) applyFormats(formats *rtp.RTPFormats) {
	c.handler.SetFormats(formats)
	c.rtpOutput.SetFormats(formats)
}

// HasNegotiatedFormats сообщает, что согласован хотя бы один аудио кодек
func (c *AudioChannel) HasNegotiatedFormats() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiated != nil && c.negotiated.HasAudio()
}

// Formats действующая таблица форматов
func (c *AudioChannel) Formats() *rtp.RTPFormats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.negotiated != nil {
		return c.negotiated.Clone()
	}
	return c.supported.Clone()
}

// ConnectRtp задает удаленный адрес RTP
func (c *AudioChannel) ConnectRtp(host string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireBound(); err != nil {
		return err
	}
	return c.rtpTransport.Connect(host, port)
}

// ConnectRtcp задает удаленный адрес RTCP. При rtcp-mux отдельного
// RTCP сокета нет и вызов ничего не делает.
func (c *AudioChannel) ConnectRtcp(host string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireBound(); err != nil {
		return err
	}
	if c.rtcpMux {
		return nil
	}
	return c.rtcpTransport.Connect(host, port)
}

func (c *AudioChannel) requireBound() error {
	switch c.lifecycle.Current() {
	case StateClosed:
		return ErrChannelClosed
	case StateOpen:
		return ErrNotBound
	}
	return nil
}

// SetMode применяет режим соединения к обработчику и выходу
func (c *AudioChannel) SetMode(mode rtp.ConnectionMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode = mode
	c.applyMode(mode)
}

func (c *AudioChannel) applyMode(mode rtp.ConnectionMode) {
	c.handler.UpdateMode(mode)
	c.rtpOutput.SetEnabled(mode.CanSend())
}

// Mode текущий режим соединения
func (c *AudioChannel) Mode() rtp.ConnectionMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SendDTMF отправляет событие telephone-event удаленной стороне
func (c *AudioChannel) SendDTMF(event media.DTMFEvent) error {
	c.mu.Lock()
	bound := c.lifecycle.Is(StateBound)
	c.mu.Unlock()

	if !bound {
		return ErrChannelClosed
	}
	return c.rtpOutput.SendDTMF(event)
}

// Close останавливает прием и отправку и освобождает порты
func (c *AudioChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lifecycle.Is(StateClosed) {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if err := c.handler.Deactivate(); err != nil {
		c.logger.Warn("ошибка деактивации обработчика", slog.String("error", err.Error()))
	}
	c.rtpOutput.Stop()

	var errs []error
	if err := c.rtpTransport.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.rtcpTransport.Close(); err != nil {
		errs = append(errs, err)
	}
	c.wg.Wait()

	c.deps.Ports.Release(c.port)
	if c.deps.Collector != nil {
		c.deps.Collector.Unregister(c.id)
	}

	c.statistics.Reset()
	c.negotiated = nil
	c.applyFormats(c.supported)
	c.rtcpMux = false
	c.port = 0

	if err := c.lifecycle.Event(context.Background(), eventClose); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// IsOpen сообщает, что канал открыт или привязан
func (c *AudioChannel) IsOpen() bool {
	return !c.lifecycle.Is(StateClosed)
}

// IsAvailable сообщает, что все нужные сокеты канала открыты
func (c *AudioChannel) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rtpTransport == nil || !c.rtpTransport.IsOpen() {
		return false
	}
	return c.rtcpMux || (c.rtcpTransport != nil && c.rtcpTransport.IsOpen())
}

// IsRtcpMux сообщает, что RTCP мультиплексирован с RTP
func (c *AudioChannel) IsRtcpMux() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rtcpMux
}

// RtpTransport транспорт RTP или nil до Open
func (c *AudioChannel) RtpTransport() rtp.Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rtpTransport == nil {
		return nil
	}
	return c.rtpTransport
}

// RtcpTransport транспорт RTCP или nil до Open. При rtcp-mux не открыт.
func (c *AudioChannel) RtcpTransport() rtp.Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rtcpTransport == nil {
		return nil
	}
	return c.rtcpTransport
}

// LocalAddress адрес и порт RTP сокета
func (c *AudioChannel) LocalAddress() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rtpTransport == nil {
		return "", 0
	}
	addr, ok := c.rtpTransport.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", 0
	}
	return addr.IP.String(), addr.Port
}

// MediaDescription аудио секция SDP локальной стороны: поддерживаемые
// форматы до согласования, согласованные после него
func (c *AudioChannel) MediaDescription() (*sdp.MediaDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lifecycle.Is(StateClosed) {
		return nil, ErrNotOpen
	}

	formats := c.supported
	if c.negotiated != nil && c.negotiated.HasAudio() {
		formats = c.negotiated
	}

	local := media_sdp.LocalMedia{
		Address: c.config.AdvertisedAddress(c.isLocal),
		Port:    c.port,
		RtcpMux: c.rtcpMux,
		Mode:    c.mode,
		Formats: formats,
		Ptime:   c.config.Ptime,
		SSRC:    c.statistics.SSRC(),
		CNAME:   c.statistics.CNAME(),
	}
	if !c.rtcpMux {
		local.RtcpPort = c.port + 1
	}
	return media_sdp.BuildMediaDescription(local)
}

// Statistics счетчики канала
func (c *AudioChannel) Statistics() *rtp.Statistics {
	return c.statistics
}

// SSRC локальный идентификатор источника
func (c *AudioChannel) SSRC() uint32 {
	return c.statistics.SSRC()
}

// CNAME каноническое имя для SDP и RTCP
func (c *AudioChannel) CNAME() string {
	return c.statistics.CNAME()
}

// Input источник принятого аудио для медиа графа
func (c *AudioChannel) Input() *media.RtpInput {
	return c.rtpInput
}

// DtmfInput источник принятых DTMF событий
func (c *AudioChannel) DtmfInput() *media.DtmfInput {
	return c.dtmfInput
}

// Output приемник кадров для отправки удаленной стороне
func (c *AudioChannel) Output() *media.RtpOutput {
	return c.rtpOutput
}

// Handler обработчик входящих пакетов
func (c *AudioChannel) Handler() *rtp_channel.InboundHandler {
	return c.handler
}

// Channel конвейер RTP канала
func (c *AudioChannel) Channel() *rtp_channel.Channel {
	return c.channel
}
