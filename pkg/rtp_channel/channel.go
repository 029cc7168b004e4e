package rtp_channel

import (
	"net"

	"github.com/arzzra/media_core/pkg/rtp"
)

// Channel конвейер RTP канала.
//
// Входящий тракт: Demultiplexer, Filter, InboundHandler. Выполняется
// синхронно в потоке чтения транспорта. Исходящий тракт: Encoder.
type Channel struct {
	demux   *Demultiplexer
	filter  *Filter
	handler *InboundHandler
	encoder *Encoder
}

// NewChannel собирает конвейер вокруг обработчика входящих пакетов
func NewChannel(handler *InboundHandler, statistics *rtp.Statistics) *Channel {
	c := &Channel{
		demux:   NewDemultiplexer(statistics),
		filter:  NewFilter(statistics),
		handler: handler,
		encoder: NewEncoder(statistics),
	}
	handler.SetLoopback(c.encoder)
	return c
}

// HandleDatagram обрабатывает датаграмму RTP порта.
// Совместим с rtp.DatagramHandler.
func (c *Channel) HandleDatagram(data []byte, from *net.UDPAddr) {
	packet, ok := c.demux.Handle(data, from)
	if !ok {
		return
	}
	if !c.filter.Check(packet) {
		return
	}
	c.handler.PacketReceived(packet)
}

// HandleRtcpDatagram обрабатывает датаграмму отдельного RTCP порта
func (c *Channel) HandleRtcpDatagram(data []byte, _ *net.UDPAddr) {
	if Classify(data) != ClassRTCP {
		c.demux.unhandled.Inc()
		return
	}
	c.demux.HandleRtcp(data)
}

// Send отправляет исходящий пакет через Encoder
func (c *Channel) Send(packet *rtp.Packet) error {
	return c.encoder.Send(packet)
}

// SetTransport задает транспорт исходящего тракта
func (c *Channel) SetTransport(transport rtp.Transport) {
	c.encoder.SetTransport(transport)
}

func (c *Channel) Demultiplexer() *Demultiplexer { return c.demux }
func (c *Channel) Filter() *Filter               { return c.filter }
func (c *Channel) Handler() *InboundHandler      { return c.handler }
func (c *Channel) Encoder() *Encoder             { return c.encoder }
