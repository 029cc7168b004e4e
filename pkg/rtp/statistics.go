package rtp

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/arzzra/media_core/pkg/clock"
)

// Statistics счетчики RTP сессии.
//
// Входящие счетчики изменяет только обработчик входящих пакетов,
// исходящие только кодировщик канала.
type Statistics struct {
	clock clock.Clock
	ssrc  uint32
	cname string

	rtpPacketsReceived atomic.Uint64
	rtpOctetsReceived  atomic.Uint64
	rtpReceivedOn      atomic.Int64
	rtpPacketsSent     atomic.Uint64
	rtpOctetsSent      atomic.Uint64
	rtpSentOn          atomic.Int64

	rtcpPacketsReceived atomic.Uint64
	rtcpOctetsReceived  atomic.Uint64

	malformedPackets     atomic.Uint64
	nonConformantPackets atomic.Uint64
	remoteSSRC           atomic.Uint32
}

// NewStatistics создает статистику для локального SSRC. CNAME генерируется случайно.
func NewStatistics(c clock.Clock, ssrc uint32) *Statistics {
	return &Statistics{
		clock: c,
		ssrc:  ssrc,
		cname: uuid.NewString(),
	}
}

// SSRC локальный идентификатор источника
func (s *Statistics) SSRC() uint32 {
	return s.ssrc
}

// CNAME каноническое имя для SDP и RTCP SDES
func (s *Statistics) CNAME() string {
	return s.cname
}

// OnRtpReceive учитывает принятый RTP пакет
func (s *Statistics) OnRtpReceive(packet *Packet) {
	s.rtpPacketsReceived.Inc()
	s.rtpOctetsReceived.Add(uint64(len(packet.Payload)))
	s.rtpReceivedOn.Store(s.clock.Now())
	s.remoteSSRC.Store(packet.SSRC)
}

// OnRtpSent учитывает отправленный RTP пакет
func (s *Statistics) OnRtpSent(packet *Packet) {
	s.rtpPacketsSent.Inc()
	s.rtpOctetsSent.Add(uint64(len(packet.Payload)))
	s.rtpSentOn.Store(s.clock.Now())
}

// OnRtcpReceive учитывает принятую RTCP датаграмму
func (s *Statistics) OnRtcpReceive(packets, octets int) {
	s.rtcpPacketsReceived.Add(uint64(packets))
	s.rtcpOctetsReceived.Add(uint64(octets))
}

// OnMalformed учитывает датаграмму, которую не удалось разобрать
func (s *Statistics) OnMalformed() {
	s.malformedPackets.Inc()
}

// OnNonConformant учитывает пакет, отброшенный фильтром протокола
func (s *Statistics) OnNonConformant() {
	s.nonConformantPackets.Inc()
}

func (s *Statistics) RtpPacketsReceived() uint64 { return s.rtpPacketsReceived.Load() }
func (s *Statistics) RtpOctetsReceived() uint64  { return s.rtpOctetsReceived.Load() }
func (s *Statistics) RtpReceivedOn() int64       { return s.rtpReceivedOn.Load() }
func (s *Statistics) RtpPacketsSent() uint64     { return s.rtpPacketsSent.Load() }
func (s *Statistics) RtpOctetsSent() uint64      { return s.rtpOctetsSent.Load() }
func (s *Statistics) RtpSentOn() int64           { return s.rtpSentOn.Load() }
func (s *Statistics) RtcpPacketsReceived() uint64 {
	return s.rtcpPacketsReceived.Load()
}
func (s *Statistics) RtcpOctetsReceived() uint64 {
	return s.rtcpOctetsReceived.Load()
}
func (s *Statistics) MalformedPackets() uint64     { return s.malformedPackets.Load() }
func (s *Statistics) NonConformantPackets() uint64 { return s.nonConformantPackets.Load() }

// RemoteSSRC SSRC последнего принятого пакета
func (s *Statistics) RemoteSSRC() uint32 {
	return s.remoteSSRC.Load()
}

// Reset обнуляет все счетчики. SSRC и CNAME сохраняются.
func (s *Statistics) Reset() {
	s.rtpPacketsReceived.Store(0)
	s.rtpOctetsReceived.Store(0)
	s.rtpReceivedOn.Store(0)
	s.rtpPacketsSent.Store(0)
	s.rtpOctetsSent.Store(0)
	s.rtpSentOn.Store(0)
	s.rtcpPacketsReceived.Store(0)
	s.rtcpOctetsReceived.Store(0)
	s.malformedPackets.Store(0)
	s.nonConformantPackets.Store(0)
	s.remoteSSRC.Store(0)
}

// Snapshot значения счетчиков в один момент времени
type Snapshot struct {
	SSRC                 uint32
	CNAME                string
	RtpPacketsReceived   uint64
	RtpOctetsReceived    uint64
	RtpPacketsSent       uint64
	RtpOctetsSent        uint64
	RtcpPacketsReceived  uint64
	RtcpOctetsReceived   uint64
	MalformedPackets     uint64
	NonConformantPackets uint64
}

// Snapshot возвращает копию счетчиков
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		SSRC:                 s.ssrc,
		CNAME:                s.cname,
		RtpPacketsReceived:   s.rtpPacketsReceived.Load(),
		RtpOctetsReceived:    s.rtpOctetsReceived.Load(),
		RtpPacketsSent:       s.rtpPacketsSent.Load(),
		RtpOctetsSent:        s.rtpOctetsSent.Load(),
		RtcpPacketsReceived:  s.rtcpPacketsReceived.Load(),
		RtcpOctetsReceived:   s.rtcpOctetsReceived.Load(),
		MalformedPackets:     s.malformedPackets.Load(),
		NonConformantPackets: s.nonConformantPackets.Load(),
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("ssrc=%d rx=%d/%dB tx=%d/%dB rtcp=%d malformed=%d rejected=%d",
		s.SSRC, s.RtpPacketsReceived, s.RtpOctetsReceived, s.RtpPacketsSent, s.RtpOctetsSent,
		s.RtcpPacketsReceived, s.MalformedPackets, s.NonConformantPackets)
}
