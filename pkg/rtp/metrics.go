// metrics.go - экспорт статистики RTP каналов в Prometheus.
//
// StatisticsCollector реализует prometheus.Collector: при каждом сборе
// читает снимки Statistics зарегистрированных каналов, поэтому горячий
// путь обработки пакетов не трогает клиент Prometheus.
package rtp

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StatisticsCollector собирает статистику зарегистрированных каналов
type StatisticsCollector struct {
	mutex    sync.RWMutex
	channels map[string]*Statistics

	packetsReceived *prometheus.Desc
	octetsReceived  *prometheus.Desc
	packetsSent     *prometheus.Desc
	octetsSent      *prometheus.Desc
	rtcpReceived    *prometheus.Desc
	malformed       *prometheus.Desc
	nonConformant   *prometheus.Desc
	channelsActive  *prometheus.Desc
}

// NewStatisticsCollector создает коллектор с заданным namespace
func NewStatisticsCollector(namespace string) *StatisticsCollector {
	labels := []string{"channel", "ssrc"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "rtp", name), help, labels, nil)
	}

	return &StatisticsCollector{
		channels:        make(map[string]*Statistics),
		packetsReceived: desc("packets_received_total", "Принятые RTP пакеты"),
		octetsReceived:  desc("octets_received_total", "Принятые октеты полезной нагрузки"),
		packetsSent:     desc("packets_sent_total", "Отправленные RTP пакеты"),
		octetsSent:      desc("octets_sent_total", "Отправленные октеты полезной нагрузки"),
		rtcpReceived:    desc("rtcp_packets_received_total", "Принятые RTCP пакеты"),
		malformed:       desc("malformed_packets_total", "Датаграммы, которые не удалось разобрать"),
		nonConformant:   desc("rejected_packets_total", "Пакеты, отброшенные фильтром протокола"),
		channelsActive: prometheus.NewDesc(prometheus.BuildFQName(namespace, "rtp", "channels_active"),
			"Число зарегистрированных каналов", nil, nil),
	}
}

// Register добавляет статистику канала
func (c *StatisticsCollector) Register(channelID string, stats *Statistics) {
	c.mutex.Lock()
	c.channels[channelID] = stats
	c.mutex.Unlock()
}

// Unregister удаляет статистику канала
func (c *StatisticsCollector) Unregister(channelID string) {
	c.mutex.Lock()
	delete(c.channels, channelID)
	c.mutex.Unlock()
}

// Describe реализует prometheus.Collector
func (c *StatisticsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packetsReceived
	ch <- c.octetsReceived
	ch <- c.packetsSent
	ch <- c.octetsSent
	ch <- c.rtcpReceived
	ch <- c.malformed
	ch <- c.nonConformant
	ch <- c.channelsActive
}

// Collect реализует prometheus.Collector
func (c *StatisticsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	ch <- prometheus.MustNewConstMetric(c.channelsActive, prometheus.GaugeValue, float64(len(c.channels)))

	for id, stats := range c.channels {
		s := stats.Snapshot()
		ssrc := strconv.FormatUint(uint64(s.SSRC), 10)
		counter := func(desc *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), id, ssrc)
		}
		counter(c.packetsReceived, s.RtpPacketsReceived)
		counter(c.octetsReceived, s.RtpOctetsReceived)
		counter(c.packetsSent, s.RtpPacketsSent)
		counter(c.octetsSent, s.RtpOctetsSent)
		counter(c.rtcpReceived, s.RtcpPacketsReceived)
		counter(c.malformed, s.MalformedPackets)
		counter(c.nonConformant, s.NonConformantPackets)
	}
}
