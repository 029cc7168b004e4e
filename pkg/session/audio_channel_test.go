package session

import (
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/media_core/pkg/clock"
	"github.com/arzzra/media_core/pkg/component"
	"github.com/arzzra/media_core/pkg/format"
	"github.com/arzzra/media_core/pkg/media"
	"github.com/arzzra/media_core/pkg/media_sdp"
	"github.com/arzzra/media_core/pkg/rtp"
	"github.com/arzzra/media_core/pkg/scheduler"
)

func newTestDependencies(t *testing.T, ports PortRange) Dependencies {
	t.Helper()

	sched, err := scheduler.New(clock.NewWallClock(), scheduler.DefaultConfig())
	require.NoError(t, err)
	pm, err := NewPortManager(ports)
	require.NoError(t, err)

	return Dependencies{
		Scheduler: sched,
		Clock:     clock.NewWallClock(),
		Ports:     pm,
		SSRC:      rtp.NewSSRCGenerator(),
		Processor: media.NewG711Processor(),
		Collector: rtp.NewStatisticsCollector("test"),
	}
}

func newTestChannel(t *testing.T, deps Dependencies, configure ...func(*Config)) *AudioChannel {
	t.Helper()

	config := DefaultConfig()
	config.BindAddress = "127.0.0.1"
	config.PortRange = PortRange{Min: 1024, Max: 65535}
	for _, fn := range configure {
		fn(&config)
	}

	channel, err := NewAudioChannel(deps, config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = channel.Close() })
	return channel
}

// exchangeDescription передает SDP канала from каналу to через текст
func exchangeDescription(t *testing.T, from, to *AudioChannel) *media_sdp.MediaOffer {
	t.Helper()

	md, err := from.MediaDescription()
	require.NoError(t, err)
	raw, err := media_sdp.BuildSessionDescription("127.0.0.1", md).Marshal()
	require.NoError(t, err)

	offer, err := media_sdp.ParseOffer(raw)
	require.NoError(t, err)

	require.NoError(t, to.NegotiateFormats(offer))
	require.NoError(t, to.ConnectRtp(offer.Address, offer.Port))
	require.NoError(t, to.ConnectRtcp(offer.RtcpAddress, offer.RtcpPort))
	return offer
}

func TestAudioChannelPair(t *testing.T) {
	for _, rtcpMux := range []bool{false, true} {
		t.Run("rtcp-mux="+strconv.FormatBool(rtcpMux), func(t *testing.T) {
			deps := newTestDependencies(t, PortRange{Min: 42000, Max: 42099})
			a := newTestChannel(t, deps)
			b := newTestChannel(t, deps)

			assert.Equal(t, StateClosed, a.State())
			assert.NotEqual(t, a.SSRC(), b.SSRC())

			require.NoError(t, a.Open())
			require.NoError(t, b.Open())
			assert.Equal(t, StateOpen, a.State())

			require.NoError(t, a.Bind(true, rtcpMux))
			require.NoError(t, b.Bind(true, rtcpMux))
			assert.Equal(t, StateBound, a.State())
			assert.Equal(t, rtcpMux, a.IsRtcpMux())

			offerB := exchangeDescription(t, b, a)
			exchangeDescription(t, a, b)

			assert.Equal(t, rtcpMux, offerB.RtcpMux)
			assert.Equal(t, b.SSRC(), offerB.SSRC)
			assert.True(t, a.HasNegotiatedFormats())
			assert.True(t, b.HasNegotiatedFormats())
			assert.True(t, a.IsAvailable())
			assert.True(t, b.IsAvailable())

			_, portB := b.LocalAddress()
			assert.Equal(t, portB, offerB.Port)

			assert.True(t, a.RtpTransport().IsOpen())
			assert.Equal(t, b.RtpTransport().LocalAddr().String(), a.RtpTransport().RemoteAddr().String())

			if rtcpMux {
				assert.False(t, a.RtcpTransport().IsOpen())
				assert.False(t, b.RtcpTransport().IsOpen())
				assert.Equal(t, portB, offerB.RtcpPort)
			} else {
				require.True(t, a.RtcpTransport().IsOpen())
				require.True(t, b.RtcpTransport().IsOpen())
				assert.Equal(t, portB+1, offerB.RtcpPort)
				assert.Equal(t, b.RtcpTransport().LocalAddr().String(), a.RtcpTransport().RemoteAddr().String())
				assert.Equal(t, a.RtcpTransport().LocalAddr().String(), b.RtcpTransport().RemoteAddr().String())
			}

			digits := make(chan media.DTMFDigit, 4)
			b.DtmfInput().OnDigit(func(e media.DTMFEvent) { digits <- e.Digit })

			require.NoError(t, a.SendDTMF(media.DTMFEvent{Digit: media.DTMF7, Duration: 100 * time.Millisecond}))
			select {
			case digit := <-digits:
				assert.Equal(t, media.DTMF7, digit)
			case <-time.After(2 * time.Second):
				t.Fatal("DTMF не доставлен")
			}

			a.Output().Perform(&component.Frame{
				Payload:  make([]byte, 160),
				Format:   format.PCMU,
				Duration: int64(20 * time.Millisecond),
			})
			assert.Eventually(t, func() bool {
				return b.Statistics().RtpPacketsReceived() >= 7
			}, 2*time.Second, 10*time.Millisecond)
			assert.Equal(t, uint64(7), a.Statistics().RtpPacketsSent())
		})
	}
}

func TestAudioChannelLifecycleErrors(t *testing.T) {
	deps := newTestDependencies(t, PortRange{Min: 42100, Max: 42199})
	channel := newTestChannel(t, deps)

	assert.ErrorIs(t, channel.Bind(false, false), ErrNotOpen)
	assert.ErrorIs(t, channel.ConnectRtp("127.0.0.1", 5000), ErrChannelClosed)
	assert.ErrorIs(t, channel.SendDTMF(media.DTMFEvent{Digit: media.DTMF1, Duration: time.Second}), ErrChannelClosed)
	assert.Error(t, channel.NegotiateFormats(nil))
	assert.Nil(t, channel.RtpTransport())
	assert.False(t, channel.IsAvailable())

	_, err := channel.MediaDescription()
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, channel.Open())
	assert.Error(t, channel.Open())
	assert.ErrorIs(t, channel.ConnectRtp("127.0.0.1", 5000), ErrNotBound)
	assert.ErrorIs(t, channel.ConnectRtcp("127.0.0.1", 5001), ErrNotBound)
	assert.False(t, channel.IsAvailable())

	require.NoError(t, channel.Bind(false, false))
	assert.Error(t, channel.Bind(false, false))
}

func TestAudioChannelReopen(t *testing.T) {
	deps := newTestDependencies(t, PortRange{Min: 42200, Max: 42299})
	channel := newTestChannel(t, deps)
	free := deps.Ports.Available()

	require.NoError(t, channel.Open())
	require.NoError(t, channel.Bind(false, false))
	_, port := channel.LocalAddress()
	assert.True(t, deps.Ports.IsUsed(port))
	assert.Equal(t, 1, testutil.CollectAndCount(deps.Collector, "test_rtp_packets_received_total"))

	require.NoError(t, channel.Close())
	assert.Equal(t, StateClosed, channel.State())
	assert.False(t, deps.Ports.IsUsed(port))
	assert.Equal(t, free, deps.Ports.Available())
	assert.False(t, channel.Handler().IsActive())
	assert.False(t, channel.HasNegotiatedFormats())
	assert.Equal(t, 0, testutil.CollectAndCount(deps.Collector, "test_rtp_packets_received_total"))
	require.NoError(t, channel.Close())

	require.NoError(t, channel.Open())
	require.NoError(t, channel.Bind(false, true))
	assert.True(t, channel.IsAvailable())
}

func TestAudioChannelMediaDescription(t *testing.T) {
	deps := newTestDependencies(t, PortRange{Min: 42300, Max: 42399})
	channel := newTestChannel(t, deps, func(c *Config) {
		c.ExternalAddress = "203.0.113.7"
	})

	require.NoError(t, channel.Open())
	require.NoError(t, channel.Bind(false, false))

	md, err := channel.MediaDescription()
	require.NoError(t, err)
	assert.Equal(t, "audio", md.MediaName.Media)
	assert.Equal(t, []string{"0", "8", "101"}, md.MediaName.Formats)
	require.NotNil(t, md.ConnectionInformation)
	assert.Equal(t, "203.0.113.7", md.ConnectionInformation.Address.Address)

	offer, err := media_sdp.ParseOffer([]byte("v=0\r\n" +
		"o=- 1 1 IN IP4 192.168.1.20\r\n" +
		"s=-\r\n" +
		"c=IN IP4 192.168.1.20\r\n" +
		"t=0 0\r\n" +
		"m=audio 49170 RTP/AVP 8 101\r\n" +
		"a=rtpmap:8 PCMA/8000\r\n" +
		"a=rtpmap:101 telephone-event/8000\r\n"))
	require.NoError(t, err)
	require.NoError(t, channel.NegotiateFormats(offer))

	md, err = channel.MediaDescription()
	require.NoError(t, err)
	assert.Equal(t, []string{"8", "101"}, md.MediaName.Formats)

	channel.SetMode(rtp.ModeRecvOnly)
	assert.Equal(t, rtp.ModeRecvOnly, channel.Mode())
	assert.False(t, channel.Output().IsEnabled())
	assert.True(t, channel.Handler().IsReceivable())
}

func TestAudioChannelNoCommonCodecs(t *testing.T) {
	deps := newTestDependencies(t, PortRange{Min: 42400, Max: 42499})
	channel := newTestChannel(t, deps)
	require.NoError(t, channel.Open())

	offer := &media_sdp.MediaOffer{Formats: rtp.NewRTPFormats(rtp.RTPFormat{
		PayloadType: 97,
		Format:      format.New("opus", 48000, 2),
	})}
	require.NoError(t, channel.NegotiateFormats(offer))
	assert.False(t, channel.HasNegotiatedFormats())
}

func TestAudioChannelPortExhaustion(t *testing.T) {
	deps := newTestDependencies(t, PortRange{Min: 42500, Max: 42501})
	first := newTestChannel(t, deps)
	second := newTestChannel(t, deps)

	require.NoError(t, first.Open())
	err := second.Open()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResourceUnavailable))
	assert.Equal(t, StateClosed, second.State())

	require.NoError(t, first.Close())
	require.NoError(t, second.Open())
}

func TestAudioChannelSkipsOccupiedPort(t *testing.T) {
	occupied, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 42600})
	require.NoError(t, err)
	defer occupied.Close()

	deps := newTestDependencies(t, PortRange{Min: 42600, Max: 42605})
	channel := newTestChannel(t, deps)

	require.NoError(t, channel.Open())
	_, port := channel.LocalAddress()
	assert.Equal(t, 42602, port)
	assert.False(t, deps.Ports.IsUsed(42600))
}

func TestAudioChannelBindAttemptsExhausted(t *testing.T) {
	for _, port := range []int{42700, 42702} {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
		require.NoError(t, err)
		defer conn.Close()
	}

	deps := newTestDependencies(t, PortRange{Min: 42700, Max: 42709})
	channel := newTestChannel(t, deps, func(c *Config) { c.MaxBindAttempts = 2 })

	err := channel.Open()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	var resourceErr *ResourceUnavailableError
	require.True(t, errors.As(err, &resourceErr))
	assert.Equal(t, 2, resourceErr.Attempts)
	assert.Equal(t, 5, deps.Ports.Available())
}

func TestNewAudioChannelValidation(t *testing.T) {
	_, err := NewAudioChannel(Dependencies{}, DefaultConfig())
	assert.Error(t, err)

	deps := newTestDependencies(t, PortRange{Min: 42800, Max: 42899})
	config := DefaultConfig()
	config.Codecs = nil
	_, err = NewAudioChannel(deps, config)
	assert.Error(t, err)
}
