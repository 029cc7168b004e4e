package media_sdp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/media_core/pkg/format"
	"github.com/arzzra/media_core/pkg/rtp"
)

const remoteOffer = "v=0\r\n" +
	"o=- 3724394400 3724394405 IN IP4 192.168.1.20\r\n" +
	"s=-\r\n" +
	"c=IN IP4 192.168.1.20\r\n" +
	"t=0 0\r\n" +
	"m=audio 49170 RTP/AVP 8 0 18 97 101\r\n" +
	"a=rtpmap:8 PCMA/8000\r\n" +
	"a=rtpmap:97 opus/48000/2\r\n" +
	"a=rtpmap:101 telephone-event/8000\r\n" +
	"a=fmtp:101 0-16\r\n" +
	"a=ptime:30\r\n" +
	"a=rtcp:49175 IN IP4 192.168.1.21\r\n" +
	"a=ssrc:305419896 cname:peer@example\r\n" +
	"a=sendonly\r\n"

func TestParseOffer(t *testing.T) {
	offer, err := ParseOffer([]byte(remoteOffer))
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.20", offer.Address)
	assert.Equal(t, 49170, offer.Port)
	assert.Equal(t, "192.168.1.21", offer.RtcpAddress)
	assert.Equal(t, 49175, offer.RtcpPort)
	assert.False(t, offer.RtcpMux)
	assert.Equal(t, rtp.ModeSendOnly, offer.Mode)
	assert.Equal(t, 30*time.Millisecond, offer.Ptime)
	assert.Equal(t, uint32(0x12345678), offer.SSRC)
	assert.Equal(t, "peer@example", offer.CNAME)

	assert.Equal(t, []rtp.PayloadType{8, 0, 18, 97, 101}, offer.Formats.PayloadTypes())
	opus, ok := offer.Formats.Find(97)
	require.True(t, ok)
	assert.Equal(t, 48000, opus.ClockRate())
	assert.Equal(t, 2, opus.Format.Channels)

	dtmf, ok := offer.Formats.DTMF()
	require.True(t, ok)
	assert.Equal(t, "0-16", dtmf.Fmtp)
}

func TestParseOfferErrors(t *testing.T) {
	_, err := ParseOffer([]byte("мусор"))
	assert.True(t, IsSDPError(err, ErrorCodeSDPParsing))

	video := "v=0\r\no=- 1 1 IN IP4 10.0.0.1\r\ns=-\r\nc=IN IP4 10.0.0.1\r\nt=0 0\r\nm=video 5000 RTP/AVP 96\r\n"
	_, err = ParseOffer([]byte(video))
	assert.True(t, IsSDPError(err, ErrorCodeNoAudioMedia))

	_, err = OfferFromDescription(nil)
	assert.Error(t, err)
}

func TestNegotiate(t *testing.T) {
	offer, err := ParseOffer([]byte(remoteOffer))
	require.NoError(t, err)

	local := rtp.NewRTPFormats(
		rtp.RTPFormat{PayloadType: 0, Format: format.PCMU},
		rtp.RTPFormat{PayloadType: 8, Format: format.PCMA},
		rtp.RTPFormat{PayloadType: 96, Format: format.TelephoneEvent, Fmtp: "0-15"},
	)

	negotiated, err := Answer(local, offer)
	require.NoError(t, err)
	assert.Equal(t, []rtp.PayloadType{8, 0, 101}, negotiated.PayloadTypes(),
		"порядок и номера берутся из предложения")

	dtmf, ok := negotiated.DTMF()
	require.True(t, ok)
	assert.Equal(t, "0-16", dtmf.Fmtp)

	preferred, ok := negotiated.Preferred()
	require.True(t, ok)
	assert.True(t, preferred.Format.Matches(format.PCMA))
}

func TestNegotiateWithoutCommonCodecs(t *testing.T) {
	offer := &MediaOffer{Formats: rtp.NewRTPFormats(
		rtp.RTPFormat{PayloadType: 18, Format: format.G729},
		rtp.RTPFormat{PayloadType: 101, Format: format.TelephoneEvent},
	)}

	negotiated, err := Answer(rtp.NewRTPFormats(rtp.RTPFormat{PayloadType: 0, Format: format.PCMU}), offer)
	assert.True(t, IsSDPError(err, ErrorCodeIncompatibleCodec))
	assert.True(t, negotiated.IsEmpty())

	_, err = Answer(rtp.AVProfile(), nil)
	assert.Error(t, err)

	assert.True(t, Negotiate(nil, offer.Formats).IsEmpty())
}

func TestBuildMediaDescriptionRoundTrip(t *testing.T) {
	local := LocalMedia{
		Address: "10.0.0.5",
		Port:    40000,
		Mode:    rtp.ModeRecvOnly,
		Formats: rtp.NewRTPFormats(
			rtp.RTPFormat{PayloadType: 0, Format: format.PCMU},
			rtp.RTPFormat{PayloadType: 101, Format: format.TelephoneEvent, Fmtp: "0-15"},
		),
		SSRC:  42,
		CNAME: "local@media",
	}

	md, err := BuildMediaDescription(local)
	require.NoError(t, err)

	ptime, ok := md.Attribute(AttrPtime)
	require.True(t, ok)
	assert.Equal(t, "20", ptime)
	_, ok = md.Attribute(AttrRtcpMux)
	assert.False(t, ok)

	data, err := BuildSessionDescription(local.Address, md).Marshal()
	require.NoError(t, err)

	offer, err := ParseOffer(data)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", offer.Address)
	assert.Equal(t, 40000, offer.Port)
	assert.Equal(t, 40001, offer.RtcpPort)
	assert.Equal(t, rtp.ModeRecvOnly, offer.Mode)
	assert.Equal(t, uint32(42), offer.SSRC)
	assert.Equal(t, "local@media", offer.CNAME)
	assert.Equal(t, []rtp.PayloadType{0, 101}, offer.Formats.PayloadTypes())
	dtmf, _ := offer.Formats.DTMF()
	assert.Equal(t, "0-15", dtmf.Fmtp)
}

func TestBuildMediaDescriptionRtcpMux(t *testing.T) {
	md, err := BuildMediaDescription(LocalMedia{
		Address: "0.0.0.0",
		Port:    40010,
		RtcpMux: true,
		Mode:    rtp.ModeNetworkLoopback,
		Formats: rtp.AVProfile(),
	})
	require.NoError(t, err)

	rtcp, ok := md.Attribute(AttrRtcp)
	require.True(t, ok)
	assert.Equal(t, "40010 IN IP4 127.0.0.1", rtcp)
	_, ok = md.Attribute(AttrRtcpMux)
	assert.True(t, ok)
	_, ok = md.Attribute("sendrecv")
	assert.True(t, ok, "loopback объявляется как sendrecv")

	data, err := BuildSessionDescription("0.0.0.0", md).Marshal()
	require.NoError(t, err)
	offer, err := ParseOffer(data)
	require.NoError(t, err)
	assert.True(t, offer.RtcpMux)
	assert.Equal(t, offer.Port, offer.RtcpPort)
}

func TestBuildMediaDescriptionErrors(t *testing.T) {
	_, err := BuildMediaDescription(LocalMedia{Formats: rtp.AVProfile()})
	assert.True(t, IsSDPError(err, ErrorCodeSDPGeneration))

	_, err = BuildMediaDescription(LocalMedia{Port: 1000})
	assert.True(t, IsSDPError(err, ErrorCodeSDPGeneration))
}
