package media_sdp

import (
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/media_core/pkg/format"
	"github.com/arzzra/media_core/pkg/rtp"
)

// Атрибуты SDP, используемые аудио каналом
const (
	AttrRtpmap  = "rtpmap"
	AttrFmtp    = "fmtp"
	AttrPtime   = "ptime"
	AttrRtcp    = "rtcp"
	AttrRtcpMux = "rtcp-mux"
	AttrSSRC    = "ssrc"

	mediaAudio = "audio"
)

// DefaultPtime длительность пакета, если ptime не указан
const DefaultPtime = 20 * time.Millisecond

// MediaOffer аудио часть описания удаленной стороны
type MediaOffer struct {
	// Address и Port адрес приема RTP удаленной стороны
	Address string
	Port    int
	// RtcpAddress и RtcpPort адрес приема RTCP. Без атрибута rtcp
	// используется порт RTP + 1 (RFC 3605).
	RtcpAddress string
	RtcpPort    int
	RtcpMux     bool

	// Mode направление, заявленное удаленной стороной
	Mode    rtp.ConnectionMode
	Formats *rtp.RTPFormats
	Ptime   time.Duration

	SSRC  uint32
	CNAME string
}

// ParseOffer разбирает SDP и возвращает его первую аудио секцию
func ParseOffer(data []byte) (*MediaOffer, error) {
	var session sdp.SessionDescription
	if err := session.Unmarshal(data); err != nil {
		return nil, WrapSDPError(ErrorCodeSDPParsing, err, "не удалось разобрать SDP")
	}
	return OfferFromDescription(&session)
}

// OfferFromDescription извлекает аудио секцию из разобранного SDP
func OfferFromDescription(session *sdp.SessionDescription) (*MediaOffer, error) {
	if session == nil {
		return nil, NewSDPError(ErrorCodeSDPParsing, "описание сессии не задано")
	}

	for _, md := range session.MediaDescriptions {
		if md.MediaName.Media == mediaAudio {
			return parseMedia(session, md)
		}
	}
	return nil, NewSDPError(ErrorCodeNoAudioMedia, "в SDP нет аудио секции")
}

func parseMedia(session *sdp.SessionDescription, md *sdp.MediaDescription) (*MediaOffer, error) {
	conn := md.ConnectionInformation
	if conn == nil {
		conn = session.ConnectionInformation
	}
	if conn == nil || conn.Address == nil {
		return nil, NewSDPError(ErrorCodeSDPParsing, "информация о соединении не найдена в SDP")
	}

	offer := &MediaOffer{
		Address:     conn.Address.Address,
		Port:        md.MediaName.Port.Value,
		RtcpAddress: conn.Address.Address,
		RtcpPort:    md.MediaName.Port.Value + 1,
		Mode:        parseDirection(session.Attributes, rtp.ModeSendRecv),
		Formats:     rtp.NewRTPFormats(),
		Ptime:       DefaultPtime,
	}
	offer.Mode = parseDirection(md.Attributes, offer.Mode)

	rtpmap := make(map[rtp.PayloadType]format.Format)
	fmtp := make(map[rtp.PayloadType]string)

	for _, attr := range md.Attributes {
		switch attr.Key {
		case AttrRtpmap:
			if pt, f, ok := parseRtpmap(attr.Value); ok {
				rtpmap[pt] = f
			}
		case AttrFmtp:
			if pt, params, ok := splitPayloadType(attr.Value); ok {
				fmtp[pt] = params
			}
		case AttrPtime:
			if ms, err := strconv.Atoi(strings.TrimSpace(attr.Value)); err == nil && ms > 0 {
				offer.Ptime = time.Duration(ms) * time.Millisecond
			}
		case AttrRtcp:
			parseRtcp(attr.Value, offer)
		case AttrRtcpMux:
			offer.RtcpMux = true
		case AttrSSRC:
			parseSSRC(attr.Value, offer)
		}
	}

	for _, value := range md.MediaName.Formats {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > int(rtp.MaxPayloadType) {
			continue
		}
		pt := rtp.PayloadType(n)

		f, ok := rtpmap[pt]
		if !ok {
			static, found := rtp.StaticFormat(pt)
			if !found {
				continue
			}
			f = static.Format
		}
		offer.Formats.Add(rtp.RTPFormat{PayloadType: pt, Format: f, Fmtp: fmtp[pt]})
	}

	if offer.RtcpMux {
		offer.RtcpAddress = offer.Address
		offer.RtcpPort = offer.Port
	}
	return offer, nil
}

func parseDirection(attributes []sdp.Attribute, fallback rtp.ConnectionMode) rtp.ConnectionMode {
	for _, attr := range attributes {
		if mode, err := rtp.ParseConnectionMode(attr.Key); err == nil && !mode.IsLoopback() {
			return mode
		}
	}
	return fallback
}

// parseRtpmap разбирает "<pt> <name>/<rate>[/<channels>]"
func parseRtpmap(value string) (rtp.PayloadType, format.Format, bool) {
	pt, encoding, ok := splitPayloadType(value)
	if !ok {
		return 0, format.Format{}, false
	}

	parts := strings.Split(encoding, "/")
	if len(parts) < 2 {
		return 0, format.Format{}, false
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil || rate <= 0 {
		return 0, format.Format{}, false
	}
	channels := 1
	if len(parts) > 2 {
		if channels, err = strconv.Atoi(parts[2]); err != nil {
			return 0, format.Format{}, false
		}
	}
	return pt, format.New(parts[0], rate, channels), true
}

func splitPayloadType(value string) (rtp.PayloadType, string, bool) {
	head, rest, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found {
		return 0, "", false
	}
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 || n > int(rtp.MaxPayloadType) {
		return 0, "", false
	}
	return rtp.PayloadType(n), strings.TrimSpace(rest), true
}

// parseRtcp разбирает "<port> [IN IP4 <address>]" (RFC 3605)
func parseRtcp(value string, offer *MediaOffer) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return
	}
	if port, err := strconv.Atoi(fields[0]); err == nil && port > 0 {
		offer.RtcpPort = port
	}
	if len(fields) == 4 {
		offer.RtcpAddress = fields[3]
	}
}

// parseSSRC разбирает "<ssrc> cname:<cname>" (RFC 5576)
func parseSSRC(value string, offer *MediaOffer) {
	id, attribute, _ := strings.Cut(value, " ")
	ssrc, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return
	}
	offer.SSRC = uint32(ssrc)
	if cname, ok := strings.CutPrefix(attribute, "cname:"); ok {
		offer.CNAME = cname
	}
}
