package media_sdp

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/media_core/pkg/rtp"
)

// LocalMedia параметры локальной аудио секции
type LocalMedia struct {
	Address  string
	Port     int
	RtcpPort int // 0 означает порт RTP + 1
	RtcpMux  bool
	Mode     rtp.ConnectionMode
	Formats  *rtp.RTPFormats
	Ptime    time.Duration
	SSRC     uint32
	CNAME    string
}

// BuildMediaDescription создает аудио секцию m=audio для локального канала
func BuildMediaDescription(local LocalMedia) (*sdp.MediaDescription, error) {
	if local.Port <= 0 {
		return nil, NewSDPError(ErrorCodeSDPGeneration, "локальный порт не задан")
	}
	if local.Formats == nil || local.Formats.IsEmpty() {
		return nil, NewSDPError(ErrorCodeSDPGeneration, "нет форматов для описания")
	}

	address, addressType := addressOf(local.Address)
	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  mediaAudio,
			Port:   sdp.RangedPort{Value: local.Port},
			Protos: []string{"RTP", "AVP"},
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addressType,
			Address:     &sdp.Address{Address: address},
		},
	}

	for _, f := range local.Formats.List() {
		pt := strconv.Itoa(int(f.PayloadType))
		md.MediaName.Formats = append(md.MediaName.Formats, pt)
		md.Attributes = append(md.Attributes, sdp.NewAttribute(AttrRtpmap, fmt.Sprintf("%s %s", pt, f.Format)))
		if f.Fmtp != "" {
			md.Attributes = append(md.Attributes, sdp.NewAttribute(AttrFmtp, pt+" "+f.Fmtp))
		}
	}

	ptime := local.Ptime
	if ptime <= 0 {
		ptime = DefaultPtime
	}
	md.Attributes = append(md.Attributes, sdp.NewAttribute(AttrPtime, strconv.Itoa(int(ptime/time.Millisecond))))

	rtcpPort := local.RtcpPort
	if local.RtcpMux {
		rtcpPort = local.Port
	} else if rtcpPort == 0 {
		rtcpPort = local.Port + 1
	}
	md.Attributes = append(md.Attributes,
		sdp.NewAttribute(AttrRtcp, fmt.Sprintf("%d IN %s %s", rtcpPort, addressType, address)))
	if local.RtcpMux {
		md.Attributes = append(md.Attributes, sdp.NewPropertyAttribute(AttrRtcpMux))
	}

	if local.CNAME != "" {
		md.Attributes = append(md.Attributes,
			sdp.NewAttribute(AttrSSRC, fmt.Sprintf("%d cname:%s", local.SSRC, local.CNAME)))
	}

	mode := local.Mode
	if mode.IsLoopback() {
		mode = rtp.ModeSendRecv
	}
	md.Attributes = append(md.Attributes, sdp.NewPropertyAttribute(mode.String()))

	return md, nil
}

// BuildSessionDescription оборачивает аудио секции в полное описание сессии
func BuildSessionDescription(address string, media ...*sdp.MediaDescription) *sdp.SessionDescription {
	address, addressType := addressOf(address)
	now := uint64(time.Now().Unix())

	return &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      now,
			SessionVersion: now,
			NetworkType:    "IN",
			AddressType:    addressType,
			UnicastAddress: address,
		},
		SessionName: "media_core",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addressType,
			Address:     &sdp.Address{Address: address},
		},
		TimeDescriptions:  []sdp.TimeDescription{{Timing: sdp.Timing{StartTime: 0, StopTime: 0}}},
		MediaDescriptions: media,
	}
}

func addressOf(host string) (string, string) {
	ip := net.ParseIP(host)
	switch {
	case ip == nil || ip.IsUnspecified():
		return "127.0.0.1", "IP4"
	case ip.To4() != nil:
		return ip.String(), "IP4"
	default:
		return ip.String(), "IP6"
	}
}
