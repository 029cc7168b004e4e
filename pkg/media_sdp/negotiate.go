package media_sdp

import (
	"github.com/arzzra/media_core/pkg/rtp"
)

// Negotiate возвращает форматы предложения, поддерживаемые локально.
//
// Номера payload type и порядок предпочтения берутся из предложения.
// Параметры fmtp, не указанные удаленной стороной, дополняются локальными.
// Пустой результат означает отсутствие общих кодеков.
func Negotiate(local, offered *rtp.RTPFormats) *rtp.RTPFormats {
	if local == nil || offered == nil {
		return rtp.NewRTPFormats()
	}

	result := rtp.NewRTPFormats()
	for _, f := range local.Intersection(offered).List() {
		if f.Fmtp == "" {
			if own, ok := local.FindFormat(f.Format); ok {
				f.Fmtp = own.Fmtp
			}
		}
		result.Add(f)
	}
	return result
}

// Answer формирует согласованную таблицу для ответа. Ошибка возвращается,
// если в предложении нет ни одного общего аудио кодека.
func Answer(local *rtp.RTPFormats, offer *MediaOffer) (*rtp.RTPFormats, error) {
	if offer == nil {
		return nil, NewSDPError(ErrorCodeSDPParsing, "предложение не задано")
	}
	negotiated := Negotiate(local, offer.Formats)
	if !negotiated.HasAudio() {
		return negotiated, NewSDPError(ErrorCodeIncompatibleCodec,
			"нет общих аудио кодеков: предложено %s", offer.Formats)
	}
	return negotiated, nil
}
