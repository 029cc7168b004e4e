// Package media реализует медиа компоненты RTP канала: jitter buffer,
// источники принятого аудио и DTMF, приемник исходящих кадров.
//
// # Входящий поток
//
// Пакеты, прошедшие конвейер канала, попадают в JitterBuffer (аудио) или
// в DtmfInput (telephone-event). RtpInput читает кадры из буфера в потоке
// планировщика и приводит их к каноническому формату через Processor:
//
//	jb, _ := media.NewJitterBuffer(wall, media.DefaultJitterBufferConfig())
//	input := media.NewRtpInput("rtp-input", sched, jb, media.NewG711Processor(), format.Linear)
//	input.Connect(mixerSink)
//	input.Start()
//
// Источник рассинхронизируется, когда буфер пуст, и возобновляется по
// событию BufferFilled.
//
// # Исходящий поток
//
// RtpOutput является приемником кадров медиа графа. Кадры кодируются в
// согласованный формат, получают номер последовательности и RTP timestamp
// и передаются в PacketSender канала. SendDTMF отправляет событие
// telephone-event (RFC 4733).
//
// # DTMF
//
// DtmfInput распознает новое событие один раз, повторы и пакеты окончания
// того же события игнорируются. На каждое событие генерируется фиксированная
// серия кадров: 7 кадров тона и 3 кадра окончания с шагом 20мс.
//
// # Ошибки
//
// Ошибки пакета имеют тип *MediaError с кодом MediaErrorCode. Код
// проверяется через HasErrorCode или errors.Is с образцом:
//
//	if media.HasErrorCode(err, media.ErrorCodeTranscodingFailed) {
//	    // кадр пропущен
//	}
//
// # Ссылки
//
//   - RFC 3550 - RTP: A Transport Protocol for Real-Time Applications
//   - RFC 3551 - RTP Profile for Audio and Video Conferences
//   - RFC 4733 - RTP Payload for DTMF Digits, Telephony Tones and Signals
//   - ITU-T G.711 - Pulse code modulation of voice frequencies
package media
