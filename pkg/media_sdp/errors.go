package media_sdp

import (
	"errors"
	"fmt"
)

// SDPErrorCode определяет коды ошибок для SDP операций
type SDPErrorCode int

const (
	ErrorCodeSDPParsing SDPErrorCode = iota + 2000
	ErrorCodeSDPGeneration
	ErrorCodeNoAudioMedia
	ErrorCodeIncompatibleCodec
)

func (c SDPErrorCode) String() string {
	switch c {
	case ErrorCodeSDPParsing:
		return "SDPParsing"
	case ErrorCodeSDPGeneration:
		return "SDPGeneration"
	case ErrorCodeNoAudioMedia:
		return "NoAudioMedia"
	case ErrorCodeIncompatibleCodec:
		return "IncompatibleCodec"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// SDPError представляет ошибку в SDP операциях
type SDPError struct {
	Code    SDPErrorCode
	Message string
	Wrapped error
}

// NewSDPError создает новую SDP ошибку
func NewSDPError(code SDPErrorCode, format string, args ...interface{}) *SDPError {
	return &SDPError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapSDPError оборачивает существующую ошибку в SDPError
func WrapSDPError(code SDPErrorCode, err error, format string, args ...interface{}) *SDPError {
	return &SDPError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Wrapped: err,
	}
}

// Error реализует интерфейс error
func (e *SDPError) Error() string {
	msg := fmt.Sprintf("SDP [%s]: %s", e.Code, e.Message)
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap возвращает обернутую ошибку для поддержки errors.Is/As
func (e *SDPError) Unwrap() error {
	return e.Wrapped
}

// IsSDPError проверяет, является ли ошибка SDPError с указанным кодом
func IsSDPError(err error, code SDPErrorCode) bool {
	var sdpErr *SDPError
	if !errors.As(err, &sdpErr) {
		return false
	}
	return sdpErr.Code == code
}
