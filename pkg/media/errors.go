package media

import "fmt"

// MediaErrorCode определяет типизированные коды ошибок медиа слоя
type MediaErrorCode int

const (
	// Ошибки преобразования формата
	ErrorCodeTranscodingFailed MediaErrorCode = iota + 1000
	ErrorCodeFormatUnsupported

	// Ошибки Jitter Buffer
	ErrorCodeJitterBufferConfigInvalid
	ErrorCodeBufferOverflow
	ErrorCodeBufferUnderrun

	// Ошибки DTMF
	ErrorCodeDTMFPayloadInvalid
	ErrorCodeDTMFNotNegotiated

	// Ошибки отправки
	ErrorCodeOutputNotReady
	ErrorCodeSendFailed
)

// String возвращает строковое представление кода ошибки
func (code MediaErrorCode) String() string {
	switch code {
	case ErrorCodeTranscodingFailed:
		return "TranscodingFailed"
	case ErrorCodeFormatUnsupported:
		return "FormatUnsupported"
	case ErrorCodeJitterBufferConfigInvalid:
		return "JitterBufferConfigInvalid"
	case ErrorCodeBufferOverflow:
		return "BufferOverflow"
	case ErrorCodeBufferUnderrun:
		return "BufferUnderrun"
	case ErrorCodeDTMFPayloadInvalid:
		return "DTMFPayloadInvalid"
	case ErrorCodeDTMFNotNegotiated:
		return "DTMFNotNegotiated"
	case ErrorCodeOutputNotReady:
		return "OutputNotReady"
	case ErrorCodeSendFailed:
		return "SendFailed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// MediaError ошибка медиа слоя.
// Содержит типизированный код, контекст и обернутую причину.
type MediaError struct {
	Code      MediaErrorCode
	Message   string
	SessionID string
	Context   map[string]interface{}
	Wrapped   error
}

// NewMediaError создает ошибку с кодом и сообщением
func NewMediaError(code MediaErrorCode, message string) *MediaError {
	return &MediaError{Code: code, Message: message}
}

// WrapMediaError оборачивает причину ошибкой медиа слоя
func WrapMediaError(code MediaErrorCode, message string, err error) *MediaError {
	return &MediaError{Code: code, Message: message, Wrapped: err}
}

// Error реализует интерфейс error
func (e *MediaError) Error() string {
	msg := fmt.Sprintf("[медиа:%s] %s", e.Code, e.Message)
	if e.SessionID != "" {
		msg = fmt.Sprintf("[медиа:%s] сессия %s: %s", e.Code, e.SessionID, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap возвращает обернутую ошибку
func (e *MediaError) Unwrap() error {
	return e.Wrapped
}

// Is позволяет сравнивать ошибки по коду через errors.Is
func (e *MediaError) Is(target error) bool {
	if t, ok := target.(*MediaError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext добавляет значение в контекст ошибки
func (e *MediaError) WithContext(key string, value interface{}) *MediaError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetContext возвращает значение из контекста ошибки по ключу
func (e *MediaError) GetContext(key string) interface{} {
	if e.Context == nil {
		return nil
	}
	return e.Context[key]
}

// HasErrorCode проверяет код ошибки в цепочке
func HasErrorCode(err error, code MediaErrorCode) bool {
	for err != nil {
		if mediaErr, ok := err.(*MediaError); ok && mediaErr.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
