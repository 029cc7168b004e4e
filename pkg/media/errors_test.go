package media

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaError(t *testing.T) {
	cause := errors.New("нет процессора")
	err := WrapMediaError(ErrorCodeTranscodingFailed, "ошибка преобразования", cause).
		WithContext("payload_type", 8)

	assert.Equal(t, "[медиа:TranscodingFailed] ошибка преобразования: нет процессора", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 8, err.GetContext("payload_type"))
	assert.Nil(t, err.GetContext("missing"))

	wrapped := fmt.Errorf("вход: %w", err)
	assert.True(t, HasErrorCode(wrapped, ErrorCodeTranscodingFailed))
	assert.False(t, HasErrorCode(wrapped, ErrorCodeSendFailed))
	assert.True(t, errors.Is(wrapped, NewMediaError(ErrorCodeTranscodingFailed, "")))

	var mediaErr *MediaError
	assert.True(t, errors.As(wrapped, &mediaErr))
	assert.Equal(t, ErrorCodeTranscodingFailed, mediaErr.Code)
}

func TestMediaErrorCodeString(t *testing.T) {
	assert.Equal(t, "SendFailed", ErrorCodeSendFailed.String())
	assert.Equal(t, "Unknown(1)", MediaErrorCode(1).String())
}
