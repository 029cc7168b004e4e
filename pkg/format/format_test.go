package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMatches(t *testing.T) {
	assert.True(t, PCMU.Matches(New("PCMU", 8000, 0)))
	assert.False(t, PCMU.Matches(PCMA))
	assert.False(t, PCMU.Matches(New("pcmu", 16000, 1)))
	assert.True(t, TelephoneEvent.IsDTMF())
	assert.False(t, Linear.IsDTMF())
	assert.True(t, Format{}.IsZero())
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "pcma/8000", PCMA.String())
	assert.Equal(t, "opus/48000/2", New("OPUS", 48000, 2).String())
}
