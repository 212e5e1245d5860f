package log

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("", false))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("", true))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("WARN", true))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud", true))
}
