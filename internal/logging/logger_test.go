package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vivenda-labs/ragd/internal/logging"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := logging.New(level, "json")
		require.NoError(t, err, level)
		assert.NotNil(t, logger)
	}
}

func TestNewConsoleFormat(t *testing.T) {
	logger, err := logging.New("info", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsInvalid(t *testing.T) {
	_, err := logging.New("chatty", "json")
	assert.Error(t, err)

	_, err = logging.New("info", "xml")
	assert.Error(t, err)
}
