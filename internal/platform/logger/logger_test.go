package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestSensitiveKeysAreRedacted(t *testing.T) {
	log, logs := observed()

	log.Info("llm call",
		"api_key", "sk-live-123",
		"Session_Cookie", "abc",
		"original", "John Doe",
		"chunks", 3,
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.Equal(t, "[REDACTED]", fields["Session_Cookie"])
	assert.Equal(t, "[REDACTED]", fields["original"])
	assert.EqualValues(t, 3, fields["chunks"])
}

func TestWithCarriesFields(t *testing.T) {
	log, logs := observed()

	log.With("service", "RAGService", "token", "t").Warn("slow upstream")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "RAGService", fields["service"])
	assert.Equal(t, "[REDACTED]", fields["token"])
}

func TestNewSelectsMode(t *testing.T) {
	for _, mode := range []string{"production", "development", ""} {
		log, err := New(mode)
		require.NoError(t, err, mode)
		assert.NotNil(t, log.SugaredLogger)
	}
}
