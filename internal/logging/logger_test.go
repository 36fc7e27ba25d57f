package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "INFO"} {
		l, err := New(level)
		require.NoError(t, err, level)
		assert.NotNil(t, l)
	}

	_, err := New("loud")
	assert.Error(t, err)
}

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapLogger(zap.New(core))

	l.With("scenario", "start_subscription").Info("submitted", "signature", "abc")
	l.Warn("airdrop failed", "attempt", 2)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "submitted", entries[0].Message)
	assert.Equal(t, "start_subscription", entries[0].ContextMap()["scenario"])
	assert.Equal(t, "abc", entries[0].ContextMap()["signature"])
	assert.Equal(t, int64(2), entries[1].ContextMap()["attempt"])
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Debug("x")
	l.Error("y", "k", "v")
}
