package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitLoggerLevels(t *testing.T) {
	t.Cleanup(func() { Logger = nil })

	require.NoError(t, InitLogger("production", "warn"))
	assert.False(t, GetLogger().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, GetLogger().Core().Enabled(zapcore.WarnLevel))

	require.NoError(t, InitLogger("development", "debug"))
	assert.True(t, GetLogger().Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, InitLogger("production", "loud"))
}

func TestPackageHelpersWriteToGlobal(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { Logger = nil })

	Info("info", zap.String("k", "v"))
	Warn("warn")
	Debug("debug")
	Named("chat").Error("named")

	assert.Equal(t, 4, logs.Len())
	assert.Equal(t, "chat", logs.FilterMessage("named").All()[0].LoggerName)
	assert.Equal(t, "v", logs.FilterMessage("info").All()[0].ContextMap()["k"])
}
