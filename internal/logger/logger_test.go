package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestInitializeWritesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "server.log")

	require.NoError(t, Initialize("debug", logFile))
	Log.Info("hello")
	require.NoError(t, Close())

	assert.FileExists(t, logFile)
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, "track_id", WithTrackID("t1").Key)
	assert.Equal(t, "job_id", WithJobID("j1").Key)
	assert.Equal(t, int64(404), WithStatus(404).Integer)
}
