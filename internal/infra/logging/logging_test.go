package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		level        string
		debugEnabled bool
		infoEnabled  bool
		warnEnabled  bool
	}{
		{level: "debug", debugEnabled: true, infoEnabled: true, warnEnabled: true},
		{level: "info", debugEnabled: false, infoEnabled: true, warnEnabled: true},
		{level: "warn", debugEnabled: false, infoEnabled: false, warnEnabled: true},
		{level: "error", debugEnabled: false, infoEnabled: false, warnEnabled: false},
		{level: "bogus", debugEnabled: false, infoEnabled: true, warnEnabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := New("json", tt.level)

			require.Equal(t, tt.debugEnabled, logger.Enabled(ctx, slog.LevelDebug))
			require.Equal(t, tt.infoEnabled, logger.Enabled(ctx, slog.LevelInfo))
			require.Equal(t, tt.warnEnabled, logger.Enabled(ctx, slog.LevelWarn))
		})
	}
}

func TestNewInstallsDefault(t *testing.T) {
	logger := New("text", "info")

	require.Equal(t, logger, slog.Default())
}
