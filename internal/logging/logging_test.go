package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupAppliesConfiguredLevel(t *testing.T) {
	Setup("debug", "json")
	assert.True(t, slog.Default().Handler().Enabled(context.Background(), slog.LevelDebug))

	Setup("warn", "json")
	h := slog.Default().Handler()
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
}

func TestSetupDefaultsToInfoForUnknownLevel(t *testing.T) {
	Setup("nonsense", "json")
	h := slog.Default().Handler()
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}
