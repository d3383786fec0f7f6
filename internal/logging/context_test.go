package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/serenissima/internal/logging"
)

func TestContextAttrsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelInfo)

	ctx := logging.WithCitizen(context.Background(), "marco")
	ctx = logging.WithActivity(ctx, "a-1", "eat_at_tavern")
	logger.InfoContext(ctx, "resolved")

	out := buf.String()
	assert.Contains(t, out, "citizen=marco")
	assert.Contains(t, out, "activity_id=a-1")
	assert.Contains(t, out, "activity_type=eat_at_tavern")
}

func TestSiblingContextsDoNotShareAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelInfo)

	base := logging.WithCitizen(context.Background(), "anna")
	a := logging.WithAttrs(base, slog.String("handler", "shelter"))
	b := logging.WithAttrs(base, slog.String("handler", "eat"))

	logger.InfoContext(a, "a")
	assert.Contains(t, buf.String(), "handler=shelter")
	assert.NotContains(t, buf.String(), "handler=eat")

	buf.Reset()
	logger.InfoContext(b, "b")
	assert.Contains(t, buf.String(), "handler=eat")
	assert.NotContains(t, buf.String(), "handler=shelter")
}

func TestDebugFilteredAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logging.New(&buf, logging.ParseLevel("info")).Debug("hidden")
	assert.Empty(t, buf.String())
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("WARNING"))
}
