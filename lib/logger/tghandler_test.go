package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"licensebot/lib/sl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	messages []string
}

func (r *recordingNotifier) NotifyOperators(msg string) {
	r.messages = append(r.messages, msg)
}

func TestOperatorHandlerForwardsAboveLevel(t *testing.T) {
	var buf bytes.Buffer
	notifier := &recordingNotifier{}
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := slog.New(NewOperatorHandler(base, notifier, slog.LevelError))

	log.Info("sweep finished")
	log.With(sl.Module("entitlement")).Error("repair failed", sl.Err(errors.New("duplicate key")))

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "repair failed")
	assert.Contains(t, notifier.messages[0], "mod: entitlement")
	assert.Contains(t, notifier.messages[0], "error: duplicate key")
	assert.Contains(t, buf.String(), "sweep finished")
}

func TestOperatorHandlerGroupPrefix(t *testing.T) {
	var buf bytes.Buffer
	notifier := &recordingNotifier{}
	base := slog.NewTextHandler(&buf, nil)
	log := slog.New(NewOperatorHandler(base, notifier, slog.LevelWarn)).WithGroup("sweep")

	log.Warn("grant skipped")

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "WARN sweep.grant skipped")
}

func TestOperatorHandlerLateNotifier(t *testing.T) {
	var buf bytes.Buffer
	handler := NewOperatorHandler(slog.NewTextHandler(&buf, nil), nil, slog.LevelError)
	log := slog.New(handler).With(sl.Module("scheduler"))

	log.Error("sweep failed")

	notifier := &recordingNotifier{}
	handler.SetNotifier(notifier)
	log.Error("sweep failed again")

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "sweep failed again")
	assert.Contains(t, buf.String(), "msg=\"sweep failed\"")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel(""))
}
