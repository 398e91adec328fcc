package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		assert.Zero(t, buf.Len())
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeEntry(t, &buf)
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "info message", entry["msg"])
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		assert.NotZero(t, buf.Len())

		buf.Reset()
		logger.Error("error message")
		assert.NotZero(t, buf.Len())
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	t.Run("WithField", func(t *testing.T) {
		buf.Reset()
		logger.WithField("key", "value").Info("message")
		assert.Equal(t, "value", decodeEntry(t, &buf)["key"])
	})

	t.Run("WithFields", func(t *testing.T) {
		buf.Reset()
		logger.WithFields(map[string]any{"key1": "value1", "key2": 42}).Info("message")
		entry := decodeEntry(t, &buf)
		assert.Equal(t, "value1", entry["key1"])
		assert.Equal(t, float64(42), entry["key2"])
	})

	t.Run("credentials are redacted", func(t *testing.T) {
		buf.Reset()
		logger.WithField("refreshToken", "eyJhbGciOi").
			WithFields(map[string]any{"Password": "hunter2", "email": "ada@example.com"}).
			Warn("login")
		entry := decodeEntry(t, &buf)
		assert.Equal(t, Redacted, entry["refreshToken"])
		assert.Equal(t, Redacted, entry["Password"])
		assert.Equal(t, "ada@example.com", entry["email"])
	})

	t.Run("WithError", func(t *testing.T) {
		buf.Reset()
		logger.WithError(errors.New("boom")).Error("failed")
		assert.Equal(t, "boom", decodeEntry(t, &buf)["error"])
	})

	t.Run("WithError nil is a no-op", func(t *testing.T) {
		assert.Same(t, logger, logger.WithError(nil))
	})

	t.Run("formatted", func(t *testing.T) {
		buf.Reset()
		logger.Debugf("value=%d", 7)
		assert.Equal(t, "value=7", decodeEntry(t, &buf)["msg"])
	})
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithUserID(ctx, "user-1")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "user-1", GetUserID(ctx))

	FromContext(ctx).Info("scoped")
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "user-1", entry["user_id"])

	assert.NotNil(t, GetLogger(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "INFO", InfoLevel.String())
	assert.Equal(t, "WARN", WarnLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	called := false
	func() {
		defer RecoverPanicWithCallback(logger, "test", func() { called = true })
		panic("kaboom")
	}()

	assert.True(t, called)
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "kaboom", entry["panic"])
	assert.Equal(t, "test", entry["context"])
}
