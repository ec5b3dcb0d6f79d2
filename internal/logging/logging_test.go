package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "credit-ledger", "info", "production")

	logger.Debug("hidden")
	logger.Info("consumed", "user_id", "u-1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "consumed", rec["msg"])
	assert.Equal(t, "credit-ledger", rec["service"])
	assert.Equal(t, "u-1", rec["user_id"])
}

func TestWith_StoresEnrichedLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, "svc", "debug", "development")
	ctx := WithLogger(context.Background(), base)

	ctx, _ = With(ctx, "request_id", "r-9")
	FromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), "request_id=r-9")
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
