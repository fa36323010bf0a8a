package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: "json"})

	log.With(Component("ingest")).Info("scan ingested",
		UserID("u1"),
		ScanID(42),
		OverallScore(91.5),
		Err(errors.New("refresh failed")),
	)
	log.Debug("dropped")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "scan ingested", entry["message"])
	assert.Equal(t, "ingest", entry["component"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, 42.0, entry["scan_id"])
	assert.Equal(t, "refresh failed", entry["error"])
	assert.NotContains(t, buf.String(), "dropped")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, "WARN", LevelWarn.String())
}

func TestOrNopAndContext(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	l := Nop()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}
