package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("DEBUG", "")

	var buf bytes.Buffer
	InitWithWriter(&buf)

	Info("feed fetched", "source", "ICIJ", "count", 3)
	Debug("hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "feed fetched", rec["msg"])
	assert.Equal(t, "ICIJ", rec["source"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestInitDebugLevel(t *testing.T) {
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("DEBUG", "true")

	var buf bytes.Buffer
	InitWithWriter(&buf)

	Debug("visible", "id", "abc")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "id=abc")
}
