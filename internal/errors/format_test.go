package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_AppError(t *testing.T) {
	// Given: an error with a suggestion
	err := New(ErrCodeNetworkUnavailable, "Ollama is not running", nil).
		WithSuggestion("start it with 'ollama serve' or use --provider static")

	// When: formatting for the terminal
	out := FormatForCLI(err)

	// Then: message, hint and code are shown
	assert.Contains(t, out, "Error: Ollama is not running")
	assert.Contains(t, out, "Hint: start it with 'ollama serve'")
	assert.Contains(t, out, "Code: ERR_302_NETWORK_UNAVAILABLE")
}

func TestFormatForCLI_WrappedAndPlainErrors(t *testing.T) {
	wrapped := fmt.Errorf("index: %w", NotFound("/nope", errors.New("stat /nope: no such file")))
	out := FormatForCLI(wrapped)
	assert.Contains(t, out, "not found: /nope")
	assert.Contains(t, out, "Cause: stat /nope")
	assert.Contains(t, out, "ERR_201_FILE_NOT_FOUND")

	plain := FormatForCLI(errors.New("boom"))
	assert.Contains(t, plain, "Error: boom")
	assert.Contains(t, plain, ErrCodeInternal)

	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	err := StoreFailed("write failed", errors.New("disk I/O error")).WithDetail("path", ".db")

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeStoreFailed, decoded["code"])
	assert.Equal(t, "INTERNAL", decoded["category"])
	assert.Equal(t, "disk I/O error", decoded["cause"])
	assert.Equal(t, false, decoded["retryable"])
}

func TestFormatForLog(t *testing.T) {
	attrs := FormatForLog(UnsupportedFormat("a.bin", ".bin"))
	assert.Contains(t, attrs, "error_code")
	assert.Contains(t, attrs, ErrCodeUnsupportedFormat)
	assert.Contains(t, attrs, "detail_path")

	assert.Equal(t, []any{"error", "plain"}, FormatForLog(errors.New("plain")))
	assert.Nil(t, FormatForLog(nil))
}
