package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/semsearch/internal/errors"
)

// TS01: Short text is returned whole
func TestSplit_ShortTextSingleChunk(t *testing.T) {
	// Given: a text shorter than the window
	// When: splitting with defaults
	chunks, err := Split("a.", DefaultSize, DefaultOverlap)

	// Then: exactly one chunk with the text
	require.NoError(t, err)
	assert.Equal(t, []string{"a."}, chunks)
}

// TS02: 1000 characters without periods make three overlapping windows
func TestSplit_LongTextOverlappingWindows(t *testing.T) {
	// Given: 1000 characters with no whitespace and no periods
	text := strings.Repeat("abcdefghij", 100)

	// When: splitting with 512/100
	chunks, err := Split(text, 512, 100)

	// Then: windows [0:512], [412:924], [824:1000]
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, text[0:512], chunks[0])
	assert.Equal(t, text[412:924], chunks[1])
	assert.Equal(t, text[824:], chunks[2])

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		assert.True(t, strings.HasPrefix(chunks[i], prev[len(prev)-100:]),
			"chunk %d should start with the last 100 characters of chunk %d", i, i-1)
	}
}

func TestSplit_WhitespaceNormalized(t *testing.T) {
	chunks, err := Split("  hello \n\n\t world  ", 512, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world"}, chunks)
}

func TestSplit_EmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t\n"} {
		chunks, err := Split(text, 512, 100)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

// TS03: Window is cut after a period in its second half
func TestSplit_CutsAtSentenceBoundary(t *testing.T) {
	// Given: a period at index 14 of a 20-character window
	text := strings.Repeat("a", 14) + ". " + strings.Repeat("b", 20)

	chunks, err := Split(text, 20, 5)

	// Then: the first chunk ends at the period
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, strings.Repeat("a", 14)+".", chunks[0])
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 20)
	}
	assert.Equal(t, strings.Repeat("b", 11), chunks[len(chunks)-1])
}

func TestSplit_IgnoresPeriodInFirstHalf(t *testing.T) {
	// Period at index 3 is not past start+size/2, so the window stays full.
	text := "abc." + strings.Repeat("x", 30)

	chunks, err := Split(text, 20, 5)
	require.NoError(t, err)
	assert.Equal(t, text[:20], chunks[0])
}

// TS04: Sentence cut shorter than the overlap still advances
func TestSplit_ProgressGuard(t *testing.T) {
	// Given: overlap 8 and a cut at 7 characters
	text := "abcdef. ghijklmnopqrstuvwxyz"

	chunks, err := Split(text, 10, 8)

	// Then: the next window starts at the cut, not before it
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "abcdef.", chunks[0])
	assert.Equal(t, "ghijklmno", chunks[1])
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "xyz"))
}

func TestSplit_CountsRunesNotBytes(t *testing.T) {
	// 30 three-byte characters fit a 30-character window.
	text := strings.Repeat("日", 30)

	chunks, err := Split(text, 30, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{text}, chunks)

	chunks, err = Split(strings.Repeat("日", 50), 30, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 30, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 25, utf8.RuneCountInString(chunks[1]))
}

func TestSplit_InvalidParams(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -5, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split("some text", tt.size, tt.overlap)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidChunkParams))
		})
	}
}

func TestSplit_CoversWholeText(t *testing.T) {
	// Every character position of the normalized text appears in some chunk.
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	normalized := strings.Join(strings.Fields(text), " ")

	chunks, err := Split(text, 120, 30)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(normalized, chunks[0]))
	assert.True(t, strings.HasSuffix(normalized, chunks[len(chunks)-1]))
	for _, c := range chunks {
		assert.Contains(t, normalized, c)
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 120)
	}
}

func TestDocument_TagsChunks(t *testing.T) {
	chunks, err := Document("/docs/a.txt", strings.Repeat("word ", 300), 200, 20)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "/docs/a.txt", c.SourceFile)
		assert.NotEmpty(t, c.Text)
	}
}
