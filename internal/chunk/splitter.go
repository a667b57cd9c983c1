// Package chunk splits document text into overlapping passages sized for
// embedding. Splitting is pure: no I/O, no shared state.
package chunk

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/semsearch/internal/errors"
)

// Split normalizes whitespace in text and cuts it into windows of at most
// size characters, each starting overlap characters before the previous
// window's end. A window that does not reach the end of the text is
// shortened to end just after its last period when that period falls in the
// second half of the window.
func Split(text string, size, overlap int) ([]string, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}

	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return []string{}, nil
	}

	runes := []rune(normalized)
	if len(runes) <= size {
		return []string{normalized}, nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if p := lastPeriod(runes, start, end); p > start+size/2 {
			end = p + 1
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			// A sentence cut shorter than the overlap would stall the window.
			next = end
		}
		start = next
	}

	return chunks, nil
}

// Document splits text and tags every passage with its source path and
// position.
func Document(path, text string, size, overlap int) ([]Chunk, error) {
	pieces, err := Split(text, size, overlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{Text: p, SourceFile: path, Index: i}
	}
	return chunks, nil
}

func validate(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return errors.New(errors.ErrCodeInvalidChunkParams,
			fmt.Sprintf("invalid chunk window: size=%d overlap=%d", size, overlap), nil).
			WithSuggestion("size must be positive and overlap must be in [0, size)")
	}
	return nil
}

// lastPeriod returns the index of the last '.' in runes[start:end], or -1.
func lastPeriod(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == '.' {
			return i
		}
	}
	return -1
}
