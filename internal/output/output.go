// Package output formats command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Aman-CERP/semsearch/internal/index"
	"github.com/Aman-CERP/semsearch/internal/search"
)

// PreviewLength is the number of characters of a passage shown per result.
const PreviewLength = 150

// Writer prints CLI output. Write errors are ignored; there is nowhere
// better to report them.
type Writer struct {
	out io.Writer
}

// New creates a Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints msg after icon, or indented when icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success line.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning line.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error line.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Code prints content indented between blank lines.
func (w *Writer) Code(content string) {
	w.Newline()
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	w.Newline()
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// SearchHeader prints the query line shown before results.
func (w *Writer) SearchHeader(query string, topK int, threshold float64) {
	w.Statusf("🔍", "Searching for: '%s'", query)
	w.Statusf("", "(top %d results, threshold: %s)", topK, formatFloat(threshold))
	w.Newline()
}

// SearchResults prints numbered results with a preview of each passage.
func (w *Writer) SearchResults(results []search.Result) {
	if len(results) == 0 {
		w.Error("No results found")
		return
	}

	w.Successf("Found %d results:", len(results))
	w.Newline()
	for i, r := range results {
		_, _ = fmt.Fprintf(w.out, "%d. [Similarity: %s]\n", i+1, formatFloat(search.Round(r.Similarity)))
		_, _ = fmt.Fprintf(w.out, "   File: %s\n", r.Metadata.Filename)
		_, _ = fmt.Fprintf(w.out, "   %s...\n", Preview(r.Text, PreviewLength))
		w.Newline()
	}
}

// IndexResult prints the outcome of indexing dir.
func (w *Writer) IndexResult(res *index.Result) {
	w.Newline()
	w.Success("Indexing complete!")
	w.Statusf("", "📄 Files indexed: %d", res.Indexed)
	w.Statusf("", "❌ Failed: %d", res.Failed)

	if len(res.Files) > 0 {
		w.Newline()
		w.Status("", "Indexed files:")
		for _, f := range res.Files {
			w.Status("", "- "+f)
		}
	}
}

// Stats prints collection statistics.
func (w *Writer) Stats(stats index.Stats) {
	w.Status("📊", "Index Statistics:")
	w.Statusf("", "Collection: %s", stats.CollectionName)
	w.Statusf("", "Total chunks indexed: %d", stats.TotalChunks)
}

// Preview returns the first n characters of text. It counts runes so
// multi-byte characters are never split.
func Preview(text string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
