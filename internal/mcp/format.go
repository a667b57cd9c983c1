package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/semsearch/internal/search"
)

// FormatSearchResults renders results as markdown for the tool's text
// content. Similarities are shown with four decimals.
func FormatSearchResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for %q\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		fmt.Fprintf(&sb, "### %d. %s (similarity: %.4f)\n\n", i+1, r.Metadata.Filename, r.Similarity)
		if r.Metadata.File != "" {
			fmt.Fprintf(&sb, "`%s` passage %d\n\n", r.Metadata.File, r.Metadata.ChunkIndex)
		}
		if isMarkdown(r.Metadata.FileType) {
			sb.WriteString(r.Text)
			sb.WriteString("\n\n---\n\n")
		} else {
			fmt.Fprintf(&sb, "```\n%s\n```\n\n", r.Text)
		}
	}
	return sb.String()
}

func isMarkdown(fileType string) bool {
	switch strings.ToLower(fileType) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// clampTopK applies the default for non-positive values and caps k.
func clampTopK(k, def, max int) int {
	if k <= 0 {
		return def
	}
	if k > max {
		return max
	}
	return k
}
