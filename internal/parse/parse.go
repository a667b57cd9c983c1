// Package parse extracts plain text from the document formats semsearch
// indexes: Markdown, plain text and (optionally) PDF.
package parse

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/Aman-CERP/semsearch/internal/errors"
)

// DefaultMaxFileSize is the largest file Parse will read.
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

var textExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// Options controls which formats are enabled.
type Options struct {
	// PDF enables PDF extraction. When false, .pdf files fail with a
	// missing-dependency error.
	PDF bool

	// MaxFileSize in bytes; 0 means DefaultMaxFileSize.
	MaxFileSize int64
}

// DefaultOptions enables every format.
func DefaultOptions() Options {
	return Options{PDF: true, MaxFileSize: DefaultMaxFileSize}
}

// Parser turns a file path into text.
type Parser struct {
	opts Options
}

// New creates a parser.
func New(opts Options) *Parser {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &Parser{opts: opts}
}

// SupportedExtensions lists the extensions Parse accepts, lowercase with
// the leading dot.
func (p *Parser) SupportedExtensions() []string {
	exts := []string{".markdown", ".md", ".txt"}
	if p.opts.PDF {
		exts = append(exts, ".pdf")
	}
	return exts
}

// Parse returns the text content of path.
func (p *Parser) Parse(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !textExtensions[ext] && ext != ".pdf" {
		return "", errors.UnsupportedFormat(path, ext)
	}
	if ext == ".pdf" && !p.opts.PDF {
		return "", errors.MissingDependency("pdf", "set parse.pdf: true to index PDF files").
			WithDetail("path", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFound(path, err)
		}
		return "", errors.New(errors.ErrCodeFilePermission, fmt.Sprintf("cannot read %s", path), err)
	}
	if info.IsDir() {
		return "", errors.New(errors.ErrCodeInvalidPath, fmt.Sprintf("%s is a directory", path), nil)
	}
	if info.Size() > p.opts.MaxFileSize {
		return "", errors.New(errors.ErrCodeFileTooLarge,
			fmt.Sprintf("%s is %d bytes, limit is %d", path, info.Size(), p.opts.MaxFileSize), nil).
			WithSuggestion("raise parse.max_file_size")
	}

	if ext == ".pdf" {
		return parsePDF(path)
	}
	return parseText(path)
}

// parseText reads a UTF-8 file, dropping invalid byte sequences.
func parseText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.New(errors.ErrCodeFilePermission, fmt.Sprintf("cannot read %s", path), err)
	}

	if len(data) > 0 && !isText(mimetype.Detect(data)) {
		return "", fileCorrupt(path, "file content is binary, not text")
	}

	text := strings.ToValidUTF8(string(data), "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return text, nil
}

func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// parsePDF extracts the text layer of a PDF.
func parsePDF(path string) (text string, err error) {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", errors.New(errors.ErrCodeFilePermission, fmt.Sprintf("cannot read %s", path), err)
	}
	if !detected.Is("application/pdf") {
		return "", fileCorrupt(path, fmt.Sprintf("expected a PDF, found %s", detected.String()))
	}

	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fileCorrupt(path, fmt.Sprintf("malformed PDF: %v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fileCorrupt(path, err.Error())
	}
	defer func() { _ = f.Close() }()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fileCorrupt(path, err.Error())
	}
	data, err := io.ReadAll(plain)
	if err != nil {
		return "", fileCorrupt(path, err.Error())
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

func fileCorrupt(path, reason string) error {
	return errors.New(errors.ErrCodeFileCorrupt, fmt.Sprintf("cannot parse %s: %s", filepath.Base(path), reason), nil).
		WithDetail("path", path)
}
