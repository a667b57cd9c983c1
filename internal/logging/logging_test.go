package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Paths and config
// =============================================================================

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()

	assert.Equal(t, LogFileName, filepath.Base(path))
	assert.Equal(t, "logs", filepath.Base(filepath.Dir(path)))
	assert.Contains(t, path, ".semsearch")
}

func TestConfigs(t *testing.T) {
	def := DefaultConfig()
	assert.Equal(t, "info", def.Level)
	assert.Equal(t, 10, def.MaxSizeMB)
	assert.Equal(t, 5, def.MaxFiles)
	assert.True(t, def.WriteToStderr)

	stdio := StdioConfig("debug")
	assert.Equal(t, "debug", stdio.Level)
	assert.False(t, stdio.WriteToStderr, "stdio mode must keep the terminal clean")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestFindLogFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := FindLogFile("")
	assert.Error(t, err)

	explicit := filepath.Join(t.TempDir(), "x.log")
	_, err = FindLogFile(explicit)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(explicit, nil, 0o644))
	got, err := FindLogFile(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
}

// =============================================================================
// Setup
// =============================================================================

func TestSetup_WritesJSONAtLevel(t *testing.T) {
	// Given: a warn-level logger writing only to a file
	path := filepath.Join(t.TempDir(), "nested", "test.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	require.NoError(t, err)

	// When
	logger.Info("dropped")
	logger.Warn("kept", slog.String("file", "a.txt"))
	cleanup()

	// Then: one JSON record with the attribute
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "a.txt", rec["file"])
}

func TestSetup_NoOutputs(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	defer cleanup()

	logger.Info("goes nowhere")
}

func TestSetup_BadLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	_, _, err := Setup(Config{Level: "loud", FilePath: path})

	assert.Error(t, err)
}

// =============================================================================
// RotatingWriter
// =============================================================================

func TestRotatingWriter_Rotates(t *testing.T) {
	// Given: a 1 MB limit and three rotated files at most
	path := filepath.Join(t.TempDir(), "r.log")
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	line := bytes.Repeat([]byte("x"), 400*1024)

	// When: writing ten 400 KB records
	for i := 0; i < 10; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	// Then: rotated files exist up to the limit and never beyond
	for i := 1; i <= 3; i++ {
		assert.FileExists(t, fmt.Sprintf("%s.%d", path, i))
	}
	assert.NoFileExists(t, path+".4")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(1024*1024))
}

func TestRotatingWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "c.log"), 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, w.Sync())
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cc.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = fmt.Fprintf(w, "goroutine %d line %d\n", g, i)
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 400)
}

// =============================================================================
// Viewer
// =============================================================================

const sampleLog = `{"time":"2026-01-02T10:00:00.000Z","level":"DEBUG","msg":"search_complete","results":3}
{"time":"2026-01-02T10:00:01.000Z","level":"INFO","msg":"index_complete","indexed":2,"failed":0}
not json at all
{"time":"2026-01-02T10:00:02.000Z","level":"WARN","msg":"file_failed","file":"b.pdf"}
{"time":"2026-01-02T10:00:03.000Z","level":"ERROR","msg":"save_failed"}
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "semsearch.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	return path
}

func TestParseEntry(t *testing.T) {
	e := ParseEntry(`{"time":"2026-01-02T10:00:02.5Z","level":"WARN","msg":"file_failed","file":"b.pdf"}`)

	assert.True(t, e.Valid)
	assert.Equal(t, "WARN", e.Level)
	assert.Equal(t, "file_failed", e.Msg)
	assert.Equal(t, map[string]any{"file": "b.pdf"}, e.Attrs)
	assert.Equal(t, 500*time.Millisecond, time.Duration(e.Time.Nanosecond()))

	bad := ParseEntry("plain text")
	assert.False(t, bad.Valid)
	assert.Equal(t, "plain text", bad.Raw)
}

func TestViewer_Tail(t *testing.T) {
	path := writeSample(t)

	tests := []struct {
		name    string
		cfg     ViewerConfig
		n       int
		wantMsg []string
	}{
		{"all lines", ViewerConfig{MinLevel: slog.LevelDebug}, 100, []string{"search_complete", "index_complete", "", "file_failed", "save_failed"}},
		{"last two", ViewerConfig{MinLevel: slog.LevelDebug}, 2, []string{"file_failed", "save_failed"}},
		{"warn and above", ViewerConfig{MinLevel: slog.LevelWarn}, 100, []string{"", "file_failed", "save_failed"}},
		{"pattern", ViewerConfig{MinLevel: slog.LevelDebug, Pattern: regexp.MustCompile(`index`)}, 100, []string{"index_complete"}},
		{"zero lines", ViewerConfig{}, 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewViewer(tt.cfg, &bytes.Buffer{})

			entries, err := v.Tail(path, tt.n)

			require.NoError(t, err)
			msgs := make([]string, 0, len(entries))
			for _, e := range entries {
				msgs = append(msgs, e.Msg)
			}
			assert.Equal(t, tt.wantMsg, msgs)
		})
	}
}

func TestViewer_TailMissingFile(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	_, err := v.Tail(filepath.Join(t.TempDir(), "none.log"), 10)

	assert.Error(t, err)
}

func TestViewer_PrintPlain(t *testing.T) {
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)

	v.Print([]Entry{
		ParseEntry(`{"time":"2026-01-02T10:00:01.000Z","level":"INFO","msg":"index_complete","indexed":2,"failed":0}`),
		ParseEntry("raw line"),
	})

	assert.Equal(t, "10:00:01.000 INFO  index_complete failed=0 indexed=2\nraw line\n", out.String())
}

func TestViewer_Follow(t *testing.T) {
	// Given: a follower started on an existing log
	path := writeSample(t)
	v := NewViewer(ViewerConfig{MinLevel: slog.LevelInfo}, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries := make(chan Entry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	// Wait for the follower to seek to the end before appending.
	time.Sleep(150 * time.Millisecond)

	// When: appending a debug line and an info line
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"time":"2026-01-02T11:00:00Z","level":"DEBUG","msg":"hidden"}` + "\n" +
		`{"time":"2026-01-02T11:00:01Z","level":"INFO","msg":"fresh"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the new info line arrives
	select {
	case e := <-entries:
		assert.Equal(t, "fresh", e.Msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no entry followed")
	}

	cancel()
	assert.NoError(t, <-done)
}
