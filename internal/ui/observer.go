package ui

import (
	"fmt"
	"sync"

	"github.com/Aman-CERP/semsearch/internal/index"
)

// IndexObserver turns indexer callbacks into Renderer events. The indexer
// calls it from several goroutines.
type IndexObserver struct {
	mu       sync.Mutex
	renderer Renderer
	total    int
	done     int
	failed   int
	chunks   int
}

// NewIndexObserver reports to r. total is the number of documents expected,
// or zero when unknown.
func NewIndexObserver(r Renderer, total int) *IndexObserver {
	return &IndexObserver{renderer: r, total: total}
}

// FileStarted implements index.Observer. Progress is only reported once a
// document finishes.
func (o *IndexObserver) FileStarted(string, int) {}

// FileIndexed implements index.Observer.
func (o *IndexObserver) FileIndexed(path string, chunks int) {
	o.mu.Lock()
	o.done++
	o.chunks += chunks
	event := ProgressEvent{
		Stage:       StageIndexing,
		Current:     o.done,
		Total:       o.total,
		CurrentFile: path,
		Chunks:      chunks,
		Message:     fmt.Sprintf("%s (%d chunks)", path, chunks),
	}
	o.mu.Unlock()

	o.renderer.UpdateProgress(event)
}

// FileFailed implements index.Observer.
func (o *IndexObserver) FileFailed(path string, err error) {
	o.mu.Lock()
	o.done++
	o.failed++
	event := ProgressEvent{
		Stage:       StageIndexing,
		Current:     o.done,
		Total:       o.total,
		CurrentFile: path,
	}
	o.mu.Unlock()

	o.renderer.AddError(ErrorEvent{File: path, Err: err})
	o.renderer.UpdateProgress(event)
}

// Counts returns processed, failed and chunk totals so far.
func (o *IndexObserver) Counts() (done, failed, chunks int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done, o.failed, o.chunks
}

var _ index.Observer = (*IndexObserver)(nil)
