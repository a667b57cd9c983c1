package chunk

// Window defaults, in characters.
const (
	DefaultSize    = 512
	DefaultOverlap = 100
)

// Chunk is one passage of a source document.
type Chunk struct {
	Text       string // normalized passage text
	SourceFile string // path of the document it came from
	Index      int    // 0-based, contiguous per file
}

// Options controls the sliding window.
type Options struct {
	Size    int
	Overlap int
}

// DefaultOptions returns the 512/100 window.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap}
}
