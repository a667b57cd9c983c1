package mcp

import "github.com/Aman-CERP/semsearch/internal/search"

// SearchInput is the argument schema of the search tool.
type SearchInput struct {
	Query     string   `json:"query" jsonschema:"natural-language search query"`
	TopK      int      `json:"top_k,omitempty" jsonschema:"maximum number of results, default 5"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"minimum similarity between -1 and 1"`
	Filter    string   `json:"filter,omitempty" jsonschema:"keep only results whose file name contains this text (case-insensitive)"`
}

// SearchOutput is the structured result of the search tool.
type SearchOutput struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

// IndexDirectoryInput is the argument schema of the index_directory tool.
type IndexDirectoryInput struct {
	DirectoryPath string   `json:"directory_path" jsonschema:"directory to index recursively"`
	Extensions    []string `json:"extensions,omitempty" jsonschema:"file extensions to include, e.g. md or .txt"`
}

// EmptyInput is used by tools without arguments.
type EmptyInput struct{}

// ClearOutput is the result of the clear_index tool.
type ClearOutput struct {
	Message string `json:"message"`
}

// toolDescriptions is the single source for registration and tests.
var toolDescriptions = map[string]string{
	"search":          "Semantic search over indexed documents. Returns the passages most similar in meaning to the query, with their source file.",
	"index_directory": "Index every supported document (.md, .txt, .pdf) under a directory. Re-indexing a file replaces its previous passages.",
	"index_stats":     "Report how many passages are indexed and the collection name.",
	"clear_index":     "Delete every indexed passage.",
}
