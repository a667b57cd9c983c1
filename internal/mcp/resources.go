package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// FilesResourceURI lists the indexed source files.
const FilesResourceURI = "semsearch://files"

// FilesOutput is the JSON body of the files resource.
type FilesOutput struct {
	Files []string `json:"files"`
	Count int      `json:"count"`
}

func (s *Server) registerResources() {
	if s.files == nil {
		return
	}
	s.mcp.AddResource(&mcp.Resource{
		Name:        "indexed_files",
		URI:         FilesResourceURI,
		Description: "Absolute paths of every file with passages in the index",
		MIMEType:    "application/json",
	}, s.handleFilesResource)
}

func (s *Server) handleFilesResource(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	files, err := s.files.Files(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	if files == nil {
		files = []string{}
	}

	content, err := json.MarshalIndent(FilesOutput{Files: files, Count: len(files)}, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      FilesResourceURI,
			MIMEType: "application/json",
			Text:     string(content),
		}},
	}, nil
}
