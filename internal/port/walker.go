package port

import (
	"context"

	"docchat/internal/domain"
)

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// DocumentLoader turns a file into extracted document text.
type DocumentLoader interface {
	Load(ctx context.Context, root, path string) (domain.SourceDocument, error)
}
