package interfaces

import (
	"context"

	"github.com/hoistscout/hoistscout/internal/models"
)

// ObjectStore persists document blobs under content-addressed keys
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// DocumentService downloads attachment URLs, stores the blobs and extracts
// text. Processing is best-effort: individual failures produce documents
// with status failed rather than an error.
type DocumentService interface {
	Process(ctx context.Context, urls []string) []*models.Document
}

// TextExtractor pulls text and structure out of a downloaded document
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, *models.DocumentMetadata, error)
}
