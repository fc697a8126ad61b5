package ingestion

import (
	"context"
	"os"

	"github.com/knoguchi/ingestor/internal/batch"
	"github.com/knoguchi/ingestor/internal/ingerrors"
)

// FileProcessor adapts ContentProcessor into a batch.Processor for
// folder-import jobs: each batch.Item's Payload is a filesystem path.
type FileProcessor struct {
	processor *ContentProcessor
	ownerID   string
}

// NewFileProcessor builds a folder-import batch.Processor.
func NewFileProcessor(processor *ContentProcessor, ownerID string) *FileProcessor {
	return &FileProcessor{processor: processor, ownerID: ownerID}
}

func (p *FileProcessor) ProcessItem(ctx context.Context, item batch.Item) (any, error) {
	path, ok := item.Payload.(string)
	if !ok || path == "" {
		return nil, ingerrors.New(ingerrors.Validation, "folder-import item payload must be a non-empty file path")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ingerrors.Wrap(ingerrors.Validation, "read file "+path, err)
	}

	return p.processor.ProcessContent(ctx, path, data, path, p.ownerID, "")
}

var _ batch.Processor = (*FileProcessor)(nil)
