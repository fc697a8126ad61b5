package crawl

import (
	"context"

	"github.com/knoguchi/ingestor/internal/batch"
	"github.com/knoguchi/ingestor/internal/ingerrors"
	"github.com/knoguchi/ingestor/internal/ingestion"
)

// contentProcessor is the C4 seam Processor delegates to after fetching a
// page.
type contentProcessor interface {
	ProcessContent(ctx context.Context, source string, data []byte, filePath, ownerID, title string) (ingestion.Result, error)
}

// Processor adapts Fetcher + C4's ContentProcessor into a batch.Processor for
// url-crawl jobs: each batch.Item's Payload is a URL string.
type Processor struct {
	fetcher   *Fetcher
	processor contentProcessor
	ownerID   string
}

// NewProcessor builds a url-crawl batch.Processor.
func NewProcessor(fetcher *Fetcher, processor contentProcessor, ownerID string) *Processor {
	return &Processor{fetcher: fetcher, processor: processor, ownerID: ownerID}
}

func (p *Processor) ProcessItem(ctx context.Context, item batch.Item) (any, error) {
	url, ok := item.Payload.(string)
	if !ok || url == "" {
		return nil, ingerrors.New(ingerrors.Validation, "crawl item payload must be a non-empty URL string")
	}

	page, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	result, err := p.processor.ProcessContent(ctx, url, []byte(page.Text), "", p.ownerID, page.Title)
	if err != nil {
		return nil, err
	}
	return result, nil
}

var _ batch.Processor = (*Processor)(nil)
