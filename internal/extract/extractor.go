// Package extract turns a validated legal-process PDF into structured case
// data through a generative model: a narrative resume, the chronological
// timeline of procedural acts and the evidentiary items cited in the record.
package extract

import (
	"context"

	"github.com/juristech/process-extract/internal/model"
)

// Document is a validated PDF ready for extraction.
type Document struct {
	CaseID   string
	Filename string
	Data     []byte
	Pages    int
}

// Extractor produces a structured extraction from a document.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (*model.Extraction, error)
}
