package store

import (
	"context"

	"github.com/juristech/process-extract/internal/model"
)

// List paging bounds. Callers asking for nothing get DefaultListLimit rows
// and can never page more than MaxListLimit at a time.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// CaseFilter specifies paging for case listings.
type CaseFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store defines the persistence interface for extracted cases. Case writes
// are first-write-wins: saving a case identifier that already exists leaves
// the stored record untouched and returns it.
type Store interface {
	// Cases
	SaveCase(ctx context.Context, rec *model.CaseRecord) (*model.CaseRecord, error)
	GetCase(ctx context.Context, caseID string) (*model.CaseRecord, error)
	ListCases(ctx context.Context, filter CaseFilter) ([]model.CaseSummary, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
