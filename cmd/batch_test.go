package main

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juristech/process-extract/internal/model"
)

func TestParseBatchFile(t *testing.T) {
	input := `# documentos pendentes
https://tribunal.example.com/a.pdf, caso-a

https://tribunal.example.com/b.pdf
ftp://mirror.example.com/c.pdf,caso-c
`

	items, err := parseBatchFile(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "https://tribunal.example.com/a.pdf", items[0].URL)
	assert.Equal(t, "caso-a", items[0].CaseID)

	// No case_id on the line means a generated one.
	assert.Equal(t, "https://tribunal.example.com/b.pdf", items[1].URL)
	assert.True(t, strings.HasPrefix(items[1].CaseID, "upload_"), "got case id %q", items[1].CaseID)

	assert.Equal(t, "ftp://mirror.example.com/c.pdf", items[2].URL)
	assert.Equal(t, "caso-c", items[2].CaseID)
}

func TestParseBatchFile_MissingURL(t *testing.T) {
	_, err := parseBatchFile(strings.NewReader(",caso-sem-url\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestProcessBatch(t *testing.T) {
	items := []batchItem{
		{URL: "https://example.com/a.pdf", CaseID: "caso-a"},
		{URL: "https://example.com/b.pdf", CaseID: "caso-b"},
		{URL: "https://example.com/c.pdf", CaseID: "caso-c"},
	}

	var calls atomic.Int64
	err := processBatch(context.Background(), items, 2, func(ctx context.Context, item batchItem) (*model.CaseRecord, error) {
		calls.Add(1)
		if item.CaseID == "caso-b" {
			return nil, eris.New("download failed")
		}
		return &model.CaseRecord{CaseID: item.CaseID}, nil
	})

	// One failed item does not abort the batch.
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestProcessBatch_Empty(t *testing.T) {
	var calls atomic.Int64
	err := processBatch(context.Background(), nil, 4, func(ctx context.Context, item batchItem) (*model.CaseRecord, error) {
		calls.Add(1)
		return nil, nil
	})

	require.NoError(t, err)
	assert.Zero(t, calls.Load())
}
