package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/juristech/process-extract/internal/model"
)

func TestFormatCasesList(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	summaries := []model.CaseSummary{
		{
			CaseID:        "caso-0001",
			Resume:        "Acao de cobranca movida por credor contra devedor inadimplente, com pedido de tutela",
			EventCount:    5,
			EvidenceCount: 2,
			PersistedAt:   now,
		},
		{
			CaseID:        "upload_a1b2c3d4e5f60708",
			Resume:        "Execucao fiscal",
			EventCount:    1,
			EvidenceCount: 0,
			PersistedAt:   now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatCasesList(&buf, summaries)

	output := buf.String()
	assert.Contains(t, output, "CASE_ID")
	assert.Contains(t, output, "EVENTS")
	assert.Contains(t, output, "caso-0001")
	assert.Contains(t, output, "upload_a1b2c3d4e5f60708")
	assert.Contains(t, output, "2026-03-10 09:30")
	assert.Contains(t, output, "Execucao fiscal")
	// The long resume is truncated for display.
	assert.Contains(t, output, "...")
	assert.NotContains(t, output, "pedido de tutela")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "curto", truncate("curto", 10))
	assert.Equal(t, "exactly-10", truncate("exactly-10", 10))
	assert.Equal(t, "muito l...", truncate("muito longo mesmo", 10))
}
