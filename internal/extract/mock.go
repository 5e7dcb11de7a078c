package extract

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/juristech/process-extract/internal/model"
)

// MockExtractor returns canned extraction data without calling any model. It
// backs the --mock flag so the service runs end to end with no API key, and
// gives tests a deterministic extractor.
type MockExtractor struct {
	// Delay simulates model latency before each response.
	Delay time.Duration
	// Err, when set, is returned instead of data.
	Err error

	calls atomic.Int64
}

// Extract returns a fixed Brazilian civil-action extraction.
func (m *MockExtractor) Extract(ctx context.Context, doc Document) (*model.Extraction, error) {
	m.calls.Add(1)
	zap.L().Info("mock extraction", zap.String("case_id", doc.CaseID), zap.Int("pages", doc.Pages))

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}

	flaw := "parcialmente ilegível"
	return &model.Extraction{
		Resume: "Ação civil de cobrança entre partes fictícias, gerada pelo extrator de demonstração para validar o fluxo completo de extração estruturada.",
		Timeline: []model.TimelineEvent{
			{EventID: 0, EventName: "Distribuição do Processo", Description: "Processo distribuído para análise inicial", Date: "2024-01-15", PageInit: 1, PageEnd: 2},
			{EventID: 1, EventName: "Citação/Intimação", Description: "Citação da parte requerida realizada com sucesso", Date: "2024-02-01", PageInit: 3, PageEnd: 4},
			{EventID: 2, EventName: "Manifestação das Partes", Description: "Defesa apresentada dentro do prazo legal", Date: "2024-02-15", PageInit: 5, PageEnd: 8},
		},
		Evidence: []model.EvidenceItem{
			{EvidenceID: 0, EvidenceName: "Contrato Social", EvidenceFlaw: &flaw, PageInit: 9, PageEnd: 12},
			{EvidenceID: 1, EvidenceName: "Comprovante de Pagamento", PageInit: 13, PageEnd: 13},
		},
	}, nil
}

// CallCount reports how many extractions were requested.
func (m *MockExtractor) CallCount() int64 {
	return m.calls.Load()
}
