package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validExtractionJSON = `{
  "resume": "Ação de cobrança movida por credor contra devedor, com sentença de procedência.",
  "timeline": [
    {"event_id": 0, "event_name": "Petição Inicial", "description": "Distribuição da ação de cobrança", "date": "2024-01-15", "page_init": 1, "page_end": 3},
    {"event_id": 1, "event_name": "Sentença", "description": "Julgamento de procedência do pedido", "date": "2024-06-20", "page_init": 40, "page_end": 45}
  ],
  "evidence": [
    {"evidence_id": 0, "evidence_name": "Contrato de Mútuo", "evidence_flaw": null, "page_init": 5, "page_end": 12},
    {"evidence_id": 1, "evidence_name": "Notificação Extrajudicial", "evidence_flaw": "parcialmente ilegível", "page_init": 13, "page_end": 14}
  ]
}`

func TestValidateExtraction_ValidPayload(t *testing.T) {
	err := ValidateExtraction(BuildExtractionSchema(), []byte(validExtractionJSON))
	require.NoError(t, err)
}

func TestValidateExtraction_EmptyCollections(t *testing.T) {
	payload := `{"resume": "Processo arquivado sem movimentação relevante.", "timeline": [], "evidence": []}`
	require.NoError(t, ValidateExtraction(BuildExtractionSchema(), []byte(payload)))
}

func TestValidateExtraction_MissingResume(t *testing.T) {
	payload := `{"timeline": [], "evidence": []}`
	err := ValidateExtraction(BuildExtractionSchema(), []byte(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match extraction schema")
}

func TestValidateExtraction_BadDateFormat(t *testing.T) {
	payload := `{
	  "resume": "r",
	  "timeline": [{"event_id": 0, "event_name": "Sentença", "description": "d", "date": "15/01/2024", "page_init": 1, "page_end": 1}],
	  "evidence": []
	}`
	err := ValidateExtraction(BuildExtractionSchema(), []byte(payload))
	require.Error(t, err)
}

func TestValidateExtraction_ZeroPageRejected(t *testing.T) {
	payload := `{
	  "resume": "r",
	  "timeline": [{"event_id": 0, "event_name": "Despacho", "description": "d", "date": "2024-01-01", "page_init": 0, "page_end": 1}],
	  "evidence": []
	}`
	require.Error(t, ValidateExtraction(BuildExtractionSchema(), []byte(payload)))
}

func TestValidateExtraction_UnknownFieldRejected(t *testing.T) {
	payload := `{"resume": "r", "timeline": [], "evidence": [], "verdict": "guilty"}`
	require.Error(t, ValidateExtraction(BuildExtractionSchema(), []byte(payload)))
}

func TestValidateExtraction_FlawMayBeOmitted(t *testing.T) {
	payload := `{
	  "resume": "r",
	  "timeline": [],
	  "evidence": [{"evidence_id": 0, "evidence_name": "Laudo Pericial", "page_init": 2, "page_end": 6}]
	}`
	require.NoError(t, ValidateExtraction(BuildExtractionSchema(), []byte(payload)))
}

func TestValidateExtraction_NotJSON(t *testing.T) {
	err := ValidateExtraction(BuildExtractionSchema(), []byte("the document was unreadable"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid json")
}
