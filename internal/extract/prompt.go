package extract

import (
	"encoding/json"
	"fmt"
)

// systemPrompt sets the analyst persona. It is identical across documents so
// every request after the first reads it from the prompt cache.
const systemPrompt = `You are a legal expert analyzing Brazilian legal-process documents. You read the attached PDF itself, not a transcription of it, and you identify procedural facts, their dates and the pages where they appear. You answer with JSON only, no prose and no markdown fences.`

// userPrompt builds the per-document instruction with the output schema inlined.
func userPrompt(doc Document) string {
	schemaJSON, _ := json.MarshalIndent(BuildExtractionSchema(), "", "  ")

	return fmt.Sprintf(`Extract structured data from the attached legal-process document (case %s, %d pages). Return ONLY valid JSON matching this schema:

%s

Rules:
- resume: concise narrative summary of the whole process
- Convert every date to YYYY-MM-DD
- When the same event is mentioned more than once, keep the most relevant or most recent mention
- page_init and page_end refer to pages of the PDF itself
- For event_name use proper legal vocabulary, e.g. "Petição Inicial", "Decisão Interlocutória", "Citação/Intimação", "Audiência/Sessão", "Manifestação das Partes", "Sentença", "Recurso", "Despacho"
- For evidence_flaw describe defects such as "parcialmente ilegível"; use null when the item has no flaw
- If page_end would precede page_init, set page_end = page_init
- event_id and evidence_id are sequential starting at 0
- Base every field on the document content alone, never on assumptions`,
		doc.CaseID, doc.Pages, schemaJSON)
}
