package extract

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildExtractionSchema returns the JSON-Schema (draft 2020-12 subset) the
// model output must satisfy, as a generic map. It is embedded in the prompt
// and used locally to validate the response before unmarshalling.
func BuildExtractionSchema() map[string]any {
	timelineItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"event_id":    map[string]any{"type": "integer", "minimum": 0},
			"event_name":  map[string]any{"type": "string", "minLength": 1},
			"description": map[string]any{"type": "string"},
			"date":        map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
			"page_init":   map[string]any{"type": "integer", "minimum": 1},
			"page_end":    map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []string{"event_id", "event_name", "description", "date", "page_init", "page_end"},
	}
	evidenceItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"evidence_id":   map[string]any{"type": "integer", "minimum": 0},
			"evidence_name": map[string]any{"type": "string", "minLength": 1},
			"evidence_flaw": map[string]any{"type": []string{"string", "null"}},
			"page_init":     map[string]any{"type": "integer", "minimum": 1},
			"page_end":      map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []string{"evidence_id", "evidence_name", "page_init", "page_end"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"resume":   map[string]any{"type": "string", "minLength": 1},
			"timeline": map[string]any{"type": "array", "items": timelineItem},
			"evidence": map[string]any{"type": "array", "items": evidenceItem},
		},
		"required": []string{"resume", "timeline", "evidence"},
	}
}

// ValidateExtraction validates raw model output against the schema map.
func ValidateExtraction(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return eris.Wrap(err, "marshal schema")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", bytes.NewReader(b)); err != nil {
		return eris.Wrap(err, "add schema resource")
	}
	schema, err := compiler.Compile("extraction.json")
	if err != nil {
		return eris.Wrap(err, "compile schema")
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.Wrap(err, "response is not valid json")
	}
	if err := schema.Validate(v); err != nil {
		return eris.Wrap(err, "response does not match extraction schema")
	}
	return nil
}
