// Package export dumps persisted cases into an XLSX workbook, one sheet per
// entity: cases, timeline events and evidence items.
package export

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/juristech/process-extract/internal/model"
	"github.com/juristech/process-extract/internal/store"
)

// Sheet names in the exported workbook.
const (
	SheetCases    = "Cases"
	SheetTimeline = "Timeline"
	SheetEvidence = "Evidence"
)

// Stats summarizes a finished export.
type Stats struct {
	Cases    int
	Events   int
	Evidence int
}

// Exporter reads persisted cases and writes XLSX workbooks.
type Exporter struct {
	store store.Store
	log   *zap.Logger
}

func NewExporter(st store.Store) *Exporter {
	return &Exporter{store: st, log: zap.L().Named("export")}
}

// WriteWorkbook exports every stored case to an XLSX workbook at path. It
// pages through the case listing so memory stays bounded by one page of
// summaries plus the workbook itself.
func (e *Exporter) WriteWorkbook(ctx context.Context, path string) (Stats, error) {
	f, stats, err := e.build(ctx)
	if err != nil {
		return Stats{}, err
	}
	if err := f.Save(path); err != nil {
		return Stats{}, eris.Wrap(err, "export: save workbook")
	}
	e.log.Info("export: workbook written",
		zap.String("path", path),
		zap.Int("cases", stats.Cases),
		zap.Int("events", stats.Events),
		zap.Int("evidence", stats.Evidence),
	)
	return stats, nil
}

func (e *Exporter) build(ctx context.Context) (*xlsx.File, Stats, error) {
	f := xlsx.NewFile()

	cases, err := f.AddSheet(SheetCases)
	if err != nil {
		return nil, Stats{}, eris.Wrap(err, "export: add cases sheet")
	}
	timeline, err := f.AddSheet(SheetTimeline)
	if err != nil {
		return nil, Stats{}, eris.Wrap(err, "export: add timeline sheet")
	}
	evidence, err := f.AddSheet(SheetEvidence)
	if err != nil {
		return nil, Stats{}, eris.Wrap(err, "export: add evidence sheet")
	}

	headerRow(cases, "case_id", "resume", "events", "evidence_items", "persisted_at")
	headerRow(timeline, "case_id", "event_id", "event_name", "description", "date", "page_init", "page_end")
	headerRow(evidence, "case_id", "evidence_id", "evidence_name", "evidence_flaw", "page_init", "page_end")

	var stats Stats
	filter := store.CaseFilter{Limit: store.MaxListLimit}
	for {
		summaries, err := e.store.ListCases(ctx, filter)
		if err != nil {
			return nil, Stats{}, eris.Wrap(err, "export: list cases")
		}
		if len(summaries) == 0 {
			break
		}

		for _, summary := range summaries {
			rec, err := e.store.GetCase(ctx, summary.CaseID)
			if err != nil {
				return nil, Stats{}, eris.Wrap(err, "export: load case "+summary.CaseID)
			}
			if rec == nil {
				// Listed but gone by the time we loaded it.
				continue
			}
			appendCase(cases, timeline, evidence, rec)
			stats.Cases++
			stats.Events += len(rec.Timeline)
			stats.Evidence += len(rec.Evidence)
		}

		if len(summaries) < filter.Limit {
			break
		}
		filter.Offset += len(summaries)
	}
	return f, stats, nil
}

func appendCase(cases, timeline, evidence *xlsx.Sheet, rec *model.CaseRecord) {
	row := cases.AddRow()
	row.AddCell().SetString(rec.CaseID)
	row.AddCell().SetString(rec.Resume)
	row.AddCell().SetInt(len(rec.Timeline))
	row.AddCell().SetInt(len(rec.Evidence))
	row.AddCell().SetString(rec.PersistedAt.UTC().Format(time.RFC3339))

	for _, ev := range rec.Timeline {
		r := timeline.AddRow()
		r.AddCell().SetString(rec.CaseID)
		r.AddCell().SetInt(ev.EventID)
		r.AddCell().SetString(ev.EventName)
		r.AddCell().SetString(ev.Description)
		r.AddCell().SetString(ev.Date)
		r.AddCell().SetInt(ev.PageInit)
		r.AddCell().SetInt(ev.PageEnd)
	}

	for _, item := range rec.Evidence {
		r := evidence.AddRow()
		r.AddCell().SetString(rec.CaseID)
		r.AddCell().SetInt(item.EvidenceID)
		r.AddCell().SetString(item.EvidenceName)
		flaw := ""
		if item.EvidenceFlaw != nil {
			flaw = *item.EvidenceFlaw
		}
		r.AddCell().SetString(flaw)
		r.AddCell().SetInt(item.PageInit)
		r.AddCell().SetInt(item.PageEnd)
	}
}

func headerRow(sheet *xlsx.Sheet, names ...string) {
	row := sheet.AddRow()
	for _, name := range names {
		row.AddCell().SetString(name)
	}
}
