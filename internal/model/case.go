package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// DateFormat is the wire format for timeline event dates.
const DateFormat = "2006-01-02"

// MaxCaseIDLength bounds client-supplied case identifiers.
const MaxCaseIDLength = 100

var caseIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateCaseID checks a client-supplied case identifier: non-empty, at most
// MaxCaseIDLength runes, alphanumerics plus '-', '_' and '.'.
func ValidateCaseID(id string) error {
	if id == "" {
		return eris.New("case_id is required")
	}
	if len(id) > MaxCaseIDLength {
		return eris.Errorf("case_id exceeds %d characters", MaxCaseIDLength)
	}
	if !caseIDPattern.MatchString(id) {
		return eris.New("case_id may only contain letters, digits, '-', '_' and '.'")
	}
	return nil
}

// GenerateCaseID produces a case identifier for uploads that did not supply one.
func GenerateCaseID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "upload_" + hex[:16]
}

// TimelineEvent is a single procedural act in the chronological timeline of a
// legal process, anchored to the page range where it appears.
type TimelineEvent struct {
	EventID     int    `json:"event_id"`
	EventName   string `json:"event_name"`
	Description string `json:"description"`
	Date        string `json:"date"`
	PageInit    int    `json:"page_init"`
	PageEnd     int    `json:"page_end"`
}

// Validate checks structural invariants: a name, a YYYY-MM-DD date and a
// page range with 1 <= page_init <= page_end.
func (e TimelineEvent) Validate() error {
	if e.EventName == "" {
		return eris.Errorf("event %d: event_name is required", e.EventID)
	}
	if _, err := time.Parse(DateFormat, e.Date); err != nil {
		return eris.Errorf("event %d: date %q is not YYYY-MM-DD", e.EventID, e.Date)
	}
	if e.PageInit < 1 {
		return eris.Errorf("event %d: page_init %d is below 1", e.EventID, e.PageInit)
	}
	if e.PageEnd < e.PageInit {
		return eris.Errorf("event %d: page_end %d precedes page_init %d", e.EventID, e.PageEnd, e.PageInit)
	}
	return nil
}

// EvidenceItem is a piece of evidence cited in the process. EvidenceFlaw is
// nil when the extraction found no defect worth flagging.
type EvidenceItem struct {
	EvidenceID   int     `json:"evidence_id"`
	EvidenceName string  `json:"evidence_name"`
	EvidenceFlaw *string `json:"evidence_flaw"`
	PageInit     int     `json:"page_init"`
	PageEnd      int     `json:"page_end"`
}

// Validate checks structural invariants mirroring TimelineEvent.Validate.
func (e EvidenceItem) Validate() error {
	if e.EvidenceName == "" {
		return eris.Errorf("evidence %d: evidence_name is required", e.EvidenceID)
	}
	if e.PageInit < 1 {
		return eris.Errorf("evidence %d: page_init %d is below 1", e.EvidenceID, e.PageInit)
	}
	if e.PageEnd < e.PageInit {
		return eris.Errorf("evidence %d: page_end %d precedes page_init %d", e.EvidenceID, e.PageEnd, e.PageInit)
	}
	return nil
}

// Extraction is the structured output of a single model pass over a document,
// before it is persisted under a case.
type Extraction struct {
	Resume   string          `json:"resume"`
	Timeline []TimelineEvent `json:"timeline"`
	Evidence []EvidenceItem  `json:"evidence"`
}

// Validate checks the extraction as a whole: a non-empty resume and every
// timeline event and evidence item individually valid.
func (x *Extraction) Validate() error {
	if strings.TrimSpace(x.Resume) == "" {
		return eris.New("resume is required")
	}
	for _, ev := range x.Timeline {
		if err := ev.Validate(); err != nil {
			return err
		}
	}
	for _, item := range x.Evidence {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CaseRecord is a persisted extraction keyed by case identifier.
type CaseRecord struct {
	CaseID      string          `json:"case_id"`
	Resume      string          `json:"resume"`
	Timeline    []TimelineEvent `json:"timeline"`
	Evidence    []EvidenceItem  `json:"evidence"`
	PersistedAt time.Time       `json:"persisted_at"`
}

// NewCaseRecord binds an extraction to a case identifier. PersistedAt is
// stamped by the store on insert.
func NewCaseRecord(caseID string, x *Extraction) *CaseRecord {
	return &CaseRecord{
		CaseID:   caseID,
		Resume:   x.Resume,
		Timeline: x.Timeline,
		Evidence: x.Evidence,
	}
}

// Clone returns a deep copy so callers can hand records out without sharing
// slice backing arrays.
func (r *CaseRecord) Clone() *CaseRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Timeline = make([]TimelineEvent, len(r.Timeline))
	copy(out.Timeline, r.Timeline)
	out.Evidence = make([]EvidenceItem, len(r.Evidence))
	for i, item := range r.Evidence {
		out.Evidence[i] = item
		if item.EvidenceFlaw != nil {
			flaw := *item.EvidenceFlaw
			out.Evidence[i].EvidenceFlaw = &flaw
		}
	}
	return &out
}

// CaseSummary is the listing row for a persisted case.
type CaseSummary struct {
	CaseID        string    `json:"case_id"`
	Resume        string    `json:"resume"`
	EventCount    int       `json:"event_count"`
	EvidenceCount int       `json:"evidence_count"`
	PersistedAt   time.Time `json:"persisted_at"`
}
