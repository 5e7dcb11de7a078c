// Package pipeline drives one extraction from raw input to a persisted case
// record: synchronously for URL and direct-upload requests, and through the
// task registry for the asynchronous upload flow.
package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/juristech/process-extract/internal/config"
	"github.com/juristech/process-extract/internal/document"
	"github.com/juristech/process-extract/internal/extract"
	"github.com/juristech/process-extract/internal/fetcher"
	"github.com/juristech/process-extract/internal/model"
	"github.com/juristech/process-extract/internal/store"
	"github.com/juristech/process-extract/internal/task"
)

// UploadRequest carries one multipart document into the pipeline. Size and
// ContentType are the client's declared values; the content itself is checked
// again after buffering.
type UploadRequest struct {
	CaseID      string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Service orchestrates validation, retrieval, extraction and persistence for
// every entry point. It owns the worker queue for the asynchronous flow.
type Service struct {
	store     store.Store
	registry  *task.Registry
	fetcher   fetcher.Fetcher
	validator *document.Validator
	temp      *document.TempStore
	extractor extract.Extractor

	downloadTimeout time.Duration
	extractTimeout  time.Duration

	queue *task.Queue

	mu     sync.Mutex
	staged map[string]stagedUpload
}

// stagedUpload is the on-disk document a queued task will process.
type stagedUpload struct {
	caseID   string
	filename string
	path     string
}

// NewService wires the orchestrator and starts its worker pool.
func NewService(
	cfg *config.Config,
	st store.Store,
	registry *task.Registry,
	f fetcher.Fetcher,
	validator *document.Validator,
	temp *document.TempStore,
	extractor extract.Extractor,
) *Service {
	s := &Service{
		store:           st,
		registry:        registry,
		fetcher:         f,
		validator:       validator,
		temp:            temp,
		extractor:       extractor,
		downloadTimeout: time.Duration(cfg.Download.TimeoutSecs) * time.Second,
		extractTimeout:  time.Duration(cfg.Extraction.TimeoutSecs) * time.Second,
		staged:          make(map[string]stagedUpload),
	}

	// A task gets the extraction budget plus slack for staging I/O and the
	// database write.
	s.queue = task.NewQueue(s,
		task.WithWorkers(cfg.Tasks.Workers),
		task.WithCapacity(cfg.Tasks.QueueCapacity),
		task.WithTaskTimeout(s.extractTimeout+time.Minute),
	)
	return s
}

// Shutdown stops intake and drains in-flight tasks until ctx expires.
func (s *Service) Shutdown(ctx context.Context) {
	s.queue.Shutdown(ctx)
}

// ExtractFromURL runs the synchronous flow: validate, idempotency lookup,
// download, content check, model extraction, persist. A case persisted
// earlier is served from storage without touching the network.
func (s *Service) ExtractFromURL(ctx context.Context, pdfURL, caseID string) (*model.CaseRecord, error) {
	caseID = strings.TrimSpace(caseID)
	if err := model.ValidateCaseID(caseID); err != nil {
		return nil, model.WrapError(err, model.ErrKindValidation, "%s", err.Error())
	}
	if strings.TrimSpace(pdfURL) == "" {
		return nil, model.NewError(model.ErrKindValidation, "pdf_url is required")
	}

	log := zap.L().With(zap.String("case_id", caseID), zap.String("url", pdfURL))
	log.Info("pipeline: starting url extraction")

	stored, err := s.storedCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		log.Info("pipeline: case already persisted, serving stored record")
		return stored, nil
	}

	data, err := s.download(ctx, pdfURL)
	if err != nil {
		return nil, err
	}

	pages, err := s.validator.CheckContent(data)
	if err != nil {
		return nil, err
	}

	rec, err := s.extractAndPersist(ctx, caseID, caseID+".pdf", data, pages)
	if err != nil {
		return nil, err
	}

	log.Info("pipeline: url extraction complete",
		zap.Int("pages", pages),
		zap.Int("events", len(rec.Timeline)),
		zap.Int("evidence", len(rec.Evidence)))
	return rec, nil
}

// ExtractUpload runs the synchronous flow for an uploaded document. The body
// is buffered in memory; the declared size ceiling caps how much is read.
func (s *Service) ExtractUpload(ctx context.Context, req UploadRequest) (*model.CaseRecord, error) {
	if err := s.validator.CheckUpload(req.Filename, req.ContentType, req.Size); err != nil {
		return nil, err
	}
	caseID, err := resolveCaseID(req.CaseID)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("case_id", caseID), zap.String("filename", req.Filename))
	log.Info("pipeline: starting upload extraction")

	stored, err := s.storedCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		log.Info("pipeline: case already persisted, serving stored record")
		return stored, nil
	}

	data, err := s.buffer(req.Body)
	if err != nil {
		return nil, err
	}

	pages, err := s.validator.CheckContent(data)
	if err != nil {
		return nil, err
	}

	rec, err := s.extractAndPersist(ctx, caseID, document.SanitizeFilename(req.Filename), data, pages)
	if err != nil {
		return nil, err
	}

	log.Info("pipeline: upload extraction complete",
		zap.Int("pages", pages),
		zap.Int("events", len(rec.Timeline)),
		zap.Int("evidence", len(rec.Evidence)))
	return rec, nil
}

// Task returns a snapshot of a registered task.
func (s *Service) Task(taskID string) (model.Task, error) {
	t, err := s.registry.Get(taskID)
	if err != nil {
		return model.Task{}, model.WrapError(err, model.ErrKindNotFound, "task %s not found", taskID)
	}
	return t, nil
}

// Case returns a persisted case record.
func (s *Service) Case(ctx context.Context, caseID string) (*model.CaseRecord, error) {
	rec, err := s.storedCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, model.NewError(model.ErrKindNotFound, "case %s not found", caseID)
	}
	return rec, nil
}

// Cases lists persisted case summaries, newest first.
func (s *Service) Cases(ctx context.Context, filter store.CaseFilter) ([]model.CaseSummary, error) {
	summaries, err := s.store.ListCases(ctx, filter)
	if err != nil {
		return nil, model.WrapError(err, model.ErrKindPersistence, "listing cases failed")
	}
	return summaries, nil
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// download retrieves the document within the configured time ceiling. The
// fetcher caps the byte count; blowing through that cap is a validation
// failure, not a download failure.
func (s *Service) download(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.downloadTimeout)
	defer cancel()

	body, err := s.fetcher.Download(ctx, rawURL)
	if err != nil {
		return nil, classifyDownload(err)
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, classifyDownload(err)
	}
	return data, nil
}

// buffer reads an upload into memory, refusing bodies that outgrow the
// ceiling no matter what Content-Length claimed.
func (s *Service) buffer(r io.Reader) ([]byte, error) {
	max := s.validator.MaxSizeBytes()
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, model.WrapError(err, model.ErrKindUpload, "reading upload failed")
	}
	if int64(len(data)) > max {
		return nil, model.NewError(model.ErrKindValidation, "file too large (limit %d bytes)", max)
	}
	return data, nil
}

// extractAndPersist runs the model over validated bytes and persists the
// result. Losing the insert race to a concurrent writer is success: the
// stored record comes back either way.
func (s *Service) extractAndPersist(ctx context.Context, caseID, filename string, data []byte, pages int) (*model.CaseRecord, error) {
	exCtx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()

	extraction, err := s.extractor.Extract(exCtx, extract.Document{
		CaseID:   caseID,
		Filename: filename,
		Data:     data,
		Pages:    pages,
	})
	if err != nil {
		return nil, classifyExtract(err)
	}

	stored, err := s.store.SaveCase(ctx, model.NewCaseRecord(caseID, extraction))
	if err != nil {
		return nil, model.WrapError(err, model.ErrKindPersistence, "saving extraction failed")
	}
	return stored, nil
}

// storedCase looks a case up for the idempotency check. Absent is (nil, nil).
func (s *Service) storedCase(ctx context.Context, caseID string) (*model.CaseRecord, error) {
	rec, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, model.WrapError(err, model.ErrKindPersistence, "case lookup failed")
	}
	return rec, nil
}

// resolveCaseID validates a caller-supplied case id, or generates one when
// the upload did not name a case.
func resolveCaseID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.GenerateCaseID(), nil
	}
	if err := model.ValidateCaseID(id); err != nil {
		return "", model.WrapError(err, model.ErrKindValidation, "%s", err.Error())
	}
	return id, nil
}

// classifyDownload folds retrieval failures into the error taxonomy.
func classifyDownload(err error) error {
	switch {
	case errors.Is(err, fetcher.ErrTooLarge):
		return model.WrapError(err, model.ErrKindValidation, "document exceeds the size limit")
	case errors.Is(err, context.DeadlineExceeded):
		return model.WrapError(err, model.ErrKindDownload, "download timed out")
	default:
		return model.WrapError(err, model.ErrKindDownload, "document download failed")
	}
}

// classifyExtract leaves already-classified failures alone and folds raw
// extractor errors into the taxonomy.
func classifyExtract(err error) error {
	var pe *model.PipelineError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.WrapError(err, model.ErrKindTimeout, "extraction timed out")
	}
	return model.WrapError(err, model.ErrKindExtraction, "extraction failed")
}
