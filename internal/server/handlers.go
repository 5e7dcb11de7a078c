package server

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/juristech/process-extract/internal/model"
	"github.com/juristech/process-extract/internal/pipeline"
	"github.com/juristech/process-extract/internal/store"
)

// multipartOverhead is headroom on top of the document cap for boundaries
// and the case_id form field.
const multipartOverhead = 64 << 10

type extractRequest struct {
	PDFURL string `json:"pdf_url"`
	CaseID string `json:"case_id"`
}

type uploadAccepted struct {
	TaskID string          `json:"task_id"`
	CaseID string          `json:"case_id"`
	State  model.TaskState `json:"state"`
}

type casesPage struct {
	Cases  []model.CaseSummary `json:"cases"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

type healthBody struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := s.svc.Ping(r.Context()); err != nil {
		s.log.Warn("health: store unreachable", zap.Error(err))
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthBody{Status: status, Version: s.opts.Version})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, model.NewError(model.ErrKindValidation, "request body is not valid JSON"))
		return
	}

	rec, err := s.svc.ExtractFromURL(r.Context(), req.PDFURL, req.CaseID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Case(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	req, file, err := s.uploadRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer file.Close()

	rec, err := s.svc.ExtractUpload(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUploadAsync(w http.ResponseWriter, r *http.Request) {
	req, file, err := s.uploadRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer file.Close()

	t, err := s.svc.EnqueueUpload(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, uploadAccepted{
		TaskID: t.ID,
		CaseID: t.CaseID,
		State:  t.State,
	})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Task(chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summaries, err := s.svc.Cases(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []model.CaseSummary{}
	}
	writeJSON(w, http.StatusOK, casesPage{
		Cases:  summaries,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// uploadRequest reads the multipart form shared by the upload routes. The
// body is capped at the document ceiling plus form overhead so oversized
// requests die before they are buffered.
func (s *Server) uploadRequest(w http.ResponseWriter, r *http.Request) (pipeline.UploadRequest, multipart.File, error) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return pipeline.UploadRequest{}, nil, model.NewError(model.ErrKindValidation,
				"request body exceeds the %d byte upload limit", s.opts.MaxUploadBytes)
		}
		return pipeline.UploadRequest{}, nil, model.NewError(model.ErrKindValidation,
			"multipart field 'file' is required")
	}

	return pipeline.UploadRequest{
		CaseID:      r.FormValue("case_id"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, file, nil
}

// listFilter parses paging query parameters, clamping the limit to the
// store's page ceiling so the echoed page matches what was queried.
func listFilter(r *http.Request) (store.CaseFilter, error) {
	filter := store.CaseFilter{Limit: store.DefaultListLimit}
	q := r.URL.Query()

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return store.CaseFilter{}, model.NewError(model.ErrKindValidation, "limit must be a positive integer")
		}
		filter.Limit = n
	}
	if filter.Limit > store.MaxListLimit {
		filter.Limit = store.MaxListLimit
	}

	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return store.CaseFilter{}, model.NewError(model.ErrKindValidation, "offset must be a non-negative integer")
		}
		filter.Offset = n
	}

	return filter, nil
}
