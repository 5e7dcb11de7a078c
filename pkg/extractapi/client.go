// Package extractapi is an HTTP client for a running process-extract server.
// It covers the asynchronous flow end to end: submit a document with
// UploadAsync, follow the task with GetTaskStatus or PollTask, and fetch the
// persisted record with GetCase.
package extractapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL matches the server's default listen address.
const defaultBaseURL = "http://localhost:8000"

// Client defines the process-extract API operations used by the CLI.
type Client interface {
	UploadAsync(ctx context.Context, req UploadRequest) (*UploadAccepted, error)
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	GetCase(ctx context.Context, caseID string) (*CaseRecord, error)
}

// UploadRequest is the multipart payload for POST /upload/async. CaseID is
// optional; the server generates one when it is empty. ContentType defaults
// to application/pdf.
type UploadRequest struct {
	CaseID      string
	Filename    string
	ContentType string
	Body        io.Reader
}

// UploadAccepted is the 202 response from POST /upload/async.
type UploadAccepted struct {
	TaskID string `json:"task_id"`
	CaseID string `json:"case_id"`
	State  string `json:"state"`
}

// TaskError is the failure attached to a failed task.
type TaskError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TaskStatus is the response from GET /upload/status/{task_id}. Result is set
// only on completed tasks, Error only on failed ones.
type TaskStatus struct {
	TaskID   string      `json:"task_id"`
	CaseID   string      `json:"case_id"`
	State    string      `json:"state"`
	Progress int         `json:"progress"`
	Message  string      `json:"message"`
	Result   *CaseRecord `json:"result,omitempty"`
	Error    *TaskError  `json:"error,omitempty"`
}

// Terminal reports whether the task has finished, successfully or not.
func (s *TaskStatus) Terminal() bool {
	return s.State == "completed" || s.State == "failed"
}

// TimelineEvent is one procedural act in a case timeline.
type TimelineEvent struct {
	EventID     int    `json:"event_id"`
	EventName   string `json:"event_name"`
	Description string `json:"description"`
	Date        string `json:"date"`
	PageInit    int    `json:"page_init"`
	PageEnd     int    `json:"page_end"`
}

// EvidenceItem is one piece of evidence cited in a case.
type EvidenceItem struct {
	EvidenceID   int     `json:"evidence_id"`
	EvidenceName string  `json:"evidence_name"`
	EvidenceFlaw *string `json:"evidence_flaw"`
	PageInit     int     `json:"page_init"`
	PageEnd      int     `json:"page_end"`
}

// CaseRecord is a persisted extraction as returned by GET /extract/{case_id}.
type CaseRecord struct {
	CaseID      string          `json:"case_id"`
	Resume      string          `json:"resume"`
	Timeline    []TimelineEvent `json:"timeline"`
	Evidence    []EvidenceItem  `json:"evidence"`
	PersistedAt time.Time       `json:"persisted_at"`
}

// errorEnvelope is the server's error body shape.
type errorEnvelope struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError is returned when the server responds with a non-2xx status. Kind
// and Message are filled when the body carries the server's error envelope.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("extractapi: HTTP %d: %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("extractapi: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL. An empty baseURL
// falls back to the default listen address.
func NewClient(baseURL string, opts ...Option) Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &httpClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) UploadAsync(ctx context.Context, req UploadRequest) (*UploadAccepted, error) {
	body, contentType, err := encodeUpload(req)
	if err != nil {
		return nil, eris.Wrap(err, "extractapi: encode upload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/async", body)
	if err != nil {
		return nil, eris.Wrap(err, "extractapi: create request")
	}
	httpReq.Header.Set("Content-Type", contentType)

	var resp UploadAccepted
	if err := c.do(httpReq, &resp); err != nil {
		return nil, eris.Wrap(err, "extractapi: upload")
	}
	return &resp, nil
}

func (c *httpClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var resp TaskStatus
	if err := c.get(ctx, fmt.Sprintf("/upload/status/%s", taskID), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("extractapi: task status %s", taskID))
	}
	return &resp, nil
}

func (c *httpClient) GetCase(ctx context.Context, caseID string) (*CaseRecord, error) {
	var resp CaseRecord
	if err := c.get(ctx, fmt.Sprintf("/extract/%s", caseID), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("extractapi: get case %s", caseID))
	}
	return &resp, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeUpload builds the multipart body: a "file" part carrying the document
// and, when present, a "case_id" field. CreateFormFile is not used because it
// pins the part's content type to application/octet-stream and the server
// validates the declared type.
func encodeUpload(req UploadRequest) (io.Reader, string, error) {
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(req.Filename)))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", eris.Wrap(err, "create file part")
	}
	if _, err := io.Copy(part, req.Body); err != nil {
		return nil, "", eris.Wrap(err, "copy file body")
	}

	if req.CaseID != "" {
		if err := w.WriteField("case_id", req.CaseID); err != nil {
			return nil, "", eris.Wrap(err, "write case_id field")
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", eris.Wrap(err, "finalize multipart body")
	}
	return buf, w.FormDataContentType(), nil
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
		var envelope errorEnvelope
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Kind != "" {
			apiErr.Kind = envelope.Error.Kind
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
