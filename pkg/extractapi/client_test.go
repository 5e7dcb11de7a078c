package extractapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL)
	return srv, c
}

func TestUploadAsync(t *testing.T) {
	tests := []struct {
		name        string
		req         UploadRequest
		handler     http.HandlerFunc
		wantTaskID  string
		wantErr     bool
		wantAPIErr  bool
		wantStatus  int
		wantKind    string
		wantMessage string
	}{
		{
			name: "happy path",
			req: UploadRequest{
				CaseID:   "caso-42",
				Filename: "processo.pdf",
				Body:     strings.NewReader("%PDF-1.4 fake body"),
			},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/upload/async", r.URL.Path)
				assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))

				require.NoError(t, r.ParseMultipartForm(32<<20))
				file, header, err := r.FormFile("file")
				require.NoError(t, err)
				defer file.Close()

				data, err := io.ReadAll(file)
				require.NoError(t, err)
				assert.Equal(t, "%PDF-1.4 fake body", string(data))
				assert.Equal(t, "processo.pdf", header.Filename)
				assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
				assert.Equal(t, "caso-42", r.FormValue("case_id"))

				w.WriteHeader(http.StatusAccepted)
				json.NewEncoder(w).Encode(UploadAccepted{TaskID: "task-123", CaseID: "caso-42", State: "queued"})
			},
			wantTaskID: "task-123",
		},
		{
			name: "declared content type is forwarded",
			req: UploadRequest{
				Filename:    "processo.pdf",
				ContentType: "application/x-pdf",
				Body:        strings.NewReader("%PDF-1.4"),
			},
			handler: func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, r.ParseMultipartForm(32<<20))
				_, header, err := r.FormFile("file")
				require.NoError(t, err)
				assert.Equal(t, "application/x-pdf", header.Header.Get("Content-Type"))
				assert.Empty(t, r.FormValue("case_id"))

				w.WriteHeader(http.StatusAccepted)
				json.NewEncoder(w).Encode(UploadAccepted{TaskID: "task-456", CaseID: "upload_0011223344556677", State: "queued"})
			},
			wantTaskID: "task-456",
		},
		{
			name: "validation rejection",
			req: UploadRequest{
				Filename: "notas.txt",
				Body:     strings.NewReader("plain text"),
			},
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(`{"error":{"kind":"ValidationError","message":"file extension is not allowed"}}`))
			},
			wantErr:     true,
			wantAPIErr:  true,
			wantStatus:  422,
			wantKind:    "ValidationError",
			wantMessage: "file extension is not allowed",
		},
		{
			name: "queue saturated",
			req: UploadRequest{
				Filename: "processo.pdf",
				Body:     strings.NewReader("%PDF-1.4"),
			},
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":{"kind":"UploadError","message":"task queue is full, retry shortly"}}`))
			},
			wantErr:     true,
			wantAPIErr:  true,
			wantStatus:  429,
			wantKind:    "UploadError",
			wantMessage: "task queue is full, retry shortly",
		},
		{
			name: "plain server error",
			req: UploadRequest{
				Filename: "processo.pdf",
				Body:     strings.NewReader("%PDF-1.4"),
			},
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("upstream blew up"))
			},
			wantErr:    true,
			wantAPIErr: true,
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newTestServer(t, tt.handler)
			resp, err := c.UploadAsync(context.Background(), tt.req)

			if tt.wantErr {
				require.Error(t, err)
				if tt.wantAPIErr {
					var apiErr *APIError
					require.ErrorAs(t, err, &apiErr)
					assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
					assert.Equal(t, tt.wantKind, apiErr.Kind)
					assert.Equal(t, tt.wantMessage, apiErr.Message)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTaskID, resp.TaskID)
		})
	}
}

func TestGetTaskStatus(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		wantState    string
		wantProgress int
		wantResult   bool
		wantErr      bool
	}{
		{
			name: "completed with result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/upload/status/task-123", r.URL.Path)

				json.NewEncoder(w).Encode(TaskStatus{
					TaskID:   "task-123",
					CaseID:   "caso-42",
					State:    "completed",
					Progress: 100,
					Message:  "extraction complete",
					Result: &CaseRecord{
						CaseID: "caso-42",
						Resume: "Ação de cobrança movida por credor.",
						Timeline: []TimelineEvent{
							{EventID: 1, EventName: "Petição inicial", Date: "2023-02-10", PageInit: 1, PageEnd: 12},
						},
					},
				})
			},
			wantState:    "completed",
			wantProgress: 100,
			wantResult:   true,
		},
		{
			name: "still processing",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(TaskStatus{
					TaskID:   "task-123",
					State:    "processing",
					Progress: 50,
					Message:  "extracting structured data",
				})
			},
			wantState:    "processing",
			wantProgress: 50,
		},
		{
			name: "failed with task error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(TaskStatus{
					TaskID:   "task-123",
					State:    "failed",
					Progress: 30,
					Error:    &TaskError{Kind: "ValidationError", Message: "document failed structural validation"},
				})
			},
			wantState:    "failed",
			wantProgress: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newTestServer(t, tt.handler)
			status, err := c.GetTaskStatus(context.Background(), "task-123")

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, status.State)
			assert.Equal(t, tt.wantProgress, status.Progress)
			if tt.wantResult {
				require.NotNil(t, status.Result)
				assert.Equal(t, "caso-42", status.Result.CaseID)
				assert.Len(t, status.Result.Timeline, 1)
			}
		})
	}
}

func TestGetTaskStatus_Unknown(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"kind":"NotFound","message":"task task-gone not found"}}`))
	})

	_, err := c.GetTaskStatus(context.Background(), "task-gone")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, "NotFound", apiErr.Kind)
}

func TestGetCase(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/extract/caso-42", r.URL.Path)

		flaw := "assinatura ilegível"
		json.NewEncoder(w).Encode(CaseRecord{
			CaseID:      "caso-42",
			Resume:      "Reclamação trabalhista em fase de instrução.",
			Evidence:    []EvidenceItem{{EvidenceID: 1, EvidenceName: "Contrato", EvidenceFlaw: &flaw, PageInit: 3, PageEnd: 9}},
			PersistedAt: time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC),
		})
	})

	rec, err := c.GetCase(context.Background(), "caso-42")
	require.NoError(t, err)
	assert.Equal(t, "caso-42", rec.CaseID)
	require.Len(t, rec.Evidence, 1)
	require.NotNil(t, rec.Evidence[0].EvidenceFlaw)
	assert.Equal(t, "assinatura ilegível", *rec.Evidence[0].EvidenceFlaw)
}

func TestGetCase_NotFound(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"kind":"NotFound","message":"case caso-x not found"}}`))
	})

	_, err := c.GetCase(context.Background(), "caso-x")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, "NotFound", apiErr.Kind)
	assert.Equal(t, "case caso-x not found", apiErr.Message)
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract/caso-1", r.URL.Path)
		json.NewEncoder(w).Encode(CaseRecord{CaseID: "caso-1"})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL + "/")
	rec, err := c.GetCase(context.Background(), "caso-1")
	require.NoError(t, err)
	assert.Equal(t, "caso-1", rec.CaseID)
}

func TestContextCancellation(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Should never reach here
		t.Fatal("request should have been cancelled")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.GetTaskStatus(ctx, "task-123")
	require.Error(t, err)
}

func TestAPIError_Error(t *testing.T) {
	t.Parallel()
	withKind := &APIError{StatusCode: 422, Kind: "ValidationError", Message: "file too large"}
	assert.Equal(t, "extractapi: HTTP 422: ValidationError: file too large", withKind.Error())

	plain := &APIError{StatusCode: 500, Body: "upstream blew up"}
	assert.Equal(t, "extractapi: HTTP 500: upstream blew up", plain.Error())
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()
	customClient := &http.Client{}
	c := NewClient("http://localhost:9999", WithHTTPClient(customClient))
	hc := c.(*httpClient)
	assert.Equal(t, customClient, hc.http)
}

func TestMalformedJSON(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{not json`))
	})

	_, err := c.GetTaskStatus(context.Background(), "task-123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}
