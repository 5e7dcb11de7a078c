package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juristech/process-extract/internal/config"
	"github.com/juristech/process-extract/internal/document"
	"github.com/juristech/process-extract/internal/extract"
	"github.com/juristech/process-extract/internal/store"
	"github.com/juristech/process-extract/internal/task"
)

// buildTestPDF produces a one-page PDF with correct xref offsets so the
// structural pass accepts it.
func buildTestPDF(text string) []byte {
	escaped := strings.ReplaceAll(text, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "(", `\(`)
	escaped = strings.ReplaceAll(escaped, ")", `\)`)

	stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + escaped + ") Tj\nET"

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	offsets := make([]int, 6)

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\nendobj\n")

	offsets[4] = b.Len()
	fmt.Fprintf(&b, "4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(stream), stream)

	offsets[5] = b.Len()
	b.WriteString("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xrefOffset := b.Len()
	b.WriteString("xref\n0 6\n")
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	return []byte(b.String())
}

// stubFetcher serves canned bytes, a canned body or a canned error for any
// URL.
type stubFetcher struct {
	data []byte
	body io.ReadCloser
	err  error
}

func (f *stubFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.body != nil {
		return f.body, nil
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (f *stubFetcher) DownloadToFile(ctx context.Context, url, path string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(f.data)), nil
}

// failingReader yields its error on the first Read, mimicking a body that
// dies mid-stream.
type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }
func (r *failingReader) Close() error             { return nil }

// zeroReader is an endless stream of zero bytes.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// testEnv is a Service wired over a real SQLite store, a real temp store and
// deterministic fakes for the network and the model.
type testEnv struct {
	svc      *Service
	store    store.Store
	registry *task.Registry
	temp     *document.TempStore
	mock     *extract.MockExtractor
	fetch    *stubFetcher
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvSized(t, 2, 8)
}

func newTestEnvSized(t *testing.T, workers, capacity int) *testEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cases.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	temp, err := document.NewTempStore(t.TempDir(), time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		store:    st,
		registry: task.NewRegistry(time.Hour),
		temp:     temp,
		mock:     &extract.MockExtractor{},
		fetch:    &stubFetcher{data: buildTestPDF("Processo 0001234-55.2023.8.26.0100")},
	}

	cfg := &config.Config{}
	cfg.Download.TimeoutSecs = 5
	cfg.Extraction.TimeoutSecs = 5
	cfg.Tasks.Workers = workers
	cfg.Tasks.QueueCapacity = capacity

	env.svc = NewService(cfg, st, env.registry, env.fetch, document.NewValidator(document.ValidatorOptions{}), temp, env.mock)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		env.svc.Shutdown(ctx)
	})
	return env
}

// pdfUpload builds an UploadRequest around the given bytes with truthful
// declared properties.
func pdfUpload(caseID string, data []byte) UploadRequest {
	return UploadRequest{
		CaseID:      caseID,
		Filename:    "processo.pdf",
		ContentType: "application/pdf",
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	}
}
