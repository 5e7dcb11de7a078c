// Package fetcher retrieves remote process documents over HTTP, HTTPS and FTP.
package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// ErrTooLarge is returned when a remote document exceeds the configured size
// ceiling. Callers treat it as a validation failure, not a download failure.
var ErrTooLarge = eris.New("fetcher: document exceeds size limit")

// Fetcher defines the interface for retrieving remote documents.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Client dispatches downloads by URL scheme: http/https to the HTTP fetcher,
// ftp to the FTP fetcher. Anything else is rejected.
type Client struct {
	http *HTTPFetcher
	ftp  *FTPFetcher
}

// NewClient builds a scheme-dispatching fetcher.
func NewClient(httpFetcher *HTTPFetcher, ftpFetcher *FTPFetcher) *Client {
	return &Client{http: httpFetcher, ftp: ftpFetcher}
}

func (c *Client) fetcherFor(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "parse url")
	}
	switch u.Scheme {
	case "http", "https":
		return c.http, nil
	case "ftp":
		return c.ftp, nil
	default:
		return nil, eris.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

// Download fetches the URL with the fetcher matching its scheme.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := c.fetcherFor(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile fetches the URL to a local file with the fetcher matching its scheme.
func (c *Client) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	f, err := c.fetcherFor(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}

// limitedReadCloser caps the bytes readable from the underlying body. Reading
// past the cap yields ErrTooLarge.
type limitedReadCloser struct {
	rc        io.ReadCloser
	remaining int64
}

func newLimitedReadCloser(rc io.ReadCloser, max int64) io.ReadCloser {
	if max <= 0 {
		return rc
	}
	return &limitedReadCloser{rc: rc, remaining: max}
}

func (l *limitedReadCloser) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrTooLarge
	}
	n, err := l.rc.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}

func (l *limitedReadCloser) Close() error {
	return l.rc.Close()
}
