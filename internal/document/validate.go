// Package document validates uploaded legal-process files and stages them on
// disk for the extraction pipeline.
package document

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/juristech/process-extract/internal/model"
)

const (
	// DefaultMaxSizeBytes is 14 MiB, the largest document the extraction
	// backend accepts in a single request.
	DefaultMaxSizeBytes = 14 << 20

	pdfMagic = "%PDF-"

	// eofWindow is how far back from the end we look for the trailer marker.
	eofWindow = 1024

	maxFilenameLen = 128
)

// ValidatorOptions configures upload policy. Zero values fall back to the
// PDF-only defaults.
type ValidatorOptions struct {
	MaxSizeBytes     int64
	AllowedMIMETypes []string
}

// Validator checks an upload's declared properties before any bytes are
// staged, and its actual content afterwards.
type Validator struct {
	maxSize int64
	allowed map[string]struct{}
}

func NewValidator(opts ValidatorOptions) *Validator {
	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if len(opts.AllowedMIMETypes) == 0 {
		opts.AllowedMIMETypes = []string{"application/pdf"}
	}
	allowed := make(map[string]struct{}, len(opts.AllowedMIMETypes))
	for _, mt := range opts.AllowedMIMETypes {
		allowed[strings.ToLower(strings.TrimSpace(mt))] = struct{}{}
	}
	return &Validator{maxSize: opts.MaxSizeBytes, allowed: allowed}
}

// MaxSizeBytes reports the configured size ceiling.
func (v *Validator) MaxSizeBytes() int64 {
	return v.maxSize
}

// CheckUpload validates declared filename, content type and byte length.
// All violated rules are collected into a single ValidationError so the
// caller sees everything wrong with the upload at once.
func (v *Validator) CheckUpload(filename, contentType string, size int64) error {
	var violations []string

	if size == 0 {
		violations = append(violations, "empty file")
	}
	if size > v.maxSize {
		violations = append(violations, fmt.Sprintf("file too large (%d bytes, limit %d)", size, v.maxSize))
	}

	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	if _, ok := v.allowed[strings.ToLower(mediaType)]; !ok {
		violations = append(violations, fmt.Sprintf("unsupported media type %q", contentType))
	}

	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		violations = append(violations, "filename missing .pdf extension")
	}

	if len(violations) > 0 {
		return model.NewError(model.ErrKindValidation, "invalid upload: %s", strings.Join(violations, "; "))
	}
	return nil
}

// CheckContent inspects staged bytes: the %PDF- header, the trailer marker,
// and a full structural pass. Returns the page count on success.
func (v *Validator) CheckContent(data []byte) (int, error) {
	if !bytes.HasPrefix(data, []byte(pdfMagic)) {
		return 0, model.NewError(model.ErrKindValidation, "not a pdf: magic bytes missing")
	}

	window := data
	if len(window) > eofWindow {
		window = window[len(window)-eofWindow:]
	}
	if !bytes.Contains(window, []byte("%%EOF")) {
		return 0, model.NewError(model.ErrKindValidation, "pdf trailer marker not found, file may be truncated")
	}

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), pdfmodel.NewDefaultConfiguration())
	if err != nil {
		return 0, model.WrapError(err, model.ErrKindValidation, "pdf failed structural validation")
	}
	if ctx.PageCount == 0 {
		return 0, model.NewError(model.ErrKindValidation, "pdf contains no pages")
	}

	return ctx.PageCount, nil
}

// stripMarks folds accented runes to their base form (NFKD, then drop the
// combining marks) so filenames from Brazilian court systems stay readable
// after sanitization.
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeFilename reduces a caller-supplied name to a safe form: directory
// components stripped, diacritics folded, anything outside [A-Za-z0-9._-]
// replaced with underscores, length bounded and a .pdf suffix enforced.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}

	if folded, _, err := transform.String(stripMarks, name); err == nil {
		name = folded
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name = b.String()

	if strings.Trim(name, "._-") == "" {
		return "document.pdf"
	}

	// All runes are ASCII after the loop above, so byte slicing is safe.
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
