// Package intake adapts multipart/form-data uploads into tabular records.
//
// The multipart envelope itself is decoded by net/http; this package only
// walks the decoded file parts, runs each one through the tabular
// transform, and collects the results keyed by the part's field name.
// Non-file form fields are discarded here. Either every file parses and
// the full mapping is returned, or the whole call fails with *ParseError;
// partial results are never returned.
package intake

import (
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/datashed/csvintake/internal/tabular"
)

// DefaultMaxMemory is the in-memory budget handed to the multipart
// decoder. Parts beyond it spill to temporary files.
const DefaultMaxMemory int64 = 32 << 20

// Config holds construction-time settings for a Parser. The charset is an
// explicit value here rather than a process-global default.
type Config struct {
	// Charset names the character set of uploaded CSV bytes.
	// Empty means UTF-8.
	Charset string

	// MaxMemory is passed to the multipart decoder. Zero or negative
	// falls back to DefaultMaxMemory.
	MaxMemory int64
}

// Options select per-request shaping. They replace the request-attribute
// side channel the transform options would otherwise ride in on.
type Options struct {
	// FilterColumns restricts every file's output to these columns,
	// in order. Nil keeps all columns.
	FilterColumns []string

	// WithKeys selects map-shaped records instead of ordered rows.
	WithKeys bool
}

// ParseError wraps any failure from the multipart decoder or the tabular
// transform into the single error kind this package surfaces.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("multipart form parse error - %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser extracts uploaded CSV files from multipart requests.
type Parser struct {
	cfg     Config
	decoder *charsetDecoder
}

// NewParser builds a Parser from explicit configuration. An unsupported
// charset name is a construction error, not a per-request one.
func NewParser(cfg Config) (*Parser, error) {
	if cfg.MaxMemory <= 0 {
		cfg.MaxMemory = DefaultMaxMemory
	}
	dec, err := newCharsetDecoder(cfg.Charset)
	if err != nil {
		return nil, err
	}
	return &Parser{cfg: cfg, decoder: dec}, nil
}

// Prepare decodes the request's multipart envelope if that has not
// happened yet. Handlers call it before reading ordinary form values so
// the decode runs with the configured memory budget. Failures surface as
// *ParseError, same as Parse.
func (p *Parser) Prepare(r *http.Request) error {
	if r.MultipartForm != nil {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return &ParseError{Err: fmt.Errorf("invalid content type: %w", err)}
	}
	if !strings.EqualFold(mediaType, "multipart/form-data") {
		return &ParseError{Err: fmt.Errorf("unsupported media type %q", mediaType)}
	}
	if err := r.ParseMultipartForm(p.cfg.MaxMemory); err != nil {
		return &ParseError{Err: err}
	}
	return nil
}

// Parse runs every uploaded file part through the tabular transform and
// returns {field name: records}. Records are [][]tabular.Value rows, or
// []map[string]tabular.Value when opts.WithKeys. Whitespace trimming and
// false-normalization are always applied to file content at this layer.
//
// Lower-casing of column names is deliberately not exposed here even
// though the transform supports it; callers needing it go to the
// transform directly.
func (p *Parser) Parse(r *http.Request, opts Options) (map[string]any, error) {
	if err := p.Prepare(r); err != nil {
		return nil, err
	}

	data := make(map[string]any, len(r.MultipartForm.File))
	for field, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		// Several files under one field name keep the last, matching
		// the last-wins rule for duplicate header names.
		fh := headers[len(headers)-1]

		table, err := p.readFile(fh, opts)
		if err != nil {
			return nil, &ParseError{Err: fmt.Errorf("file %q (field %q): %w", fh.Filename, field, err)}
		}

		if opts.WithKeys {
			data[field] = table.Maps()
		} else {
			data[field] = table.Lists()
		}
	}
	return data, nil
}

func (p *Parser) readFile(fh *multipart.FileHeader, opts Options) (*tabular.Table, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return tabular.Read(p.decoder.Reader(f), tabular.Options{
		FilterColumns:   opts.FilterColumns,
		StripAndFalsify: true,
	})
}

// RowCount reports the number of records in one value of the mapping
// returned by Parse, regardless of shape.
func RowCount(records any) int {
	switch v := records.(type) {
	case [][]tabular.Value:
		return len(v)
	case []map[string]tabular.Value:
		return len(v)
	default:
		return 0
	}
}
