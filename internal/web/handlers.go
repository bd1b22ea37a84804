package web

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/datashed/csvintake/internal/audit"
	"github.com/datashed/csvintake/internal/intake"
	"github.com/datashed/csvintake/internal/logging"
	"github.com/datashed/csvintake/internal/telemetry"
)

// handleParse converts every uploaded CSV file in a multipart request
// into records and returns them keyed by field name.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Intake.MaxFileSize)

	if err := s.limiter.Acquire(r.Context()); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, intake.ErrTooManyParses) {
			status = http.StatusTooManyRequests
		}
		s.respondError(w, r, err, status)
		return
	}
	defer s.limiter.Release()

	// Decode the envelope first so ordinary form values are readable
	// before the file parts are transformed.
	if err := s.parser.Prepare(r); err != nil {
		telemetry.ObserveParse(start, 0, err)
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	data, err := s.parser.Parse(r, parseOptions(r))
	if err != nil {
		telemetry.ObserveParse(start, 0, err)
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	fields := make([]string, 0, len(data))
	rows := 0
	for field, records := range data {
		fields = append(fields, field)
		rows += intake.RowCount(records)
	}
	sort.Strings(fields)

	telemetry.ObserveParse(start, rows, nil)
	s.recordEvent(r, fields, rows)

	writeJSON(w, data)
}

// parseOptions reads the reserved form fields that select output shaping.
// These are ordinary form values (or query parameters), not file parts.
func parseOptions(r *http.Request) intake.Options {
	var opts intake.Options

	if raw := r.FormValue("columns"); raw != "" {
		for _, col := range strings.Split(raw, ",") {
			if col = strings.TrimSpace(col); col != "" {
				opts.FilterColumns = append(opts.FilterColumns, col)
			}
		}
	}

	if raw := r.FormValue("with_keys"); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			opts.WithKeys = b
		}
	}

	return opts
}

// recordEvent writes the parse to the audit trail. Failures are logged
// and never affect the response.
func (s *Server) recordEvent(r *http.Request, fields []string, rows int) {
	err := s.recorder.Record(r.Context(), audit.Event{
		Fields:    fields,
		FileCount: len(fields),
		RowCount:  rows,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("recording parse event failed", "error", err)
	}
}

// handleEvents returns recent parse events, newest first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.recorder.Recent(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	writeJSON(w, map[string]any{"events": events})
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
