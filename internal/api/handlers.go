package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	scerrors "github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/core/musicxml"
	"github.com/FocuswithJustin/ScoreShift/core/transpose"
	"github.com/FocuswithJustin/ScoreShift/internal/cache"
	"github.com/FocuswithJustin/ScoreShift/internal/logging"
	"github.com/FocuswithJustin/ScoreShift/internal/validation"
)

// Version is reported by / and /health.
const Version = "0.3.0"

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Uptime  string      `json:"uptime"`
	Sheets  int         `json:"sheets"`
	Jobs    int         `json:"jobs"`
	Clients int         `json:"clients"`
	Cache   cache.Stats `json:"cache"`
	History bool        `json:"history"`
}

// KeyInfo is one row of a key table as served by /keys.
type KeyInfo struct {
	Index  int    `json:"index"` // Semitones above C
	Fifths int    `json:"fifths"`
	Name   string `json:"name"`
	Tonic  string `json:"tonic"`
}

// KeyTables lists both key tables.
type KeyTables struct {
	Flat        []KeyInfo `json:"flat"`  // Used when the score has fifths <= 0
	Sharp       []KeyInfo `json:"sharp"` // Used when the score has fifths > 0
	Instruments []string  `json:"instruments"`
}

// NewKeyTables describes the flat and sharp key tables.
func NewKeyTables() KeyTables {
	rows := func(t transpose.KeyTable) []KeyInfo {
		out := make([]KeyInfo, len(t))
		for i, e := range t {
			out[i] = KeyInfo{
				Index:  i,
				Fifths: e.Fifths,
				Name:   transpose.KeyName(e.Fifths, "major"),
				Tonic:  transpose.Tonic(e.Fifths).Name(),
			}
		}
		return out
	}
	return KeyTables{
		Flat:        rows(transpose.TableFor(0)),
		Sharp:       rows(transpose.TableFor(1)),
		Instruments: musicxml.InstrumentNames(),
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"name":    "ScoreShift API",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"GET /keys",
			"POST /transpose",
			"GET /sheets",
			"GET /sheets/{name}",
			"GET /scores/{digest}",
			"GET /history",
			"GET /jobs",
			"POST /jobs",
			"GET /jobs/{id}",
			"DELETE /jobs/{id}",
			"WS /ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	sheets := 0
	if list, err := s.catalog.List(); err == nil {
		sheets = len(list)
	}
	respond(w, http.StatusOK, HealthInfo{
		Status:  "healthy",
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Sheets:  sheets,
		Jobs:    len(s.jobs.List()),
		Clients: s.hub.ClientCount(),
		Cache:   s.cache.Stats(),
		History: s.ledger != nil,
	})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	respond(w, http.StatusOK, NewKeyTables())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	if s.ledger == nil {
		respondError(w, http.StatusNotFound, "HISTORY_DISABLED", "Transposition history is not enabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			respondError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	var (
		entries any
		count   int
		err     error
	)
	if digest := r.URL.Query().Get("input"); digest != "" {
		list, lerr := s.ledger.ForInput(r.Context(), digest)
		entries, count, err = list, len(list), lerr
	} else {
		list, lerr := s.ledger.List(r.Context(), limit)
		entries, count, err = list, len(list), lerr
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondList(w, entries, count)
}

func meta(total int) *APIMeta {
	return &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{Success: true, Data: data, Meta: meta(0)})
}

func respondList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data, Meta: meta(total)})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    meta(0),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorStatus maps an error to an HTTP status and API error code.
// Transposition failures are 422: the request was well formed but the
// score cannot be transposed.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, scerrors.ErrMalformedPitch):
		return http.StatusUnprocessableEntity, "MALFORMED_PITCH"
	case errors.Is(err, scerrors.ErrUnknownKeySignature):
		return http.StatusUnprocessableEntity, "UNKNOWN_KEY_SIGNATURE"
	case errors.Is(err, scerrors.ErrMissingKeySignature):
		return http.StatusUnprocessableEntity, "MISSING_KEY_SIGNATURE"
	case errors.Is(err, scerrors.ErrUnsupportedAlteration):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_ALTERATION"
	case errors.Is(err, validation.ErrScoreTooLarge):
		return http.StatusRequestEntityTooLarge, "SCORE_TOO_LARGE"
	case errors.Is(err, validation.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE"
	case errors.Is(err, scerrors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, scerrors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, scerrors.ErrUnsupported):
		return http.StatusBadRequest, "UNSUPPORTED"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// respondErr writes err with the status chosen by errorStatus. Internal
// errors are logged and their details withheld.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	respondError(w, status, code, msg)
}
