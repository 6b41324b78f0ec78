package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/FocuswithJustin/ScoreShift/core/cas"
	scerrors "github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/core/musicxml"
	"github.com/FocuswithJustin/ScoreShift/core/shift"
	"github.com/FocuswithJustin/ScoreShift/internal/catalog"
	"github.com/FocuswithJustin/ScoreShift/internal/history"
	"github.com/FocuswithJustin/ScoreShift/internal/logging"
	"github.com/FocuswithJustin/ScoreShift/internal/server"
	"github.com/FocuswithJustin/ScoreShift/internal/validation"
)

// MusicXMLContentType is the media type of served scores.
const MusicXMLContentType = "application/vnd.recordare.musicxml+xml"

// MaxSemitones bounds the semitones query parameter.
const MaxSemitones = shift.MaxSemitones

// transposeParams are the query parameters shared by /transpose and /sheets/{name}.
type transposeParams struct {
	expr      shift.Expr
	dropStems bool
	program   int
	pretty    bool
}

// cacheable reports whether equal inputs always give equal outputs.
func (p transposeParams) cacheable() bool {
	return p.expr.Kind != shift.Random
}

func (p transposeParams) cacheKey(data []byte) string {
	return cas.Blake3Key(data,
		p.expr.String(),
		strconv.FormatBool(p.dropStems),
		strconv.Itoa(p.program),
		strconv.FormatBool(p.pretty),
	)
}

// parseTransposeParams reads the shift (semitones or shift) and options
// from q. ok is false when neither shift parameter is present.
func parseTransposeParams(q url.Values) (p transposeParams, ok bool, err error) {
	semitones, expr := q.Get("semitones"), q.Get("shift")
	switch {
	case semitones != "" && expr != "":
		return p, false, scerrors.NewValidation("shift", "use either semitones or shift, not both")
	case semitones != "":
		n, err := strconv.Atoi(semitones)
		if err != nil {
			return p, false, scerrors.NewValidation("semitones", "must be an integer")
		}
		if n < -MaxSemitones || n > MaxSemitones {
			return p, false, scerrors.NewValidation("semitones", "must be between -120 and 120")
		}
		p.expr = shift.Semitones(n)
		ok = true
	case expr != "":
		e, err := shift.Parse(server.LimitStringLength(server.SanitizeUserInput(expr), 64))
		if err != nil {
			return p, false, err
		}
		p.expr = e
		ok = true
	}

	if v := q.Get("drop_stems"); v != "" {
		if p.dropStems, err = strconv.ParseBool(v); err != nil {
			return p, false, scerrors.NewValidation("drop_stems", "must be a boolean")
		}
	}
	if v := q.Get("pretty"); v != "" {
		if p.pretty, err = strconv.ParseBool(v); err != nil {
			return p, false, scerrors.NewValidation("pretty", "must be a boolean")
		}
	}
	if p.program, err = musicxml.ParseInstrument(q.Get("instrument")); err != nil {
		return p, false, err
	}
	return p, ok, nil
}

// transposed is a memoised transposition.
type transposed struct {
	data   []byte
	result musicxml.Result
	input  cas.Ref
	output cas.Ref
}

// transposeScore transposes data, going through the cache for deterministic
// shifts. hit reports whether the result came from the cache. Every
// successful call is recorded under source.
func (s *Server) transposeScore(ctx context.Context, source string, data []byte, p transposeParams) (t *transposed, hit bool, err error) {
	if err := validation.ValidateScore(data); err != nil {
		return nil, false, err
	}
	if p.cacheable() {
		t, hit, err = s.cachedTranspose(ctx, source, data, p)
	} else {
		t, err = s.runTranspose(ctx, source, data, p)
	}
	if err != nil {
		return nil, false, err
	}
	s.record(ctx, source, t)
	return t, hit, nil
}

// cachedTranspose serves p from the cache. An entry whose output is no
// longer in the store is dropped and recomputed so /scores can serve it.
func (s *Server) cachedTranspose(ctx context.Context, source string, data []byte, p transposeParams) (*transposed, bool, error) {
	key := p.cacheKey(data)
	loaded := false
	load := func() (*transposed, error) {
		loaded = true
		return s.runTranspose(ctx, source, data, p)
	}

	t, err := s.cache.GetOrLoad(key, load)
	if err == nil && !loaded && s.store != nil && !s.store.Has(t.output.SHA256) {
		logging.Debug("cached score missing from store", "sha256", t.output.SHA256)
		s.cache.Delete(key)
		t, err = s.cache.GetOrLoad(key, load)
	}
	return t, !loaded && err == nil, err
}

// record writes t to the ledger and the transposition log.
func (s *Server) record(ctx context.Context, source string, t *transposed) {
	res := t.result
	if s.ledger != nil {
		_, err := s.ledger.Record(ctx, history.Entry{
			Source:       source,
			InputBlake3:  t.input.BLAKE3,
			OutputSHA256: t.output.SHA256,
			Semitones:    res.Semitones,
			FromFifths:   res.FromFifths,
			ToFifths:     res.ToFifths,
			Pitches:      res.Pitches,
		})
		if err != nil {
			logging.WarnContext(ctx, "failed to record transposition", "source", source, "error", err)
		}
	}
	logging.TransposeEvent(source, res.Semitones, res.FromFifths, res.ToFifths, res.Pitches,
		"output_sha256", t.output.SHA256)
}

func (s *Server) runTranspose(ctx context.Context, source string, data []byte, p transposeParams) (*transposed, error) {
	doc, err := musicxml.Parse(data)
	if err != nil {
		return nil, err
	}
	fifths := 0
	if p.expr.NeedsKey() {
		if fifths, err = doc.KeySignature(); err != nil {
			return nil, err
		}
	}
	semitones, err := p.expr.ResolveIn(fifths, doc.Mode(), nil)
	if err != nil {
		return nil, err
	}

	out, res, err := musicxml.Transpose(doc, musicxml.Options{
		Semitones:      semitones,
		DropStemLayout: p.dropStems,
		MIDIProgram:    p.program,
	})
	if err != nil {
		if scerrors.IsTranspositionError(err) {
			logging.WarnContext(ctx, "score cannot be transposed", "source", source, "error", err)
		}
		return nil, err
	}
	body := out.Serialize()
	if p.pretty {
		body = musicxml.Format(out, musicxml.FormatOptions{})
	}

	t := &transposed{
		data:   body,
		result: *res,
		input:  cas.Ref{SHA256: cas.Hash(data), BLAKE3: cas.Blake3Hash(data), Size: int64(len(data))},
		output: cas.Ref{SHA256: cas.Hash(body), BLAKE3: cas.Blake3Hash(body), Size: int64(len(body))},
	}
	if s.store != nil {
		if _, err := s.store.Put(data); err != nil {
			return nil, err
		}
		if _, err := s.store.Put(body); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func writeScore(w http.ResponseWriter, t *transposed, hit bool) {
	h := w.Header()
	h.Set("Content-Type", MusicXMLContentType)
	h.Set("X-Score-Sha256", t.output.SHA256)
	h.Set("X-Score-Blake3", t.output.BLAKE3)
	h.Set("X-Transpose-Semitones", strconv.Itoa(t.result.Semitones))
	h.Set("X-Transpose-From-Fifths", strconv.Itoa(t.result.FromFifths))
	h.Set("X-Transpose-To-Fifths", strconv.Itoa(t.result.ToFifths))
	if hit {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(t.data)
}

func writeRaw(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", MusicXMLContentType)
	w.Header().Set("X-Score-Sha256", cas.Hash(data))
	w.Header().Set("X-Score-Blake3", cas.Blake3Hash(data))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleTranspose handles POST /transpose with a raw MusicXML body.
func (s *Server) handleTranspose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}
	if !server.ValidateContentType(r.Header.Get("Content-Type"), server.AllowedScoreContentTypes) {
		respondError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Body must be MusicXML")
		return
	}

	p, ok, err := parseTransposeParams(r.URL.Query())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if !ok {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "semitones or shift is required")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "SCORE_TOO_LARGE", "Request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "MISSING_BODY", "Request body must contain a MusicXML score")
		return
	}

	t, hit, err := s.transposeScore(r.Context(), "upload", data, p)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeScore(w, t, hit)
}

// handleSheets handles GET /sheets, optionally filtered by task and staff.
func (s *Server) handleSheets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	sheets, err := s.catalog.List()
	if err != nil {
		respondErr(w, r, err)
		return
	}

	task, staff := r.URL.Query().Get("task"), r.URL.Query().Get("staff")
	filtered := make([]catalog.Sheet, 0, len(sheets))
	for _, sh := range sheets {
		if (task == "" || sh.Task == task) && (staff == "" || sh.Staff == staff) {
			filtered = append(filtered, sh)
		}
	}
	respondList(w, filtered, len(filtered))
}

// handleSheetByName handles GET /sheets/{name}. Without a shift the sheet
// is served as stored.
func (s *Server) handleSheetByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	name := r.PathValue("name")

	p, ok, err := parseTransposeParams(r.URL.Query())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	data, err := s.catalog.Load(name)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if !ok {
		writeRaw(w, data)
		return
	}

	t, hit, err := s.transposeScore(r.Context(), "sheet:"+name, data, p)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeScore(w, t, hit)
}

// handleScore handles GET /scores/{digest}; either the SHA-256 or the
// BLAKE3 digest of a stored score is accepted.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	if s.store == nil {
		respondError(w, http.StatusNotFound, "STORE_DISABLED", "Score store is not enabled")
		return
	}

	sha, err := s.store.Resolve(r.PathValue("digest"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	data, err := s.store.Get(sha)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeRaw(w, data)
}
