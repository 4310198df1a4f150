// handlers.go — Session, catalog and export endpoints.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xob0t/GoCard/pkg/catalog"
	"github.com/xob0t/GoCard/pkg/compositor"
	"github.com/xob0t/GoCard/pkg/generator"
)

const (
	maxJSONBody = 1 << 20
	shareQRSize = 256
)

// ── Request and response bodies ──

type templateRequest struct {
	Card   string `json:"card,omitempty"`   // card name in the session's occasion
	Ref    string `json:"ref,omitempty"`    // http(s) URL
	Upload string `json:"upload,omitempty"` // upload ID
}

type displaySize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type createSessionRequest struct {
	Occasion string       `json:"occasion"`
	Display  *displaySize `json:"display,omitempty"`
	templateRequest
}

type sessionResponse struct {
	ID       string `json:"id"`
	Occasion string `json:"occasion"`
	compositor.View
}

type pointerRequest struct {
	Action string          `json:"action"` // down, move, up, click
	X      float64         `json:"x"`
	Y      float64         `json:"y"`
	Rect   compositor.Rect `json:"rect"`
}

type zoomRequest struct {
	Action string  `json:"action"` // in, out, set
	Value  float64 `json:"value"`
}

type shareResponse struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
	QRCode []byte `json:"qrCode"` // PNG, base64 in JSON
}

type occasionView struct {
	catalog.Occasion
	Presets []string                         `json:"presets"`
	Fonts   map[compositor.Language][]string `json:"fonts"`
}

// ── Service endpoints ──

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	host := "n/a"
	if s.svc.Fetcher != nil {
		host = s.svc.Fetcher.BreakerState().String()
	}
	fontsReady := false
	if fs := s.svc.Renderer.Fonts(); fs != nil {
		fontsReady = fs.IsReady()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"sessions":     s.sessions.len(),
		"fontsReady":   fontsReady,
		"templateHost": host,
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	var occasions []catalog.Occasion
	if s.catalog != nil {
		occasions = s.catalog.Occasions
	} else {
		for _, name := range []string{catalog.DefaultOccasion, "founding-day"} {
			occasions = append(occasions, catalog.Occasion{ID: name, Name: name})
		}
	}

	views := make([]occasionView, 0, len(occasions))
	for _, o := range occasions {
		p, err := s.profileFor(o.ID)
		if err != nil {
			s.logger.Warn("skipping occasion with invalid profile", "occasion", o.ID, "error", err)
			continue
		}
		views = append(views, occasionView{Occasion: o, Presets: p.PresetNames(), Fonts: p.Fonts})
	}
	writeJSON(w, http.StatusOK, map[string]any{"occasions": views})
}

// ── Session lifecycle ──

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Occasion == "" {
		req.Occasion = catalog.DefaultOccasion
	}

	profile, err := s.profileFor(req.Occasion)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ref, tmpl, err := s.resolveTemplate(req.Occasion, req.templateRequest)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := compositor.NewSession(s.svc, compositor.SessionOptions{
		Profile:      profile,
		HistoryDepth: s.comp.HistoryDepth,
		Debounce:     s.comp.Debounce,
		Zoom:         compositor.ZoomRange{Min: s.comp.ZoomMin, Max: s.comp.ZoomMax, Step: s.comp.ZoomStep},
		Logger:       s.logger.With("occasion", req.Occasion),
	})
	if err != nil {
		writeCompositorError(w, err)
		return
	}
	e := s.sessions.add(sess, req.Occasion)
	s.logger.Info("session created", "session_id", e.id, "occasion", req.Occasion)

	if req.Display != nil {
		if err := sess.SetDisplay(req.Display.Width, req.Display.Height); err != nil {
			s.sessions.remove(e.id)
			writeCompositorError(w, err)
			return
		}
	}
	// A failed load is reported as a template warning in the view.
	s.bindTemplate(r.Context(), sess, ref, tmpl)

	writeJSON(w, http.StatusCreated, s.viewOf(e))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.viewOf(entryFrom(r)))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	s.sessions.remove(e.id)
	s.logger.Info("session closed", "session_id", e.id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": e.id})
}

func (s *Server) handleSelectTemplate(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ref, tmpl, err := s.resolveTemplate(e.occasion, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ref == "" && tmpl == nil {
		writeError(w, http.StatusBadRequest, "one of card, ref or upload is required")
		return
	}
	if err := s.bindTemplate(r.Context(), e.sess, ref, tmpl); err != nil {
		writeCompositorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(e))
}

// ── Editing ──

func (s *Server) handlePatchStyle(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	var p compositor.StylePatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := e.sess.Patch(p); err != nil {
		writeCompositorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(e))
}

func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := e.sess.ApplyPreset(req.Name); err != nil {
		writeCompositorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(e))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	if err := e.sess.Reset(); err != nil {
		writeCompositorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(e))
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	undone, err := e.sess.Undo()
	if err != nil {
		writeCompositorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Undone bool `json:"undone"`
		sessionResponse
	}{undone, s.viewOf(e)})
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	var req pointerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch req.Action {
	case "down":
		err = e.sess.PointerDown(req.X, req.Y, req.Rect)
	case "move":
		_, err = e.sess.PointerMove(req.X, req.Y, req.Rect)
	case "up":
		e.sess.PointerUp()
	case "click":
		err = e.sess.Click(req.X, req.Y, req.Rect)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown pointer action %q", req.Action))
		return
	}
	if err != nil {
		writeCompositorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(e))
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	var req zoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var z float64
	switch req.Action {
	case "in":
		z = e.sess.ZoomIn()
	case "out":
		z = e.sess.ZoomOut()
	case "set", "":
		z = e.sess.SetZoom(req.Value)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown zoom action %q", req.Action))
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"zoom": z})
}

func (s *Server) handleRetryFonts(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	if err := e.sess.RetryFonts(r.Context()); err != nil {
		s.logger.Warn("font retry failed", "session_id", e.id, "error", err)
	}
	writeJSON(w, http.StatusOK, s.viewOf(e))
}

func (s *Server) handleDismissWarning(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	kind := compositor.WarningKind(chi.URLParam(r, "kind"))
	writeJSON(w, http.StatusOK, map[string]bool{"dismissed": e.sess.DismissWarning(kind)})
}

// ── Output ──

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	dw, _ := strconv.Atoi(r.URL.Query().Get("w"))
	dh, _ := strconv.Atoi(r.URL.Query().Get("h"))
	if dw < 0 || dh < 0 {
		writeError(w, http.StatusBadRequest, "display size must not be negative")
		return
	}

	img, err := e.sess.Preview(r.Context(), dw, dh)
	if err != nil {
		writeCompositorError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := generator.EncodePNG(&buf, img); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	delivered := false
	sink := compositor.SinkFunc(func(_ context.Context, a compositor.Artifact) error {
		delivered = true
		w.Header().Set("Content-Type", a.MIME)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, a.Name))
		w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
		_, err := w.Write(a.Data)
		return err
	})

	if _, err := e.sess.Export(r.Context(), sink); err != nil {
		if !delivered {
			writeCompositorError(w, err)
		}
		return
	}
	s.sessions.touch(e.id)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	sink := &compositor.ShareSink{
		BaseURL: s.comp.ShareBaseURL,
		Message: s.comp.ShareMessage,
		QRSize:  shareQRSize,
	}
	a, err := e.sess.Export(r.Context(), sink)
	if err != nil {
		writeCompositorError(w, err)
		return
	}
	link := sink.Link()
	if link == nil {
		writeError(w, http.StatusInternalServerError, "share link missing")
		return
	}
	writeJSON(w, http.StatusOK, shareResponse{
		Name:   a.Name,
		Width:  a.Width,
		Height: a.Height,
		URL:    link.URL,
		QRCode: link.QRCode,
	})
}

// ── Helpers ──

func (s *Server) viewOf(e *sessionEntry) sessionResponse {
	return sessionResponse{ID: e.id, Occasion: e.occasion, View: e.sess.View()}
}

func (s *Server) profileFor(occasion string) (*compositor.Profile, error) {
	if s.catalog != nil {
		return s.catalog.ProfileFor(occasion)
	}
	if p, ok := compositor.Profiles()[occasion]; ok {
		return p, nil
	}
	return compositor.Profiles()[catalog.DefaultOccasion], nil
}

// resolveTemplate turns a request into a loadable ref or an uploaded
// template. Local paths are only reachable through catalog cards.
func (s *Server) resolveTemplate(occasion string, req templateRequest) (string, *compositor.Template, error) {
	switch {
	case req.Upload != "":
		u, ok := s.uploads.get(req.Upload)
		if !ok {
			return "", nil, fmt.Errorf("upload %q not found", req.Upload)
		}
		return u.Name, u.template, nil
	case req.Card != "":
		if s.catalog == nil {
			return "", nil, errors.New("no catalog configured")
		}
		card, ok := s.catalog.Card(occasion, req.Card)
		if !ok {
			return "", nil, fmt.Errorf("card %q not found in occasion %q", req.Card, occasion)
		}
		o, _ := s.catalog.Occasion(occasion)
		return s.catalog.Resolve(o, card), nil, nil
	case req.Ref != "":
		if !strings.HasPrefix(req.Ref, "http://") && !strings.HasPrefix(req.Ref, "https://") {
			return "", nil, errors.New("ref must be an http(s) URL")
		}
		return req.Ref, nil, nil
	}
	return "", nil, nil
}

func (s *Server) bindTemplate(ctx context.Context, sess *compositor.Session, ref string, tmpl *compositor.Template) error {
	switch {
	case tmpl != nil:
		return sess.UseTemplate(tmpl)
	case ref != "":
		return sess.SelectTemplate(ctx, ref)
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func readFormFile(w http.ResponseWriter, r *http.Request, limit int64) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+maxJSONBody)
	if err := r.ParseMultipartForm(limit); err != nil {
		return "", nil, fmt.Errorf("parse upload: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, errors.New("no file uploaded")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return "", nil, fmt.Errorf("upload exceeds %d bytes", limit)
	}
	return header.Filename, data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeCompositorError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// statusFor maps compositor errors to HTTP status codes.
func statusFor(err error) int {
	var (
		validation *compositor.ExportValidationError
		imageLoad  *compositor.ImageLoadError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, compositor.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, compositor.ErrNoTemplate), errors.Is(err, compositor.ErrStaleLoad):
		return http.StatusConflict
	case errors.As(err, &imageLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, compositor.ErrInvalidInput),
		errors.Is(err, compositor.ErrUnknownPreset),
		errors.Is(err, compositor.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, compositor.ErrFontTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
