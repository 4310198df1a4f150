// uploads.go — In-memory store of uploaded card templates.
package server

import (
	"mime"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/xob0t/GoCard/pkg/compositor"
)

const (
	maxTemplateUpload = 32 << 20
	maxFontUpload     = 10 << 20
)

type upload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIME     string `json:"mime"`
	Size     int    `json:"size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	URL      string `json:"url"`
	data     []byte
	template *compositor.Template
}

type uploadStore struct {
	mu    sync.RWMutex
	items map[string]*upload
}

func newUploadStore() *uploadStore {
	return &uploadStore{items: make(map[string]*upload)}
}

func (us *uploadStore) add(name string, data []byte, tmpl *compositor.Template) *upload {
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	id := ulid.Make().String()
	u := &upload{
		ID:       id,
		Name:     name,
		MIME:     mimeType,
		Size:     len(data),
		Width:    tmpl.Width,
		Height:   tmpl.Height,
		URL:      "/api/uploads/" + id,
		data:     data,
		template: tmpl,
	}
	us.mu.Lock()
	us.items[id] = u
	us.mu.Unlock()
	return u
}

func (us *uploadStore) get(id string) (*upload, bool) {
	us.mu.RLock()
	u, ok := us.items[id]
	us.mu.RUnlock()
	return u, ok
}

func (us *uploadStore) list() []*upload {
	us.mu.RLock()
	defer us.mu.RUnlock()
	out := make([]*upload, 0, len(us.items))
	for _, u := range us.items {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (us *uploadStore) remove(id string) bool {
	us.mu.Lock()
	defer us.mu.Unlock()
	_, ok := us.items[id]
	delete(us.items, id)
	return ok
}

// ── Handlers ──

func (s *Server) handleUploadTemplate(w http.ResponseWriter, r *http.Request) {
	name, data, err := readFormFile(w, r, maxTemplateUpload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tmpl, err := compositor.DecodeTemplate(name, data)
	if err != nil {
		writeCompositorError(w, err)
		return
	}
	u := s.uploads.add(name, data, tmpl)
	s.logger.Info("template uploaded", "upload_id", u.ID, "name", name, "width", u.Width, "height", u.Height)
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	u, ok := s.uploads.get(chi.URLParam(r, "uid"))
	if !ok {
		writeError(w, http.StatusNotFound, "upload not found")
		return
	}
	w.Header().Set("Content-Type", u.MIME)
	w.Write(u.data)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.uploads.list())
}

func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uid")
	if !s.uploads.remove(id) {
		writeError(w, http.StatusNotFound, "upload not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (s *Server) handleUploadFont(w http.ResponseWriter, r *http.Request) {
	name, data, err := readFormFile(w, r, maxFontUpload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fonts := s.svc.Renderer.Fonts()
	if fonts == nil {
		writeError(w, http.StatusServiceUnavailable, "font service unavailable")
		return
	}

	family := strings.TrimSpace(r.FormValue("family"))
	if family == "" {
		family = strings.TrimSuffix(name, filepath.Ext(name))
	}
	weight := compositor.Weight(r.FormValue("weight"))
	if weight == "" {
		weight = compositor.WeightNormal
	}
	slant := compositor.Slant(r.FormValue("slant"))
	if slant == "" {
		slant = compositor.SlantNormal
	}

	if err := fonts.Register(family, weight, slant, data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.sessions.each(func(e *sessionEntry) { e.sess.Refresh() })
	s.logger.Info("font registered", "family", family, "weight", weight, "slant", slant)
	writeJSON(w, http.StatusCreated, map[string]string{
		"family": family,
		"weight": string(weight),
		"slant":  string(slant),
	})
}
