package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/xob0t/GoCard/internal/config"
	"github.com/xob0t/GoCard/pkg/catalog"
	"github.com/xob0t/GoCard/pkg/compositor"
	"github.com/xob0t/GoCard/pkg/generator"
)

// --- test doubles ---

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testServices(t *testing.T) compositor.Services {
	t.Helper()
	fonts, err := compositor.NewFontService(compositor.FontOptions{Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, fonts.Load(context.Background()))
	renderer := compositor.NewRenderer(fonts, compositor.RendererOptions{FontWait: 50 * time.Millisecond, Logger: quietLogger()})
	return compositor.Services{
		Fetcher:  compositor.NewFetcher(compositor.FetcherOptions{Logger: quietLogger()}),
		Renderer: renderer,
	}
}

// testCatalog writes a 200×100 card on disk and returns a catalog pointing at it.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	img := generator.NewSolidImage(200, 100, color.RGBA{R: 20, G: 40, B: 80, A: 255})
	require.NoError(t, generator.WritePNG(filepath.Join(dir, "Green.png"), img))
	return &catalog.Catalog{
		Version: "1.0",
		BaseDir: dir,
		Occasions: []catalog.Occasion{
			{ID: "ramadan", Name: "Ramadan", Cards: []catalog.Card{{Name: "Green", Src: "Green.png"}}},
		},
	}
}

func startTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.ExportPerMinute = 60
	cfg.Server.ExportBurst = 3
	srv, err := New(Options{
		Server:     cfg.Server,
		Compositor: cfg.Compositor,
		Catalog:    testCatalog(t),
		Services:   testServices(t),
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.sessions.closeAll()
	})
	return srv, ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, ts *httptest.Server, body any) sessionResponse {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[sessionResponse](t, resp)
}

func sessionURL(ts *httptest.Server, id, path string) string {
	return ts.URL + "/api/sessions/" + id + path
}

// --- tests ---

func TestNewRequiresRenderer(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	_, ts := startTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["fontsReady"])
	assert.Equal(t, "closed", body["templateHost"])
}

func TestCatalogListsPresets(t *testing.T) {
	_, ts := startTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/catalog", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Occasions []occasionView `json:"occasions"`
	}](t, resp)
	require.Len(t, body.Occasions, 1)
	assert.Equal(t, "ramadan", body.Occasions[0].ID)
	assert.Equal(t, []string{"elegant", "festive", "professional"}, body.Occasions[0].Presets)
}

func TestCreateSessionWithCard(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"occasion": "ramadan", "card": "Green"})

	assert.NotEmpty(t, v.ID)
	require.NotNil(t, v.Template)
	assert.Equal(t, 200, v.Template.Width)
	assert.Equal(t, compositor.Point{X: 100, Y: 50}, v.Placement)
	assert.Equal(t, "ramadan", v.Profile)
	assert.Empty(t, v.Warnings)
}

func TestCreateSessionRejectsBadTemplate(t *testing.T) {
	_, ts := startTestServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"unknown card", map[string]string{"card": "Nope"}},
		{"local path", map[string]string{"ref": "/etc/passwd"}},
		{"unknown upload", map[string]string{"upload": "01ABC"}},
		{"unknown field", map[string]string{"colour": "#fff"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSessionNotFoundAndDelete(t *testing.T) {
	srv, ts := startTestServer(t)
	resp := doJSON(t, http.MethodGet, sessionURL(ts, "missing", ""), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	v := createSession(t, ts, map[string]string{"card": "Green"})
	assert.Equal(t, 1, srv.sessions.len())

	resp = doJSON(t, http.MethodDelete, sessionURL(ts, v.ID, ""), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, srv.sessions.len())

	resp = doJSON(t, http.MethodGet, sessionURL(ts, v.ID, ""), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPatchStyleAndUndo(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"card": "Green"})

	resp := doJSON(t, http.MethodPatch, sessionURL(ts, v.ID, "/style"), map[string]any{
		"text":  "Aisha",
		"color": "#FF0000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[sessionResponse](t, resp)
	assert.Equal(t, "Aisha", got.Style.Text)
	assert.Equal(t, "#ff0000", got.Style.Color)
	assert.Equal(t, 2, got.HistoryLen)

	resp = doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/undo"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	undo := decode[struct {
		Undone bool `json:"undone"`
		sessionResponse
	}](t, resp)
	assert.True(t, undo.Undone)
	assert.Equal(t, "#ffffff", undo.Style.Color)
	assert.Equal(t, "Aisha", undo.Style.Text)
}

func TestPatchStyleRejectsBadColor(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"card": "Green"})

	resp := doJSON(t, http.MethodPatch, sessionURL(ts, v.ID, "/style"), map[string]any{"color": "red"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPresetAndReset(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"card": "Green"})

	resp := doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/preset"), map[string]string{"name": "festive"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[sessionResponse](t, resp)
	assert.Equal(t, "#FFD700", got.Style.Color)
	assert.Equal(t, 1, got.HistoryLen)

	resp = doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/preset"), map[string]string{"name": "gloomy"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/reset"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[sessionResponse](t, resp)
	assert.Equal(t, "#ffffff", got.Style.Color)
	assert.Equal(t, 60.0, got.Style.FontSizePx)
}

func TestPointerDragThenUndo(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"card": "Green"})
	rect := compositor.Rect{Width: 200, Height: 100}

	for _, step := range []pointerRequest{
		{Action: "down", X: 100, Y: 50, Rect: rect},
		{Action: "move", X: 20, Y: 20, Rect: rect},
		{Action: "up"},
	} {
		resp := doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/pointer"), step)
		require.Equal(t, http.StatusOK, resp.StatusCode, step.Action)
	}

	resp := doJSON(t, http.MethodGet, sessionURL(ts, v.ID, ""), nil)
	got := decode[sessionResponse](t, resp)
	assert.Equal(t, compositor.Point{X: 20, Y: 20}, got.Placement)
	assert.Equal(t, "idle", got.Interaction)

	resp = doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/undo"), nil)
	got = decode[sessionResponse](t, resp)
	assert.Equal(t, compositor.Point{X: 100, Y: 50}, got.Placement)

	resp = doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/pointer"), pointerRequest{Action: "wiggle"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestZoomIsClamped(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"card": "Green"})

	resp := doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/zoom"), zoomRequest{Action: "set", Value: 5})
	assert.Equal(t, 2.0, decode[map[string]float64](t, resp)["zoom"])

	resp = doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/zoom"), zoomRequest{Action: "out"})
	assert.InDelta(t, 1.9, decode[map[string]float64](t, resp)["zoom"], 1e-9)
}

func TestPreviewPNG(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"card": "Green"})

	resp := doJSON(t, http.MethodGet, sessionURL(ts, v.ID, "/preview.png?w=100&h=50"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestPreviewWithoutTemplate(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"occasion": "ramadan"})

	resp := doJSON(t, http.MethodGet, sessionURL(ts, v.ID, "/preview.png"), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestExportRequiresText(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"card": "Green"})

	resp := doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/export"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestExportPNG(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"card": "Green"})
	doJSON(t, http.MethodPatch, sessionURL(ts, v.ID, "/style"), map[string]any{"text": "Aisha"})

	resp := doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/export"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "greeting-card-Aisha.png")

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestExportIsRateLimited(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"card": "Green"})

	codes := make([]int, 0, 4)
	for range 4 {
		resp := doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/export"), nil)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{422, 422, 422, 429}, codes)
}

func TestShareFallsBackToLink(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"card": "Green"})
	doJSON(t, http.MethodPatch, sessionURL(ts, v.ID, "/style"), map[string]any{"text": "Aisha"})

	resp := doJSON(t, http.MethodPost, sessionURL(ts, v.ID, "/share"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[shareResponse](t, resp)
	assert.True(t, strings.HasPrefix(got.URL, "https://twitter.com/intent/tweet?text="))
	assert.Equal(t, "greeting-card-Aisha.png", got.Name)

	qr, err := png.Decode(bytes.NewReader(got.QRCode))
	require.NoError(t, err)
	assert.Equal(t, shareQRSize, qr.Bounds().Dx())
}

func TestUploadTemplateAndUse(t *testing.T) {
	_, ts := startTestServer(t)

	img := generator.NewSolidImage(64, 32, color.RGBA{A: 255})
	data, err := generator.PNGBytes(img)
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "mine.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/uploads", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	u := decode[upload](t, resp)
	assert.Equal(t, 64, u.Width)
	assert.Equal(t, "image/png", u.MIME)

	v := createSession(t, ts, map[string]string{"upload": u.ID})
	require.NotNil(t, v.Template)
	assert.Equal(t, 32, v.Template.Height)

	resp2 := doJSON(t, http.MethodGet, ts.URL+"/api/uploads/"+u.ID, nil)
	raw, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	assert.Equal(t, data, raw)

	resp3 := doJSON(t, http.MethodDelete, ts.URL+"/api/uploads/"+u.ID, nil)
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
	resp4 := doJSON(t, http.MethodGet, ts.URL+"/api/uploads/"+u.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp4.StatusCode)
}

func TestUploadRejectsNonImage(t *testing.T) {
	_, ts := startTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	fw.Write([]byte("not an image"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/uploads", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUploadFontValidatesVariant(t *testing.T) {
	_, ts := startTestServer(t)

	tests := []struct {
		weight, slant string
		want          int
	}{
		{"", "", http.StatusCreated},
		{"bold", "italic", http.StatusCreated},
		{"heavy", "normal", http.StatusBadRequest},
		{"normal", "oblique", http.StatusBadRequest},
	}
	for _, tt := range tests {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("family", "Tajawal"))
		require.NoError(t, mw.WriteField("weight", tt.weight))
		require.NoError(t, mw.WriteField("slant", tt.slant))
		fw, err := mw.CreateFormFile("file", "Tajawal.ttf")
		require.NoError(t, err)
		fw.Write(goregular.TTF)
		require.NoError(t, mw.Close())

		resp, err := http.Post(ts.URL+"/api/fonts", mw.FormDataContentType(), &body)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tt.want, resp.StatusCode, "%s/%s", tt.weight, tt.slant)
	}
}

func TestDismissWarning(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]string{"card": "Green"})

	resp := doJSON(t, http.MethodDelete, sessionURL(ts, v.ID, "/warnings/template"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[map[string]bool](t, resp)["dismissed"])
}

func TestEventsStreamPreviews(t *testing.T) {
	_, ts := startTestServer(t)
	v := createSession(t, ts, map[string]any{"card": "Green", "display": displaySize{Width: 100, Height: 50}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(sessionURL(ts, v.ID, "/events"), "http")
	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	var first eventFrame
	require.NoError(t, wsjson.Read(ctx, ws, &first))
	assert.Equal(t, FrameView, first.Type)
	require.NotNil(t, first.View)
	assert.Equal(t, "Green", first.View.Template.Name)

	var preview eventFrame
	require.NoError(t, wsjson.Read(ctx, ws, &preview))
	assert.Equal(t, FramePreview, preview.Type)
	assert.Equal(t, 100, preview.Width)
	assert.Equal(t, 50, preview.Height)
	img, err := png.Decode(bytes.NewReader(preview.PNG))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())

	require.NoError(t, wsjson.Write(ctx, ws, clientMessage{Type: "bogus"}))
	var errFrame eventFrame
	require.NoError(t, wsjson.Read(ctx, ws, &errFrame))
	assert.Equal(t, FrameError, errFrame.Type)
}

func TestSessionSweepClosesIdle(t *testing.T) {
	st := newSessionStore(time.Minute, quietLogger())
	sess, err := compositor.NewSession(testServices(t), compositor.SessionOptions{Logger: quietLogger()})
	require.NoError(t, err)
	e := st.add(sess, "ramadan")

	assert.Equal(t, 0, st.sweep(time.Now()))
	assert.Equal(t, 1, st.sweep(time.Now().Add(2*time.Minute)))
	_, ok := st.get(e.id)
	assert.False(t, ok)
	assert.ErrorIs(t, sess.Reset(), compositor.ErrSessionClosed)
}

func TestSessionSweepKeepsStreamedSessions(t *testing.T) {
	st := newSessionStore(time.Minute, quietLogger())
	sess, err := compositor.NewSession(testServices(t), compositor.SessionOptions{Logger: quietLogger()})
	require.NoError(t, err)
	e := st.add(sess, "ramadan")

	detach := st.attach(e.id)
	assert.Equal(t, 0, st.sweep(time.Now().Add(time.Hour)))

	// Closing the stream restarts the idle clock.
	detach()
	assert.Equal(t, 0, st.sweep(time.Now()))
	assert.Equal(t, 1, st.sweep(time.Now().Add(2*time.Minute)))
}

func TestSessionTouchDefersSweep(t *testing.T) {
	st := newSessionStore(time.Minute, quietLogger())
	sess, err := compositor.NewSession(testServices(t), compositor.SessionOptions{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	e := st.add(sess, "ramadan")

	st.mu.Lock()
	e.lastSeen = time.Now().Add(-2 * time.Minute)
	st.mu.Unlock()
	st.touch(e.id)
	assert.Equal(t, 0, st.sweep(time.Now()))
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := newRateLimiter(60, 1)
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"))

	rl.prune(time.Now().Add(limiterIdle + time.Second))
	assert.True(t, rl.allow("a"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&compositor.ExportValidationError{Reason: compositor.ErrNoTemplate}, http.StatusUnprocessableEntity},
		{compositor.ErrNoTemplate, http.StatusConflict},
		{compositor.ErrSessionClosed, http.StatusGone},
		{&compositor.ImageLoadError{Ref: "x", Err: compositor.ErrInvalidInput}, http.StatusUnprocessableEntity},
		{&compositor.OpError{Op: "ApplyPreset", Err: compositor.ErrUnknownPreset}, http.StatusBadRequest},
		{compositor.ErrFontTimeout, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
