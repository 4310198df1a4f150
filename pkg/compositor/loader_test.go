package compositor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xob0t/GoCard/pkg/generator"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	b, err := generator.PNGBytes(generator.NewSolidImage(w, h, navy))
	require.NoError(t, err)
	return b
}

func writePNGFile(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pngBytes(t, w, h), 0o644))
	return path
}

func TestFetcherDecodesLocalFiles(t *testing.T) {
	dir := t.TempDir()
	writePNGFile(t, dir, "card-1.png", 64, 48)
	f := NewFetcher(FetcherOptions{BaseDir: dir, Logger: quietLogger()})

	tmpl, err := f.Decode(context.Background(), "card-1.png")
	require.NoError(t, err)
	assert.Equal(t, 64, tmpl.Width)
	assert.Equal(t, 48, tmpl.Height)
	assert.Equal(t, "card-1", tmpl.Name)

	tmpl, err = f.Decode(context.Background(), "file://"+filepath.Join(dir, "card-1.png"))
	require.NoError(t, err)
	assert.Equal(t, 64, tmpl.Width)
}

func TestFetcherReportsImageLoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0o644))
	f := NewFetcher(FetcherOptions{BaseDir: dir, Logger: quietLogger()})

	for _, ref := range []string{"broken.png", "missing.png", ""} {
		_, err := f.Decode(context.Background(), ref)
		var le *ImageLoadError
		require.True(t, errors.As(err, &le), ref)
		assert.Equal(t, ref, le.Ref)
	}
}

func TestFetcherRemote(t *testing.T) {
	body := pngBytes(t, 10, 20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOptions{Logger: quietLogger()})
	tmpl, err := f.Decode(context.Background(), srv.URL+"/cards/green.png")
	require.NoError(t, err)
	assert.Equal(t, 10, tmpl.Width)
	assert.Equal(t, "green", tmpl.Name)
}

func TestFetcherBreakerOpensOnRepeatedFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOptions{MaxFailures: 2, BreakerTimeout: time.Minute, Logger: quietLogger()})
	for i := 0; i < 2; i++ {
		_, err := f.Decode(context.Background(), srv.URL+"/x.png")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, f.BreakerState())

	_, err := f.Decode(context.Background(), srv.URL+"/x.png")
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(2), hits.Load())
}

func TestLoaderTickets(t *testing.T) {
	l := NewLoader(nil)
	a := l.Begin()
	assert.True(t, l.Current(a))
	b := l.Begin()
	assert.False(t, l.Current(a))
	assert.True(t, l.Current(b))
}

func TestLoaderDropsStaleResults(t *testing.T) {
	release := make(chan struct{})
	slow, fast := pngBytes(t, 30, 30), pngBytes(t, 40, 40)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow.png" {
			<-release
			w.Write(slow)
			return
		}
		w.Write(fast)
	}))
	defer srv.Close()

	l := NewLoader(NewFetcher(FetcherOptions{Logger: quietLogger()}))
	results := make(chan *Template, 2)
	deliver := func(_ Ticket, tmpl *Template, err error) {
		assert.NoError(t, err)
		results <- tmpl
	}

	l.Load(context.Background(), srv.URL+"/slow.png", deliver)
	l.Load(context.Background(), srv.URL+"/fast.png", deliver)

	got := <-results
	assert.Equal(t, 40, got.Width)

	close(release)
	select {
	case tmpl := <-results:
		t.Fatalf("stale load delivered: %dx%d", tmpl.Width, tmpl.Height)
	case <-time.After(100 * time.Millisecond):
	}
}
