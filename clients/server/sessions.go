// sessions.go — Session registry with ULID keys and idle expiry.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/xob0t/GoCard/pkg/compositor"
)

type sessionEntry struct {
	id       string
	occasion string
	sess     *compositor.Session
	created  time.Time
	lastSeen time.Time
	streams  int // open preview websockets; never swept while > 0
}

type sessionStore struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	ttl     time.Duration
	logger  *slog.Logger
}

func newSessionStore(ttl time.Duration, logger *slog.Logger) *sessionStore {
	return &sessionStore{
		entries: make(map[string]*sessionEntry),
		ttl:     ttl,
		logger:  logger,
	}
}

func (st *sessionStore) add(sess *compositor.Session, occasion string) *sessionEntry {
	now := time.Now()
	e := &sessionEntry{
		id:       ulid.Make().String(),
		occasion: occasion,
		sess:     sess,
		created:  now,
		lastSeen: now,
	}
	st.mu.Lock()
	st.entries[e.id] = e
	st.mu.Unlock()
	return e
}

// get returns the entry and marks it as used.
func (st *sessionStore) get(id string) (*sessionEntry, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.entries[id]
	if ok {
		e.lastSeen = time.Now()
	}
	return e, ok
}

func (st *sessionStore) touch(id string) {
	st.mu.Lock()
	if e, ok := st.entries[id]; ok {
		e.lastSeen = time.Now()
	}
	st.mu.Unlock()
}

// attach marks an open preview stream on id. The returned func detaches it
// and restarts the idle clock.
func (st *sessionStore) attach(id string) func() {
	st.mu.Lock()
	if e, ok := st.entries[id]; ok {
		e.streams++
	}
	st.mu.Unlock()
	return func() {
		st.mu.Lock()
		if e, ok := st.entries[id]; ok {
			e.streams--
			e.lastSeen = time.Now()
		}
		st.mu.Unlock()
	}
}

func (st *sessionStore) remove(id string) bool {
	st.mu.Lock()
	e, ok := st.entries[id]
	delete(st.entries, id)
	st.mu.Unlock()
	if ok {
		e.sess.Close()
	}
	return ok
}

func (st *sessionStore) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

func (st *sessionStore) each(fn func(*sessionEntry)) {
	st.mu.Lock()
	list := make([]*sessionEntry, 0, len(st.entries))
	for _, e := range st.entries {
		list = append(list, e)
	}
	st.mu.Unlock()
	for _, e := range list {
		fn(e)
	}
}

// sweep closes sessions idle longer than the TTL and returns how many.
// Sessions with an open preview stream are kept.
func (st *sessionStore) sweep(now time.Time) int {
	st.mu.Lock()
	var expired []*sessionEntry
	for id, e := range st.entries {
		if e.streams == 0 && now.Sub(e.lastSeen) > st.ttl {
			expired = append(expired, e)
			delete(st.entries, id)
		}
	}
	st.mu.Unlock()

	for _, e := range expired {
		e.sess.Close()
		st.logger.Info("session expired", "session_id", e.id, "idle", now.Sub(e.lastSeen).Round(time.Second))
	}
	return len(expired)
}

func (st *sessionStore) run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			st.sweep(now)
		case <-ctx.Done():
			return
		}
	}
}

func (st *sessionStore) closeAll() {
	st.mu.Lock()
	entries := st.entries
	st.entries = make(map[string]*sessionEntry)
	st.mu.Unlock()
	for _, e := range entries {
		e.sess.Close()
	}
}

// ── Request context ──

type ctxKey struct{}

// sessionCtx resolves {id} and stores the entry in the request context.
func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.sessions.get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, e)))
	})
}

func entryFrom(r *http.Request) *sessionEntry {
	return r.Context().Value(ctxKey{}).(*sessionEntry)
}
