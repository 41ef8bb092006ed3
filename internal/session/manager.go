package session

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Options configures the session cookie.
type Options struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager loads and saves sessions around HTTP requests.
type Manager struct {
	store  Store
	opts   Options
	logger *log.Logger
	now    func() time.Time
}

// NewManager creates a Manager backed by store.
func NewManager(store Store, opts Options, logger *log.Logger) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "sessionid"
	}
	if opts.TTL <= 0 {
		opts.TTL = 14 * 24 * time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{store: store, opts: opts, logger: logger, now: time.Now}
}

// Load returns the session for id, or a fresh session when id is empty,
// malformed, unknown or expired.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return newSession(uuid.NewString(), nil, true), nil
	}
	values, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newSession(uuid.NewString(), nil, true), nil
		}
		return nil, err
	}
	return newSession(id, values, false), nil
}

// Save persists sess and clears its modified flag.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	if err := m.store.Save(ctx, sess.id, sess.values, m.now().Add(m.opts.TTL)); err != nil {
		return err
	}
	sess.modified = false
	return nil
}

// Middleware attaches the visitor's session to the request context and saves it
// when the handler changed it. The save happens before the response status is
// written so the session cookie can still be set.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(m.opts.CookieName); err == nil {
			id = c.Value
		}

		sess, err := m.Load(r.Context(), id)
		if err != nil {
			m.logger.Printf("ERROR: Failed to load session: %v", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		sw := &sessionWriter{ResponseWriter: w, manager: m, session: sess, ctx: r.Context()}
		next.ServeHTTP(sw, r.WithContext(NewContext(r.Context(), sess)))

		if !sw.committed {
			sw.commit()
			return
		}
		if sess.Modified() {
			// Headers are gone; the cookie cannot be refreshed any more.
			if err := m.Save(r.Context(), sess); err != nil {
				m.logger.Printf("ERROR: Failed to save session %s after response: %v", sess.ID(), err)
			}
		}
	})
}

func (m *Manager) cookie(sess *Session) *http.Cookie {
	return &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    sess.ID(),
		Path:     "/",
		Expires:  m.now().Add(m.opts.TTL),
		MaxAge:   int(m.opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Purger removes expired sessions from a store.
type Purger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// RunCleanup purges expired sessions every interval until ctx is done.
func RunCleanup(ctx context.Context, p Purger, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.DeleteExpired(ctx)
			if err != nil {
				logger.Printf("WARN: Failed to purge expired sessions: %v", err)
				continue
			}
			if n > 0 {
				logger.Printf("INFO: Purged %d expired sessions", n)
			}
		}
	}
}

// sessionWriter saves the session right before the first byte of the response.
type sessionWriter struct {
	http.ResponseWriter
	manager   *Manager
	session   *Session
	ctx       context.Context
	committed bool
}

func (w *sessionWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	if !w.session.Modified() {
		return
	}
	if err := w.manager.Save(w.ctx, w.session); err != nil {
		w.manager.logger.Printf("ERROR: Failed to save session %s: %v", w.session.ID(), err)
		return
	}
	http.SetCookie(w.ResponseWriter, w.manager.cookie(w.session))
}

func (w *sessionWriter) WriteHeader(status int) {
	w.commit()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
