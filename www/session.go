package www

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"storedesk/auth"
)

const sessionName = "storedesk_session"

func (h *Handlers) identity(r *http.Request) *auth.Identity {
	sess, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return nil
	}
	email, _ := sess.Values["email"].(string)
	if email == "" {
		return nil
	}
	id := &auth.Identity{Email: email}
	id.UserID, _ = sess.Values["user_id"].(string)
	id.Provider, _ = sess.Values["provider"].(string)
	id.AccessToken, _ = sess.Values["token"].(string)
	return id
}

func (h *Handlers) isAuthenticated(r *http.Request) bool {
	return h.identity(r) != nil
}

func (h *Handlers) getUsername(r *http.Request) string {
	if id := h.identity(r); id != nil {
		return id.Email
	}
	return ""
}

func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.isAuthenticated(r) && h.revalidate(w, r) {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h.jsonError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
}

// revalidate re-checks the session with the auth provider once it is older
// than auth.revalidate_interval. A rejected session is cleared and false is
// returned. Provider outages keep the session.
func (h *Handlers) revalidate(w http.ResponseWriter, r *http.Request) bool {
	sess, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return false
	}
	last, _ := sess.Values["validated_at"].(int64)
	if time.Since(time.Unix(0, last)) < h.engine.AppConfig().Auth.RevalidateInterval {
		return true
	}
	err = h.engine.ValidateSession(r.Context(), h.identity(r))
	switch {
	case err == nil:
		sess.Values["validated_at"] = time.Now().UnixNano()
		if err := sess.Save(r, w); err != nil {
			log.Printf("www: save session: %v", err)
		}
		return true
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.clearSession(w, r)
		return false
	default:
		log.Printf("www: revalidate session: %v", err)
		return true
	}
}

func (h *Handlers) clearSession(w http.ResponseWriter, r *http.Request) {
	sess, _ := h.sessions.Get(r, sessionName)
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		log.Printf("www: clear session: %v", err)
	}
}

// countPageViews bumps today's page view counter for each rendered page.
func (h *Handlers) countPageViews(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.engine.DB().IncrementPageViews(time.Now()); err != nil {
			log.Printf("www: count page view: %v", err)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.isAuthenticated(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, "login.html", map[string]any{"Page": "login", "Email": "", "Error": ""})
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	id, err := h.engine.SignIn(r.Context(), email, password)
	if err != nil {
		msg := "Invalid email or password"
		status := http.StatusUnauthorized
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			log.Printf("www: sign in %s: %v", email, err)
			msg = "Sign in is unavailable, please try again"
			status = http.StatusServiceUnavailable
		}
		h.renderStatus(w, r, status, "login.html", map[string]any{"Page": "login", "Email": email, "Error": msg})
		return
	}

	sess, _ := h.sessions.Get(r, sessionName)
	sess.Values["email"] = id.Email
	sess.Values["user_id"] = id.UserID
	sess.Values["provider"] = id.Provider
	sess.Values["token"] = id.AccessToken
	sess.Values["validated_at"] = time.Now().UnixNano()
	if err := sess.Save(r, w); err != nil {
		log.Printf("www: save session: %v", err)
		http.Error(w, "could not start session", http.StatusInternalServerError)
		return
	}
	if _, err := h.engine.EnsureProfile(id.Email); err != nil {
		log.Printf("www: ensure profile for %s: %v", id.Email, err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.SignOut(r.Context(), h.identity(r)); err != nil {
		log.Printf("www: sign out: %v", err)
	}
	h.clearSession(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := h.engine.DB().PingContext(r.Context()) == nil
	status := http.StatusOK
	if !dbOK {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"database":    dbOK,
		"cache":       !h.engine.StatCache().Degraded(),
		"backend":     h.engine.BackendConnected(),
		"messaging":   h.engine.MessagingConnected(),
		"sse_clients": h.eventHub.ClientCount(),
	})
}
