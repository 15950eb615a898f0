package httpserver

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rutas_admin/internal/adapters/observability"
	"rutas_admin/internal/domain"
)

//go:embed web
var webFS embed.FS

const (
	sessionCookie = "session"
	deviceCookie  = "deviceId"
	// browsers cap cookie lifetime at about 400 days
	deviceCookieMaxAge = 400 * 24 * 60 * 60
)

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// deviceIDFrom prefers the cookie; native clients send the header instead.
func deviceIDFrom(r *http.Request) string {
	if v := cookieValue(r, deviceCookie); v != "" {
		return v
	}
	return strings.TrimSpace(r.Header.Get("X-Device-Id"))
}

func (h *Handlers) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearCookie(w http.ResponseWriter, name string) {
	h.setCookie(w, name, "", -1)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

type loginResponse struct {
	User     domain.UserView `json:"user"`
	DeviceID string          `json:"deviceId"`
	Expires  time.Time       `json:"expiresAt"`
}

func isForm(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}

// login accepts JSON from native clients and a form post from the login page.
// Form posts are answered with redirects.
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	form := isForm(r)
	if form {
		if err := r.ParseForm(); err != nil {
			http.Redirect(w, r, "/login?error=invalid", http.StatusSeeOther)
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = deviceIDFrom(r)
	}

	res, err := h.Auth.Login(r.Context(), req.Username, req.Password, req.DeviceID)
	observability.ObserveLogin(loginOutcome(err))
	if err != nil {
		if form {
			code := "credentials"
			if errors.Is(err, domain.ErrDeviceMismatch) {
				code = "device"
			} else if statusFor(err) == http.StatusInternalServerError {
				code = "server"
			}
			http.Redirect(w, r, "/login?error="+url.QueryEscape(code), http.StatusSeeOther)
			return
		}
		writeError(w, err)
		return
	}

	h.setCookie(w, deviceCookie, res.DeviceID, deviceCookieMaxAge)
	h.setCookie(w, sessionCookie, res.Session.ID, int(time.Until(res.Session.ExpiresAt).Seconds()))
	if form {
		http.Redirect(w, r, "/app/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{User: res.User, DeviceID: res.DeviceID, Expires: res.Session.ExpiresAt})
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "bad_credentials"
	case errors.Is(err, domain.ErrDeviceMismatch):
		return "device_mismatch"
	}
	return "error"
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(r.Context(), cookieValue(r, sessionCookie)); err != nil {
		writeError(w, err)
		return
	}
	// the device cookie stays: it is the binding, not the session
	h.clearCookie(w, sessionCookie)
	if isForm(r) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) loginPage(w http.ResponseWriter, r *http.Request) {
	b, err := webFS.ReadFile("web/login.html")
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(b)
}

// app serves the map shell under /app/.
func (h *Handlers) app() http.HandlerFunc {
	sub, err := fs.Sub(webFS, "web/app")
	if err != nil {
		panic(err)
	}
	fsrv := http.StripPrefix("/app", http.FileServer(http.FS(sub)))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		fsrv.ServeHTTP(w, r)
	}
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	u, err := h.Users.Get(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type changePasswordRequest struct {
	Current string `json:"current"`
	Next    string `json:"next"`
}

func (h *Handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Users.ChangePassword(r.Context(), sess.UserID, req.Current, req.Next); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

