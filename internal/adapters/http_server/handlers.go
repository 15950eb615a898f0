package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"rutas_admin/internal/adapters/authz"
	"rutas_admin/internal/adapters/realtime"
	"rutas_admin/internal/app"
	"rutas_admin/internal/domain"
)

type Handlers struct {
	Q     *app.QueryService
	Admin *app.AdminService
	Users *app.UserService
	Auth  *app.AuthService
	Authz *authz.Enforcer
	Hub   *realtime.Hub

	CookieSecure   bool
	LoginPerMinute int
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrDeviceMismatch):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUsernameTaken), errors.Is(err, domain.ErrPasswordReused):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError maps a service error to problem+json. Internal errors are logged
// and not echoed.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		writeProblem(w, status, http.StatusText(status), "")
		return
	}
	writeProblem(w, status, http.StatusText(status), err.Error())
}

// writePublicError is the {"error": "..."} shape the map clients read.
func writePublicError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("public request failed")
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("marshal response failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("write response body failed")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, domain.ErrInvalidInput)
	}
	return nil
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// etagMatches reports whether any entity tag in an If-None-Match header equals
// etag, ignoring weak prefixes.
func etagMatches(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	if strings.TrimSpace(header) == "*" {
		return true
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, part := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(part), "W/") == want {
			return true
		}
	}
	return false
}

func writeWithETag(w http.ResponseWriter, r *http.Request, etag string, body []byte) {
	w.Header().Set("ETag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("write response body failed")
	}
}

// ---- public map endpoints ----

func (h *Handlers) hoteles(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.Hotels(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		writePublicError(w, err)
		return
	}
	body, err := json.Marshal(out)
	if err != nil {
		writePublicError(w, err)
		return
	}
	// the list version is the entity tag
	writeWithETag(w, r, strconv.Quote(out.Version), body)
}

func (h *Handlers) rutasAlertas(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.RoutesAlerts(r.Context())
	if err != nil {
		writePublicError(w, err)
		return
	}
	etag, body := calcETagAndBody(out)
	if body == nil {
		writePublicError(w, errors.New("encode response"))
		return
	}
	writeWithETag(w, r, etag, body)
}

func (h *Handlers) version(w http.ResponseWriter, r *http.Request) {
	v, err := h.Q.DataVersion(r.Context())
	if err != nil {
		writePublicError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, domain.VersionResponse{DataVersion: v})
}

func (h *Handlers) flechas(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.Arrows(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
