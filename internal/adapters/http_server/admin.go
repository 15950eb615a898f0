package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rutas_admin/internal/app"
	"rutas_admin/internal/domain"
)

// resource is the CRUD surface of one map collection.
type resource[T any] struct {
	list  func(context.Context) ([]T, error)
	get   func(context.Context, string) (T, error)
	save  func(context.Context, T) (T, error)
	del   func(context.Context, string) error
	setID func(*T, string)
}

func (res resource[T]) mount(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		out, err := res.list(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		var v T
		if err := decodeJSON(r, &v); err != nil {
			writeError(w, err)
			return
		}
		out, err := res.save(r.Context(), v)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	})
	r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		out, err := res.get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
	r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
		var v T
		if err := decodeJSON(r, &v); err != nil {
			writeError(w, err)
			return
		}
		// the path names the document
		res.setID(&v, chi.URLParam(r, "id"))
		out, err := res.save(r.Context(), v)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
	r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := res.del(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func (h *Handlers) mountAdmin(r chi.Router) {
	a := h.Admin
	r.Route("/"+domain.CollRoutes, resource[domain.Route]{
		list: a.ListRoutes, get: a.GetRoute, save: a.SaveRoute, del: a.DeleteRoute,
		setID: func(v *domain.Route, id string) { v.ID = id },
	}.mount)
	r.Route("/"+domain.CollAlerts, resource[domain.Alert]{
		list: a.ListAlerts, get: a.GetAlert, save: a.SaveAlert, del: a.DeleteAlert,
		setID: func(v *domain.Alert, id string) { v.ID = id },
	}.mount)
	r.Route("/"+domain.CollHotels, resource[domain.Hotel]{
		list: a.ListHotels, get: a.GetHotel, save: a.SaveHotel, del: a.DeleteHotel,
		setID: func(v *domain.Hotel, id string) { v.ID = id },
	}.mount)
	r.Route("/"+domain.CollArrows, resource[domain.Arrow]{
		list: a.ListArrows, get: a.GetArrow, save: a.SaveArrow, del: a.DeleteArrow,
		setID: func(v *domain.Arrow, id string) { v.ID = id },
	}.mount)

	r.Post("/version", h.bumpVersion)

	r.Route("/"+domain.CollUsers, func(r chi.Router) {
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Get("/{id}", h.getUser)
		r.Put("/{id}", h.updateUser)
		r.Delete("/{id}", h.deleteUser)
		r.Delete("/{id}/device", h.resetDevice)
		r.Put("/{id}/password", h.setPassword)
		r.Get("/{id}/hoteles", h.getUserHotels)
		r.Put("/{id}/hoteles", h.setUserHotels)
	})
}

func (h *Handlers) bumpVersion(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.BumpDataVersion(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	v, err := h.Q.DataVersion(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.VersionResponse{DataVersion: v})
}

// ---- users ----

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	out, err := h.Users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var in app.CreateUserInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	out, err := h.Users.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handlers) getUser(w http.ResponseWriter, r *http.Request) {
	out, err := h.Users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	var in app.UpdateUserInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	out, err := h.Users.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) resetDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.ResetDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handlers) setPassword(w http.ResponseWriter, r *http.Request) {
	var req setPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Users.SetPassword(r.Context(), chi.URLParam(r, "id"), req.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) getUserHotels(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Users.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	out, err := h.Admin.GetUserHotels(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type userHotelsRequest struct {
	HotelIDs []string `json:"hoteles"`
}

func (h *Handlers) setUserHotels(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req userHotelsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.Users.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	out, err := h.Admin.SetUserHotels(r.Context(), id, req.HotelIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
