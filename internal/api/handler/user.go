package handler

import (
	"net/http"

	"github.com/edvin/proxyctl/internal/api/middleware"
	"github.com/edvin/proxyctl/internal/api/request"
	"github.com/edvin/proxyctl/internal/api/response"
	"github.com/edvin/proxyctl/internal/core"
)

type User struct {
	svc *core.UserService
}

func NewUser(svc *core.UserService) *User {
	return &User{svc: svc}
}

func (h *User) List(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		u, err := h.svc.Get(r.Context(), id)
		if err != nil {
			response.WriteServiceError(w, r, err)
			return
		}
		response.Data(w, u)
		return
	}

	users, err := h.svc.List(r.Context())
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.Data(w, users)
}

// Post serves create and toggle_status.
func (h *User) Post(w http.ResponseWriter, r *http.Request) {
	switch request.Action(r) {
	case "create":
		h.create(w, r)
	case "toggle_status":
		h.toggleStatus(w, r)
	default:
		response.WriteError(w, http.StatusBadRequest, "Invalid action")
	}
}

func (h *User) create(w http.ResponseWriter, r *http.Request) {
	var req core.NewUser
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.svc.Create(r.Context(), req)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "User created successfully",
		"data":    u,
	})
}

func (h *User) toggleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(r.URL.Query().Get("id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if caller := middleware.GetIdentity(r.Context()); caller != nil && caller.UserID == id {
		response.WriteError(w, http.StatusBadRequest, "Cannot disable your own account")
		return
	}

	u, err := h.svc.Get(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	u, err = h.svc.SetActive(r.Context(), id, !u.IsActive)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User status updated",
		"data":    u,
	})
}

func (h *User) Update(w http.ResponseWriter, r *http.Request) {
	var req request.UpdateUser
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.svc.Update(r.Context(), req.ID, req.UserPatch)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User updated successfully",
		"data":    u,
	})
}
