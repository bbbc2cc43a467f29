package handler

import (
	"net/http"
	"time"

	"github.com/edvin/proxyctl/internal/api/middleware"
	"github.com/edvin/proxyctl/internal/api/request"
	"github.com/edvin/proxyctl/internal/api/response"
	"github.com/edvin/proxyctl/internal/core"
)

type Auth struct {
	svc          *core.AuthService
	cookieSecure bool
}

func NewAuth(svc *core.AuthService, cookieSecure bool) *Auth {
	return &Auth{svc: svc, cookieSecure: cookieSecure}
}

// Post serves login and logout.
func (h *Auth) Post(w http.ResponseWriter, r *http.Request) {
	switch request.Action(r) {
	case "login":
		h.Login(w, r)
	case "logout":
		h.Logout(w, r)
	default:
		response.WriteError(w, http.StatusBadRequest, "Invalid action")
	}
}

// Login exchanges credentials for a session. The token is returned in the
// body and set as an HttpOnly cookie.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req request.Login
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, identity, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  identity.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"user":    identity,
	})
}

func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.Token(r); token != "" {
		if err := h.svc.Logout(r.Context(), token); err != nil {
			response.WriteServiceError(w, r, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out",
	})
}

// Check reports the identity behind the current session. It runs behind
// the auth middleware.
func (h *Auth) Check(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    middleware.GetIdentity(r.Context()),
	})
}
