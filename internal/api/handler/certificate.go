package handler

import (
	"net/http"

	"github.com/edvin/proxyctl/internal/api/request"
	"github.com/edvin/proxyctl/internal/api/response"
	"github.com/edvin/proxyctl/internal/core"
)

type Certificate struct {
	svc     *core.CertificateService
	domains *core.DomainService
}

func NewCertificate(svc *core.CertificateService, domains *core.DomainService) *Certificate {
	return &Certificate{svc: svc, domains: domains}
}

// Get serves the read-only actions: check, status and view.
func (h *Certificate) Get(w http.ResponseWriter, r *http.Request) {
	switch request.Action(r) {
	case "check":
		h.check(w, r)
	case "status":
		h.status(w, r)
	case "view":
		h.view(w, r)
	default:
		response.WriteError(w, http.StatusBadRequest, "Invalid action")
	}
}

// Post serves the mutating actions: generate, revoke and delete.
func (h *Certificate) Post(w http.ResponseWriter, r *http.Request) {
	var op func(*core.CertificateService, *http.Request, string) (*core.OperationResult, error)
	switch request.Action(r) {
	case "generate":
		op = func(s *core.CertificateService, r *http.Request, id string) (*core.OperationResult, error) {
			return s.Issue(r.Context(), id)
		}
	case "revoke":
		op = func(s *core.CertificateService, r *http.Request, id string) (*core.OperationResult, error) {
			return s.Revoke(r.Context(), id)
		}
	case "delete":
		op = func(s *core.CertificateService, r *http.Request, id string) (*core.OperationResult, error) {
			return s.Delete(r.Context(), id)
		}
	default:
		response.WriteError(w, http.StatusBadRequest, "Invalid action")
		return
	}

	var req request.DomainTarget
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := op(h.svc, r, req.DomainID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteResult(w, res)
}

func (h *Certificate) check(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(r.URL.Query().Get("domain_id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := h.domains.Get(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}

	res, err := h.svc.Check(r.Context(), d.Name)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"certificate": res,
	})
}

func (h *Certificate) status(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Statuses(r.Context())
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.Data(w, entries)
}

func (h *Certificate) view(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("domain")
	if name == "" {
		response.WriteError(w, http.StatusBadRequest, "Domain name required")
		return
	}

	text, err := h.svc.View(r.Context(), name)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"certificate": text,
	})
}
