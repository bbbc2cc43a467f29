package handler

import (
	"fmt"
	"net/http"

	"github.com/edvin/proxyctl/internal/api/request"
	"github.com/edvin/proxyctl/internal/api/response"
	"github.com/edvin/proxyctl/internal/core"
)

type Domain struct {
	svc      *core.DomainService
	resolver core.NameResolver
}

func NewDomain(svc *core.DomainService, resolver core.NameResolver) *Domain {
	return &Domain{svc: svc, resolver: resolver}
}

// List returns every domain, or one with ?id=. Each is annotated with the
// address its name currently resolves to.
func (h *Domain) List(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		d, err := h.svc.Get(r.Context(), id)
		if err != nil {
			response.WriteServiceError(w, r, err)
			return
		}
		if h.resolver != nil {
			d.ResolvedIP = h.resolver.ResolveIP(r.Context(), d.Name)
		}
		response.Data(w, d)
		return
	}

	domains, err := h.svc.List(r.Context())
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	if h.resolver != nil {
		h.svc.ResolveIPs(r.Context(), domains, h.resolver)
	}
	response.Data(w, domains)
}

func (h *Domain) Create(w http.ResponseWriter, r *http.Request) {
	var req request.AddDomains
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Add(r.Context(), req.Names, req.IP, req.Port)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": fmt.Sprintf("%d domains added, %d skipped", len(res.Added), len(res.Skipped)),
		"added":   res.Added,
		"skipped": res.Skipped,
	})
}

func (h *Domain) Update(w http.ResponseWriter, r *http.Request) {
	var req request.UpdateDomain
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := h.svc.Update(r.Context(), req.ID, req.DomainPatch)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Domain updated successfully",
		"data":    d,
	})
}

func (h *Domain) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(r.URL.Query().Get("id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.svc.Delete(r.Context(), id); err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Domain deleted successfully",
	})
}
