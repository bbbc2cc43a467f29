package handler

import (
	"net/http"

	"github.com/edvin/proxyctl/internal/api/request"
	"github.com/edvin/proxyctl/internal/api/response"
	"github.com/edvin/proxyctl/internal/core"
)

type Nginx struct {
	svc *core.ProxyConfigService
}

func NewNginx(svc *core.ProxyConfigService) *Nginx {
	return &Nginx{svc: svc}
}

// Get serves test, reload and status. Test and reload are separate steps;
// neither implies the other.
func (h *Nginx) Get(w http.ResponseWriter, r *http.Request) {
	switch request.Action(r) {
	case "test":
		response.WriteResult(w, h.svc.Test(r.Context()))
	case "reload":
		response.WriteResult(w, h.svc.Reload(r.Context()))
	case "status":
		version, err := h.svc.Version(r.Context())
		if err != nil {
			response.WriteServiceError(w, r, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "version": version})
	default:
		response.WriteError(w, http.StatusBadRequest, "Invalid action")
	}
}

// Post serves generate_config and reconcile.
func (h *Nginx) Post(w http.ResponseWriter, r *http.Request) {
	switch request.Action(r) {
	case "generate_config":
		var req request.GenerateConfig
		if err := request.Decode(r, &req); err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		res, err := h.svc.Regenerate(r.Context(), req.DomainID, req.DestinationIP)
		if err != nil {
			response.WriteServiceError(w, r, err)
			return
		}
		response.WriteResult(w, res)
	case "reconcile":
		res, err := h.svc.Reconcile(r.Context())
		if err != nil {
			response.WriteServiceError(w, r, err)
			return
		}
		response.WriteResult(w, res)
	default:
		response.WriteError(w, http.StatusBadRequest, "Invalid action")
	}
}
