package request

import "github.com/edvin/proxyctl/internal/model"

// DomainTarget names the domain an orchestration action applies to.
type DomainTarget struct {
	DomainID string `json:"domain_id" validate:"required"`
}

// GenerateConfig asks for a config regeneration. DestinationIP is accepted
// for compatibility and never used as the upstream.
type GenerateConfig struct {
	DomainID      string `json:"domain_id" validate:"required"`
	DestinationIP string `json:"destination_ip"`
}

type AddDomains struct {
	Names []string `json:"names" validate:"required,min=1,dive,required"`
	IP    string   `json:"ip" validate:"required"`
	Port  int      `json:"port" validate:"omitempty,min=1,max=65535"`
}

type UpdateDomain struct {
	ID string `json:"id" validate:"required"`
	model.DomainPatch
}

type Login struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}
