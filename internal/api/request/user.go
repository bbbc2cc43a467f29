package request

import "github.com/edvin/proxyctl/internal/core"

type UpdateUser struct {
	ID string `json:"id" validate:"required"`
	core.UserPatch
}
