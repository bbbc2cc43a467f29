package request

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/edvin/proxyctl/internal/model"
)

var validate = model.NewValidator()

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

func RequireID(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing required ID")
	}
	return s, nil
}

// Action returns the ?action= selector of r.
func Action(r *http.Request) string {
	return r.URL.Query().Get("action")
}
