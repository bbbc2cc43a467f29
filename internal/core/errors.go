package core

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")

	// ErrPolicyGateFailed is an expected outcome: DNS does not point here.
	ErrPolicyGateFailed = errors.New("DNS policy gate failed")
	// ErrSubprocessFailure means an external tool could not run at all.
	ErrSubprocessFailure = errors.New("external tool could not run")
	// ErrSubprocessFailedSemantically means a tool ran and reported failure.
	ErrSubprocessFailedSemantically = errors.New("external tool reported failure")
	// ErrMaterialMissing means issuance ran but left no usable certificate.
	ErrMaterialMissing = errors.New("certificate material missing")
	ErrConfigWrite     = errors.New("config write failed")
	// ErrValidationFailure means nginx -t rejected the configuration.
	ErrValidationFailure = errors.New("proxy configuration rejected")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, "not_found"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidInput, "invalid_input"},
	{ErrConflict, "conflict"},
	{ErrPolicyGateFailed, "policy_gate_failed"},
	{ErrSubprocessFailure, "subprocess_failure"},
	{ErrMaterialMissing, "certificate_material_missing"},
	{ErrSubprocessFailedSemantically, "subprocess_failed_semantically"},
	{ErrConfigWrite, "config_write_failure"},
	{ErrValidationFailure, "validation_failure"},
}

// KindOf names the taxonomy entry of err, or "internal".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
