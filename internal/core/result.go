package core

import (
	"github.com/edvin/proxyctl/internal/transcript"
)

// OperationResult is what every orchestration operation returns. Expected
// failures (DNS mismatch, tool failures, rejected config) are reported here
// rather than as a Go error.
type OperationResult struct {
	Success           bool     `json:"success"`
	Message           string   `json:"message,omitempty"`
	Error             string   `json:"error,omitempty"`
	Kind              string   `json:"kind,omitempty"`
	CertificateStatus string   `json:"cert_status,omitempty"`
	ConfigFile        string   `json:"config_file,omitempty"`
	Logs              []string `json:"logs"`

	Err error `json:"-"`
}

func succeeded(tr *transcript.Transcript, message string) *OperationResult {
	return &OperationResult{Success: true, Message: message, Logs: tr.Lines()}
}

func failed(tr *transcript.Transcript, err error) *OperationResult {
	return &OperationResult{
		Success: false,
		Error:   err.Error(),
		Kind:    KindOf(err),
		Logs:    tr.Lines(),
		Err:     err,
	}
}
