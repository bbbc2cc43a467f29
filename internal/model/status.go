package model

// Domain status constants.
const (
	StatusNew    = "new"
	StatusActive = "active"
	StatusError  = "error"
)

// Certificate status constants.
const (
	CertPending     = "pending"
	CertValid       = "valid"
	CertFailed      = "cert_failed"
	CertDNSMismatch = "dns_mismatch"
	CertRevoked     = "revoked"
	CertNone        = "none"
)

var certTransitions = map[string][]string{
	CertNone:        {CertPending},
	CertPending:     {CertValid, CertDNSMismatch, CertFailed},
	CertValid:       {CertPending, CertRevoked, CertNone},
	CertDNSMismatch: {CertPending, CertNone},
	CertFailed:      {CertPending, CertValid, CertRevoked, CertNone},
	CertRevoked:     {CertPending, CertNone},
}

// CanTransition reports whether moving a certificate status from -> to is a
// known lifecycle edge. Staying in the same state is always allowed.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range certTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidCertificateStatus reports whether s is a known certificate status.
func ValidCertificateStatus(s string) bool {
	_, ok := certTransitions[s]
	return ok
}
