package certbot

import "strings"

// Failure kinds recognised in certbot output.
const (
	FailureDNSChallenge = "dns_challenge"
	FailureConnection   = "connection"
	FailureRateLimit    = "rate_limit"
	FailureUnknown      = "unknown"
)

// Failure is a best-effort diagnosis of a failed issuance.
type Failure struct {
	Kind    string
	Message string
}

var failurePatterns = []struct {
	kind    string
	message string
	needles []string
}{
	{
		kind:    FailureRateLimit,
		message: "Certificate authority rate limit reached - wait before retrying",
		needles: []string{"too many certificates", "ratelimited", "rate limit", "too many failed authorizations"},
	},
	{
		kind:    FailureDNSChallenge,
		message: "DNS challenge failed - check that the domain's DNS points to this server",
		needles: []string{"dns problem", "nxdomain", "no valid a records", "servfail"},
	},
	{
		kind:    FailureConnection,
		message: "Connection failed - check that port 80 is reachable from the internet",
		needles: []string{"connection refused", "timeout during connect", "connection reset", "fetching http://"},
	},
}

// Classify scans output for known failure signatures. Output text is a
// secondary diagnostic only; success is decided by material on disk.
func Classify(output []string) Failure {
	text := strings.ToLower(strings.Join(output, "\n"))
	for _, p := range failurePatterns {
		for _, n := range p.needles {
			if strings.Contains(text, n) {
				return Failure{Kind: p.kind, Message: p.message}
			}
		}
	}
	return Failure{Kind: FailureUnknown, Message: "Certificate generation failed - see log for details"}
}
