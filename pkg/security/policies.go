// Package security implements the source-ingestion security gate: URL
// scheme allow-listing, private/loopback rejection, credential-in-URL
// rejection, and config-content sanity checks, run before a source URL is
// ever fetched and again before a parsed configuration is accepted.
//
// Grounded on the scheme/host denylist and injection-pattern checks of the
// original implementation's vpn_merger/security/policies.py, reworked here
// as an allow-list (source URLs may use http or https only) plus
// the same regex-based injection heuristics.
package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// AllowedSchemes is the set of URL schemes a source URL may use.
var AllowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)('|(\\')|(;)|(--)|(\bunion\b)|(\bselect\b)|(\bdrop\b)|(\binsert\b)|(\bdelete\b))`)
	xssPattern          = regexp.MustCompile(`(?i)<script|javascript:|onerror=|onload=|<iframe`)
	credentialInURLRe   = regexp.MustCompile(`^[^/]+://[^/@]+:[^/@]+@`)
	secretFieldRe       = regexp.MustCompile(`(?i)(password|token|api_key|secret)=[^\s&]+`)
)

// PolicyViolation describes why a URL or configuration was rejected.
type PolicyViolation struct {
	Reason string
}

func (e *PolicyViolation) Error() string {
	return e.Reason
}

func violation(format string, args ...interface{}) error {
	return &PolicyViolation{Reason: fmt.Sprintf(format, args...)}
}

// ValidateSourceURL rejects URLs that are not eligible to be fetched as a
// configuration source: disallowed scheme, embedded credentials, path
// traversal, or a private/loopback host.
func ValidateSourceURL(raw string) error {
	if raw == "" {
		return violation("source url is empty")
	}
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "../") || strings.Contains(lower, "..\\") {
		return violation("source url contains path traversal sequence")
	}
	if credentialInURLRe.MatchString(raw) {
		return violation("source url embeds credentials")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return violation("source url is not parseable: %v", err)
	}
	if !AllowedSchemes[strings.ToLower(parsed.Scheme)] {
		return violation("scheme %q is not allowed", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return violation("source url has no host")
	}
	if models.IsPrivateOrLoopback(host) {
		return violation("source url resolves to a private or loopback host")
	}
	return nil
}

// ContainsInjectionPayload reports whether a free-text field (a parsed
// config's path, SNI, or remark) contains a SQL-injection or XSS-style
// payload. Used by the processor's security gate on every parsed
// configuration before it is accepted.
func ContainsInjectionPayload(s string) bool {
	if s == "" {
		return false
	}
	return sqlInjectionPattern.MatchString(s) || xssPattern.MatchString(s)
}

// ValidateConfiguration runs the security gate over a single parsed
// configuration, rejecting private/loopback servers and injection payloads
// in any free-text field.
func ValidateConfiguration(cfg *models.VPNConfiguration) error {
	if cfg == nil {
		return violation("configuration is nil")
	}
	if models.IsPrivateOrLoopback(cfg.Server) {
		return violation("configuration server %q is private or loopback", cfg.Server)
	}
	for _, field := range []string{cfg.Path, cfg.SNI, cfg.Flow, cfg.Network} {
		if ContainsInjectionPayload(field) {
			return violation("configuration contains an injection payload")
		}
	}
	return nil
}

// SanitizeLogLine redacts credential-bearing query parameters and fields
// (password=, token=, api_key=, secret=) from a line before it is logged.
func SanitizeLogLine(line string) string {
	return secretFieldRe.ReplaceAllString(line, "$1=***REDACTED***")
}
