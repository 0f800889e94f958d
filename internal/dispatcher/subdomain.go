package dispatcher

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxSubdomainLength is the DNS label length limit
const MaxSubdomainLength = 63

// DefaultReservedSubdomains are subdomains that never address a tenant
// worker.
var DefaultReservedSubdomains = []string{
	"dispatcher", "api", "health", "admin", "system",
	"www", "mail", "ftp", "cdn", "assets", "static",
}

var subdomainPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// SubdomainValidation reports whether a candidate worker subdomain is
// usable, with a human-readable reason when it is not.
type SubdomainValidation struct {
	Valid  bool
	Reason string
}

// SubdomainValidator checks candidate worker subdomains against the
// reserved list and format rules.
type SubdomainValidator struct {
	reserved map[string]struct{}
}

// NewSubdomainValidator creates a validator. An empty reserved list selects
// DefaultReservedSubdomains.
func NewSubdomainValidator(reserved []string) *SubdomainValidator {
	if len(reserved) == 0 {
		reserved = DefaultReservedSubdomains
	}

	set := make(map[string]struct{}, len(reserved))
	for _, name := range reserved {
		set[strings.ToLower(name)] = struct{}{}
	}

	return &SubdomainValidator{reserved: set}
}

// Validate checks a candidate worker subdomain
func (v *SubdomainValidator) Validate(subdomain string) SubdomainValidation {
	name := strings.TrimSpace(subdomain)

	if name == "" {
		return SubdomainValidation{Reason: "subdomain is empty"}
	}

	if _, ok := v.reserved[strings.ToLower(name)]; ok {
		return SubdomainValidation{Reason: fmt.Sprintf("subdomain %q is reserved", name)}
	}

	if len(name) > MaxSubdomainLength {
		return SubdomainValidation{Reason: fmt.Sprintf("subdomain exceeds %d characters", MaxSubdomainLength)}
	}

	if !subdomainPattern.MatchString(name) {
		return SubdomainValidation{Reason: "subdomain may only contain letters, digits, and hyphens"}
	}

	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return SubdomainValidation{Reason: "subdomain must not start or end with a hyphen"}
	}

	return SubdomainValidation{Valid: true}
}
