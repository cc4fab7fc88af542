package pipeline

import (
	"fmt"
	"net"
	"strings"

	"github.com/hakim/autopent/internal/config"
	"github.com/hakim/autopent/internal/models"
	"github.com/hakim/autopent/internal/target"
)

// ScopeConfig defines allowed assessment boundaries.
// An empty ScopeConfig (no rules) allows any target.
type ScopeConfig struct {
	// AllowedDomains is a list of domain patterns a hostname target must match.
	// Wildcard prefix ("*.example.com") matches any single-label subdomain.
	// Exact entry ("example.com") matches only that literal value.
	AllowedDomains []string

	// AllowedCIDRs is a list of CIDR ranges an IP must fall within.
	AllowedCIDRs []string
}

// NewScope converts the scope section of the configuration.
func NewScope(cfg config.ScopeConfig) *ScopeConfig {
	return &ScopeConfig{AllowedDomains: cfg.Domains, AllowedCIDRs: cfg.CIDRs}
}

// Empty reports whether no rule is configured.
func (s *ScopeConfig) Empty() bool {
	return s == nil || (len(s.AllowedDomains) == 0 && len(s.AllowedCIDRs) == 0)
}

// Check validates a raw target before a run. Hostnames are checked against
// AllowedDomains and IP literals against AllowedCIDRs.
func (s *ScopeConfig) Check(rawTarget string) error {
	if s == nil {
		return nil
	}
	t := target.Parse(rawTarget)
	if t.Host == "" {
		return fmt.Errorf("scope: empty target")
	}
	if t.Kind == models.TargetIP {
		return s.ValidateIP(t.Host)
	}
	return s.ValidateTarget(t.Host)
}

// ValidateTarget checks if a domain is within scope.
// Returns nil if allowed, error if out of scope.
// If AllowedDomains is empty, everything is allowed.
func (s *ScopeConfig) ValidateTarget(host string) error {
	if len(s.AllowedDomains) == 0 {
		return nil
	}
	for _, pattern := range s.AllowedDomains {
		if domainMatches(host, pattern) {
			return nil
		}
	}
	return fmt.Errorf("target %q is outside allowed scope (domains: %s)",
		host, strings.Join(s.AllowedDomains, ", "))
}

// ValidateIP checks if an IP is within any allowed CIDR range.
// Returns nil if allowed or no CIDRs configured, error if out of scope.
func (s *ScopeConfig) ValidateIP(ip string) error {
	if len(s.AllowedCIDRs) == 0 {
		return nil
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return fmt.Errorf("scope: %q is not a valid IP address", ip)
	}
	for _, cidr := range s.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(parsed) {
			return nil
		}
	}
	return fmt.Errorf("IP %q is outside allowed CIDR scope (%s)",
		ip, strings.Join(s.AllowedCIDRs, ", "))
}

// domainMatches returns true when host satisfies the scope pattern.
//
//   - "*.example.com" matches "foo.example.com" but not "example.com" or
//     "foo.bar.example.com" (single wildcard label only).
//   - "example.com" matches only the exact string "example.com".
//   - Comparison is case-insensitive.
func domainMatches(host, pattern string) bool {
	host = strings.ToLower(host)
	pattern = strings.ToLower(strings.TrimSpace(pattern))

	if !strings.HasPrefix(pattern, "*.") {
		return host == pattern
	}

	suffix := pattern[2:]
	if !strings.HasSuffix(host, "."+suffix) {
		return false
	}

	// The part before the suffix must be a single label (no dots).
	label := host[:len(host)-len(suffix)-1]
	return len(label) > 0 && !strings.Contains(label, ".")
}
