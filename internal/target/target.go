// Package target normalizes user supplied targets into host identifiers.
package target

import (
	"net"
	"net/netip"
	"regexp"
	"strings"
	"unicode"

	"github.com/hakim/autopent/internal/models"
	"golang.org/x/net/publicsuffix"
)

// LoopbackAddress is used for loopback targets without consulting DNS.
const LoopbackAddress = "127.0.0.1"

var (
	schemeRe = regexp.MustCompile(`^[a-z][a-z0-9+.\-]*://`)
	labelRe  = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	tldRe    = regexp.MustCompile(`^[a-z]{2,}$`)
)

// Normalize strips scheme, userinfo, path, query, fragment and port from raw
// and lower-cases the remaining host. Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = schemeRe.ReplaceAllString(s, "")

	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimFunc(s, unicode.IsSpace)

	// Bracketed IPv6 literal, with or without port
	if strings.HasPrefix(s, "[") {
		if end := strings.Index(s, "]"); end > 0 {
			s = s[1:end]
		}
		s = strings.TrimFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '[' || r == ']' })
	}

	if _, err := netip.ParseAddr(s); err == nil {
		return s
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}

	return strings.TrimFunc(s, isHostEdge)
}

func isHostEdge(r rune) bool {
	return unicode.IsSpace(r) || r == '[' || r == ']' || r == '.'
}

// Parse normalizes raw and classifies the result.
func Parse(raw string) models.Target {
	host := Normalize(raw)
	t := models.Target{Raw: strings.TrimSpace(raw), Host: host, Kind: models.TargetHostname}

	if addr, err := netip.ParseAddr(host); err == nil {
		t.Kind = models.TargetIP
		t.Loopback = addr.IsLoopback()
		return t
	}

	t.Loopback = host == "localhost" || strings.HasSuffix(host, ".localhost")
	return t
}

// IsLoopbackIP reports whether ip is a loopback address.
func IsLoopbackIP(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

// ValidDomain reports whether host is a syntactically valid registrable domain
// name with an alphabetic TLD and a known public suffix.
func ValidDomain(host string) bool {
	if len(host) == 0 || len(host) > 253 {
		return false
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !labelRe.MatchString(l) {
			return false
		}
	}
	if !tldRe.MatchString(labels[len(labels)-1]) {
		return false
	}

	_, err := publicsuffix.EffectiveTLDPlusOne(host)
	return err == nil
}

// URL returns the URL used for HTTP-facing tools: raw itself when it carries a
// scheme, otherwise http:// on the normalized host.
func URL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if schemeRe.MatchString(strings.ToLower(trimmed)) {
		return trimmed
	}
	host := Normalize(trimmed)
	if addr, err := netip.ParseAddr(host); err == nil && addr.Is6() {
		host = "[" + host + "]"
	}
	return "http://" + host
}
