// Package correlate maps raw scan evidence to candidate exploit modules using
// a static, ordered signature table.
//
// Matching is a case-insensitive substring test against the combined text of
// every scanner, including failure and timeout markers. A tool error message
// that happens to contain a signature therefore produces a match. This is a
// known precision limitation and is kept so results stay comparable across runs.
package correlate

import (
	"strings"

	"github.com/hakim/autopent/internal/config"
	"github.com/hakim/autopent/internal/models"
)

// Signature maps a scan-output substring to an exploit module.
type Signature struct {
	Text    string
	Exploit string
}

// DefaultSignatures is the built-in table. Order is significant: it decides
// match order and therefore which exploit is attempted first.
func DefaultSignatures() []Signature {
	return []Signature{
		{Text: "vsftpd 2.3.4", Exploit: "exploit/unix/ftp/vsftpd_234_backdoor"},
		{Text: "Apache Struts", Exploit: "exploit/multi/http/struts2_exec"},
		{Text: "SMBv1", Exploit: "exploit/windows/smb/ms17_010_eternalblue"},
		{Text: "SQL Injection", Exploit: "exploit/unix/webapp/sqlmap_sqli"},
	}
}

// Engine holds the signature table.
type Engine struct {
	table []Signature
	lower []string
}

// New builds an engine from the given table. Empty entries and signatures
// that repeat an earlier one (case-insensitively) are dropped.
func New(table []Signature) *Engine {
	e := &Engine{}
	seen := make(map[string]bool, len(table))
	for _, s := range table {
		key := strings.ToLower(strings.TrimSpace(s.Text))
		if key == "" || s.Exploit == "" || seen[key] {
			continue
		}
		seen[key] = true
		e.table = append(e.table, s)
		e.lower = append(e.lower, key)
	}
	return e
}

// NewDefault builds an engine from the built-in table followed by extra
// configured signatures.
func NewDefault(extra []config.SignatureConfig) *Engine {
	table := DefaultSignatures()
	for _, s := range extra {
		table = append(table, Signature{Text: s.Signature, Exploit: s.Exploit})
	}
	return New(table)
}

// Signatures returns a copy of the effective table.
func (e *Engine) Signatures() []Signature {
	return append([]Signature(nil), e.table...)
}

// Correlate returns one match per signature found in text, in table order.
// The result is never nil.
//
// Matching is a plain substring test, so a signature that appears in a URL,
// a banner or a "not vulnerable" line still matches.
func (e *Engine) Correlate(text string) []models.VulnerabilityMatch {
	matches := []models.VulnerabilityMatch{}
	if text == "" {
		return matches
	}

	haystack := strings.ToLower(text)
	for i, s := range e.table {
		if strings.Contains(haystack, e.lower[i]) {
			matches = append(matches, models.VulnerabilityMatch{
				Signature: s.Text,
				Exploit:   s.Exploit,
			})
		}
	}
	return matches
}
