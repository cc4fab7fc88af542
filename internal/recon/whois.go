package recon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hakim/autopent/internal/models"
	"github.com/hakim/autopent/internal/target"
	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"golang.org/x/net/publicsuffix"
)

// rawExcerptLimit bounds the unparsed WHOIS text kept when parsing fails.
const rawExcerptLimit = 500

// WhoisSource queries WHOIS for the registrable domain of the target.
type WhoisSource struct {
	// Server overrides the WHOIS server, e.g. "whois.verisign-grs.com".
	Server string

	// query is replaced in tests.
	query func(ctx context.Context, domain string) (string, error)
}

// NewWhoisSource creates a WHOIS source
func NewWhoisSource(server string) *WhoisSource {
	return &WhoisSource{Server: server}
}

// Name returns the WHOIS source name.
func (w *WhoisSource) Name() string { return models.SourceWHOIS }

// Lookup returns a WHOIS summary of the registrable domain of the target.
func (w *WhoisSource) Lookup(ctx context.Context, req Request) (string, error) {
	host := req.Target.Host
	if !target.ValidDomain(host) {
		return "", Skip(fmt.Sprintf("invalid domain format %q", host))
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", Skip(fmt.Sprintf("no registrable domain for %q", host))
	}

	query := w.query
	if query == nil {
		query = w.lookup
	}

	raw, err := query(ctx, domain)
	if err != nil {
		return "", fmt.Errorf("%w: whois %s: %v", models.ErrSourceUnavailable, domain, err)
	}

	return summarizeWhois(domain, raw)
}

func (w *WhoisSource) lookup(ctx context.Context, domain string) (string, error) {
	client := whois.NewClient()
	if deadline, ok := ctx.Deadline(); ok {
		client.SetTimeout(time.Until(deadline))
	}
	if w.Server != "" {
		return client.Whois(domain, w.Server)
	}
	return client.Whois(domain)
}

// summarizeWhois condenses a raw WHOIS response into one line. Unparseable
// responses fall back to a raw excerpt.
func summarizeWhois(domain, raw string) (string, error) {
	parsed, err := whoisparser.Parse(raw)
	if err != nil {
		if errors.Is(err, whoisparser.ErrNotFoundDomain) {
			return "", fmt.Errorf("%w: domain %s not found", models.ErrSourceUnavailable, domain)
		}
		return "domain=" + domain + "; raw=" + excerpt(raw, rawExcerptLimit), nil
	}

	fields := []string{"domain=" + domain}
	add := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fields = append(fields, key+"="+value)
		}
	}

	if parsed.Registrar != nil {
		add("registrar", parsed.Registrar.Name)
	}
	if parsed.Registrant != nil {
		add("registrant_org", parsed.Registrant.Organization)
		add("registrant_country", parsed.Registrant.Country)
	}
	if parsed.Domain != nil {
		add("created", parsed.Domain.CreatedDate)
		add("expires", parsed.Domain.ExpirationDate)
		add("name_servers", strings.Join(parsed.Domain.NameServers, ","))
		add("status", strings.Join(parsed.Domain.Status, ","))
	}

	return strings.Join(fields, "; "), nil
}

func excerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= limit {
		return s
	}
	return s[:limit] + " ..."
}
