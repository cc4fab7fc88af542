package recon

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hakim/autopent/internal/models"
	"github.com/miekg/dns"
)

const resolvConf = "/etc/resolv.conf"

// DNSSource queries A, MX, NS and TXT records for the target hostname.
type DNSSource struct {
	// Server is host:port; empty uses the first nameserver of /etc/resolv.conf.
	Server string
	Client *dns.Client
}

// NewDNSSource creates a DNS record source
func NewDNSSource(server string) *DNSSource {
	return &DNSSource{
		Server: server,
		Client: &dns.Client{Timeout: 5 * time.Second},
	}
}

// Name returns the DNS records source name.
func (d *DNSSource) Name() string { return models.SourceDNSRecords }

var recordTypes = []struct {
	name  string
	qtype uint16
}{
	{"A", dns.TypeA},
	{"MX", dns.TypeMX},
	{"NS", dns.TypeNS},
	{"TXT", dns.TypeTXT},
}

// Lookup queries A, MX, NS and TXT records for the target domain.
func (d *DNSSource) Lookup(ctx context.Context, req Request) (string, error) {
	server, err := d.server()
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}

	client := d.Client
	if client == nil {
		client = &dns.Client{Timeout: 5 * time.Second}
	}

	var parts []string
	var lastErr error
	failures := 0

	for _, rt := range recordTypes {
		values, err := d.query(ctx, client, server, req.Target.Host, rt.qtype)
		if err != nil {
			// A failed record type contributes an empty list
			lastErr = err
			failures++
		}
		parts = append(parts, rt.name+": "+formatValues(values))
	}

	if failures == len(recordTypes) {
		return "", fmt.Errorf("%w: all DNS queries failed: %v", models.ErrSourceUnavailable, lastErr)
	}

	return strings.Join(parts, " | "), nil
}

func (d *DNSSource) query(ctx context.Context, client *dns.Client, server, host string, qtype uint16) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	r, _, err := client.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, err
	}
	if r.Rcode != dns.RcodeSuccess && r.Rcode != dns.RcodeNameError {
		return nil, fmt.Errorf("rcode %s", dns.RcodeToString[r.Rcode])
	}

	var values []string
	for _, ans := range r.Answer {
		switch v := ans.(type) {
		case *dns.A:
			values = append(values, v.A.String())
		case *dns.MX:
			values = append(values, strconv.Itoa(int(v.Preference))+" "+v.Mx)
		case *dns.NS:
			values = append(values, v.Ns)
		case *dns.TXT:
			values = append(values, strings.Join(v.Txt, ""))
		}
	}
	sort.Strings(values)
	return values, nil
}

func (d *DNSSource) server() (string, error) {
	if d.Server != "" {
		return d.Server, nil
	}
	conf, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		return "", fmt.Errorf("no DNS server configured: %w", err)
	}
	if len(conf.Servers) == 0 {
		return "", fmt.Errorf("no nameservers in %s", resolvConf)
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port), nil
}

func formatValues(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}
