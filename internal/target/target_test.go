package target

import (
	"testing"

	"github.com/hakim/autopent/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare host", "example.com", "example.com"},
		{"https with path", "https://Example.com/login.jsp?x=1", "example.com"},
		{"http with port", "http://example.com:8080/", "example.com"},
		{"host with port", "example.com:443", "example.com"},
		{"userinfo", "http://user:pw@example.com/a", "example.com"},
		{"fragment", "example.com#top", "example.com"},
		{"whitespace", "  localhost  ", "localhost"},
		{"ipv4 with port", "10.0.0.1:22", "10.0.0.1"},
		{"bracketed ipv6 with port", "http://[::1]:8080/x", "::1"},
		{"bare ipv6", "2001:db8::1", "2001:db8::1"},
		{"trailing dot", "example.com.", "example.com"},
		{"other scheme", "ftp://files.example.org/pub", "files.example.org"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func FuzzNormalizeIdempotent(f *testing.F) {
	for _, seed := range []string{
		"https://demo.testfire.net/login.jsp",
		"HTTP://LOCALHOST:3000",
		"[::1]:443",
		"http://[2001:db8::1]/",
		"user@host.example.com:21/path",
		"127.0.0.1",
		"weird..host::",
		"://",
		"a.b.c.d.e.f:1:2:3",
		"   ",
		"host\f#",
		"host\v/",
		"host\u00a0?q",
		"a@\u2003example.com",
		"fe80::1%\f#",
		"[fe80::1%eth0]:80",
		"\xff.example.com",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, in string) {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize(%q) = %q, Normalize(%q) = %q", in, once, once, twice)
		}
	})
}

func TestNormalizeTrimsUnicodeSpace(t *testing.T) {
	assert.Equal(t, "host", Normalize("host\f#"))
	assert.Equal(t, "host", Normalize("host\u00a0/path"))
	assert.Equal(t, "example.com", Normalize("a@\u2003example.com"))
	assert.Equal(t, "fe80", Normalize("fe80::1%\f#"))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		kind     models.TargetKind
		loopback bool
	}{
		{"localhost", models.TargetHostname, true},
		{"http://app.localhost:8000", models.TargetHostname, true},
		{"127.0.0.1", models.TargetIP, true},
		{"127.1.2.3", models.TargetIP, true},
		{"[::1]", models.TargetIP, true},
		{"8.8.8.8", models.TargetIP, false},
		{"https://example.com", models.TargetHostname, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Parse(tt.in)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.loopback, got.Loopback)
		})
	}
}

func TestValidDomain(t *testing.T) {
	valid := []string{"example.com", "sub.example.co.uk", "demo.testfire.net", "xn--bcher-kva.de"}
	invalid := []string{"", "localhost", "example", "-bad.com", "bad-.com", "exa_mple.com", "example.123", "a..b.com"}

	for _, d := range valid {
		assert.True(t, ValidDomain(d), d)
	}
	for _, d := range invalid {
		assert.False(t, ValidDomain(d), d)
	}
}

func TestURL(t *testing.T) {
	assert.Equal(t, "https://example.com/login", URL("https://example.com/login"))
	assert.Equal(t, "http://example.com", URL("example.com:8080/path"))
	assert.Equal(t, "http://[::1]", URL("::1"))
}
