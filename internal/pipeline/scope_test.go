package pipeline

import (
	"testing"

	"github.com/hakim/autopent/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestDomainMatches(t *testing.T) {
	tests := []struct {
		host, pattern string
		want          bool
	}{
		{"example.com", "example.com", true},
		{"EXAMPLE.com", "example.COM", true},
		{"www.example.com", "example.com", false},
		{"www.example.com", "*.example.com", true},
		{"example.com", "*.example.com", false},
		{"a.b.example.com", "*.example.com", false},
		{"badexample.com", "*.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.host+"_"+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, domainMatches(tt.host, tt.pattern))
		})
	}
}

func TestScopeCheck(t *testing.T) {
	s := NewScope(config.ScopeConfig{
		Domains: []string{"*.lab.internal", "target.example"},
		CIDRs:   []string{"10.0.0.0/8", "not-a-cidr"},
	})

	assert.NoError(t, s.Check("http://app.lab.internal:8080/login"))
	assert.NoError(t, s.Check("TARGET.example"))
	assert.NoError(t, s.Check("10.1.2.3"))
	assert.Error(t, s.Check("www.google.com"))
	assert.Error(t, s.Check("192.168.1.1"))
	assert.Error(t, s.Check(""))
}

func TestEmptyScopeAllowsEverything(t *testing.T) {
	s := NewScope(config.ScopeConfig{})
	assert.True(t, s.Empty())
	assert.NoError(t, s.Check("anything.example.org"))
	assert.NoError(t, s.Check("8.8.8.8"))

	var nilScope *ScopeConfig
	assert.True(t, nilScope.Empty())
	assert.NoError(t, nilScope.Check("example.com"))
}

func TestValidateIPRejectsGarbage(t *testing.T) {
	s := &ScopeConfig{AllowedCIDRs: []string{"10.0.0.0/8"}}
	assert.Error(t, s.ValidateIP("not-an-ip"))
}
