package vulnscan

import (
	"fmt"
	"sort"
	"strings"
)

// Preset defines a named selection of scanners.
type Preset struct {
	Name        string
	Description string
	Scanners    []string // scanner names, in configured order
}

// builtinPresets is the registry of all known presets.
var builtinPresets = map[string]Preset{
	"full": {
		Name:        "full",
		Description: "Every configured scanner: web server, SQL injection and network vulnerability scripts",
		Scanners:    nil,
	},
	"web": {
		Name:        "web",
		Description: "Web application scanners only (nikto, sqlmap)",
		Scanners:    []string{"nikto", "sqlmap"},
	},
	"network": {
		Name:        "network",
		Description: "Network service vulnerability scripts only (nmap)",
		Scanners:    []string{"nmap"},
	},
}

// BuiltinPresets returns the available preset templates.
func BuiltinPresets() map[string]Preset {
	// Return a copy so callers cannot mutate the registry.
	out := make(map[string]Preset, len(builtinPresets))
	for k, v := range builtinPresets {
		out[k] = v
	}
	return out
}

// GetPreset returns a preset by name, or an error if not found.
func GetPreset(name string) (*Preset, error) {
	p, ok := builtinPresets[name]
	if !ok {
		names := make([]string, 0, len(builtinPresets))
		for n := range builtinPresets {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown preset %q, available: %s", name, strings.Join(names, ", "))
	}
	cp := p
	return &cp, nil
}

// Apply keeps the scanners selected by the preset, preserving their order.
// A preset without a scanner list selects everything.
func (p *Preset) Apply(scanners []Scanner) ([]Scanner, error) {
	if len(p.Scanners) == 0 {
		return scanners, nil
	}

	want := make(map[string]bool, len(p.Scanners))
	for _, n := range p.Scanners {
		want[n] = true
	}

	var out []Scanner
	for _, s := range scanners {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("preset %q selects none of the configured scanners", p.Name)
	}
	return out, nil
}
