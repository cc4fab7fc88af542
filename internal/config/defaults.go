package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultScanners mirrors the three scanners of a full assessment
func DefaultScanners() []ScannerConfig {
	return []ScannerConfig{
		{Name: "nikto", Command: "nikto -h {url}", Timeout: "5m"},
		{Name: "sqlmap", Command: "sqlmap -u {url} --batch --risk=3 --level=5", Timeout: "5m"},
		{Name: "nmap", Command: "nmap --script vuln {host}", Timeout: "5m"},
	}
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		ScanDir: "scans",
		DBPath:  "autopent.db",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Recon: ReconConfig{
			SourceTimeout: "30s",
			HeaderTimeout: "5s",
			UserAgent:     "autopent/1.0",
		},
		Intel: IntelConfig{
			Timeout: "15s",
			Shodan: IntelServiceConfig{
				BaseURL:       "https://api.shodan.io",
				RatePerMinute: 60,
			},
			BinaryEdge: IntelServiceConfig{
				BaseURL:       "https://api.binaryedge.io",
				RatePerMinute: 60,
			},
			Onyphe: IntelServiceConfig{
				BaseURL:       "https://www.onyphe.io",
				RatePerMinute: 60,
			},
		},
		Tools: ToolsConfig{
			MaxOutputBytes: 1 << 20,
		},
		Scanners: DefaultScanners(),
		Exploit: ExploitConfig{
			RPCHost:    "127.0.0.1",
			RPCPort:    55553,
			RPCUser:    "msf",
			RPCSSL:     true,
			LPORT:      4444,
			Timeout:    "60s",
			Signatures: []SignatureConfig{},
		},
		Analysis: AnalysisConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   512,
			InputTokens: 400,
			Timeout:     "60s",
		},
		Report: ReportConfig{
			Format: "pdf",
		},
		Scope: ScopeConfig{
			Domains: []string{},
			CIDRs:   []string{},
		},
	}
}

// WriteDefault writes a default configuration to the specified path
func WriteDefault(path string) error {
	cfg := DefaultConfig()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
