package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	ScanDir  string          `mapstructure:"scan_dir" yaml:"scan_dir"`
	DBPath   string          `mapstructure:"db_path" yaml:"db_path"`
	Logging  LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Recon    ReconConfig     `mapstructure:"recon" yaml:"recon"`
	Intel    IntelConfig     `mapstructure:"intel" yaml:"intel"`
	Tools    ToolsConfig     `mapstructure:"tools" yaml:"tools"`
	Scanners []ScannerConfig `mapstructure:"scanners" yaml:"scanners"`
	Exploit  ExploitConfig   `mapstructure:"exploit" yaml:"exploit"`
	Analysis AnalysisConfig  `mapstructure:"analysis" yaml:"analysis"`
	Report   ReportConfig    `mapstructure:"report" yaml:"report"`
	Scope    ScopeConfig     `mapstructure:"scope" yaml:"scope"`
	Notify   NotifyConfig    `mapstructure:"notify" yaml:"notify"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console or json
}

// ReconConfig controls the reconnaissance sources
type ReconConfig struct {
	SourceTimeout string `mapstructure:"source_timeout" yaml:"source_timeout"`
	HeaderTimeout string `mapstructure:"header_timeout" yaml:"header_timeout"`
	DNSServer     string `mapstructure:"dns_server" yaml:"dns_server"` // host:port, empty uses /etc/resolv.conf
	WhoisServer   string `mapstructure:"whois_server" yaml:"whois_server"`
	UserAgent     string `mapstructure:"user_agent" yaml:"user_agent"`
}

// IntelServiceConfig configures one IP intelligence service. The service is
// only queried when an API key is present.
type IntelServiceConfig struct {
	APIKey        string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	RatePerMinute int    `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
}

// IntelConfig contains the IP intelligence services
type IntelConfig struct {
	Timeout    string             `mapstructure:"timeout" yaml:"timeout"`
	Shodan     IntelServiceConfig `mapstructure:"shodan" yaml:"shodan"`
	BinaryEdge IntelServiceConfig `mapstructure:"binaryedge" yaml:"binaryedge"`
	Onyphe     IntelServiceConfig `mapstructure:"onyphe" yaml:"onyphe"`
}

// ToolsConfig contains invoker settings shared by all external tools
type ToolsConfig struct {
	MaxOutputBytes int `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
}

// ScannerConfig represents one vulnerability scanner. Command may contain the
// {url} and {host} placeholders.
type ScannerConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Command string `mapstructure:"command" yaml:"command"`
	Timeout string `mapstructure:"timeout" yaml:"timeout"`
}

// SignatureConfig maps a scan-output substring to an exploit module
type SignatureConfig struct {
	Signature string `mapstructure:"signature" yaml:"signature"`
	Exploit   string `mapstructure:"exploit" yaml:"exploit"`
}

// ExploitConfig contains the Metasploit RPC connection and listener settings
type ExploitConfig struct {
	Enabled    bool              `mapstructure:"enabled" yaml:"enabled"`
	RPCHost    string            `mapstructure:"rpc_host" yaml:"rpc_host"`
	RPCPort    int               `mapstructure:"rpc_port" yaml:"rpc_port"`
	RPCUser    string            `mapstructure:"rpc_user" yaml:"rpc_user"`
	RPCPass    string            `mapstructure:"rpc_pass" yaml:"rpc_pass"`
	RPCSSL     bool              `mapstructure:"rpc_ssl" yaml:"rpc_ssl"`
	LHOST      string            `mapstructure:"lhost" yaml:"lhost"`
	LPORT      int               `mapstructure:"lport" yaml:"lport"`
	Timeout    string            `mapstructure:"timeout" yaml:"timeout"`
	Signatures []SignatureConfig `mapstructure:"signatures" yaml:"signatures"`
}

// AnalysisConfig configures the OpenAI-compatible analysis client
type AnalysisConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string `mapstructure:"base_url" yaml:"base_url"`
	Model       string `mapstructure:"model" yaml:"model"`
	MaxTokens   int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	InputTokens int    `mapstructure:"input_tokens" yaml:"input_tokens"`
	Timeout     string `mapstructure:"timeout" yaml:"timeout"`
}

// ReportConfig controls report rendering
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"` // pdf, markdown or both
}

// ScopeConfig restricts which targets may be assessed. Empty means unrestricted.
type ScopeConfig struct {
	Domains []string `mapstructure:"domains" yaml:"domains"`
	CIDRs   []string `mapstructure:"cidrs" yaml:"cidrs"`
}

// NotifyConfig configures completion notifications
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
}

// legacyEnv maps config keys to the bare environment variable names used by
// existing deployments. AUTOPENT_-prefixed names take precedence.
var legacyEnv = map[string]string{
	"exploit.rpc_host":         "METASPLOIT_RPC_HOST",
	"exploit.rpc_port":         "METASPLOIT_RPC_PORT",
	"exploit.rpc_user":         "METASPLOIT_RPC_USER",
	"exploit.rpc_pass":         "METASPLOIT_RPC_PASS",
	"exploit.lhost":            "LHOST",
	"exploit.lport":            "LPORT",
	"intel.shodan.api_key":     "SHODAN_API_KEY",
	"intel.binaryedge.api_key": "BINARYEDGE_API_KEY",
	"intel.onyphe.api_key":     "ONYPHE_API_KEY",
	"analysis.api_key":         "OPENAI_API_KEY",
	"analysis.base_url":        "ANALYSIS_BASE_URL",
}

// Load reads configuration on top of the defaults.
// If path is empty, searches for autopent.yaml in ., ./configs and ~/.config/autopent/;
// a missing file is not an error in that case.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		// Use explicit path
		v.SetConfigFile(path)
	} else {
		// Search for config in default locations
		v.SetConfigName("autopent")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "autopent"))
		}
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("AUTOPENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "AUTOPENT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.ScanDir == "" {
		errs = append(errs, errors.New("scan_dir cannot be empty"))
	}

	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path cannot be empty"))
	}

	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			errs = append(errs, fmt.Errorf("logging.level: %w", err))
		}
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	errs = append(errs, checkDuration("recon.source_timeout", c.Recon.SourceTimeout))
	errs = append(errs, checkDuration("recon.header_timeout", c.Recon.HeaderTimeout))
	errs = append(errs, checkDuration("intel.timeout", c.Intel.Timeout))
	errs = append(errs, checkDuration("exploit.timeout", c.Exploit.Timeout))
	errs = append(errs, checkDuration("analysis.timeout", c.Analysis.Timeout))

	if c.Tools.MaxOutputBytes < 0 {
		errs = append(errs, errors.New("tools.max_output_bytes cannot be negative"))
	}

	if len(c.Scanners) == 0 {
		errs = append(errs, errors.New("at least one scanner must be configured"))
	}
	seen := make(map[string]bool)
	for i, s := range c.Scanners {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("scanners[%d]: name cannot be empty", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("scanners[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if strings.TrimSpace(s.Command) == "" {
			errs = append(errs, fmt.Errorf("scanners[%d]: command cannot be empty", i))
		}
		errs = append(errs, checkDuration(fmt.Sprintf("scanners[%d].timeout", i), s.Timeout))
	}

	if c.Exploit.RPCPort < 0 || c.Exploit.RPCPort > 65535 {
		errs = append(errs, fmt.Errorf("exploit.rpc_port out of range: %d", c.Exploit.RPCPort))
	}
	if c.Exploit.LPORT < 0 || c.Exploit.LPORT > 65535 {
		errs = append(errs, fmt.Errorf("exploit.lport out of range: %d", c.Exploit.LPORT))
	}
	for i, sig := range c.Exploit.Signatures {
		if strings.TrimSpace(sig.Signature) == "" || strings.TrimSpace(sig.Exploit) == "" {
			errs = append(errs, fmt.Errorf("exploit.signatures[%d]: signature and exploit are required", i))
		}
	}

	if c.Analysis.InputTokens < 0 || c.Analysis.MaxTokens < 0 {
		errs = append(errs, errors.New("analysis token limits cannot be negative"))
	}

	switch c.Report.Format {
	case "pdf", "markdown", "both":
	default:
		errs = append(errs, fmt.Errorf("report.format must be pdf, markdown or both, got %q", c.Report.Format))
	}

	return errors.Join(errs...)
}

func checkDuration(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return fmt.Errorf("%s cannot be negative", name)
	}
	return nil
}

// Duration parses a validated duration string, returning fallback when it is
// empty or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// Configured reports whether an exploitation framework connection should be made.
func (e ExploitConfig) Configured() bool {
	return e.Enabled || e.RPCPass != ""
}

// Configured reports whether an analysis client should be created. A key or an
// endpoint implies enabled.
func (a AnalysisConfig) Configured() bool {
	return a.Enabled || a.APIKey != "" || a.BaseURL != ""
}
