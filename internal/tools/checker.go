package tools

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// versionTimeout bounds a single version probe.
const versionTimeout = 10 * time.Second

// ToolRequirement describes an external binary the pipeline shells out to.
type ToolRequirement struct {
	Name        string   // Display name
	Binary      string   // Executable looked up on PATH
	Required    bool     // Whether a default run needs it
	InstallCmd  string   // Installation hint
	Purpose     string   // One-line description
	VersionArgs []string // Arguments that make the binary print its version
}

// CheckResult is the availability of one tool.
type CheckResult struct {
	Tool    ToolRequirement
	Found   bool
	Path    string
	Version string
}

// DefaultTools lists the scanners and the exploitation daemon autopent drives.
func DefaultTools() []ToolRequirement {
	return []ToolRequirement{
		{
			Name:        "nikto",
			Binary:      "nikto",
			Required:    true,
			InstallCmd:  "apt install nikto (or brew install nikto on macOS)",
			Purpose:     "Web server vulnerability scanning",
			VersionArgs: []string{"-Version"},
		},
		{
			Name:        "sqlmap",
			Binary:      "sqlmap",
			Required:    true,
			InstallCmd:  "apt install sqlmap (or pipx install sqlmap)",
			Purpose:     "SQL injection testing",
			VersionArgs: []string{"--version"},
		},
		{
			Name:        "nmap",
			Binary:      "nmap",
			Required:    true,
			InstallCmd:  "apt install nmap (or brew install nmap on macOS)",
			Purpose:     "NSE vulnerability scripts",
			VersionArgs: []string{"--version"},
		},
		{
			Name:       "msfrpcd",
			Binary:     "msfrpcd",
			Required:   false,
			InstallCmd: "install the Metasploit Framework (https://docs.metasploit.com)",
			Purpose:    "Exploitation framework RPC daemon",
		},
	}
}

// CheckTools checks every tool in order.
func CheckTools(tools []ToolRequirement) []CheckResult {
	results := make([]CheckResult, 0, len(tools))
	for _, tool := range tools {
		results = append(results, CheckTool(tool))
	}
	return results
}

// CheckTool looks the binary up on PATH and, when found, probes its version.
func CheckTool(tool ToolRequirement) CheckResult {
	result := CheckResult{Tool: tool}

	path, err := exec.LookPath(tool.Binary)
	if err != nil {
		return result
	}
	result.Found = true
	result.Path = path
	result.Version = probeVersion(path, tool.VersionArgs)
	return result
}

// probeVersion returns the first non-empty output line of the version
// command, or "unknown". Some tools exit non-zero after printing it.
func probeVersion(path string, args []string) string {
	if len(args) == 0 {
		return "unknown"
	}

	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()

	res, _ := RunTool(ctx, 4096, path, args...)
	if res == nil {
		return "unknown"
	}
	for _, text := range []string{string(res.Stdout), res.Stderr} {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if len(line) > 50 {
				line = line[:50] + "..."
			}
			return line
		}
	}
	return "unknown"
}
