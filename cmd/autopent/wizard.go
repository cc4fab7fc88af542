package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hakim/autopent/internal/report"
	"github.com/spf13/cobra"
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive wizard to configure and launch an assessment",
	Long: `Walk through assessment configuration one question at a time.

The wizard asks for a target, scanner preset, report format, timeout, and
optional webhook URL. It then prints a summary and asks for confirmation before
launching the pipeline with the same logic as 'autopent run'.`,
	RunE: runWizard,
}

func init() {
	rootCmd.AddCommand(wizardCmd)
}

// runWizard is the cobra RunE handler for the wizard command.
func runWizard(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	info("autopent Interactive Wizard")
	info("Press Enter to accept the default shown in brackets.")
	fmt.Println()

	// ── 1. Target ─────────────────────────────────────────────────────────────
	var target string
	for attempt := 0; target == ""; attempt++ {
		if attempt == 3 {
			return fmt.Errorf("wizard: no target entered")
		}
		target = wizardPrompt(reader, "[?] Target URL, hostname or IP (required): ", "")
		if target == "" {
			warn("A target is required, please enter a URL, hostname or IP address.")
		}
	}

	// ── 2. Preset ─────────────────────────────────────────────────────────────
	fmt.Println()
	fmt.Println("    Presets:")
	fmt.Println("      [1] full     every configured scanner (nikto, sqlmap, nmap)")
	fmt.Println("      [2] web      web application scanners only (nikto, sqlmap)")
	fmt.Println("      [3] network  network vulnerability scripts only (nmap)")

	presetChoice := wizardPrompt(reader, "[?] Choose preset [1]: ", "1")

	var presetName string
	switch presetChoice {
	case "1", "full":
		presetName = "full"
	case "2", "web":
		presetName = "web"
	case "3", "network":
		presetName = "network"
	default:
		warn("Unknown choice %q, defaulting to full", presetChoice)
		presetName = "full"
	}

	// ── 3. Report format ──────────────────────────────────────────────────────
	fmt.Println()
	defaultFormat := cfg.Report.Format
	if defaultFormat == "" {
		defaultFormat = report.FormatPDF
	}
	reportFormat := wizardPrompt(reader,
		fmt.Sprintf("[?] Report format (pdf, markdown, both) [%s]: ", defaultFormat),
		defaultFormat)
	switch reportFormat {
	case report.FormatPDF, report.FormatMarkdown, report.FormatBoth:
	default:
		warn("Unknown format %q, using %s", reportFormat, defaultFormat)
		reportFormat = defaultFormat
	}

	// ── 4. Timeout ────────────────────────────────────────────────────────────
	fmt.Println()
	timeoutInput := wizardPrompt(reader, "[?] Timeout (Go duration, e.g. 30m, 1h, 2h) [2h]: ", "2h")
	timeout, err := time.ParseDuration(timeoutInput)
	if err != nil {
		warn("Could not parse %q as a duration, using default 2h", timeoutInput)
		timeout = 2 * time.Hour
	}

	// ── 5. Webhook URL ────────────────────────────────────────────────────────
	fmt.Println()
	webhookURL := wizardPrompt(reader, "[?] Webhook URL (optional, press Enter to skip): ", cfg.Notify.WebhookURL)

	// ── Summary + confirmation ─────────────────────────────────────────────────
	fmt.Println()
	info("Ready to assess:")
	fmt.Printf("    Target:   %s\n", target)
	fmt.Printf("    Preset:   %s\n", presetName)
	fmt.Printf("    Report:   %s\n", reportFormat)
	fmt.Printf("    Timeout:  %s\n", timeout)
	fmt.Printf("    Exploit:  %s\n", exploitMode())
	if webhookURL != "" {
		fmt.Printf("    Webhook:  %s\n", webhookURL)
	} else {
		fmt.Println("    Webhook:  (none)")
	}
	fmt.Println()

	confirm := wizardPrompt(reader, "Start assessment? [Y/n]: ", "y")
	if strings.EqualFold(confirm, "n") {
		fmt.Println("Cancelled.")
		return nil
	}

	return runAssessment(runOptions{
		target:       target,
		preset:       presetName,
		timeout:      timeout,
		webhookURL:   webhookURL,
		reportFormat: reportFormat,
	})
}

func exploitMode() string {
	if cfg.Exploit.Configured() {
		return fmt.Sprintf("Metasploit RPC at %s:%d", cfg.Exploit.RPCHost, cfg.Exploit.RPCPort)
	}
	return "disabled (no RPC credentials)"
}

// wizardPrompt prints a prompt, reads a line, trims whitespace, and returns
// the default value if the user pressed Enter without typing anything.
func wizardPrompt(reader *bufio.Reader, prompt, defaultVal string) string {
	fmt.Print(prompt)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		// On EOF or read error, fall back to the default.
		return defaultVal
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultVal
	}
	return line
}
