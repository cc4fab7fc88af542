// Package analysis prepares scan evidence for a language model and asks it
// for remediation advice.
package analysis

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/hakim/autopent/internal/models"
)

// DefaultInputTokens is the prompt budget for scan evidence.
const DefaultInputTokens = 400

// excerptRunes is how much of each tool's output the summary keeps.
const excerptRunes = 100

const truncatedSuffix = " ... [truncated]"

// Input is the evidence handed to an Analyzer.
type Input struct {
	Target  string
	Scans   []models.ScanOutput
	Matches []models.VulnerabilityMatch
	Exploit *models.ExploitOutcome
}

type toolExcerpt struct {
	Tool    string `json:"tool"`
	Excerpt string `json:"excerpt"`
}

type summary struct {
	Vulnerabilities []models.VulnerabilityMatch `json:"vulnerabilities"`
	Tools           []toolExcerpt               `json:"tools"`
}

// Summarize condenses scan results: correlated vulnerabilities first, then the
// first 100 characters of each tool's output, as indented JSON.
func Summarize(scans []models.ScanOutput, matches []models.VulnerabilityMatch) string {
	s := summary{
		Vulnerabilities: matches,
		Tools:           make([]toolExcerpt, 0, len(scans)),
	}
	if s.Vulnerabilities == nil {
		s.Vulnerabilities = []models.VulnerabilityMatch{}
	}

	for _, o := range scans {
		text := o.Output
		if utf8.RuneCountInString(text) > excerptRunes {
			text = string([]rune(text)[:excerptRunes]) + " ..."
		}
		s.Tools = append(s.Tools, toolExcerpt{Tool: o.Tool, Excerpt: text})
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		// only plain strings are marshalled
		return ""
	}
	return string(data)
}

// EstimateTokens approximates a token count as one token per four characters
// plus one per word.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text)/4 + len(strings.Fields(text))
}

// TrimToTokens keeps whole words of text while the estimate stays within
// maxTokens and marks the cut. Text already within budget is returned as is.
func TrimToTokens(text string, maxTokens int) string {
	if EstimateTokens(text) <= maxTokens {
		return text
	}

	var kept []string
	chars := 0
	for _, w := range strings.Fields(text) {
		next := chars + utf8.RuneCountInString(w)
		if len(kept) > 0 {
			next++ // joining space
		}
		if next/4+len(kept)+1 > maxTokens {
			break
		}
		kept = append(kept, w)
		chars = next
	}
	return strings.Join(kept, " ") + truncatedSuffix
}

// BuildPrompt renders the user prompt for in, with the scan evidence trimmed
// to budget tokens.
func BuildPrompt(in Input, budget int) string {
	if budget <= 0 {
		budget = DefaultInputTokens
	}
	evidence := TrimToTokens(Summarize(in.Scans, in.Matches), budget)

	var b strings.Builder
	b.WriteString("Analyze the following vulnerability scan results for a web application")
	if in.Target != "" {
		b.WriteString(" hosted at ")
		b.WriteString(in.Target)
	}
	b.WriteString(":\n\n")
	b.WriteString(evidence)
	b.WriteString("\n\n")
	if in.Exploit != nil && in.Exploit.Attempted {
		b.WriteString("Exploitation result: ")
		b.WriteString(in.Exploit.Message)
		b.WriteString("\n\n")
	}
	b.WriteString("Provide a detailed summary of the issues found and recommend prioritized security fixes.")
	return b.String()
}
