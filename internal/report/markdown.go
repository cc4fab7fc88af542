package report

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// MarkdownRenderer writes the report as a Markdown document.
type MarkdownRenderer struct{}

func (m *MarkdownRenderer) Render(ctx context.Context, in Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := outputPath(in, "md")
	if err != nil {
		return "", err
	}
	if err := writeFile(path, Markdown(in)); err != nil {
		return "", err
	}
	return path, nil
}

// Markdown renders the report body.
func Markdown(in Input) string {
	r := in.Result
	var b strings.Builder

	b.WriteString("# Security Assessment Report\n\n")
	if r.Aborted() {
		b.WriteString(fmt.Sprintf("> **Run aborted:** %s\n\n", r.AbortReason))
	}

	for _, s := range buildSections(r) {
		b.WriteString(fmt.Sprintf("## %s\n\n", s.Title))
		for _, it := range s.Items {
			switch {
			case it.Pre:
				b.WriteString(fmt.Sprintf("### %s\n\n", it.Heading))
				b.WriteString("```\n")
				b.WriteString(strings.TrimRight(it.Text, "\n"))
				b.WriteString("\n```\n\n")
			case it.Key != "":
				b.WriteString(fmt.Sprintf("- **%s:** %s\n", it.Key, it.Text))
			default:
				b.WriteString(it.Text)
				b.WriteString("\n\n")
			}
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeFile(outputPath, content string) error {
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing report to %s: %w", outputPath, err)
	}
	return nil
}
