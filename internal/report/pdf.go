package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// pdfToolOutputLimit caps each scanner's raw output in the PDF.
const pdfToolOutputLimit = 8 * 1024

// PDFRenderer writes the report as a PDF document.
type PDFRenderer struct{}

func (p *PDFRenderer) Render(ctx context.Context, in Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := outputPath(in, "pdf")
	if err != nil {
		return "", err
	}

	pdf := buildPDF(in)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("writing PDF report to %s: %w", path, err)
	}
	return path, nil
}

func buildPDF(in Input) *fpdf.Fpdf {
	r := in.Result
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(140, 140, 140)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(30, 41, 59)
	pdf.CellFormat(0, 12, "Security Assessment Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	if r.Aborted() {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetTextColor(220, 38, 38)
		pdf.MultiCell(0, 6, tr("Run aborted: "+r.AbortReason), "", "L", false)
		pdf.Ln(3)
	}

	for _, s := range buildSections(r) {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.SetFillColor(30, 41, 59)
		pdf.SetTextColor(255, 255, 255)
		pdf.CellFormat(0, 9, tr(s.Title), "", 1, "L", true, 0, "")
		pdf.Ln(2)

		for _, it := range s.Items {
			switch {
			case it.Pre:
				pdf.SetFont("Helvetica", "B", 10)
				pdf.SetTextColor(60, 60, 60)
				pdf.MultiCell(0, 6, tr(it.Heading), "", "L", false)
				pdf.SetFont("Courier", "", 8)
				pdf.SetTextColor(40, 40, 40)
				pdf.MultiCell(0, 4, tr(clip(it.Text, pdfToolOutputLimit)), "", "L", false)
				pdf.Ln(2)
			case it.Key != "":
				pdf.SetFont("Helvetica", "B", 10)
				pdf.SetTextColor(60, 60, 60)
				pdf.CellFormat(40, 6, tr(it.Key+":"), "", 0, "L", false, 0, "")
				pdf.SetFont("Helvetica", "", 10)
				pdf.MultiCell(0, 6, tr(it.Text), "", "L", false)
			default:
				pdf.SetFont("Helvetica", "", 10)
				pdf.SetTextColor(60, 60, 60)
				pdf.MultiCell(0, 5, tr(it.Text), "", "L", false)
				pdf.Ln(1)
			}
		}
		pdf.Ln(5)
	}

	return pdf
}

func clip(s string, limit int) string {
	s = strings.TrimRight(s, "\n")
	if len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("\n... [%d bytes omitted]", len(s)-limit)
}
