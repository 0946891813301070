package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/khanhnv2901/secheckup/internal/checker"
)

const pdfPageBreakY = 260

func renderPDF(w io.Writer, doc Document) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252; translate UTF-8 text so messages keep their punctuation.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Security Checkup: "+doc.TargetLabel(), true)
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("Security Checkup: %s", doc.TargetLabel())), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	// Metadata section
	pdf.SetFont("Arial", "", 10)
	if doc.ID != "" {
		pdf.CellFormat(0, 6, fmt.Sprintf("Checkup ID: %s", doc.ID), "", 1, "", false, 0, "")
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Mode: %s | Status: %s", doc.Mode, doc.Status), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Started: %s", formatTimestamp(doc.StartedAt)), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Completed: %s", formatTimestamp(doc.CompletedAt)), "", 1, "", false, 0, "")
	if doc.ErrorMessage != "" {
		pdf.SetTextColor(180, 0, 0)
		pdf.MultiCell(0, 6, tr("Checkup failed: "+doc.ErrorMessage), "", "", false)
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.Ln(4)

	// Summary section
	s := doc.Summary
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Summary", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Grade %s (%.1f/100), overall %s", s.Grade, s.Score, s.Overall), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Secure: %d | Warning: %d | Danger: %d | Unknown: %d | Skipped: %d",
		s.Secure, s.Warning, s.Danger, s.Unknown, s.Skipped), "", 1, "", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Checks", "", 1, "", false, 0, "")
	pdf.Ln(2)

	for _, v := range doc.Verdicts {
		if pdf.GetY() > pdfPageBreakY {
			pdf.AddPage()
		}

		r, g, b := pdfStatusColor(v.Status)
		pdf.SetFont("Arial", "B", 11)
		pdf.SetFillColor(r, g, b)
		pdf.CellFormat(0, 7, tr(fmt.Sprintf("%s - %s", v.Title, strings.ToUpper(string(v.Status)))), "", 1, "", true, 0, "")
		pdf.Ln(1)

		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, tr(v.Message), "", "", false)

		if v.Remediation != nil {
			pdf.SetFont("Arial", "B", 9)
			pdf.MultiCell(0, 5, tr("Remediation: "+v.Remediation.Summary), "", "", false)
			pdf.SetFont("Arial", "", 8)
			if v.Remediation.Risk != "" {
				pdf.MultiCell(0, 4, tr("Risk: "+v.Remediation.Risk), "", "", false)
			}
			if v.Remediation.Impact != "" {
				pdf.MultiCell(0, 4, tr("Impact: "+v.Remediation.Impact), "", "", false)
			}
			for _, step := range v.Remediation.Steps {
				if pdf.GetY() > pdfPageBreakY+10 {
					pdf.AddPage()
				}
				pdf.MultiCell(0, 4, tr("  - "+step), "", "", false)
			}
			pdf.SetFont("Arial", "I", 8)
			for _, link := range v.Remediation.Links {
				pdf.MultiCell(0, 4, tr(fmt.Sprintf("  %s: %s", link.Title, link.URL)), "", "", false)
			}
		}

		pdf.Ln(3)
	}

	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s by secheckup", formatTimestamp(doc.GeneratedAt)), "", 1, "R", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to generate PDF: %w", err)
	}
	return nil
}

func pdfStatusColor(s checker.Status) (int, int, int) {
	switch s {
	case checker.StatusSecure:
		return 220, 245, 225
	case checker.StatusWarning:
		return 255, 243, 205
	case checker.StatusDanger:
		return 250, 215, 215
	default:
		return 240, 240, 240
	}
}
