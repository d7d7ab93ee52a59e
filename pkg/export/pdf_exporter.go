package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// StorybookPage carries the renderable content of a single storybook page.
type StorybookPage struct {
	ImageURL string
	Text     string
}

// PDFExporter renders storybooks into a printable document.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderStorybook lays out one page per storybook page, the first page acting
// as the cover. Images are referenced by URL; the document embeds their
// captions and narrative text only.
func (e *PDFExporter) RenderStorybook(title string, pages []StorybookPage) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("storybook requires at least one page")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 24)
	pdf.CellFormat(0, 40, title, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "I", 11)
	if pages[0].ImageURL != "" {
		pdf.CellFormat(0, 8, pages[0].ImageURL, "", 1, "C", false, 0, "")
	}
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 7, pages[0].Text, "", "C", false)

	for i, page := range pages[1:] {
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", i+1), "", 1, "R", false, 0, "")
		if page.ImageURL != "" {
			pdf.SetFont("Arial", "I", 9)
			pdf.CellFormat(0, 6, page.ImageURL, "", 1, "L", false, 0, "")
			pdf.Ln(4)
		}
		pdf.SetFont("Arial", "", 12)
		pdf.MultiCell(0, 7, page.Text, "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render storybook pdf: %w", err)
	}
	return buf.Bytes(), nil
}
