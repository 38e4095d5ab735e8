package ocr

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText shells out to poppler's pdftotext. -layout stays off so the
// two-column layout common in call-for-applications PDFs comes out in
// reading order.
type PdfToText struct {
	bin string
}

// NewPdfToText returns a PdfToText running bin, or "pdftotext" from PATH.
func NewPdfToText(bin string) *PdfToText {
	if bin == "" {
		bin = "pdftotext"
	}
	return &PdfToText{bin: bin}
}

// Name implements Extractor.
func (p *PdfToText) Name() string { return "pdftotext" }

// ExtractText implements Extractor. Output is forced to UTF-8 without
// form feeds between pages.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	out, err := exec.CommandContext(ctx, p.bin, "-enc", "UTF-8", "-nopgbrk", pdfPath, "-").Output()
	if err != nil {
		name := filepath.Base(pdfPath)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", eris.Wrapf(err, "ocr: pdftotext failed on %s: %s", name, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", eris.Wrapf(err, "ocr: pdftotext failed on %s", name)
	}
	return strings.ToValidUTF8(string(out), ""), nil
}
