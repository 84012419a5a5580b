package documents

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFValidator checks staged files with pdfcpu in relaxed mode.
type PDFValidator struct {
	conf *model.Configuration
}

// NewPDFValidator builds a validator with pdfcpu's default configuration.
func NewPDFValidator() *PDFValidator {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFValidator{conf: conf}
}

// Inspect validates the file and returns its page count. Truncated or
// non-PDF bodies (an HTML error page, say) fail here.
func (v *PDFValidator) Inspect(path string) (int, error) {
	if err := api.ValidateFile(path, v.conf); err != nil {
		return 0, fmt.Errorf("pdfcpu validate: %w", err)
	}
	pages, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu page count: %w", err)
	}
	return pages, nil
}
