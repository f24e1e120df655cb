package capture

import (
	"errors"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// BundlePDF assembles the screenshots, one per page in order, into out.
// An existing file at out is replaced.
func BundlePDF(screenshots []string, out string) error {
	if len(screenshots) == 0 {
		return errors.New("capture: bundle: no screenshots")
	}
	// pdfcpu appends to an existing file.
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("capture: bundle: %w", err)
	}
	if err := api.ImportImagesFile(screenshots, out, pdfcpu.DefaultImportConfig(), nil); err != nil {
		return fmt.Errorf("capture: bundle: %w", err)
	}
	return nil
}
