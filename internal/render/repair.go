package render

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// repair rewrites a PDF that MuPDF refused to open, using pdfcpu with
// relaxed validation. Mildly damaged uploads (broken xref tables,
// sloppy producers) often survive this pass; anything else is reported
// unreadable by the caller.
func repair(data []byte) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &out, conf); err != nil {
		return nil, fmt.Errorf("pdfcpu repair: %w", err)
	}
	return out.Bytes(), nil
}
