package app

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDFText pulls plain text out of a PDF, prefixing each page
// with a "--- Page N ---" marker so page boundaries survive into the
// chunk metadata. Pages that fail to decode are skipped rather than
// failing the whole document.
func extractPDFText(data []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	totalPages := reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n--- Page %d ---\n", i)
		sb.WriteString(text)
	}
	if sb.Len() == 0 {
		return "", 0, fmt.Errorf("no text extracted from PDF")
	}
	return sb.String(), totalPages, nil
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}
