package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// Text-showing operators in a PDF content stream
var pdfTextRe = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)\s*(?:Tj|')`)

// Rectangle draw operators, a rough signal for tabular layout
var pdfRectRe = regexp.MustCompile(`\bre\b`)

// PDFExtractor pulls text and structure out of PDF bytes
type PDFExtractor struct{}

// NewPDFExtractor creates the PDF text extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractText parses the document, concatenates the text shown on each
// page and reports page count plus image/table hints.
func (e *PDFExtractor) ExtractText(ctx context.Context, data []byte) (string, *models.DocumentMetadata, error) {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse pdf: %w", err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return "", nil, fmt.Errorf("invalid pdf: %w", err)
	}
	if err := api.OptimizeContext(pdfCtx); err != nil {
		return "", nil, fmt.Errorf("failed to analyze pdf: %w", err)
	}

	meta := &models.DocumentMetadata{
		Pages:     pdfCtx.PageCount,
		HasImages: len(pdfCtx.Optimize.ImageObjects) > 0,
	}

	var sb strings.Builder
	rects := 0
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		reader, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
		if err != nil || reader == nil {
			continue
		}
		content, err := io.ReadAll(reader)
		if err != nil {
			continue
		}
		rects += len(pdfRectRe.FindAll(content, -1))
		for _, match := range pdfTextRe.FindAllSubmatch(content, -1) {
			text := decodePDFString(string(match[1]))
			if strings.TrimSpace(text) != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		sb.WriteString("\n")
	}
	// A handful of rectangles per page is typical chrome; many suggest a grid
	meta.HasTables = pdfCtx.PageCount > 0 && rects/pdfCtx.PageCount > 8

	return strings.TrimSpace(sb.String()), meta, nil
}

// decodePDFString resolves the escape sequences of a literal PDF string
func decodePDFString(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r', 'f', 'b':
			sb.WriteByte(' ')
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

var _ interfaces.TextExtractor = (*PDFExtractor)(nil)
