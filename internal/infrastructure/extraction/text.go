// Package extraction turns downloaded documents into text and the text into
// structured invoice and receipt data.
package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docsync/backend/internal/infrastructure/config"
	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// Errors returned by the text extractor
var (
	ErrNoText          = errors.New("extraction: no text found in document")
	ErrUnsupportedFile = errors.New("extraction: unsupported file type")
	ErrOCRFailed       = errors.New("extraction: ocr failed")
)

// minTextLayer is the shortest PDF text layer accepted before falling back to OCR
const minTextLayer = 20

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tiff": true, ".tif": true, ".bmp": true, ".heic": true,
}

// TextExtractor reads the text of a PDF or image document
type TextExtractor struct {
	cfg    config.OCRConfig
	logger *zap.Logger
	run    func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

// NewTextExtractor creates an extractor using the configured tesseract binary
func NewTextExtractor(cfg config.OCRConfig, logger *zap.Logger) *TextExtractor {
	return &TextExtractor{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "extraction")),
		run:    runCommand,
	}
}

// ExtractText returns the text of the document. PDFs are read from their text
// layer first; images and scanned PDFs go through tesseract.
func (e *TextExtractor) ExtractText(ctx context.Context, fileName string, data []byte) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "extraction.text")
	defer span.End()

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	var (
		text string
		err  error
	)
	switch {
	case ext == ".pdf":
		text, err = e.pdfText(ctx, data)
	case imageExtensions[ext]:
		text, err = e.ocr(ctx, data)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFile, fileName)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrNoText, fileName)
	}
	return text, nil
}

func (e *TextExtractor) pdfText(ctx context.Context, data []byte) (string, error) {
	text, err := ReadPDFText(data)
	if err == nil && len(strings.TrimSpace(text)) >= minTextLayer {
		return text, nil
	}
	if err != nil {
		e.logger.Debug("PDF text layer unreadable, using OCR", zap.Error(err))
	}
	return e.ocrPDF(ctx, data)
}

// ReadPDFText returns the plain text layer of a PDF
func ReadPDFText(data []byte) (text string, err error) {
	// the pdf package panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to read pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}

// ocr runs tesseract over one image passed on stdin
func (e *TextExtractor) ocr(ctx context.Context, image []byte) (string, error) {
	out, err := e.run(ctx, image, e.cfg.TesseractPath, "stdin", "stdout", "-l", e.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOCRFailed, err)
	}
	return string(out), nil
}

// ocrPDF rasterises the pages of a scanned PDF and OCRs each of them
func (e *TextExtractor) ocrPDF(ctx context.Context, data []byte) (string, error) {
	dir, err := os.MkdirTemp("", "docsync-ocr-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write temp pdf: %w", err)
	}
	if _, err := e.run(ctx, nil, e.cfg.RasterizerPath, "-r", "300", "-png", src, filepath.Join(dir, "page")); err != nil {
		return "", fmt.Errorf("%w: rasterize: %v", ErrOCRFailed, err)
	}

	pages, err := filepath.Glob(filepath.Join(dir, "page*.png"))
	if err != nil {
		return "", err
	}
	sort.Strings(pages)
	var b strings.Builder
	for _, page := range pages {
		img, err := os.ReadFile(page)
		if err != nil {
			return "", fmt.Errorf("failed to read page image: %w", err)
		}
		text, err := e.ocr(ctx, img)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
