// Package document turns uploaded receipts into images for the extraction model
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/application/port"
)

const (
	mimePDF  = "application/pdf"
	mimeJPEG = "image/jpeg"
)

// ErrUnsupportedType is returned for uploads that are neither images nor PDFs
var ErrUnsupportedType = errors.New("unsupported receipt type")

// ErrNoPages is returned when a PDF produced no usable page
var ErrNoPages = errors.New("document has no readable pages")

var passthroughTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Config holds rendering settings
type Config struct {
	// MaxPages limits how many PDF pages are sent to the model
	MaxPages int
	DPI      float64
	Quality  int
}

// DefaultConfig returns the settings used when none are configured
func DefaultConfig() Config {
	return Config{MaxPages: 2, DPI: 150, Quality: 85}
}

// Renderer implements port.DocumentRenderer with MuPDF
type Renderer struct {
	cfg    Config
	logger *zap.Logger
}

// NewRenderer creates a renderer, filling unset settings from DefaultConfig
func NewRenderer(cfg Config, logger *zap.Logger) *Renderer {
	def := DefaultConfig()
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.DPI <= 0 {
		cfg.DPI = def.DPI
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	return &Renderer{cfg: cfg, logger: logger}
}

// Render returns content unchanged for images and one JPEG per page for PDFs.
// An empty mimeType is sniffed from the content.
func (r *Renderer) Render(ctx context.Context, content []byte, mimeType string) ([]port.ReceiptImage, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnsupportedType)
	}

	mimeType = normalizeMime(mimeType, content)
	switch {
	case passthroughTypes[mimeType]:
		return []port.ReceiptImage{{Data: content, MimeType: mimeType}}, nil
	case mimeType == mimePDF:
		return r.renderPDF(ctx, content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
}

func (r *Renderer) renderPDF(ctx context.Context, content []byte) ([]port.ReceiptImage, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	pages := pageCount
	if pages > r.cfg.MaxPages {
		pages = r.cfg.MaxPages
	}
	r.logger.Debug("Rendering PDF", zap.Int("total_pages", pageCount), zap.Int("rendered_pages", pages))

	images := make([]port.ReceiptImage, 0, pages)
	for n := 0; n < pages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.ImageDPI(n, r.cfg.DPI)
		if err != nil {
			r.logger.Warn("Failed to render page", zap.Int("page", n), zap.Error(err))
			continue
		}

		data, err := r.encodeJPEG(img)
		if err != nil {
			r.logger.Warn("Failed to encode page", zap.Int("page", n), zap.Error(err))
			continue
		}
		images = append(images, port.ReceiptImage{Data: data, MimeType: mimeJPEG})
	}

	if len(images) == 0 {
		return nil, ErrNoPages
	}
	return images, nil
}

func (r *Renderer) encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.cfg.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func normalizeMime(mimeType string, content []byte) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(content)
	}
	if mimeType == "image/jpg" {
		mimeType = mimeJPEG
	}
	return mimeType
}

// Verify interface compliance
var _ port.DocumentRenderer = (*Renderer)(nil)
