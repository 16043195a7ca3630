package port

import (
	"context"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

// ReceiptImage is one page of a receipt ready to send to the extraction model
type ReceiptImage struct {
	Data     []byte
	MimeType string
}

// InvoiceExtractor sends receipt images to the extraction model and returns its
// raw JSON answer. Normalization happens in the caller.
type InvoiceExtractor interface {
	Extract(ctx context.Context, images []ReceiptImage, categories []string) ([]byte, error)
}

// DocumentRenderer turns an uploaded file into images the extractor accepts.
// Images pass through; PDFs are rendered page by page.
type DocumentRenderer interface {
	Render(ctx context.Context, content []byte, mimeType string) ([]ReceiptImage, error)
}

// EscalationNotifier tells the CFO about submissions that need approval
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, submission *entity.Submission, message string) error
	NotifyDecision(ctx context.Context, submission *entity.Submission) error
}

// Attestor records an approved submission on the attestation ledger
type Attestor interface {
	Attest(ctx context.Context, submission *entity.Submission) (*entity.Attestation, error)
}

// ReportExporter renders submissions into a downloadable report
type ReportExporter interface {
	Export(ctx context.Context, submissions []*entity.Submission, usage []*entity.CategoryUsage) ([]byte, error)
	ContentType() string
	Extension() string
}
