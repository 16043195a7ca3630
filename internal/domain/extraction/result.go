package extraction

import "github.com/garyjia/agreement-validation/internal/domain/entity"

// Result is either an extracted invoice or an extraction failure, never both
type Result struct {
	invoice *entity.ExtractedInvoice
	failure *ExtractionFailure
}

// Succeeded wraps an invoice
func Succeeded(inv *entity.ExtractedInvoice) Result {
	return Result{invoice: inv}
}

// Failed wraps a failure
func Failed(f *ExtractionFailure) Result {
	return Result{failure: f}
}

// OK reports whether the result holds an invoice
func (r Result) OK() bool {
	return r.failure == nil && r.invoice != nil
}

// Invoice returns the invoice, or nil on failure
func (r Result) Invoice() *entity.ExtractedInvoice {
	return r.invoice
}

// Failure returns the failure, or nil on success
func (r Result) Failure() *ExtractionFailure {
	return r.failure
}

// Unwrap converts the result to the usual (value, error) pair
func (r Result) Unwrap() (*entity.ExtractedInvoice, error) {
	if r.OK() {
		return r.invoice, nil
	}
	if r.failure == nil {
		return nil, NewExtractionFailure("empty result", nil)
	}
	return nil, r.failure
}
