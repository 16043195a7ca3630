package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/internal/domain/extraction"
)

const laptopReceiptJSON = `{
	"vendor": "PT Supplier ABC",
	"invoiceNumber": "INV-001",
	"date": "2025-06-01",
	"category": "Electronics",
	"items": [{"description": "Laptop Dell Latitude 5420", "quantity": 2, "unitPrice": 8000000}],
	"taxAmount": 0,
	"extractedTotal": 16000000,
	"confidenceScore": 0.95,
	"confidenceReason": "clear print"
}`

type sessionFixture struct {
	agreements *memAgreementRepo
	storage    *mockStorage
	extractor  *mockExtractor
	svc        SessionService
}

func newSessionFixture(t *testing.T, extract func(ctx context.Context, images []port.ReceiptImage, categories []string) ([]byte, error)) *sessionFixture {
	t.Helper()

	clock := fixedClock("2025-06-01")
	f := &sessionFixture{
		agreements: newMemAgreementRepo(laptopAgreement(), &entity.Agreement{
			ID: "AGR-2025-003", Vendor: "PT Expired", Category: "Services", ItemName: "Consulting",
			PricePerUnit: 1000, TotalQuantity: 1, Status: entity.AgreementStatusExpired,
		}),
		storage:   newMockStorage(),
		extractor: &mockExtractor{extractFunc: extract},
	}

	ledger := newMemLedger()
	validator := NewValidationService(newMemLimitRepo(map[string]float64{"Electronics": 50000000}),
		ledger, DefaultValidationSettings(), clock, &mockLogger{})
	submissions := NewSubmissionService(newMemSubmissionRepo(), f.agreements, ledger, &mockTxManager{},
		validator, &mockAttestor{}, nil, clock, &mockLogger{})

	f.svc = NewSessionService(SessionDeps{
		Agreements:  NewAgreementService(f.agreements, clock, &mockLogger{}),
		Validator:   validator,
		Submissions: submissions,
		Extractor:   f.extractor,
		Storage:     f.storage,
		Normalizer:  extraction.NewNormalizer(nil, extraction.WithClock(clock)),
		Clock:       clock,
		Logger:      &mockLogger{},
	}, SessionSettings{ExtractionTimeout: 2 * time.Second, IdleTimeout: time.Hour})

	t.Cleanup(f.svc.Shutdown)
	return f
}

func staticExtract(raw string) func(ctx context.Context, images []port.ReceiptImage, categories []string) ([]byte, error) {
	return func(ctx context.Context, images []port.ReceiptImage, categories []string) ([]byte, error) {
		return []byte(raw), nil
	}
}

func receipt() ReceiptUpload {
	return ReceiptUpload{Filename: "struk.jpg", MimeType: "image/jpeg", Content: []byte{0xff, 0xd8, 0xff}}
}

func openWithInvoice(t *testing.T, f *sessionFixture) *entity.Session {
	t.Helper()
	ctx := context.Background()

	sess, err := f.svc.Open(ctx, entity.RoleVendor, "0xVendor")
	require.NoError(t, err)
	_, err = f.svc.SelectAgreement(ctx, sess.ID, "AGR-2025-001")
	require.NoError(t, err)
	_, err = f.svc.UploadReceipt(ctx, sess.ID, receipt())
	require.NoError(t, err)

	sess, err = f.svc.AwaitExtraction(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, sess.Invoice)
	return sess
}

func TestSessionService_FullFlow(t *testing.T) {
	f := newSessionFixture(t, staticExtract(laptopReceiptJSON))
	ctx := context.Background()

	sess := openWithInvoice(t, f)
	assert.False(t, sess.Scanning)
	assert.Equal(t, "PT Supplier ABC", sess.Invoice.Vendor)
	assert.NotEmpty(t, sess.ReceiptPath)
	assert.True(t, f.storage.Exists(ctx, sess.ReceiptPath))

	eval, err := f.svc.Evaluate(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, eval.Decision.Allowed)
	assert.Equal(t, entity.RouteAutoApproved, eval.Decision.Route)

	sub, err := f.svc.Submit(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusAttested, sub.Status)
	assert.Equal(t, "0xVendor", sub.SubmittedBy)

	after, err := f.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, after.Invoice)
	assert.Equal(t, "AGR-2025-001", after.AgreementID)
}

func TestSessionService_OpenRejectsUnknownRole(t *testing.T) {
	f := newSessionFixture(t, staticExtract(laptopReceiptJSON))

	_, err := f.svc.Open(context.Background(), entity.Role("admin"), "")
	assert.True(t, errors.Is(err, ErrInvalidRole))
}

func TestSessionService_SelectInactiveAgreement(t *testing.T) {
	f := newSessionFixture(t, staticExtract(laptopReceiptJSON))
	ctx := context.Background()

	sess, err := f.svc.Open(ctx, entity.RoleVendor, "")
	require.NoError(t, err)

	_, err = f.svc.SelectAgreement(ctx, sess.ID, "AGR-2025-003")
	assert.True(t, errors.Is(err, ErrAgreementNotSelectable))

	_, err = f.svc.SelectAgreement(ctx, sess.ID, "AGR-404")
	assert.True(t, errors.Is(err, ErrAgreementNotFound))
}

func TestSessionService_UploadValidation(t *testing.T) {
	f := newSessionFixture(t, staticExtract(laptopReceiptJSON))
	ctx := context.Background()
	sess, err := f.svc.Open(ctx, entity.RoleVendor, "")
	require.NoError(t, err)

	_, err = f.svc.UploadReceipt(ctx, sess.ID, ReceiptUpload{Filename: "a.txt", MimeType: "text/plain", Content: []byte("x")})
	assert.True(t, errors.Is(err, ErrUnsupportedReceipt))

	_, err = f.svc.UploadReceipt(ctx, sess.ID, ReceiptUpload{Filename: "a.jpg", MimeType: "image/jpeg"})
	assert.True(t, errors.Is(err, ErrUnsupportedReceipt))

	_, err = f.svc.UploadReceipt(ctx, "missing", receipt())
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestSessionService_ExtractionFailureIsRecorded(t *testing.T) {
	f := newSessionFixture(t, staticExtract(`{"items": []}`))
	ctx := context.Background()

	sess, err := f.svc.Open(ctx, entity.RoleVendor, "")
	require.NoError(t, err)
	_, err = f.svc.UploadReceipt(ctx, sess.ID, receipt())
	require.NoError(t, err)

	sess, err = f.svc.AwaitExtraction(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, sess.Invoice)
	assert.False(t, sess.Scanning)
	assert.Contains(t, sess.LastError, "extraction failed")
}

func TestSessionService_MissingExtractorIsConfigurationError(t *testing.T) {
	f := newSessionFixture(t, func(ctx context.Context, images []port.ReceiptImage, categories []string) ([]byte, error) {
		return nil, &extraction.ConfigurationError{Setting: "openai.api_key"}
	})
	ctx := context.Background()

	sess, err := f.svc.Open(ctx, entity.RoleVendor, "")
	require.NoError(t, err)
	_, err = f.svc.UploadReceipt(ctx, sess.ID, receipt())
	require.NoError(t, err)

	sess, err = f.svc.AwaitExtraction(ctx, sess.ID)
	require.NoError(t, err)
	assert.Contains(t, sess.LastError, "openai.api_key")
}

func TestSessionService_NewUploadSupersedesRunningExtraction(t *testing.T) {
	var calls int32
	firstStarted := make(chan struct{})
	firstCancelled := make(chan struct{})

	f := newSessionFixture(t, func(ctx context.Context, images []port.ReceiptImage, categories []string) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(firstStarted)
			<-ctx.Done()
			close(firstCancelled)
			// a late answer that must never reach the session
			return []byte(`{"vendor": "Stale Vendor", "items": [{"description": "old", "quantity": 1, "unitPrice": 1}]}`), nil
		}
		return []byte(laptopReceiptJSON), nil
	})
	ctx := context.Background()

	sess, err := f.svc.Open(ctx, entity.RoleVendor, "")
	require.NoError(t, err)
	_, err = f.svc.UploadReceipt(ctx, sess.ID, receipt())
	require.NoError(t, err)
	<-firstStarted

	waitErr := make(chan error, 1)
	go func() {
		_, err := f.svc.AwaitExtraction(ctx, sess.ID)
		waitErr <- err
	}()
	// let the waiter latch onto the first generation
	time.Sleep(50 * time.Millisecond)

	_, err = f.svc.UploadReceipt(ctx, sess.ID, receipt())
	require.NoError(t, err)
	<-firstCancelled

	sess, err = f.svc.AwaitExtraction(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, sess.Invoice)
	assert.Equal(t, "PT Supplier ABC", sess.Invoice.Vendor)

	select {
	case err := <-waitErr:
		assert.True(t, errors.Is(err, ErrExtractionSuperseded))
	case <-time.After(2 * time.Second):
		t.Fatal("waiter on the superseded extraction never returned")
	}
}

func TestSessionService_ChangingAgreementResetsInvoice(t *testing.T) {
	f := newSessionFixture(t, staticExtract(laptopReceiptJSON))
	ctx := context.Background()
	require.NoError(t, f.agreements.Upsert(ctx, &entity.Agreement{
		ID: "AGR-2025-004", Vendor: "CV Kertas", Category: "Office Supplies", ItemName: "Kertas A4",
		PricePerUnit: 50000, TotalQuantity: 100, Status: entity.AgreementStatusActive,
		Period: entity.ContractPeriod{Start: entity.MustParseDate("2025-01-01"), End: entity.MustParseDate("2025-12-31")},
	}))

	sess := openWithInvoice(t, f)

	same, err := f.svc.SelectAgreement(ctx, sess.ID, "AGR-2025-001")
	require.NoError(t, err)
	assert.NotNil(t, same.Invoice, "reselecting the same agreement keeps the invoice")

	changed, err := f.svc.SelectAgreement(ctx, sess.ID, "AGR-2025-004")
	require.NoError(t, err)
	assert.Nil(t, changed.Invoice)
	assert.False(t, changed.ManuallyVerified)
	assert.Greater(t, changed.Generation, sess.Generation)
}

func TestSessionService_EditingRecomputesTotals(t *testing.T) {
	f := newSessionFixture(t, staticExtract(laptopReceiptJSON))
	ctx := context.Background()
	sess := openWithInvoice(t, f)

	qty := 3.0
	price := 8000050.0
	sess, err := f.svc.UpdateItem(ctx, sess.ID, 0, ItemPatch{Quantity: &qty, UnitPrice: &price})
	require.NoError(t, err)
	assert.Equal(t, 24000150.0, sess.Invoice.Items[0].Total)

	zero := 0.0
	sess, err = f.svc.UpdateItem(ctx, sess.ID, 0, ItemPatch{Quantity: &zero})
	require.NoError(t, err)
	assert.Equal(t, 1.0, sess.Invoice.Items[0].Quantity)

	sess, err = f.svc.AddItem(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, sess.Invoice.Items, 2)
	assert.Equal(t, 1.0, sess.Invoice.Items[1].Quantity)
	assert.Equal(t, 0.0, sess.Invoice.Items[1].UnitPrice)

	sess, err = f.svc.RemoveItem(ctx, sess.ID, 1)
	require.NoError(t, err)
	require.Len(t, sess.Invoice.Items, 1)

	_, err = f.svc.RemoveItem(ctx, sess.ID, 0)
	assert.True(t, errors.Is(err, ErrLastItem))

	_, err = f.svc.UpdateItem(ctx, sess.ID, 5, ItemPatch{})
	assert.True(t, errors.Is(err, ErrInvalidItem))

	negative := -1.0
	_, err = f.svc.UpdateItem(ctx, sess.ID, 0, ItemPatch{UnitPrice: &negative})
	assert.True(t, errors.Is(err, ErrInvalidItem))
}

func TestSessionService_EditsRevalidate(t *testing.T) {
	f := newSessionFixture(t, staticExtract(laptopReceiptJSON))
	ctx := context.Background()
	sess := openWithInvoice(t, f)

	price := 8500000.0
	_, err := f.svc.UpdateItem(ctx, sess.ID, 0, ItemPatch{UnitPrice: &price})
	require.NoError(t, err)

	eval, err := f.svc.Evaluate(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReasonValidationFailed, eval.Decision.Reason)

	_, err = f.svc.Submit(ctx, sess.ID)
	assert.True(t, errors.Is(err, ErrSubmissionBlocked))

	price = 8000000
	_, err = f.svc.UpdateItem(ctx, sess.ID, 0, ItemPatch{UnitPrice: &price})
	require.NoError(t, err)

	eval, err = f.svc.Evaluate(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, eval.Decision.Allowed)
}

func TestSessionService_ManualVerification(t *testing.T) {
	lowConfidence := `{"vendor": "PT Supplier ABC", "date": "2025-06-01",
		"items": [{"description": "Laptop", "quantity": 2, "unitPrice": 8000000}], "confidenceScore": 0.5}`
	f := newSessionFixture(t, staticExtract(lowConfidence))
	ctx := context.Background()

	sess, err := f.svc.Open(ctx, entity.RoleVendor, "")
	require.NoError(t, err)
	_, err = f.svc.SetManualVerification(ctx, sess.ID, true)
	assert.True(t, errors.Is(err, ErrNoInvoice))

	sess = openWithInvoice(t, f)
	eval, err := f.svc.Evaluate(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReasonAwaitingVerification, eval.Decision.Reason)

	_, err = f.svc.SetManualVerification(ctx, sess.ID, true)
	require.NoError(t, err)
	eval, err = f.svc.Evaluate(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, eval.Decision.Allowed)

	_, err = f.svc.UploadReceipt(ctx, sess.ID, receipt())
	require.NoError(t, err)
	sess, err = f.svc.AwaitExtraction(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, sess.ManuallyVerified, "a new upload clears manual verification")
}

func TestSessionService_UpdateInvoice(t *testing.T) {
	f := newSessionFixture(t, staticExtract(laptopReceiptJSON))
	ctx := context.Background()
	sess := openWithInvoice(t, f)

	vendor := "  "
	category := "office supplies"
	tax := 1760000.0
	day := entity.MustParseDate("2025-07-01")
	sess, err := f.svc.UpdateInvoice(ctx, sess.ID, InvoicePatch{Vendor: &vendor, Category: &category, TaxAmount: &tax, Date: &day})
	require.NoError(t, err)
	assert.Equal(t, "", sess.Invoice.Vendor)
	assert.Equal(t, "Office Supplies", sess.Invoice.Category)
	assert.Equal(t, "2025-07-01", sess.Invoice.Date.String())
	assert.Equal(t, 17760000.0, sess.Invoice.GrandTotal())

	eval, err := f.svc.Evaluate(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReasonVendorMissing, eval.Decision.Reason)
}

func TestSessionService_CloseAndSweep(t *testing.T) {
	f := newSessionFixture(t, staticExtract(laptopReceiptJSON))
	ctx := context.Background()

	sess, err := f.svc.Open(ctx, entity.RoleAuditor, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.Close(ctx, sess.ID))
	assert.True(t, errors.Is(f.svc.Close(ctx, sess.ID), ErrSessionNotFound))

	_, err = f.svc.Open(ctx, entity.RoleAuditor, "")
	require.NoError(t, err)
	assert.Equal(t, 0, f.svc.SweepIdle(ctx), "the fixed clock never advances past the idle timeout")
}
