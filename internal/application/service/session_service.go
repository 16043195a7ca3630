package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/agreement-validation/internal/application/dispatcher"
	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/internal/domain/event"
	"github.com/garyjia/agreement-validation/internal/domain/extraction"
)

var (
	// ErrSessionNotFound is returned when a session ID is unknown or was closed
	ErrSessionNotFound = errors.New("session not found")

	// ErrExtractionSuperseded is returned to callers waiting on an extraction
	// that was replaced by a newer upload, an agreement change or a close
	ErrExtractionSuperseded = errors.New("extraction superseded")

	// ErrNoInvoice is returned when editing a session that has no extracted invoice
	ErrNoInvoice = errors.New("no invoice extracted")

	// ErrInvalidItem is returned for out-of-range item indexes and invalid values
	ErrInvalidItem = errors.New("invalid line item")

	// ErrLastItem is returned when removing the only line item
	ErrLastItem = errors.New("cannot remove the last line item")

	// ErrInvalidRole is returned when opening a session with an unknown role
	ErrInvalidRole = errors.New("invalid role")

	// ErrUnsupportedReceipt is returned for empty uploads or unsupported file types
	ErrUnsupportedReceipt = errors.New("unsupported receipt")
)

var supportedReceiptTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
}

// SessionSettings configures session behaviour
type SessionSettings struct {
	ExtractionTimeout time.Duration
	IdleTimeout       time.Duration
}

// ReceiptUpload is one uploaded receipt file
type ReceiptUpload struct {
	Filename string
	MimeType string
	Content  []byte
}

// InvoicePatch edits invoice header fields. Nil fields are left unchanged.
type InvoicePatch struct {
	Vendor         *string
	InvoiceNumber  *string
	Date           *entity.Date
	Category       *string
	TaxAmount      *float64
	ExtractedTotal *float64
}

// ItemPatch edits one line item. Nil fields are left unchanged.
type ItemPatch struct {
	Description *string
	Quantity    *float64
	UnitPrice   *float64
}

// SessionService manages submission sessions: agreement selection, receipt
// extraction, invoice editing and submission
type SessionService interface {
	Open(ctx context.Context, role entity.Role, walletAddress string) (*entity.Session, error)
	Get(ctx context.Context, id string) (*entity.Session, error)
	Close(ctx context.Context, id string) error
	SelectAgreement(ctx context.Context, id, agreementID string) (*entity.Session, error)
	// UploadReceipt stores the receipt and starts extraction in the background.
	// Any extraction still running for the session is cancelled.
	UploadReceipt(ctx context.Context, id string, upload ReceiptUpload) (*entity.Session, error)
	// AwaitExtraction blocks until the current extraction finishes
	AwaitExtraction(ctx context.Context, id string) (*entity.Session, error)
	UpdateInvoice(ctx context.Context, id string, patch InvoicePatch) (*entity.Session, error)
	UpdateItem(ctx context.Context, id string, index int, patch ItemPatch) (*entity.Session, error)
	AddItem(ctx context.Context, id string) (*entity.Session, error)
	RemoveItem(ctx context.Context, id string, index int) (*entity.Session, error)
	SetManualVerification(ctx context.Context, id string, verified bool) (*entity.Session, error)
	Evaluate(ctx context.Context, id string) (*Evaluation, error)
	Submit(ctx context.Context, id string) (*entity.Submission, error)
	// SweepIdle closes sessions untouched for longer than the idle timeout
	SweepIdle(ctx context.Context) int
	// Shutdown cancels all running extractions and waits for them
	Shutdown()
}

type sessionState struct {
	session *entity.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

type sessionServiceImpl struct {
	mu       sync.Mutex
	sessions map[string]*sessionState

	agreements  AgreementService
	validator   ValidationService
	submissions SubmissionService
	extractor   port.InvoiceExtractor
	renderer    port.DocumentRenderer
	storage     port.FileStorage
	normalizer  *extraction.Normalizer
	dispatcher  dispatcher.Dispatcher
	settings    SessionSettings
	clock       Clock
	logger      Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// SessionDeps groups the collaborators of a SessionService
type SessionDeps struct {
	Agreements  AgreementService
	Validator   ValidationService
	Submissions SubmissionService
	Extractor   port.InvoiceExtractor
	Renderer    port.DocumentRenderer
	Storage     port.FileStorage
	Normalizer  *extraction.Normalizer
	Dispatcher  dispatcher.Dispatcher
	Clock       Clock
	Logger      Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(deps SessionDeps, settings SessionSettings) SessionService {
	if deps.Clock == nil {
		deps.Clock = defaultClock
	}
	if deps.Normalizer == nil {
		deps.Normalizer = extraction.NewNormalizer(nil)
	}
	if settings.ExtractionTimeout <= 0 {
		settings.ExtractionTimeout = 60 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &sessionServiceImpl{
		sessions:    make(map[string]*sessionState),
		agreements:  deps.Agreements,
		validator:   deps.Validator,
		submissions: deps.Submissions,
		extractor:   deps.Extractor,
		renderer:    deps.Renderer,
		storage:     deps.Storage,
		normalizer:  deps.Normalizer,
		dispatcher:  deps.Dispatcher,
		settings:    settings,
		clock:       deps.Clock,
		logger:      deps.Logger,
		baseCtx:     ctx,
		baseCancel:  cancel,
	}
}

// Open starts a new session for role
func (s *sessionServiceImpl) Open(ctx context.Context, role entity.Role, walletAddress string) (*entity.Session, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	now := s.clock()
	sess := &entity.Session{
		ID:            uuid.NewString(),
		Role:          role,
		WalletAddress: strings.TrimSpace(walletAddress),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &sessionState{session: sess}
	s.mu.Unlock()

	s.logger.Info("Session opened", "session_id", sess.ID, "role", role)
	return sess.Clone(), nil
}

// Get returns a snapshot of the session
func (s *sessionServiceImpl) Get(ctx context.Context, id string) (*entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return st.session.Clone(), nil
}

// Close removes the session and cancels its extraction
func (s *sessionServiceImpl) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	st, ok := s.sessions[id]
	if ok {
		s.stopExtraction(st)
		st.session.Generation++
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.logger.Info("Session closed", "session_id", id)
	return nil
}

// SelectAgreement binds an active agreement to the session. Switching to a
// different agreement discards the current invoice.
func (s *sessionServiceImpl) SelectAgreement(ctx context.Context, id, agreementID string) (*entity.Session, error) {
	agreement, err := s.agreements.Selectable(ctx, agreementID)
	if err != nil {
		return nil, err
	}

	return s.mutate(id, func(st *sessionState) error {
		if st.session.AgreementID == agreement.ID {
			return nil
		}
		if st.session.AgreementID != "" {
			s.stopExtraction(st)
			st.session.ResetExtraction()
		}
		st.session.AgreementID = agreement.ID
		return nil
	})
}

// UploadReceipt stores the file and launches extraction for a new generation
func (s *sessionServiceImpl) UploadReceipt(ctx context.Context, id string, upload ReceiptUpload) (*entity.Session, error) {
	mimeType := strings.ToLower(strings.TrimSpace(upload.MimeType))
	if len(upload.Content) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnsupportedReceipt)
	}
	if !supportedReceiptTypes[mimeType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedReceipt, upload.MimeType)
	}
	upload.MimeType = mimeType

	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	receiptPath := ""
	if s.storage != nil {
		receiptPath = path.Join("receipts", id, uuid.NewString()+path.Ext(path.Base(upload.Filename)))
		if err := s.storage.Save(ctx, receiptPath, upload.Content); err != nil {
			s.logger.Error("Failed to store receipt", "session_id", id, "error", err)
			return nil, fmt.Errorf("failed to store receipt: %w", err)
		}
	}

	var (
		gen        uint64
		extractCtx context.Context
		cancel     context.CancelFunc
		done       chan struct{}
	)

	snapshot, err := s.mutate(id, func(st *sessionState) error {
		s.stopExtraction(st)
		st.session.ResetExtraction()
		st.session.ReceiptPath = receiptPath
		st.session.Scanning = true

		gen = st.session.Generation
		extractCtx, cancel = context.WithTimeout(s.baseCtx, s.settings.ExtractionTimeout)
		done = make(chan struct{})
		st.cancel = cancel
		st.done = done
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Receipt uploaded, extraction started",
		"session_id", id,
		"generation", gen,
		"mime_type", upload.MimeType,
		"size", len(upload.Content),
	)

	s.wg.Add(1)
	go s.runExtraction(extractCtx, cancel, done, id, gen, upload)

	return snapshot, nil
}

func (s *sessionServiceImpl) runExtraction(ctx context.Context, cancel context.CancelFunc, done chan struct{}, id string, gen uint64, upload ReceiptUpload) {
	defer s.wg.Done()
	defer close(done)
	defer cancel()

	inv, extractErr := s.extract(ctx, upload)
	if extractErr != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		extractErr = fmt.Errorf("extraction timed out after %s: %w", s.settings.ExtractionTimeout, extractErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok || st.session.Generation != gen {
		s.logger.Info("Discarding stale extraction result", "session_id", id, "generation", gen)
		return
	}

	st.session.Scanning = false
	st.session.UpdatedAt = s.clock()
	st.cancel = nil

	if extractErr != nil {
		st.session.LastError = extractErr.Error()
		s.logger.Error("Extraction failed", "session_id", id, "generation", gen, "error", extractErr)
		s.publish(event.TypeExtractionFailed, id, map[string]interface{}{
			"error":         extractErr.Error(),
			"configuration": extraction.IsConfigurationError(extractErr),
		})
		return
	}

	st.session.Invoice = inv
	st.session.ManuallyVerified = false
	st.session.LastError = ""

	s.logger.Info("Extraction completed",
		"session_id", id,
		"generation", gen,
		"vendor", inv.Vendor,
		"items", len(inv.Items),
		"confidence", inv.ConfidenceScore,
	)
	s.publish(event.TypeExtractionCompleted, id, map[string]interface{}{
		"vendor":     inv.Vendor,
		"confidence": inv.ConfidenceScore,
		"items":      len(inv.Items),
	})
}

func (s *sessionServiceImpl) extract(ctx context.Context, upload ReceiptUpload) (*entity.ExtractedInvoice, error) {
	if s.extractor == nil {
		return nil, &extraction.ConfigurationError{Setting: "openai.api_key"}
	}

	images := []port.ReceiptImage{{Data: upload.Content, MimeType: upload.MimeType}}
	if s.renderer != nil {
		rendered, err := s.renderer.Render(ctx, upload.Content, upload.MimeType)
		if err != nil {
			return nil, extraction.NewExtractionFailure("could not read the receipt file", err)
		}
		images = rendered
	}

	raw, err := s.extractor.Extract(ctx, images, s.normalizer.Categories())
	if err != nil {
		return nil, err
	}

	return s.normalizer.Normalize(raw).Unwrap()
}

// AwaitExtraction waits for the extraction running at call time
func (s *sessionServiceImpl) AwaitExtraction(ctx context.Context, id string) (*entity.Session, error) {
	s.mu.Lock()
	st, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	gen := st.session.Generation
	done := st.done
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok = s.sessions[id]
	if !ok || st.session.Generation != gen {
		return nil, ErrExtractionSuperseded
	}
	return st.session.Clone(), nil
}

// UpdateInvoice edits header fields of the extracted invoice
func (s *sessionServiceImpl) UpdateInvoice(ctx context.Context, id string, patch InvoicePatch) (*entity.Session, error) {
	return s.mutateInvoice(id, func(inv *entity.ExtractedInvoice) error {
		if patch.TaxAmount != nil && *patch.TaxAmount < 0 {
			return fmt.Errorf("%w: negative tax amount", ErrInvalidItem)
		}
		if patch.ExtractedTotal != nil && *patch.ExtractedTotal < 0 {
			return fmt.Errorf("%w: negative total", ErrInvalidItem)
		}

		if patch.Vendor != nil {
			inv.Vendor = strings.TrimSpace(*patch.Vendor)
		}
		if patch.InvoiceNumber != nil {
			inv.InvoiceNumber = strings.TrimSpace(*patch.InvoiceNumber)
		}
		if patch.Date != nil && !patch.Date.IsZero() {
			inv.Date = *patch.Date
			inv.DateAssumed = false
		}
		if patch.Category != nil {
			inv.Category = s.normalizer.MatchCategory(*patch.Category)
		}
		if patch.TaxAmount != nil {
			inv.TaxAmount = *patch.TaxAmount
		}
		if patch.ExtractedTotal != nil {
			inv.ExtractedTotal = *patch.ExtractedTotal
		}
		return nil
	})
}

// UpdateItem edits one line item and recomputes its total. A zero quantity counts as one.
func (s *sessionServiceImpl) UpdateItem(ctx context.Context, id string, index int, patch ItemPatch) (*entity.Session, error) {
	return s.mutateInvoice(id, func(inv *entity.ExtractedInvoice) error {
		if index < 0 || index >= len(inv.Items) {
			return fmt.Errorf("%w: index %d out of range", ErrInvalidItem, index)
		}
		if patch.Quantity != nil && *patch.Quantity < 0 {
			return fmt.Errorf("%w: negative quantity", ErrInvalidItem)
		}
		if patch.UnitPrice != nil && *patch.UnitPrice < 0 {
			return fmt.Errorf("%w: negative unit price", ErrInvalidItem)
		}

		item := &inv.Items[index]
		if patch.Description != nil {
			item.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Quantity != nil {
			qty := *patch.Quantity
			if qty == 0 {
				qty = 1
			}
			item.SetQuantity(qty)
		}
		if patch.UnitPrice != nil {
			item.SetUnitPrice(*patch.UnitPrice)
		}
		return nil
	})
}

// AddItem appends an empty line with quantity one
func (s *sessionServiceImpl) AddItem(ctx context.Context, id string) (*entity.Session, error) {
	return s.mutateInvoice(id, func(inv *entity.ExtractedInvoice) error {
		inv.Items = append(inv.Items, entity.NewLineItem("", 1, 0))
		return nil
	})
}

// RemoveItem deletes a line item. The last remaining item cannot be removed.
func (s *sessionServiceImpl) RemoveItem(ctx context.Context, id string, index int) (*entity.Session, error) {
	return s.mutateInvoice(id, func(inv *entity.ExtractedInvoice) error {
		if index < 0 || index >= len(inv.Items) {
			return fmt.Errorf("%w: index %d out of range", ErrInvalidItem, index)
		}
		if len(inv.Items) == 1 {
			return ErrLastItem
		}
		inv.Items = append(inv.Items[:index], inv.Items[index+1:]...)
		return nil
	})
}

// SetManualVerification records whether the user confirmed the extracted data
func (s *sessionServiceImpl) SetManualVerification(ctx context.Context, id string, verified bool) (*entity.Session, error) {
	return s.mutate(id, func(st *sessionState) error {
		if st.session.Invoice == nil {
			return ErrNoInvoice
		}
		st.session.ManuallyVerified = verified
		return nil
	})
}

// Evaluate runs the rules and the gate on the session's current state
func (s *sessionServiceImpl) Evaluate(ctx context.Context, id string) (*Evaluation, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var agreement *entity.Agreement
	if sess.AgreementID != "" {
		agreement, err = s.agreements.Get(ctx, sess.AgreementID)
		if err != nil {
			return nil, err
		}
	}

	return s.validator.Evaluate(ctx, EvaluateInput{
		Agreement:        agreement,
		Invoice:          sess.Invoice,
		ManuallyVerified: sess.ManuallyVerified,
	})
}

// Submit hands the session's invoice to the submission service. On success the
// session keeps its agreement and is ready for the next receipt.
func (s *sessionServiceImpl) Submit(ctx context.Context, id string) (*entity.Submission, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var agreement *entity.Agreement
	if sess.AgreementID != "" {
		agreement, err = s.agreements.Selectable(ctx, sess.AgreementID)
		if err != nil {
			return nil, err
		}
	}

	sub, err := s.submissions.Submit(ctx, SubmitInput{
		SessionID:        sess.ID,
		SubmittedBy:      sess.WalletAddress,
		Role:             sess.Role,
		Agreement:        agreement,
		Invoice:          sess.Invoice,
		ManuallyVerified: sess.ManuallyVerified,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if st, ok := s.sessions[id]; ok && st.session.Generation == sess.Generation {
		st.session.ResetExtraction()
		st.session.UpdatedAt = s.clock()
	}
	s.mu.Unlock()

	return sub, nil
}

// SweepIdle closes sessions idle for longer than the idle timeout
func (s *sessionServiceImpl) SweepIdle(ctx context.Context) int {
	if s.settings.IdleTimeout <= 0 {
		return 0
	}
	cutoff := s.clock().Add(-s.settings.IdleTimeout)

	s.mu.Lock()
	var swept []string
	for id, st := range s.sessions {
		if st.session.Scanning || st.session.UpdatedAt.After(cutoff) {
			continue
		}
		s.stopExtraction(st)
		delete(s.sessions, id)
		swept = append(swept, id)
	}
	s.mu.Unlock()

	if len(swept) > 0 {
		s.logger.Info("Idle sessions closed", "count", len(swept))
	}
	return len(swept)
}

// Shutdown cancels every extraction and waits for the goroutines to exit
func (s *sessionServiceImpl) Shutdown() {
	s.baseCancel()
	s.wg.Wait()
}

// mutate runs fn on the live session under the lock and returns a snapshot
func (s *sessionServiceImpl) mutate(id string, fn func(st *sessionState) error) (*entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	st.session.UpdatedAt = s.clock()
	return st.session.Clone(), nil
}

func (s *sessionServiceImpl) mutateInvoice(id string, fn func(inv *entity.ExtractedInvoice) error) (*entity.Session, error) {
	return s.mutate(id, func(st *sessionState) error {
		if st.session.Invoice == nil {
			return ErrNoInvoice
		}
		edited := st.session.Invoice.Clone()
		if err := fn(edited); err != nil {
			return err
		}
		edited.Recalculate()
		st.session.Invoice = edited
		return nil
	})
}

// stopExtraction cancels a running extraction. Caller holds s.mu.
func (s *sessionServiceImpl) stopExtraction(st *sessionState) {
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
}

func (s *sessionServiceImpl) publish(t event.Type, sessionID string, payload map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(s.baseCtx, event.NewEvent(t, sessionID, payload))
}
