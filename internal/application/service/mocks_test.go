package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

func fixedClock(day string) Clock {
	t, _ := time.Parse("2006-01-02 15:04", day+" 10:00")
	return func() time.Time { return t }
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
	calls               int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// memAgreementRepo is an in-memory AgreementRepository
type memAgreementRepo struct {
	mu         sync.Mutex
	agreements map[string]*entity.Agreement
	getErr     error
}

func newMemAgreementRepo(agreements ...*entity.Agreement) *memAgreementRepo {
	r := &memAgreementRepo{agreements: make(map[string]*entity.Agreement)}
	for _, a := range agreements {
		r.agreements[a.ID] = a
	}
	return r
}

func (r *memAgreementRepo) Get(ctx context.Context, id string) (*entity.Agreement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	a, ok := r.agreements[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAgreementRepo) List(ctx context.Context, status entity.AgreementStatus) ([]*entity.Agreement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Agreement
	for _, a := range r.agreements {
		if status == "" || a.Status == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memAgreementRepo) Upsert(ctx context.Context, agreement *entity.Agreement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *agreement
	r.agreements[agreement.ID] = &cp
	return nil
}

func (r *memAgreementRepo) ConsumeQuantity(ctx context.Context, id string, qty float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agreements[id]
	if !ok {
		return port.ErrNotFound
	}
	if a.UsedQuantity+qty > a.TotalQuantity {
		return port.ErrInsufficientQuantity
	}
	a.UsedQuantity += qty
	return nil
}

func (r *memAgreementRepo) ExpireEnded(ctx context.Context, day entity.Date) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, a := range r.agreements {
		if a.Status == entity.AgreementStatusActive && a.Period.Ended(day) {
			a.Status = entity.AgreementStatusExpired
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// memLimitRepo is an in-memory DailyLimitRepository
type memLimitRepo struct {
	mu      sync.Mutex
	limits  map[string]*entity.DailyLimit
	history []*entity.LimitChange
}

func newMemLimitRepo(limits map[string]float64) *memLimitRepo {
	r := &memLimitRepo{limits: make(map[string]*entity.DailyLimit)}
	for c, v := range limits {
		r.limits[c] = &entity.DailyLimit{Category: c, Limit: v}
	}
	return r
}

func (r *memLimitRepo) List(ctx context.Context) ([]*entity.DailyLimit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.DailyLimit, 0, len(r.limits))
	for _, l := range r.limits {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (r *memLimitRepo) Get(ctx context.Context, category string) (*entity.DailyLimit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limits[category]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *memLimitRepo) Upsert(ctx context.Context, limit *entity.DailyLimit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *limit
	r.limits[limit.Category] = &cp
	return nil
}

func (r *memLimitRepo) AppendHistory(ctx context.Context, change *entity.LimitChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	change.ID = int64(len(r.history) + 1)
	r.history = append(r.history, change)
	return nil
}

func (r *memLimitRepo) History(ctx context.Context, category string, limit int) ([]*entity.LimitChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.LimitChange
	for i := len(r.history) - 1; i >= 0 && len(out) < limit; i-- {
		if category == "" || r.history[i].Category == category {
			out = append(out, r.history[i])
		}
	}
	return out, nil
}

// memLedger is an in-memory SpendLedger
type memLedger struct {
	mu    sync.Mutex
	spend map[string]float64
}

func newMemLedger() *memLedger {
	return &memLedger{spend: make(map[string]float64)}
}

func ledgerKey(category string, day entity.Date) string {
	return category + "|" + day.String()
}

func (l *memLedger) SpendOn(ctx context.Context, category string, day entity.Date) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spend[ledgerKey(category, day)], nil
}

func (l *memLedger) Add(ctx context.Context, category string, day entity.Date, amount float64, submissionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spend[ledgerKey(category, day)] += amount
	return nil
}

func (l *memLedger) UsageOn(ctx context.Context, day entity.Date) (map[string]float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64)
	suffix := "|" + day.String()
	for k, v := range l.spend {
		if len(k) > len(suffix) && k[len(k)-len(suffix):] == suffix {
			out[k[:len(k)-len(suffix)]] = v
		}
	}
	return out, nil
}

// memSubmissionRepo is an in-memory SubmissionRepository
type memSubmissionRepo struct {
	mu           sync.Mutex
	submissions  map[string]*entity.Submission
	attestations []*entity.Attestation
}

func newMemSubmissionRepo() *memSubmissionRepo {
	return &memSubmissionRepo{submissions: make(map[string]*entity.Submission)}
}

func (r *memSubmissionRepo) Create(ctx context.Context, sub *entity.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sub
	r.submissions[sub.ID] = &cp
	return nil
}

func (r *memSubmissionRepo) Get(ctx context.Context, id string) (*entity.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSubmissionRepo) List(ctx context.Context, filter entity.SubmissionFilter) ([]*entity.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Submission
	for _, s := range r.submissions {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memSubmissionRepo) UpdateStatus(ctx context.Context, sub *entity.Submission, from entity.SubmissionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.submissions[sub.ID]
	if !ok {
		return port.ErrNotFound
	}
	if stored.Status != from {
		return port.ErrStaleStatus
	}
	cp := *sub
	r.submissions[sub.ID] = &cp
	return nil
}

func (r *memSubmissionRepo) SetAttestation(ctx context.Context, att *entity.Attestation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attestations = append(r.attestations, att)
	return nil
}

type memActivityRepo struct {
	mu         sync.Mutex
	activities []*entity.Activity
	appendErr  error
}

func (r *memActivityRepo) Append(ctx context.Context, activity *entity.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	for _, a := range r.activities {
		if a.EventID == activity.EventID {
			return nil
		}
	}
	cp := *activity
	cp.ID = int64(len(r.activities) + 1)
	r.activities = append(r.activities, &cp)
	return nil
}

func (r *memActivityRepo) ListBySubject(ctx context.Context, subjectID string) ([]*entity.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.Activity, 0)
	for _, a := range r.activities {
		if a.SubjectID == subjectID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockAttestor struct {
	attestFunc func(ctx context.Context, sub *entity.Submission) (*entity.Attestation, error)
	block      int64
}

func (m *mockAttestor) Attest(ctx context.Context, sub *entity.Submission) (*entity.Attestation, error) {
	if m.attestFunc != nil {
		return m.attestFunc(ctx, sub)
	}
	m.block++
	return &entity.Attestation{
		SubmissionID: sub.ID,
		TxHash:       "0xabc",
		BlockNumber:  m.block,
		Network:      "simulated",
		AttestedAt:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}, nil
}

type mockExtractor struct {
	extractFunc func(ctx context.Context, images []port.ReceiptImage, categories []string) ([]byte, error)
}

func (m *mockExtractor) Extract(ctx context.Context, images []port.ReceiptImage, categories []string) ([]byte, error) {
	return m.extractFunc(ctx, images, categories)
}

type mockStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: make(map[string][]byte)}
}

func (m *mockStorage) Save(ctx context.Context, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
	return nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[path]
	if !ok {
		return nil, port.ErrNotFound
	}
	return c, nil
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *mockStorage) GetFullPath(relativePath string) string {
	return "/tmp/" + relativePath
}

func laptopAgreement() *entity.Agreement {
	return &entity.Agreement{
		ID:            "AGR-2025-001",
		Vendor:        "PT Supplier ABC",
		Category:      "Electronics",
		ItemName:      "Laptop Dell Latitude 5420",
		PricePerUnit:  8000000,
		TotalQuantity: 10,
		UsedQuantity:  4,
		Period: entity.ContractPeriod{
			Start: entity.MustParseDate("2025-01-01"),
			End:   entity.MustParseDate("2025-12-31"),
		},
		PaymentTerms: entity.PaymentTermsFull,
		Status:       entity.AgreementStatusActive,
	}
}

func laptopInvoice(unitPrice, confidence float64) *entity.ExtractedInvoice {
	return &entity.ExtractedInvoice{
		Vendor:          "PT Supplier ABC",
		InvoiceNumber:   "INV-001",
		Date:            entity.MustParseDate("2025-06-01"),
		Category:        "Electronics",
		Items:           []entity.LineItem{entity.NewLineItem("Laptop Dell Latitude 5420", 2, unitPrice)},
		ConfidenceScore: confidence,
	}
}
