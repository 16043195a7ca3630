// Package attestation records approved submissions on a simulated ledger.
package attestation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

// DefaultNetwork names the simulated ledger in attestation records
const DefaultNetwork = "simulated"

// Config holds attestation settings
type Config struct {
	Network string
	// StartBlock is the last block already used, typically read from storage
	StartBlock int64
}

// SimulatedChain implements port.Attestor. Every attestation takes the next
// block number and a transaction hash derived from the submission's content.
type SimulatedChain struct {
	mu      sync.Mutex
	block   int64
	network string
	now     func() time.Time
	logger  *zap.Logger
}

// NewSimulatedChain creates a chain that continues after cfg.StartBlock
func NewSimulatedChain(cfg Config, logger *zap.Logger) *SimulatedChain {
	network := cfg.Network
	if network == "" {
		network = DefaultNetwork
	}
	return &SimulatedChain{
		block:   cfg.StartBlock,
		network: network,
		now:     time.Now,
		logger:  logger,
	}
}

// record is the canonical content that is hashed. Field order is fixed by the struct.
type record struct {
	Network       string            `json:"network"`
	Block         int64             `json:"block"`
	SubmissionID  string            `json:"submission_id"`
	AgreementID   string            `json:"agreement_id"`
	Vendor        string            `json:"vendor"`
	InvoiceNumber string            `json:"invoice_number"`
	InvoiceDate   string            `json:"invoice_date"`
	Category      string            `json:"category"`
	Items         []entity.LineItem `json:"items"`
	TaxAmount     float64           `json:"tax_amount"`
	GrandTotal    float64           `json:"grand_total"`
	ApprovedBy    string            `json:"approved_by"`
}

// Attest mints the next block for sub
func (c *SimulatedChain) Attest(ctx context.Context, sub *entity.Submission) (*entity.Attestation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.block++
	block := c.block
	c.mu.Unlock()

	hash, err := TxHash(record{
		Network:       c.network,
		Block:         block,
		SubmissionID:  sub.ID,
		AgreementID:   sub.AgreementID,
		Vendor:        sub.Vendor,
		InvoiceNumber: sub.InvoiceNumber,
		InvoiceDate:   sub.InvoiceDate.String(),
		Category:      sub.Category,
		Items:         sub.Items,
		TaxAmount:     sub.TaxAmount,
		GrandTotal:    sub.GrandTotal,
		ApprovedBy:    sub.ReviewedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to hash submission %s: %w", sub.ID, err)
	}

	att := &entity.Attestation{
		SubmissionID: sub.ID,
		TxHash:       hash,
		BlockNumber:  block,
		Network:      c.network,
		AttestedAt:   c.now().UTC(),
	}

	c.logger.Info("Submission attested",
		zap.String("submission_id", sub.ID),
		zap.String("tx_hash", hash),
		zap.Int64("block", block))
	return att, nil
}

// TxHash returns the 0x-prefixed sha256 of v's JSON encoding
func TxHash(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "0x" + hex.EncodeToString(sum[:]), nil
}

// Verify interface compliance
var _ port.Attestor = (*SimulatedChain)(nil)
