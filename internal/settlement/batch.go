package settlement

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"settlement/internal/models"
)

// Batch status values.
const (
	BatchStatusPending    = "pending"
	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
)

// Batch is an ephemeral work grouping over pending claims. The claim rows
// remain the source of truth; a batch lost to a restart is rebuilt from them
// by the reconcile job.
type Batch struct {
	ID          string                   `json:"id"`
	MarketID    string                   `json:"market_id"`
	Claims      []models.SettlementClaim `json:"claims"`
	TotalAmount decimal.Decimal          `json:"total_amount"`
	GasEstimate int64                    `json:"gas_estimate"`
	Status      string                   `json:"status"`
	CreatedAt   time.Time                `json:"created_at"`
	ProcessedAt *time.Time               `json:"processed_at,omitempty"`
}

// CostModel is the fixed-plus-marginal transfer cost of a batched settlement.
// The fixed base is the whole point of batching: n claims in one batch cost
// base + per*n instead of n*(base + per).
type CostModel struct {
	BaseGas     int64
	PerClaimGas int64
}

func (c CostModel) Estimate(claimCount int) int64 {
	if claimCount <= 0 {
		return 0
	}
	return c.BaseGas + c.PerClaimGas*int64(claimCount)
}

// BuildBatch groups eligible claims for one market into a pending batch.
func BuildBatch(marketID string, claims []models.SettlementClaim, cost CostModel) *Batch {
	if len(claims) == 0 {
		return nil
	}
	total := decimal.Zero
	for _, c := range claims {
		total = total.Add(c.PayoutAmount)
	}
	return &Batch{
		ID:          uuid.NewString(),
		MarketID:    marketID,
		Claims:      claims,
		TotalAmount: total,
		GasEstimate: cost.Estimate(len(claims)),
		Status:      BatchStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// Registry holds the in-memory pending batches. It is a cache over durable
// claim rows, not a ledger; the processor is its only writer after Add.
type Registry struct {
	mu      sync.Mutex
	batches map[string]*Batch
}

func NewRegistry() *Registry {
	return &Registry{batches: make(map[string]*Batch)}
}

func (r *Registry) Add(b *Batch) {
	if r == nil || b == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[b.ID] = b
}

// TakePending atomically flips every pending batch to processing and returns
// them. This is the exclusion point: a batch handed out here can never be
// handed out again, even with multiple processors running.
func (r *Registry) TakePending() []*Batch {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var taken []*Batch
	for _, b := range r.batches {
		if b.Status != BatchStatusPending {
			continue
		}
		b.Status = BatchStatusProcessing
		taken = append(taken, b)
	}
	return taken
}

func (r *Registry) Finish(id string, status string, at time.Time) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return
	}
	b.Status = status
	b.ProcessedAt = &at
}

// HasOpenBatch reports whether a pending or processing batch already covers
// the market, so the reconcile job does not double-queue its claims.
func (r *Registry) HasOpenBatch(marketID string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.MarketID != marketID {
			continue
		}
		if b.Status == BatchStatusPending || b.Status == BatchStatusProcessing {
			return true
		}
	}
	return false
}

// Snapshot returns copies of all batches for the read-side API.
func (r *Registry) Snapshot() []Batch {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Batch, 0, len(r.batches))
	for _, b := range r.batches {
		out = append(out, *b)
	}
	return out
}
