package settlement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Stage identifies one step of the five-stage pipeline.
type Stage string

const (
	StageValidation           Stage = "validation"
	StageOutcomeFinalization  Stage = "outcome_finalization"
	StageRedemptionActivation Stage = "redemption_activation"
	StageAutoSettle           Stage = "auto_settle"
	StageConfirmationTracking Stage = "confirmation_tracking"
)

// Settlement triggers.
const (
	TriggerOracleAuto      = "oracle_auto"
	TriggerAdminManual     = "admin_manual"
	TriggerDisputeResolved = "dispute_resolved"
)

var (
	// ErrNoPendingClaim is the normal outcome when a user redeems a claim that
	// does not exist or was already settled by the batch path.
	ErrNoPendingClaim = errors.New("no pending claim found")

	// errClaimTaken aborts a settle transaction when the conditional status
	// transition matched zero rows. It never leaves the package.
	errClaimTaken = errors.New("claim no longer pending")
)

// OracleConfirmation is the resolution subsystem's attestation of an outcome.
type OracleConfirmation struct {
	Outcome    string    `json:"outcome"`
	Signature  string    `json:"signature"`
	Timestamp  time.Time `json:"timestamp"`
	OracleType string    `json:"oracle_type"`
}

// Request is one inbound settlement trigger for a single market.
type Request struct {
	MarketID       string             `json:"market_id"`
	Oracle         OracleConfirmation `json:"oracle_confirmation"`
	WinningOutcome string             `json:"winning_outcome"`
	Trigger        string             `json:"settlement_trigger"`
}

// StageResult records the outcome and duration of one pipeline stage.
type StageResult struct {
	Success   bool   `json:"success"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Result is the full per-stage telemetry of one ExecuteSettlement call.
type Result struct {
	Success bool                  `json:"success"`
	Stages  map[Stage]StageResult `json:"stages"`
	BatchID *string               `json:"batch_id,omitempty"`
}

// RedemptionResult is returned by the user-initiated claim path.
type RedemptionResult struct {
	ClaimID uint64          `json:"claim_id"`
	Amount  decimal.Decimal `json:"amount"`
	Fee     decimal.Decimal `json:"fee"`
}
