package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"settlement/internal/config"
	"settlement/internal/models"
	"settlement/internal/repository"
	"settlement/internal/wallet"
)

// Pipeline runs the five-stage settlement for a single market: validate the
// oracle confirmation, finalize the outcome, activate redemption claims, queue
// auto-settle-eligible claims for batching, and schedule the confirmation
// check. Stages are individually idempotent so a retried run converges instead
// of double-applying effects; the pipeline itself never retries.
type Pipeline struct {
	Repo    repository.Repository
	Wallet  wallet.CreditGateway
	Logger  *zap.Logger
	Config  config.SettlementConfig
	Batch   config.BatchConfig
	Batches *Registry
	Monitor *EscalationMonitor
}

func (p *Pipeline) ExecuteSettlement(ctx context.Context, req Request) Result {
	result := Result{Stages: make(map[Stage]StageResult, 5)}
	if p == nil || p.Repo == nil {
		return result
	}
	req.MarketID = strings.TrimSpace(req.MarketID)
	req.WinningOutcome = strings.TrimSpace(req.WinningOutcome)

	if p.Logger != nil {
		p.Logger.Info("settlement started",
			zap.String("market_id", req.MarketID),
			zap.String("trigger", req.Trigger),
		)
	}

	run := func(stage Stage, fn func() error) bool {
		start := time.Now()
		err := fn()
		sr := StageResult{Success: err == nil, LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			sr.Error = err.Error()
			if p.Logger != nil {
				p.Logger.Warn("settlement stage failed",
					zap.String("market_id", req.MarketID),
					zap.String("stage", string(stage)),
					zap.Error(err),
				)
			}
		}
		result.Stages[stage] = sr
		return err == nil
	}

	ok := run(StageValidation, func() error { return p.validate(ctx, req) }) &&
		run(StageOutcomeFinalization, func() error { return p.finalizeOutcome(ctx, req) }) &&
		run(StageRedemptionActivation, func() error { return p.activateRedemptions(ctx, req) }) &&
		run(StageAutoSettle, func() error {
			batch, err := p.autoSettle(ctx, req)
			if err != nil {
				return err
			}
			if batch != nil {
				id := batch.ID
				result.BatchID = &id
			}
			return nil
		}) &&
		run(StageConfirmationTracking, func() error {
			return p.trackConfirmation(req.MarketID, result.BatchID)
		})

	result.Success = ok
	p.recordRun(ctx, req, result)

	if ok && p.Logger != nil {
		p.Logger.Info("settlement completed", zap.String("market_id", req.MarketID))
	}
	return result
}

// validate is stage 1 and must stay side-effect free: every rejection here
// aborts the pipeline before any mutation.
func (p *Pipeline) validate(ctx context.Context, req Request) error {
	if req.MarketID == "" {
		return errors.New("market id is empty")
	}
	if strings.TrimSpace(req.Oracle.Signature) == "" {
		return errors.New("invalid oracle signature")
	}

	window := p.Config.FreshnessWindow
	if window <= 0 {
		window = time.Hour
	}
	if req.Oracle.Timestamp.IsZero() || time.Since(req.Oracle.Timestamp) > window {
		return errors.New("oracle confirmation timestamp too old")
	}

	if strings.TrimSpace(req.Oracle.Outcome) != req.WinningOutcome {
		return errors.New("winning outcome mismatch")
	}

	market, err := p.Repo.GetMarket(ctx, req.MarketID)
	if err != nil {
		return fmt.Errorf("load market: %w", err)
	}
	if market == nil {
		return errors.New("market not found")
	}
	switch market.Status {
	case models.MarketStatusResolving, models.MarketStatusResolved:
	default:
		return errors.New("market not ready to resolve")
	}
	if market.WinningOutcome != nil && strings.TrimSpace(*market.WinningOutcome) != req.WinningOutcome {
		return errors.New("winning outcome mismatch")
	}
	return nil
}

// finalizeOutcome is stage 2. The repository write only touches markets that
// are not yet resolved, so re-finalizing is a no-op success.
func (p *Pipeline) finalizeOutcome(ctx context.Context, req Request) error {
	if err := p.Repo.FinalizeMarket(ctx, req.MarketID, req.WinningOutcome, time.Now().UTC()); err != nil {
		return fmt.Errorf("finalize outcome: %w", err)
	}
	return nil
}

// activateRedemptions is stage 3: one claim per winning position at the unit
// payout notional. Insert-if-absent keyed by (user, market, outcome) keeps a
// retried run from duplicating claims.
func (p *Pipeline) activateRedemptions(ctx context.Context, req Request) error {
	positions, err := p.Repo.ListWinningPositions(ctx, req.MarketID, req.WinningOutcome)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	unit := unitPayout(p.Config)
	now := time.Now().UTC()
	claims := make([]models.SettlementClaim, 0, len(positions))
	for _, pos := range positions {
		claims = append(claims, models.SettlementClaim{
			UserID:          pos.UserID,
			MarketID:        pos.MarketID,
			Outcome:         pos.Outcome,
			Shares:          pos.Quantity,
			PayoutAmount:    pos.Quantity.Mul(unit),
			Status:          models.ClaimStatusPending,
			OptInAutoSettle: pos.OptInAutoSettle,
			CreatedAt:       now,
		})
	}

	inserted, err := p.Repo.InsertClaims(ctx, claims)
	if err != nil {
		return fmt.Errorf("create claims: %w", err)
	}
	if p.Logger != nil {
		p.Logger.Info("redemption claims activated",
			zap.String("market_id", req.MarketID),
			zap.Int("positions", len(positions)),
			zap.Int64("inserted", inserted),
		)
	}
	return nil
}

// autoSettle is stage 4: hand the opted-in pending claims to the batch
// builder. Zero eligible claims is a trivial success with no batch.
func (p *Pipeline) autoSettle(ctx context.Context, req Request) (*Batch, error) {
	size := p.Batch.Size
	if size <= 0 {
		size = 100
	}
	claims, err := p.Repo.ListPendingAutoSettleClaims(ctx, req.MarketID, size)
	if err != nil {
		return nil, fmt.Errorf("fetch auto-settle claims: %w", err)
	}
	if len(claims) == 0 {
		return nil, nil
	}

	batch := BuildBatch(req.MarketID, claims, CostModel{
		BaseGas:     p.Batch.BaseGas,
		PerClaimGas: p.Batch.PerClaimGas,
	})
	if p.Batches != nil {
		p.Batches.Add(batch)
	}
	if p.Logger != nil {
		p.Logger.Info("auto-settle batch queued",
			zap.String("market_id", req.MarketID),
			zap.String("batch_id", batch.ID),
			zap.Int("claims", len(batch.Claims)),
			zap.String("total", batch.TotalAmount.String()),
		)
	}
	return batch, nil
}

// trackConfirmation is stage 5: schedule the one-shot escalation check and
// return immediately.
func (p *Pipeline) trackConfirmation(marketID string, batchID *string) error {
	if p.Monitor == nil {
		return nil
	}
	p.Monitor.Schedule(marketID, batchID)
	return nil
}

func (p *Pipeline) recordRun(ctx context.Context, req Request, result Result) {
	stages, err := json.Marshal(result.Stages)
	if err != nil {
		stages = []byte(`{}`)
	}
	run := &models.SettlementRun{
		MarketID:       req.MarketID,
		Trigger:        req.Trigger,
		WinningOutcome: req.WinningOutcome,
		Success:        result.Success,
		BatchID:        result.BatchID,
		Stages:         datatypes.JSON(stages),
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.Repo.InsertSettlementRun(ctx, run); err != nil && p.Logger != nil {
		p.Logger.Warn("settlement run audit insert failed",
			zap.String("market_id", req.MarketID),
			zap.Error(err),
		)
	}
}
