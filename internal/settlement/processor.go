package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"settlement/internal/config"
	"settlement/internal/models"
	"settlement/internal/repository"
	"settlement/internal/wallet"
)

// Processor drains pending batches on a fixed cadence, crediting each claim's
// net payout and marking it auto_settled. A tick that is still running when
// the next is due causes the next tick to be skipped, never overlapped.
type Processor struct {
	Repo    repository.Repository
	Wallet  wallet.CreditGateway
	Logger  *zap.Logger
	Config  config.BatchConfig
	Batches *Registry

	running atomic.Bool
}

func (p *Processor) Run(ctx context.Context) error {
	if p == nil || p.Repo == nil || p.Batches == nil {
		return nil
	}
	interval := p.Config.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if !p.running.CompareAndSwap(false, true) {
			continue
		}
		if err := p.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) && p.Logger != nil {
			p.Logger.Warn("batch processor tick failed", zap.Error(err))
		}
		p.running.Store(false)
	}
}

// RunOnce drains every batch that is pending right now.
func (p *Processor) RunOnce(ctx context.Context) error {
	if p == nil || p.Batches == nil {
		return nil
	}
	for _, batch := range p.Batches.TakePending() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.executeBatch(ctx, batch); err != nil {
			p.Batches.Finish(batch.ID, BatchStatusFailed, time.Now().UTC())
			if p.Logger != nil {
				p.Logger.Warn("batch failed",
					zap.String("batch_id", batch.ID),
					zap.String("market_id", batch.MarketID),
					zap.Error(err),
				)
			}
			continue
		}
		p.Batches.Finish(batch.ID, BatchStatusCompleted, time.Now().UTC())
		if p.Logger != nil {
			p.Logger.Info("batch completed",
				zap.String("batch_id", batch.ID),
				zap.String("market_id", batch.MarketID),
				zap.Int("claims", len(batch.Claims)),
			)
		}
	}
	return nil
}

// executeBatch settles each claim independently: a failure for one claim
// leaves that claim pending and the rest settled, and fails the batch so the
// reconcile job re-queues the stragglers.
func (p *Processor) executeBatch(ctx context.Context, batch *Batch) error {
	if batch == nil || len(batch.Claims) == 0 {
		return nil
	}
	fee := relayerFee(batch.TotalAmount, p.Config)
	apportioned := fee.Div(decimal.NewFromInt(int64(len(batch.Claims))))

	var failed error
	settled := 0
	for _, claim := range batch.Claims {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ok, err := transitionAndCredit(ctx, p.Repo, p.Wallet, claim, models.ClaimStatusAutoSettled, apportioned)
		if err != nil {
			failed = err
			continue
		}
		if ok {
			settled++
		}
		// !ok means the user redeemed this claim between batching and now;
		// that is a normal outcome, not a batch failure.
	}
	if failed != nil {
		return fmt.Errorf("settled %d/%d claims: %w", settled, len(batch.Claims), failed)
	}
	return nil
}

// Reconcile rebuilds registry batches from durable claim state: any resolved
// market with pending opted-in claims and no open batch gets a fresh one.
// This is what makes batches safe to lose on restart.
func (p *Processor) Reconcile(ctx context.Context) error {
	if p == nil || p.Repo == nil || p.Batches == nil {
		return nil
	}
	limit := p.Config.ReconcileMarketsLimit
	if limit <= 0 {
		limit = 50
	}
	marketIDs, err := p.Repo.ListMarketIDsWithPendingAutoSettle(ctx, limit)
	if err != nil {
		return err
	}
	size := p.Config.Size
	if size <= 0 {
		size = 100
	}
	for _, marketID := range marketIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.Batches.HasOpenBatch(marketID) {
			continue
		}
		claims, err := p.Repo.ListPendingAutoSettleClaims(ctx, marketID, size)
		if err != nil {
			return err
		}
		if len(claims) == 0 {
			continue
		}
		batch := BuildBatch(marketID, claims, CostModel{
			BaseGas:     p.Config.BaseGas,
			PerClaimGas: p.Config.PerClaimGas,
		})
		p.Batches.Add(batch)
		if p.Logger != nil {
			p.Logger.Info("batch rebuilt from pending claims",
				zap.String("market_id", marketID),
				zap.String("batch_id", batch.ID),
				zap.Int("claims", len(batch.Claims)),
			)
		}
	}
	return nil
}
