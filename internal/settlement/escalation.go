package settlement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"settlement/internal/models"
	"settlement/internal/repository"
)

// EscalationMonitor runs the one-shot delayed check scheduled by stage 5.
// It is a safety net, not the confirmation mechanism: it fires once per
// schedule, and only files an escalation if the market never reached the
// resolved state within the wait window.
type EscalationMonitor struct {
	Repo    repository.Repository
	Logger  *zap.Logger
	Wait    time.Duration
	BaseCtx context.Context
}

// Schedule starts the delayed check and returns immediately.
func (m *EscalationMonitor) Schedule(marketID string, batchID *string) {
	if m == nil || m.Repo == nil || marketID == "" {
		return
	}
	wait := m.Wait
	if wait <= 0 {
		wait = time.Hour
	}
	base := m.BaseCtx
	if base == nil {
		base = context.Background()
	}
	go func() {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-base.Done():
			return
		case <-timer.C:
		}
		if err := m.CheckOnce(base, marketID, batchID); err != nil && m.Logger != nil {
			m.Logger.Warn("confirmation check failed",
				zap.String("market_id", marketID),
				zap.Error(err),
			)
		}
	}()
}

// CheckOnce re-reads the market and files an escalation if it is still not
// resolved. The insert is keyed on market_id, so repeated checks for the same
// market create at most one record.
func (m *EscalationMonitor) CheckOnce(ctx context.Context, marketID string, batchID *string) error {
	market, err := m.Repo.GetMarket(ctx, marketID)
	if err != nil {
		return err
	}
	if market != nil && market.Status == models.MarketStatusResolved {
		return nil
	}

	if m.Logger != nil {
		m.Logger.Warn("settlement not confirmed, escalating",
			zap.String("market_id", marketID),
		)
	}
	return m.Repo.InsertEscalation(ctx, &models.SettlementEscalation{
		MarketID:  marketID,
		BatchID:   batchID,
		Reason:    "confirmation timeout",
		Status:    models.EscalationStatusOpen,
		CreatedAt: time.Now().UTC(),
	})
}
