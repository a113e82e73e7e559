package settlement

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"settlement/internal/models"
)

// ClaimRedemption is the user-initiated payout path. It races safely against
// the batch processor: the conditional status transition decides the winner,
// and losing is reported as ErrNoPendingClaim rather than a failure.
func (p *Pipeline) ClaimRedemption(ctx context.Context, userID string, marketID string) (RedemptionResult, error) {
	if p == nil || p.Repo == nil {
		return RedemptionResult{}, ErrNoPendingClaim
	}
	userID = strings.TrimSpace(userID)
	marketID = strings.TrimSpace(marketID)

	claim, err := p.Repo.GetPendingClaim(ctx, userID, marketID)
	if err != nil {
		return RedemptionResult{}, fmt.Errorf("load claim: %w", err)
	}
	if claim == nil {
		return RedemptionResult{}, ErrNoPendingClaim
	}

	fee := relayerFee(claim.PayoutAmount, p.Batch)
	ok, err := transitionAndCredit(ctx, p.Repo, p.Wallet, *claim, models.ClaimStatusClaimed, fee)
	if err != nil {
		return RedemptionResult{}, err
	}
	if !ok {
		// Auto-settle got there first.
		return RedemptionResult{}, ErrNoPendingClaim
	}

	if p.Logger != nil {
		p.Logger.Info("claim redeemed",
			zap.String("user_id", userID),
			zap.String("market_id", marketID),
			zap.Uint64("claim_id", claim.ID),
			zap.String("fee", fee.String()),
		)
	}
	return RedemptionResult{
		ClaimID: claim.ID,
		Amount:  claim.PayoutAmount.Sub(fee),
		Fee:     fee,
	}, nil
}
