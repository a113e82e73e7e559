package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"settlement/internal/models"
	"settlement/internal/repository"
	"settlement/internal/wallet"
)

// transitionAndCredit settles one claim: in a single transaction it moves the
// claim from pending to the given terminal status and credits the wallet with
// payout minus fee. A gateway failure rolls the transition back, so "settled
// but uncredited" cannot be observed. A lost race (the other redemption path
// already took the claim) returns (false, nil).
func transitionAndCredit(ctx context.Context, repo repository.Repository, gw wallet.CreditGateway, claim models.SettlementClaim, to string, fee decimal.Decimal) (bool, error) {
	net := claim.PayoutAmount.Sub(fee)
	err := repo.InTx(ctx, func(tx *gorm.DB) error {
		ok, err := repo.TransitionClaimTx(ctx, tx, claim.ID, models.ClaimStatusPending, to, &fee, time.Now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return errClaimTaken
		}
		if gw == nil {
			return errors.New("wallet gateway not configured")
		}
		if err := gw.Credit(ctx, claim.UserID, net, claimReference(claim.ID)); err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}
		return nil
	})
	if errors.Is(err, errClaimTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// claimReference is the idempotency key handed to the wallet gateway; the
// transition guard already makes at most one credit per claim, this makes a
// crashed commit safe to replay too.
func claimReference(id uint64) string {
	return fmt.Sprintf("settlement-claim-%d", id)
}
