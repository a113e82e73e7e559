package settlement

import (
	"context"
	"errors"
	"testing"

	"settlement/internal/models"
)

func TestClaimRedemption_CreditsNetOfFee(t *testing.T) {
	repo, gw, pipeline := newTestEnv()
	if result := pipeline.ExecuteSettlement(context.Background(), validRequest()); !result.Success {
		t.Fatalf("settlement failed: %+v", result)
	}

	// userB holds 5 winning shares; 0.1% relayer surcharge on 5.00 is 0.005.
	res, err := pipeline.ClaimRedemption(context.Background(), "userB", "m1")
	if err != nil {
		t.Fatalf("ClaimRedemption: %v", err)
	}
	if res.Fee.Cmp(mustDecimal("0.005")) != 0 {
		t.Fatalf("fee=%s want 0.005", res.Fee)
	}
	if res.Amount.Cmp(mustDecimal("4.995")) != 0 {
		t.Fatalf("amount=%s want 4.995", res.Amount)
	}
	if got := gw.creditedTo("userB"); got.Cmp(mustDecimal("4.995")) != 0 {
		t.Fatalf("credited %s want 4.995", got)
	}

	claim := repo.claim(res.ClaimID)
	if claim.Status != models.ClaimStatusClaimed {
		t.Fatalf("status=%q want claimed", claim.Status)
	}
	if claim.RelayerFee == nil || claim.RelayerFee.Cmp(mustDecimal("0.005")) != 0 {
		t.Fatalf("stored fee=%v want 0.005", claim.RelayerFee)
	}
	if claim.ClaimedAt == nil {
		t.Fatalf("claimed_at not stamped")
	}
}

func TestClaimRedemption_SecondAttemptFindsNothing(t *testing.T) {
	_, gw, pipeline := newTestEnv()
	if result := pipeline.ExecuteSettlement(context.Background(), validRequest()); !result.Success {
		t.Fatalf("settlement failed: %+v", result)
	}

	if _, err := pipeline.ClaimRedemption(context.Background(), "userB", "m1"); err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if _, err := pipeline.ClaimRedemption(context.Background(), "userB", "m1"); !errors.Is(err, ErrNoPendingClaim) {
		t.Fatalf("err=%v want ErrNoPendingClaim", err)
	}
	if gw.creditCount() != 1 {
		t.Fatalf("credits=%d want 1", gw.creditCount())
	}
}

func TestClaimRedemption_NoClaimForLoserOrStranger(t *testing.T) {
	_, _, pipeline := newTestEnv()
	if result := pipeline.ExecuteSettlement(context.Background(), validRequest()); !result.Success {
		t.Fatalf("settlement failed: %+v", result)
	}

	// userC held the losing outcome, userD holds nothing.
	for _, userID := range []string{"userC", "userD"} {
		if _, err := pipeline.ClaimRedemption(context.Background(), userID, "m1"); !errors.Is(err, ErrNoPendingClaim) {
			t.Fatalf("%s: err=%v want ErrNoPendingClaim", userID, err)
		}
	}
}

func TestClaimRedemption_LosesToAutoSettle(t *testing.T) {
	repo, gw, pipeline := newTestEnv()
	if result := pipeline.ExecuteSettlement(context.Background(), validRequest()); !result.Success {
		t.Fatalf("settlement failed: %+v", result)
	}

	proc := &Processor{
		Repo:    repo,
		Wallet:  gw,
		Logger:  pipeline.Logger,
		Config:  pipeline.Batch,
		Batches: pipeline.Batches,
	}
	if err := proc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	// userA's claim was opted in and just auto-settled; manual redemption
	// afterwards must not pay twice.
	if _, err := pipeline.ClaimRedemption(context.Background(), "userA", "m1"); !errors.Is(err, ErrNoPendingClaim) {
		t.Fatalf("err=%v want ErrNoPendingClaim", err)
	}
	if gw.creditCount() != 1 {
		t.Fatalf("credits=%d want 1", gw.creditCount())
	}
	if got := repo.claimByUser("userA", "m1"); got.Status != models.ClaimStatusAutoSettled {
		t.Fatalf("status=%q want auto_settled", got.Status)
	}
}

func TestClaimRedemption_RelayerDisabledMeansNoFee(t *testing.T) {
	_, gw, pipeline := newTestEnv()
	pipeline.Batch.RelayerEnabled = false
	if result := pipeline.ExecuteSettlement(context.Background(), validRequest()); !result.Success {
		t.Fatalf("settlement failed: %+v", result)
	}

	res, err := pipeline.ClaimRedemption(context.Background(), "userB", "m1")
	if err != nil {
		t.Fatalf("ClaimRedemption: %v", err)
	}
	if !res.Fee.IsZero() {
		t.Fatalf("fee=%s want 0", res.Fee)
	}
	if res.Amount.Cmp(mustDecimal("5")) != 0 {
		t.Fatalf("amount=%s want 5", res.Amount)
	}
	if got := gw.creditedTo("userB"); got.Cmp(mustDecimal("5")) != 0 {
		t.Fatalf("credited %s want 5", got)
	}
}

func TestClaimRedemption_GatewayFailureKeepsClaimPending(t *testing.T) {
	repo, gw, pipeline := newTestEnv()
	gw.failFor["userB"] = true
	if result := pipeline.ExecuteSettlement(context.Background(), validRequest()); !result.Success {
		t.Fatalf("settlement failed: %+v", result)
	}

	if _, err := pipeline.ClaimRedemption(context.Background(), "userB", "m1"); err == nil {
		t.Fatal("want error from failed credit")
	}
	if got := repo.claimByUser("userB", "m1"); got.Status != models.ClaimStatusPending {
		t.Fatalf("status=%q want pending after rollback", got.Status)
	}
	if got := gw.creditedTo("userB"); !got.IsZero() {
		t.Fatalf("credited %s want 0", got)
	}

	// A retry after the wallet recovers goes through.
	gw.failFor["userB"] = false
	if _, err := pipeline.ClaimRedemption(context.Background(), "userB", "m1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := repo.claimByUser("userB", "m1"); got.Status != models.ClaimStatusClaimed {
		t.Fatalf("status=%q want claimed after retry", got.Status)
	}
}
