package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"settlement/internal/settlement"
)

// RedemptionHandler is the user-facing entry point for claiming a payout.
type RedemptionHandler struct {
	Pipeline *settlement.Pipeline
}

func (h *RedemptionHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/redemptions", h.claim)
}

type claimRequest struct {
	UserID   string `json:"user_id"`
	MarketID string `json:"market_id"`
}

func (h *RedemptionHandler) claim(c *gin.Context) {
	if h.Pipeline == nil {
		Error(c, http.StatusInternalServerError, "pipeline unavailable", nil)
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.MarketID = strings.TrimSpace(req.MarketID)
	if req.UserID == "" || req.MarketID == "" {
		Error(c, http.StatusBadRequest, "user_id and market_id required", nil)
		return
	}

	result, err := h.Pipeline.ClaimRedemption(c.Request.Context(), req.UserID, req.MarketID)
	if errors.Is(err, settlement.ErrNoPendingClaim) {
		Error(c, http.StatusNotFound, "no pending claim found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{
		"claim_id": result.ClaimID,
		"amount":   result.Amount.String(),
		"fee":      result.Fee.String(),
	}, nil)
}
