package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"settlement/internal/repository"
	"settlement/internal/settlement"
)

// SettlementHandler is the admin-facing settlement surface: the trigger plus
// the read side (claims, batches, runs, escalations, stats).
type SettlementHandler struct {
	Repo     repository.Repository
	Pipeline *settlement.Pipeline
	Batches  *settlement.Registry
}

func (h *SettlementHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/settlements")
	group.POST("", h.trigger)
	group.GET("/claims", h.listClaims)
	group.GET("/batches", h.listBatches)
	group.GET("/runs", h.listRuns)
	group.GET("/escalations", h.listEscalations)
	group.GET("/stats", h.stats)
}

type triggerRequest struct {
	MarketID           string `json:"market_id"`
	WinningOutcome     string `json:"winning_outcome"`
	SettlementTrigger  string `json:"settlement_trigger"`
	OracleConfirmation struct {
		Outcome    string `json:"outcome"`
		Signature  string `json:"signature"`
		Timestamp  string `json:"timestamp"`
		OracleType string `json:"oracle_type"`
	} `json:"oracle_confirmation"`
}

func (h *SettlementHandler) trigger(c *gin.Context) {
	if h.Pipeline == nil {
		Error(c, http.StatusInternalServerError, "pipeline unavailable", nil)
		return
	}
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.MarketID = strings.TrimSpace(req.MarketID)
	req.WinningOutcome = strings.TrimSpace(req.WinningOutcome)
	if req.MarketID == "" || req.WinningOutcome == "" {
		Error(c, http.StatusBadRequest, "market_id and winning_outcome required", nil)
		return
	}
	trigger := strings.TrimSpace(req.SettlementTrigger)
	switch trigger {
	case settlement.TriggerOracleAuto, settlement.TriggerAdminManual, settlement.TriggerDisputeResolved:
	case "":
		trigger = settlement.TriggerAdminManual
	default:
		Error(c, http.StatusBadRequest, "unknown settlement_trigger", nil)
		return
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(req.OracleConfirmation.Timestamp))
	if err != nil {
		Error(c, http.StatusBadRequest, "oracle_confirmation.timestamp must be RFC3339", nil)
		return
	}

	result := h.Pipeline.ExecuteSettlement(c.Request.Context(), settlement.Request{
		MarketID:       req.MarketID,
		WinningOutcome: req.WinningOutcome,
		Trigger:        trigger,
		Oracle: settlement.OracleConfirmation{
			Outcome:    strings.TrimSpace(req.OracleConfirmation.Outcome),
			Signature:  req.OracleConfirmation.Signature,
			Timestamp:  ts.UTC(),
			OracleType: strings.TrimSpace(req.OracleConfirmation.OracleType),
		},
	})
	Ok(c, result, nil)
}

func (h *SettlementHandler) listClaims(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListClaimsParams{
		Limit:   parseIntQuery(c, "limit", 100),
		Offset:  parseIntQuery(c, "offset", 0),
		OrderBy: c.Query("order_by"),
	}
	if v := strings.TrimSpace(c.Query("market_id")); v != "" {
		params.MarketID = &v
	}
	if v := strings.TrimSpace(c.Query("user_id")); v != "" {
		params.UserID = &v
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		params.Status = &v
	}
	items, err := h.Repo.ListClaims(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountClaims(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": total})
}

func (h *SettlementHandler) listBatches(c *gin.Context) {
	if h.Batches == nil {
		Ok(c, []settlement.Batch{}, nil)
		return
	}
	Ok(c, h.Batches.Snapshot(), nil)
}

func (h *SettlementHandler) listRuns(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListRunsParams{
		Limit:  parseIntQuery(c, "limit", 100),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if v := strings.TrimSpace(c.Query("market_id")); v != "" {
		params.MarketID = &v
	}
	items, err := h.Repo.ListSettlementRuns(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *SettlementHandler) listEscalations(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListEscalationsParams{
		Limit:  parseIntQuery(c, "limit", 100),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if v := strings.TrimSpace(c.Query("market_id")); v != "" {
		params.MarketID = &v
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		params.Status = &v
	}
	items, err := h.Repo.ListEscalations(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *SettlementHandler) stats(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	stats, err := h.Repo.SettlementStats(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{
		"total_claims":   stats.TotalClaims,
		"settled_claims": stats.SettledClaims,
		"pending_claims": stats.PendingClaims,
		"failed_claims":  stats.FailedClaims,
		"total_payout":   stats.TotalPayout.String(),
		"total_fees":     stats.TotalFees.String(),
	}, nil)
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
