package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fatflowers/allowance/internal/app/service/ledger"
	"github.com/fatflowers/allowance/internal/app/service/usage"
	models "github.com/fatflowers/allowance/internal/models"
	"github.com/fatflowers/allowance/pkg/response"
	types "github.com/fatflowers/allowance/pkg/types"

	"github.com/gin-gonic/gin"
)

// PlanCatalog is the slice of the catalog service the billing routes use.
type PlanCatalog interface {
	ListPlans(ctx context.Context) ([]*models.Plan, error)
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
}

// SubscriptionManager is the slice of the subscription service the billing
// routes use.
type SubscriptionManager interface {
	GetPrimarySubscription(ctx context.Context, userID string) (*models.UserSubscription, error)
	ActivatePlan(ctx context.Context, userID, planID, source string) (*models.UserSubscription, error)
	CancelSubscription(ctx context.Context, userID, reason string) (*models.UserSubscription, error)
}

// AllowanceLedger is the slice of the ledger service the billing routes use.
type AllowanceLedger interface {
	Consume(ctx context.Context, req *ledger.ConsumeRequest) (*ledger.ConsumptionResult, error)
	AvailableBalance(ctx context.Context, userID string, creditType types.CreditType) (int, error)
	WouldConsume(ctx context.Context, userID string, creditType types.CreditType, amount int) (int, int, error)
	ListEvents(ctx context.Context, userID string, limit, offset int) ([]*models.ConsumptionEvent, error)
	ListOverageCharges(ctx context.Context, userID string) ([]*models.OverageCharge, error)
}

// UsageRecorder is the slice of the usage service the billing routes use.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, req *usage.RecordUsageRequest) (*usage.RecordUsageResult, error)
	ListUsage(ctx context.Context, userID, workspaceID, metric string) ([]*models.UsageSummary, error)
}

// @Summary      List plans
// @Description  Returns the active plan catalog ordered by price.
// @Tags         Billing
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/plans [get]
func ApiListPlans(cat PlanCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := cat.ListPlans(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(plans))
	}
}

type activatePlanRequest struct {
	UserID string `json:"user_id" binding:"required"`
	PlanID string `json:"plan_id" binding:"required"`
	Source string `json:"source"`
}

// @Summary      Activate plan
// @Description  Activates a plan on the user's primary subscription and resets its allowances, rolling over unused quota per plan policy.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        request body handlers.activatePlanRequest true "Activation request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/subscriptions/activate [post]
func ApiActivatePlan(sub SubscriptionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req activatePlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		out, err := sub.ActivatePlan(c.Request.Context(), req.UserID, req.PlanID, req.Source)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

type cancelSubscriptionRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Reason string `json:"reason"`
}

// @Summary      Cancel subscription
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        request body handlers.cancelSubscriptionRequest true "Cancellation request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/subscriptions/cancel [post]
func ApiCancelSubscription(sub SubscriptionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cancelSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		out, err := sub.CancelSubscription(c.Request.Context(), req.UserID, req.Reason)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Get subscription
// @Description  Returns the user's primary subscription, or null when none exists.
// @Tags         Billing
// @Produce      json
// @Param        user_id path string true "User ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/subscriptions/{user_id} [get]
func ApiGetSubscription(sub SubscriptionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := sub.GetPrimarySubscription(c.Request.Context(), c.Param("user_id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

type consumeAllowanceRequest struct {
	UserID          string         `json:"user_id" binding:"required"`
	Type            string         `json:"type" binding:"required"`
	Amount          int            `json:"amount" binding:"required"`
	Action          string         `json:"action" binding:"required"`
	ActionHash      string         `json:"action_hash"`
	ComplexityScore int            `json:"complexity_score"`
	AllowPayg       *bool          `json:"allow_payg"`
	Extra           map[string]any `json:"extra"`
}

type consumeAllowanceResponse struct {
	EventID      string `json:"event_id"`
	Deducted     int    `json:"deducted"`
	Replayed     bool   `json:"replayed"`
	AutofixUsed  bool   `json:"autofix_used"`
	PaygChargeID string `json:"payg_charge_id,omitempty"`
}

// @Summary      Consume allowance
// @Description  Deducts credits rollover-first. Replays the original event when the action hash was already processed.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        request body handlers.consumeAllowanceRequest true "Consume request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/allowances/consume [post]
func ApiConsumeAllowance(led AllowanceLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req consumeAllowanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		creditType := types.CreditType(req.Type)
		if !creditType.Valid() {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "unknown credit type: "+req.Type))
			return
		}
		allowPayg := true
		if req.AllowPayg != nil {
			allowPayg = *req.AllowPayg
		}

		res, err := led.Consume(c.Request.Context(), &ledger.ConsumeRequest{
			UserID:          req.UserID,
			Type:            creditType,
			Amount:          req.Amount,
			Action:          req.Action,
			ActionHash:      req.ActionHash,
			ComplexityScore: req.ComplexityScore,
			Extra:           req.Extra,
			AllowPayg:       allowPayg,
		})
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrInvalidAmount):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			case errors.Is(err, ledger.ErrPaygChargeRequired):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodePaymentRequired, err.Error()))
			case errors.Is(err, ledger.ErrAllowanceExhausted), errors.Is(err, ledger.ErrAutoFixLimitExceeded):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeQuotaExhausted, err.Error()))
			default:
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
			return
		}

		out := consumeAllowanceResponse{
			EventID:     res.Event.ID,
			Deducted:    res.Deducted,
			Replayed:    res.Replayed,
			AutofixUsed: res.AutofixGrant != nil,
		}
		if res.PaygCharge != nil {
			out.PaygChargeID = res.PaygCharge.ID
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

type allowanceBalanceResponse struct {
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	Available int    `json:"available"`
	Rollover  int    `json:"rollover"`
}

// @Summary      Allowance balance
// @Description  Returns the live balance for one credit type, split into allowance and rollover portions.
// @Tags         Billing
// @Produce      json
// @Param        user_id query string true "User ID"
// @Param        type query string true "Credit type (BC, RC, Usage)"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/allowances/balance [get]
func ApiAllowanceBalance(led AllowanceLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		creditType := types.CreditType(c.Query("type"))
		if userID == "" || !creditType.Valid() {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "user_id and a valid type are required"))
			return
		}
		available, rollover, err := led.WouldConsume(c.Request.Context(), userID, creditType, 1)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(allowanceBalanceResponse{
			UserID:    userID,
			Type:      string(creditType),
			Available: available,
			Rollover:  rollover,
		}))
	}
}

// @Summary      List consumption events
// @Tags         Billing
// @Produce      json
// @Param        user_id query string true "User ID"
// @Param        limit query int false "Page size"
// @Param        offset query int false "Offset"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/allowances/events [get]
func ApiListConsumptionEvents(led AllowanceLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "user_id is required"))
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		events, err := led.ListEvents(c.Request.Context(), userID, limit, offset)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(events))
	}
}

// @Summary      List overage charges
// @Tags         Billing
// @Produce      json
// @Param        user_id query string true "User ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/overages [get]
func ApiListOverageCharges(led AllowanceLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "user_id is required"))
			return
		}
		charges, err := led.ListOverageCharges(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(charges))
	}
}

type recordUsageRequest struct {
	UserID           string         `json:"user_id" binding:"required"`
	WorkspaceID      string         `json:"workspace_id"`
	Metric           string         `json:"metric" binding:"required"`
	Value            float64        `json:"value" binding:"required"`
	Period           string         `json:"period"`
	WindowStart      time.Time      `json:"window_start"`
	WindowEnd        time.Time      `json:"window_end"`
	ConsumeAllowance bool           `json:"consume_allowance"`
	Extra            map[string]any `json:"extra"`
}

// @Summary      Record usage
// @Description  Stores a raw meter reading, folds it into the period summary and optionally charges the Usage pool.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        request body handlers.recordUsageRequest true "Usage reading"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/usage [post]
func ApiRecordUsage(rec UsageRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordUsageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := rec.RecordUsage(c.Request.Context(), &usage.RecordUsageRequest{
			UserID:           req.UserID,
			WorkspaceID:      req.WorkspaceID,
			Metric:           req.Metric,
			Value:            req.Value,
			Period:           req.Period,
			WindowStart:      req.WindowStart,
			WindowEnd:        req.WindowEnd,
			Extra:            req.Extra,
			ConsumeAllowance: req.ConsumeAllowance,
		})
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrInvalidAmount):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			case errors.Is(err, ledger.ErrAllowanceExhausted), errors.Is(err, ledger.ErrAutoFixLimitExceeded):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeQuotaExhausted, err.Error()))
			default:
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List usage summaries
// @Tags         Billing
// @Produce      json
// @Param        user_id query string true "User ID"
// @Param        workspace_id query string false "Workspace ID"
// @Param        metric query string false "Metric name"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/usage [get]
func ApiListUsage(rec UsageRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "user_id is required"))
			return
		}
		summaries, err := rec.ListUsage(c.Request.Context(), userID, c.Query("workspace_id"), c.Query("metric"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(summaries))
	}
}

func RegisterBillingRoutes(r gin.IRouter, cat PlanCatalog, sub SubscriptionManager, led AllowanceLedger, rec UsageRecorder) {
	r.GET("/plans", ApiListPlans(cat))
	r.POST("/subscriptions/activate", ApiActivatePlan(sub))
	r.POST("/subscriptions/cancel", ApiCancelSubscription(sub))
	r.GET("/subscriptions/:user_id", ApiGetSubscription(sub))
	r.POST("/allowances/consume", ApiConsumeAllowance(led))
	r.GET("/allowances/balance", ApiAllowanceBalance(led))
	r.GET("/allowances/events", ApiListConsumptionEvents(led))
	r.GET("/overages", ApiListOverageCharges(led))
	r.POST("/usage", ApiRecordUsage(rec))
	r.GET("/usage", ApiListUsage(rec))
}
