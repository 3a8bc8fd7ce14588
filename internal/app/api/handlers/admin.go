package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/fatflowers/allowance/internal/app/service/ledger"
	models "github.com/fatflowers/allowance/internal/models"
	"github.com/fatflowers/allowance/pkg/response"
	types "github.com/fatflowers/allowance/pkg/types"

	"github.com/gin-gonic/gin"
)

// AdminLedger is the slice of the ledger service the admin routes use.
type AdminLedger interface {
	ScanEvents(ctx context.Context, req *ledger.ScanEventsRequest) (*ledger.ScanEventsResponse, error)
	GrantAllowance(ctx context.Context, req *ledger.GrantAllowanceRequest) (*models.Allowance, error)
	RevokeAllowance(ctx context.Context, allowanceID, reason string) (*models.Allowance, error)
	TransitionOverageCharge(ctx context.Context, chargeID string, next types.OverageChargeStatus) (*models.OverageCharge, error)
}

// @Summary      Scan consumption events
// @Description  Filterable, paginated scan over the consumption audit log.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ledger.ScanEventsRequest true "Scan request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/consumption_events/scan [post]
func ApiScanConsumptionEvents(led AdminLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ledger.ScanEventsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		out, err := led.ScanEvents(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

type grantAllowanceRequest struct {
	UserID string         `json:"user_id" binding:"required"`
	Type   string         `json:"type" binding:"required"`
	Total  int            `json:"total" binding:"required"`
	Source string         `json:"source" binding:"required"`
	Extra  map[string]any `json:"extra"`
}

// @Summary      Grant allowance
// @Description  Manually grants a one-off, non-rolling allowance. Meant for support adjustments.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body handlers.grantAllowanceRequest true "Grant request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/allowances/grant [post]
func ApiGrantAllowance(led AdminLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req grantAllowanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		creditType := types.CreditType(req.Type)
		if !creditType.Valid() {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "unknown credit type: "+req.Type))
			return
		}
		out, err := led.GrantAllowance(c.Request.Context(), &ledger.GrantAllowanceRequest{
			UserID:         req.UserID,
			Type:           creditType,
			Total:          req.Total,
			Window:         types.AllowanceWindowMonthly,
			RolloverPolicy: types.RolloverPolicyNone,
			Source:         req.Source,
			Extra:          req.Extra,
		})
		if err != nil {
			if errors.Is(err, ledger.ErrInvalidAmount) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

type revokeAllowanceRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// @Summary      Revoke allowance
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id path string true "Allowance ID"
// @Param        request body handlers.revokeAllowanceRequest true "Revocation reason"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/allowances/{id}/revoke [post]
func ApiRevokeAllowance(led AdminLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req revokeAllowanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		out, err := led.RevokeAllowance(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

type transitionOverageRequest struct {
	Status string `json:"status" binding:"required"`
}

// @Summary      Transition overage charge
// @Description  Moves a charge forward through its lifecycle. Backward transitions are rejected.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id path string true "Charge ID"
// @Param        request body handlers.transitionOverageRequest true "Target status"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/overages/{id}/transition [post]
func ApiTransitionOverageCharge(led AdminLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transitionOverageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		out, err := led.TransitionOverageCharge(c.Request.Context(), c.Param("id"), types.OverageChargeStatus(req.Status))
		if err != nil {
			if errors.Is(err, models.ErrInvalidChargeTransition) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

func RegisterAdminRoutes(r gin.IRouter, led AdminLedger) {
	r.POST("/consumption_events/scan", ApiScanConsumptionEvents(led))
	r.POST("/allowances/grant", ApiGrantAllowance(led))
	r.POST("/allowances/:id/revoke", ApiRevokeAllowance(led))
	r.POST("/overages/:id/transition", ApiTransitionOverageCharge(led))
}
