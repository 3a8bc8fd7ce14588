package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/fatflowers/allowance/internal/app/service/credit"
	"github.com/fatflowers/allowance/internal/app/service/ledger"
	models "github.com/fatflowers/allowance/internal/models"
	"github.com/fatflowers/allowance/pkg/config"
	"github.com/fatflowers/allowance/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreditManager is the slice of the credit service the credit routes use.
type CreditManager interface {
	Packages() []*config.RechargePackage
	Recharge(ctx context.Context, userID, packageID string) (*models.CreditTransaction, error)
	Consume(ctx context.Context, userID string, amount int, reason string, extra map[string]any) (*models.CreditTransaction, error)
	GetSummary(ctx context.Context, userID string) (*credit.Summary, error)
	GetHistory(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error)
}

// @Summary      List recharge packages
// @Tags         Credits
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/credits/packages [get]
func ApiListRechargePackages(mgr CreditManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(mgr.Packages()))
	}
}

type rechargeRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	PackageID string `json:"package_id" binding:"required"`
}

// @Summary      Recharge credits
// @Description  Grants the package's credits as a one-off allowance and journals the recharge. Call only after the purchase is confirmed.
// @Tags         Credits
// @Accept       json
// @Produce      json
// @Param        request body handlers.rechargeRequest true "Recharge request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/credits/recharge [post]
func ApiRecharge(mgr CreditManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rechargeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		row, err := mgr.Recharge(c.Request.Context(), req.UserID, req.PackageID)
		if err != nil {
			if errors.Is(err, credit.ErrUnknownPackage) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(row))
	}
}

type creditConsumeRequest struct {
	UserID string         `json:"user_id" binding:"required"`
	Amount int            `json:"amount" binding:"required"`
	Reason string         `json:"reason" binding:"required"`
	Extra  map[string]any `json:"extra"`
}

// @Summary      Spend credits
// @Tags         Credits
// @Accept       json
// @Produce      json
// @Param        request body handlers.creditConsumeRequest true "Spend request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/credits/consume [post]
func ApiCreditConsume(mgr CreditManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req creditConsumeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		row, err := mgr.Consume(c.Request.Context(), req.UserID, req.Amount, req.Reason, req.Extra)
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrInvalidAmount):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			case errors.Is(err, credit.ErrInsufficientCredit):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeQuotaExhausted, err.Error()))
			default:
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
			return
		}
		c.JSON(http.StatusOK, response.OKT(row))
	}
}

// @Summary      Credit summary
// @Tags         Credits
// @Produce      json
// @Param        user_id query string true "User ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/credits/summary [get]
func ApiCreditSummary(mgr CreditManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "user_id is required"))
			return
		}
		out, err := mgr.GetSummary(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Credit history
// @Tags         Credits
// @Produce      json
// @Param        user_id query string true "User ID"
// @Param        limit query int false "Page size"
// @Param        offset query int false "Offset"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/credits/history [get]
func ApiCreditHistory(mgr CreditManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "user_id is required"))
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		rows, err := mgr.GetHistory(c.Request.Context(), userID, limit, offset)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(rows))
	}
}

func RegisterCreditRoutes(r gin.IRouter, mgr CreditManager) {
	r.GET("/packages", ApiListRechargePackages(mgr))
	r.POST("/recharge", ApiRecharge(mgr))
	r.POST("/consume", ApiCreditConsume(mgr))
	r.GET("/summary", ApiCreditSummary(mgr))
	r.GET("/history", ApiCreditHistory(mgr))
}
