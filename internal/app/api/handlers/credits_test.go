package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/allowance/internal/app/service/credit"
	models "github.com/fatflowers/allowance/internal/models"
	"github.com/fatflowers/allowance/pkg/config"
)

type stubCreditMgr struct {
	rechargeErr error
	consumeErr  error
}

func (s *stubCreditMgr) Packages() []*config.RechargePackage {
	return []*config.RechargePackage{{ID: "starter", Credits: 500, PriceUSD: 49}}
}

func (s *stubCreditMgr) Recharge(_ context.Context, userID, packageID string) (*models.CreditTransaction, error) {
	if s.rechargeErr != nil {
		return nil, s.rechargeErr
	}
	return &models.CreditTransaction{ID: "ct1", UserID: userID, Change: 500, BalanceAfter: 500}, nil
}

func (s *stubCreditMgr) Consume(_ context.Context, userID string, amount int, _ string, _ map[string]any) (*models.CreditTransaction, error) {
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	return &models.CreditTransaction{ID: "ct2", UserID: userID, Change: -amount}, nil
}

func (s *stubCreditMgr) GetSummary(_ context.Context, _ string) (*credit.Summary, error) {
	return &credit.Summary{Balance: 470, LifetimeRecharged: 500, LifetimeConsumed: 30}, nil
}

func (s *stubCreditMgr) GetHistory(_ context.Context, _ string, _, _ int) ([]*models.CreditTransaction, error) {
	return []*models.CreditTransaction{{ID: "ct1"}}, nil
}

func TestApiRecharge_OK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/recharge", ApiRecharge(&stubCreditMgr{}))

	body, _ := json.Marshal(map[string]any{"user_id": "u1", "package_id": "starter"})
	req := httptest.NewRequest(http.MethodPost, "/recharge", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"balance_after":500`)
}

func TestApiRecharge_UnknownPackageIsBadRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/recharge", ApiRecharge(&stubCreditMgr{rechargeErr: credit.ErrUnknownPackage}))

	body, _ := json.Marshal(map[string]any{"user_id": "u1", "package_id": "bogus"})
	req := httptest.NewRequest(http.MethodPost, "/recharge", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Contains(t, w.Body.String(), `"code":40000`)
}

func TestApiCreditConsume_InsufficientMapsToQuotaCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/consume", ApiCreditConsume(&stubCreditMgr{consumeErr: credit.ErrInsufficientCredit}))

	body, _ := json.Marshal(map[string]any{"user_id": "u1", "amount": 10, "reason": "act_execution"})
	req := httptest.NewRequest(http.MethodPost, "/consume", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Contains(t, w.Body.String(), `"code":40290`)
}

func TestApiCreditSummary_OK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/summary", ApiCreditSummary(&stubCreditMgr{}))

	req := httptest.NewRequest(http.MethodGet, "/summary?user_id=u1", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"balance":470`)
}
