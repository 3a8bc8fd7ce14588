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

	"github.com/fatflowers/allowance/internal/app/service/ledger"
	models "github.com/fatflowers/allowance/internal/models"
	types "github.com/fatflowers/allowance/pkg/types"
)

type stubLedger struct {
	consumeErr error
	consumeRes *ledger.ConsumptionResult
}

func (s *stubLedger) Consume(_ context.Context, _ *ledger.ConsumeRequest) (*ledger.ConsumptionResult, error) {
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	return s.consumeRes, nil
}

func (s *stubLedger) AvailableBalance(_ context.Context, _ string, _ types.CreditType) (int, error) {
	return 42, nil
}

func (s *stubLedger) WouldConsume(_ context.Context, _ string, _ types.CreditType, _ int) (int, int, error) {
	return 120, 50, nil
}

func (s *stubLedger) ListEvents(_ context.Context, _ string, _, _ int) ([]*models.ConsumptionEvent, error) {
	return []*models.ConsumptionEvent{{ID: "ev1"}}, nil
}

func (s *stubLedger) ListOverageCharges(_ context.Context, _ string) ([]*models.OverageCharge, error) {
	return nil, nil
}

func consumeBody(t *testing.T) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"user_id": "u1", "type": "BC", "amount": 10, "action": "auto_fix",
	})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestApiConsumeAllowance_OK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	stub := &stubLedger{consumeRes: &ledger.ConsumptionResult{
		Event:    &models.ConsumptionEvent{ID: "ev1"},
		Deducted: 10,
	}}
	r.POST("/consume", ApiConsumeAllowance(stub))

	req := httptest.NewRequest(http.MethodPost, "/consume", consumeBody(t))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"event_id":"ev1"`)
	require.Contains(t, w.Body.String(), `"code":0`)
}

func TestApiConsumeAllowance_ExhaustedMapsToQuotaCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/consume", ApiConsumeAllowance(&stubLedger{consumeErr: ledger.ErrAllowanceExhausted}))

	req := httptest.NewRequest(http.MethodPost, "/consume", consumeBody(t))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":40290`)
}

func TestApiConsumeAllowance_PaygRequiredMapsToPaymentCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/consume", ApiConsumeAllowance(&stubLedger{consumeErr: ledger.ErrPaygChargeRequired}))

	req := httptest.NewRequest(http.MethodPost, "/consume", consumeBody(t))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":40291`)
}

func TestApiConsumeAllowance_RejectsUnknownType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/consume", ApiConsumeAllowance(&stubLedger{}))

	body, _ := json.Marshal(map[string]any{"user_id": "u1", "type": "karma", "amount": 10, "action": "x"})
	req := httptest.NewRequest(http.MethodPost, "/consume", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":40000`)
}

func TestApiAllowanceBalance_SplitsRollover(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/balance", ApiAllowanceBalance(&stubLedger{}))

	req := httptest.NewRequest(http.MethodGet, "/balance?user_id=u1&type=RC", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"available":120`)
	require.Contains(t, w.Body.String(), `"rollover":50`)
}

func TestApiAllowanceBalance_RequiresUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/balance", ApiAllowanceBalance(&stubLedger{}))

	req := httptest.NewRequest(http.MethodGet, "/balance?type=RC", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Contains(t, w.Body.String(), `"code":40000`)
}
