package ledger

import (
	"context"
	"fmt"

	models "github.com/fatflowers/allowance/internal/models"
	types "github.com/fatflowers/allowance/pkg/types"

	"gorm.io/gorm/clause"
)

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

type ScanEventsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanEventsResponse struct {
	Items []*models.ConsumptionEvent `json:"items"`
	Total int64                      `json:"total"`
}

// ScanEvents implements paginated, filterable listing of the consumption
// event log for admin and audit surfaces.
func (s *Service) ScanEvents(ctx context.Context, req *ScanEventsRequest) (*ScanEventsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.ConsumptionEvent{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count consumption events: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy == "" {
		req.SortBy = "created_at"
		req.SortOrder = "desc"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*models.ConsumptionEvent
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list consumption events: %w", err)
	}

	return &ScanEventsResponse{Items: rows, Total: total}, nil
}

// ListEvents returns a user's consumption history, newest first.
func (s *Service) ListEvents(ctx context.Context, userID string, limit, offset int) ([]*models.ConsumptionEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []*models.ConsumptionEvent
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list consumption events: %w", err)
	}
	return rows, nil
}
