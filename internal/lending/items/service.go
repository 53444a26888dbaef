package items

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/platform/db"
)

type Service struct {
	db    *sql.DB
	store *Store
}

func NewService(conn *sql.DB) *Service {
	return &Service{db: conn, store: NewStore(conn)}
}

func (s *Service) CreateItem(ctx context.Context, in CreateItemRequest) (ItemResponse, error) {
	if strings.TrimSpace(in.Name) == "" {
		return ItemResponse{}, apperr.ErrInvalid("name is required")
	}
	if !in.Category.Valid() {
		return ItemResponse{}, apperr.ErrInvalid("category must be electronics or sports")
	}
	cond := in.Condition
	if cond == "" {
		cond = ConditionGood
	}
	if !cond.Valid() {
		return ItemResponse{}, apperr.ErrInvalid("invalid condition")
	}
	if in.TotalUnits < 0 {
		return ItemResponse{}, apperr.ErrInvalid("total_units must be >= 0")
	}

	m := &Item{
		Name:           strings.TrimSpace(in.Name),
		Category:       in.Category,
		Description:    toNullString(in.Description),
		PhotoURL:       toNullString(in.PhotoURL),
		Condition:      cond,
		Location:       toNullString(in.Location),
		TotalUnits:     in.TotalUnits,
		AvailableUnits: in.TotalUnits,
		Active:         true,
	}
	if err := s.store.Insert(ctx, m); err != nil {
		return ItemResponse{}, err
	}
	out, err := s.store.GetByID(ctx, m.ItemID)
	if err != nil {
		return ItemResponse{}, err
	}
	return buildItemResponse(out), nil
}

func (s *Service) GetItem(ctx context.Context, id int64) (ItemResponse, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return ItemResponse{}, err
	}
	return buildItemResponse(m), nil
}

func (s *Service) ListItems(ctx context.Context, f ItemFilter, p Page) (ListResult, error) {
	rows, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return ListResult{}, err
	}
	out := make([]ItemResponse, 0, len(rows))
	for i := range rows {
		out = append(out, buildItemResponse(&rows[i]))
	}
	return ListResult{Items: out, Total: total}, nil
}

func (s *Service) UpdateItem(ctx context.Context, id int64, in UpdateItemRequest) (ItemResponse, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return ItemResponse{}, apperr.ErrInvalid("name must not be empty")
	}
	if in.Category != nil && !in.Category.Valid() {
		return ItemResponse{}, apperr.ErrInvalid("category must be electronics or sports")
	}
	if in.Condition != nil && !in.Condition.Valid() {
		return ItemResponse{}, apperr.ErrInvalid("invalid condition")
	}
	m, err := s.store.UpdateByID(ctx, id, in)
	if err != nil {
		return ItemResponse{}, err
	}
	return buildItemResponse(m), nil
}

// ResizeStock is the admin correction of total stock. Units on loan stay
// accounted for because available moves by the same delta.
func (s *Service) ResizeStock(ctx context.Context, id int64, in ResizeStockRequest) (ItemResponse, error) {
	if in.TotalUnits < 0 {
		return ItemResponse{}, apperr.ErrInvalid("total_units must be >= 0")
	}
	var out *Item
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		m, err := ResizeTx(ctx, tx, id, in.TotalUnits)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return ItemResponse{}, err
	}
	return buildItemResponse(out), nil
}

func (s *Service) DeactivateItem(ctx context.Context, id int64) error {
	return s.store.SoftDelete(ctx, id)
}

// ---- helpers ----

func buildItemResponse(m *Item) ItemResponse {
	return ItemResponse{
		ItemID:         m.ItemID,
		Name:           m.Name,
		Category:       m.Category,
		Description:    nullToPtr(m.Description),
		PhotoURL:       nullToPtr(m.PhotoURL),
		Condition:      m.Condition,
		Location:       nullToPtr(m.Location),
		TotalUnits:     m.TotalUnits,
		AvailableUnits: m.AvailableUnits,
		Availability:   m.Availability(),
		Active:         m.Active,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toNullString(s *string) (ns sql.NullString) {
	if s != nil && strings.TrimSpace(*s) != "" {
		ns.Valid, ns.String = true, *s
	}
	return
}

func nullToPtr(ns sql.NullString) *string {
	if ns.Valid {
		v := ns.String
		return &v
	}
	return nil
}
