package items

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const itemColumns = `item_id, name, category, description, photo_url, item_condition, location,
	total_units, available_units, active, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var m Item
	err := row.Scan(
		&m.ItemID, &m.Name, &m.Category, &m.Description, &m.PhotoURL, &m.Condition,
		&m.Location, &m.TotalUnits, &m.AvailableUnits, &m.Active, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) Insert(ctx context.Context, m *Item) error {
	const q = `
	INSERT INTO items
	(name, category, description, photo_url, item_condition, location, total_units, available_units, active, created_at, updated_at)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, 1, NOW(6), NOW(6))`

	res, err := s.db.ExecContext(ctx, q,
		m.Name, m.Category, m.Description, m.PhotoURL, m.Condition, m.Location,
		m.TotalUnits, m.AvailableUnits,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	m.ItemID = id
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items WHERE item_id = ?`
	m, err := scanItem(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound("item not found")
		}
		return nil, err
	}
	return m, nil
}

func (s *Store) List(ctx context.Context, f ItemFilter, p Page) ([]Item, int64, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + itemColumns + ` FROM items WHERE 1=1`)

	args := []any{}
	where := strings.Builder{}
	if f.Category != nil {
		where.WriteString(` AND category = ?`)
		args = append(args, *f.Category)
	}
	if f.Active != nil {
		where.WriteString(` AND active = ?`)
		args = append(args, *f.Active)
	}
	if f.Borrowable {
		where.WriteString(` AND active = 1 AND item_condition <> ?`)
		args = append(args, ConditionMajorDamage)
	}
	if f.Name != nil {
		where.WriteString(` AND name LIKE ?`)
		args = append(args, "%"+*f.Name+"%")
	}
	sb.WriteString(where.String())

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	sb.WriteString(fmt.Sprintf(` ORDER BY created_at %s`, order))
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		m, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cntArgs := args[:len(args)-2]
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE 1=1`+where.String(), cntArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) UpdateByID(ctx context.Context, id int64, in UpdateItemRequest) (*Item, error) {
	sets := []string{}
	args := []any{}
	if in.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *in.Name)
	}
	if in.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *in.Category)
	}
	if in.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *in.Description)
	}
	if in.PhotoURL != nil {
		sets = append(sets, "photo_url = ?")
		args = append(args, *in.PhotoURL)
	}
	if in.Condition != nil {
		sets = append(sets, "item_condition = ?")
		args = append(args, *in.Condition)
	}
	if in.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *in.Location)
	}
	if len(sets) == 0 {
		return s.GetByID(ctx, id)
	}
	sets = append(sets, "updated_at = NOW(6)")

	q := `UPDATE items SET ` + strings.Join(sets, ", ") + ` WHERE item_id = ?`
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		// RowsAffected may be 0 for a no-op update, so confirm existence
		return s.GetByID(ctx, id)
	}
	return s.GetByID(ctx, id)
}

// SoftDelete flags the item inactive. Historical loans keep referencing it.
func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	const q = `UPDATE items SET active = 0, updated_at = NOW(6) WHERE item_id = ? AND active = 1`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return apperr.ErrConflict("item is already inactive")
	}
	return nil
}

// ---- transactional stock operations ----
//
// All mutations of available_units go through these helpers so that loan and
// return transactions can compose with the same row-lock discipline.

// LockForUpdateTx reads the item row under FOR UPDATE inside tx.
func LockForUpdateTx(ctx context.Context, tx *sql.Tx, itemID int64) (*Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items WHERE item_id = ? FOR UPDATE`
	m, err := scanItem(tx.QueryRowContext(ctx, q, itemID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound("item not found")
		}
		return nil, err
	}
	return m, nil
}

func saveCountsTx(ctx context.Context, tx *sql.Tx, m *Item) error {
	const q = `UPDATE items SET total_units = ?, available_units = ?, updated_at = NOW(6) WHERE item_id = ?`
	res, err := tx.ExecContext(ctx, q, m.TotalUnits, m.AvailableUnits, m.ItemID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apperr.ErrInternal("failed to update items stock counts")
	}
	return nil
}

// ReserveTx locks the item row, checks the borrowing guards and deducts qty.
func ReserveTx(ctx context.Context, tx *sql.Tx, itemID int64, qty int) (*Item, error) {
	m, err := LockForUpdateTx(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if err := m.Reserve(qty); err != nil {
		return nil, err
	}
	if err := saveCountsTx(ctx, tx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ReleaseTx locks the item row and gives qty units back. An invariant
// violation here points at a bug in a caller and is logged before being
// returned.
func ReleaseTx(ctx context.Context, tx *sql.Tx, itemID int64, qty int) (*Item, error) {
	m, err := LockForUpdateTx(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if err := m.Release(qty); err != nil {
		log.Printf("[ERROR] stock release rejected for item %d: %v", itemID, err)
		return nil, err
	}
	if err := saveCountsTx(ctx, tx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ResizeTx locks the item row and applies an admin stock correction.
func ResizeTx(ctx context.Context, tx *sql.Tx, itemID int64, newTotal int) (*Item, error) {
	m, err := LockForUpdateTx(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if err := m.Resize(newTotal); err != nil {
		return nil, err
	}
	if err := saveCountsTx(ctx, tx, m); err != nil {
		return nil, err
	}
	return m, nil
}
