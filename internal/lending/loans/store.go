package loans

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/items"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const loanColumns = `l.loan_id, l.loan_ulid, l.item_id, l.borrower_id, l.quantity,
	l.pickup_date, l.pickup_time, l.return_date, l.reason, l.status, l.return_status,
	l.admin_note, l.reject_reason, l.approved_by, l.approved_at, l.returned_at,
	l.extension_status, l.extension_date, l.extension_reason, l.extension_decided_by,
	l.extension_approved_at, l.extension_count, l.created_at`

// activeItemJoin is the single "active item" view every listing that joins
// loans to items goes through (soft-deleted items drop out transparently).
const activeItemJoin = ` JOIN items i ON i.item_id = l.item_id AND i.active = 1`

func scanLoan(row interface{ Scan(...any) error }, extra ...any) (*Loan, error) {
	var m Loan
	dest := []any{
		&m.LoanID, &m.LoanULID, &m.ItemID, &m.BorrowerID, &m.Quantity,
		&m.PickupDate, &m.PickupTime, &m.ReturnDate, &m.Reason, &m.Status, &m.ReturnStatus,
		&m.AdminNote, &m.RejectReason, &m.ApprovedBy, &m.ApprovedAt, &m.ReturnedAt,
		&m.ExtensionStatus, &m.ExtensionDate, &m.ExtensionReason, &m.ExtensionDecidedBy,
		&m.ExtensionApprovedAt, &m.ExtensionCount, &m.CreatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoanRow is a loan joined with the item fields responses need.
type LoanRow struct {
	Loan
	ItemName string
}

// ResolveID accepts either a numeric loan_id or a loan_ulid.
func (s *Store) ResolveID(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, apperr.ErrInvalid("loan id is required")
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	const q = `SELECT loan_id FROM loans WHERE loan_ulid = ?`
	var id int64
	if err := s.db.QueryRowContext(ctx, q, key).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, apperr.ErrNotFound("loan not found")
		}
		return 0, err
	}
	return id, nil
}

// LockForUpdateTx reads the loan row under FOR UPDATE so status guards and
// the following write are indivisible against concurrent transitions.
func LockForUpdateTx(ctx context.Context, tx *sql.Tx, loanID int64) (*Loan, error) {
	q := `SELECT ` + loanColumns + ` FROM loans l WHERE l.loan_id = ? FOR UPDATE`
	m, err := scanLoan(tx.QueryRowContext(ctx, q, loanID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound("loan not found")
		}
		return nil, err
	}
	return m, nil
}

// SaveTransitionTx writes back every column a state transition may touch.
func SaveTransitionTx(ctx context.Context, tx *sql.Tx, m *Loan) error {
	const q = `
	UPDATE loans SET
		status = ?, return_status = ?, return_date = ?,
		admin_note = ?, reject_reason = ?, approved_by = ?, approved_at = ?, returned_at = ?,
		extension_status = ?, extension_date = ?, extension_reason = ?, extension_decided_by = ?,
		extension_approved_at = ?, extension_count = ?
	WHERE loan_id = ?`
	res, err := tx.ExecContext(ctx, q,
		m.Status, m.ReturnStatus, m.ReturnDate,
		m.AdminNote, m.RejectReason, m.ApprovedBy, m.ApprovedAt, m.ReturnedAt,
		m.ExtensionStatus, m.ExtensionDate, m.ExtensionReason, m.ExtensionDecidedBy,
		m.ExtensionApprovedAt, m.ExtensionCount,
		m.LoanID,
	)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apperr.ErrInternal("failed to persist loan transition")
	}
	return nil
}

// ---- Transactional flows ----

// ExecRequestLoan reserves stock and inserts the loan in one transaction.
// Stock is deducted at request time so pending requests cannot over-promise
// the same units.
func (s *Store) ExecRequestLoan(ctx context.Context, m *Loan) (*items.Item, error) {
	var item *items.Item
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		it, err := items.ReserveTx(ctx, tx, m.ItemID, m.Quantity)
		if err != nil {
			return err
		}
		item = it

		const q = `
		INSERT INTO loans
		(loan_ulid, item_id, borrower_id, quantity, pickup_date, pickup_time, return_date,
		 reason, status, return_status, extension_status, extension_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', 0, NOW(6))`
		res, err := tx.ExecContext(ctx, q,
			m.LoanULID, m.ItemID, m.BorrowerID, m.Quantity,
			m.PickupDate, m.PickupTime, m.ReturnDate, m.Reason,
			m.Status, m.ReturnStatus,
		)
		if err != nil {
			return err
		}
		id, _ := res.LastInsertId()
		m.LoanID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ExecApprove transitions pending -> approved. Stock stays untouched, it was
// already reserved at request time.
func (s *Store) ExecApprove(ctx context.Context, loanID int64, adminID, note string, now time.Time) (*Loan, error) {
	var out *Loan
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		m, err := LockForUpdateTx(ctx, tx, loanID)
		if err != nil {
			return err
		}

		var active bool
		if err := tx.QueryRowContext(ctx, `SELECT active FROM items WHERE item_id = ?`, m.ItemID).Scan(&active); err != nil {
			if err == sql.ErrNoRows {
				return apperr.ErrItemUnavailable("item referenced by this loan no longer exists")
			}
			return err
		}
		if !active {
			return apperr.ErrItemUnavailable("item referenced by this loan is no longer active")
		}

		if err := m.Approve(adminID, note, now); err != nil {
			return err
		}
		if err := SaveTransitionTx(ctx, tx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExecReject transitions pending -> rejected and gives the reserved stock
// back in the same transaction.
func (s *Store) ExecReject(ctx context.Context, loanID int64, adminID, reason string, now time.Time) (*Loan, error) {
	var out *Loan
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		m, err := LockForUpdateTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if err := m.Reject(adminID, reason, now); err != nil {
			return err
		}
		if _, err := items.ReleaseTx(ctx, tx, m.ItemID, m.Quantity); err != nil {
			return err
		}
		if err := SaveTransitionTx(ctx, tx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExecMarkReturned is the admin direct-close path: approved -> closed with
// full stock release, bypassing return verification.
func (s *Store) ExecMarkReturned(ctx context.Context, loanID int64, now time.Time) (*Loan, error) {
	var out *Loan
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		m, err := LockForUpdateTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if err := m.MarkReturned(now); err != nil {
			return err
		}
		if _, err := items.ReleaseTx(ctx, tx, m.ItemID, m.Quantity); err != nil {
			return err
		}
		if err := SaveTransitionTx(ctx, tx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ExecRequestExtension(ctx context.Context, loanID int64, borrowerID string, newReturnDate time.Time, reason string, now time.Time) (*Loan, error) {
	var out *Loan
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		m, err := LockForUpdateTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if m.BorrowerID != borrowerID {
			return apperr.ErrUnauthorized("only the borrower can request an extension")
		}
		if err := m.RequestExtension(newReturnDate, reason, now); err != nil {
			return err
		}
		if err := SaveTransitionTx(ctx, tx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ExecDecideExtension(ctx context.Context, loanID int64, adminID, note string, approve bool, now time.Time) (*Loan, error) {
	var out *Loan
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		m, err := LockForUpdateTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if approve {
			err = m.ApproveExtension(now)
		} else {
			err = m.RejectExtension()
		}
		if err != nil {
			return err
		}
		m.ExtensionDecidedBy = sql.NullString{String: adminID, Valid: true}
		if strings.TrimSpace(note) != "" {
			m.AdminNote = sql.NullString{String: note, Valid: true}
		}
		if err := SaveTransitionTx(ctx, tx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ---- Queries ----

func (s *Store) GetRow(ctx context.Context, loanID int64) (*LoanRow, error) {
	// single fetch keeps inactive items visible for historical loans
	q := `SELECT ` + loanColumns + `, i.name FROM loans l JOIN items i ON i.item_id = l.item_id WHERE l.loan_id = ?`
	var name string
	m, err := scanLoan(s.db.QueryRowContext(ctx, q, loanID), &name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound("loan not found")
		}
		return nil, err
	}
	return &LoanRow{Loan: *m, ItemName: name}, nil
}

func (s *Store) List(ctx context.Context, f LoanFilter, p Page) ([]LoanRow, int64, error) {
	where := strings.Builder{}
	args := []any{}
	if f.BorrowerID != nil {
		where.WriteString(` AND l.borrower_id = ?`)
		args = append(args, *f.BorrowerID)
	}
	if f.Status != nil {
		where.WriteString(` AND l.status = ?`)
		args = append(args, *f.Status)
	}
	if f.ReturnStatus != nil {
		where.WriteString(` AND l.return_status = ?`)
		args = append(args, *f.ReturnStatus)
	}
	if f.OnlyOutstanding {
		where.WriteString(` AND l.status = 'approved' AND l.return_status <> 'returned'`)
	}
	if f.From != nil {
		where.WriteString(` AND l.created_at >= ?`)
		args = append(args, *f.From)
	}
	if f.To != nil {
		where.WriteString(` AND l.created_at < ?`)
		args = append(args, *f.To)
	}

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	q := `SELECT ` + loanColumns + `, i.name FROM loans l` + activeItemJoin +
		` WHERE 1=1` + where.String() +
		fmt.Sprintf(` ORDER BY l.created_at %s LIMIT ? OFFSET ?`, order)
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []LoanRow
	for rows.Next() {
		var name string
		m, err := scanLoan(rows, &name)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, LoanRow{Loan: *m, ItemName: name})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM loans l` + activeItemJoin + ` WHERE 1=1` + where.String()
	if err := s.db.QueryRowContext(ctx, cq, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// DeleteByIDs is the administrative bulk cleanup. It bypasses the state
// machine on purpose and does NOT touch stock; callers are expected to use
// it on rejected/closed history only.
func (s *Store) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	// loan_returns and notifications cascade via FK
	res, err := s.db.ExecContext(ctx, `DELETE FROM loans WHERE loan_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
