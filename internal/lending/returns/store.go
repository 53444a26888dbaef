package returns

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/items"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/loans"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

// CONDITION and RETURNS are reserved words in MySQL 8, hence loan_returns and
// item_condition.
const returnColumns = `r.return_id, r.return_ulid, r.loan_id, r.item_condition, r.quantity,
	r.submitted_by, r.verified_by, r.admin_note, r.status, r.fine,
	r.condition_note, r.photo_url, r.verified_at, r.created_at`

func scanReturn(row interface{ Scan(...any) error }, extra ...any) (*Return, error) {
	var m Return
	dest := []any{
		&m.ReturnID, &m.ReturnULID, &m.LoanID, &m.Condition, &m.Quantity,
		&m.SubmittedBy, &m.VerifiedBy, &m.AdminNote, &m.Status, &m.Fine,
		&m.ConditionNote, &m.PhotoURL, &m.VerifiedAt, &m.CreatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &m, nil
}

// ReturnRow is a return joined with the loan and item fields responses need.
type ReturnRow struct {
	Return
	LoanULID   string
	BorrowerID string
	ItemID     int64
	ItemName   string
}

// ResolveID accepts either a numeric return_id or a return_ulid.
func (s *Store) ResolveID(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, apperr.ErrInvalid("return id is required")
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	const q = `SELECT return_id FROM loan_returns WHERE return_ulid = ?`
	var id int64
	if err := s.db.QueryRowContext(ctx, q, key).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, apperr.ErrNotFound("return not found")
		}
		return 0, err
	}
	return id, nil
}

// ResolveLoanID accepts either a numeric loan_id or a loan_ulid.
func (s *Store) ResolveLoanID(ctx context.Context, key string) (int64, error) {
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

func lockForUpdateTx(ctx context.Context, tx *sql.Tx, returnID int64) (*Return, error) {
	q := `SELECT ` + returnColumns + ` FROM loan_returns r WHERE r.return_id = ? FOR UPDATE`
	m, err := scanReturn(tx.QueryRowContext(ctx, q, returnID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound("return not found")
		}
		return nil, err
	}
	return m, nil
}

func saveVerdictTx(ctx context.Context, tx *sql.Tx, m *Return) error {
	const q = `
	UPDATE loan_returns SET
		status = ?, verified_by = ?, admin_note = ?, verified_at = ?
	WHERE return_id = ?`
	res, err := tx.ExecContext(ctx, q, m.Status, m.VerifiedBy, m.AdminNote, m.VerifiedAt, m.ReturnID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apperr.ErrInternal("failed to persist return verdict")
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// ---- Transactional flows ----

// ExecSubmitReturn files the borrower's return claim and flips the parent loan
// into pending verification, all under the loan's row lock. The UNIQUE key on
// loan_id backstops the duplicate guard against racing submissions.
func (s *Store) ExecSubmitReturn(ctx context.Context, m *Return) (*loans.Loan, error) {
	var loan *loans.Loan
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		l, err := loans.LockForUpdateTx(ctx, tx, m.LoanID)
		if err != nil {
			return err
		}
		if l.BorrowerID != m.SubmittedBy {
			return apperr.ErrUnauthorized("only the borrower can submit a return")
		}
		if m.Quantity > l.Quantity {
			return apperr.ErrInvalid(fmt.Sprintf("cannot return %d units, only %d were borrowed", m.Quantity, l.Quantity))
		}

		var existing int64
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM loan_returns WHERE loan_id = ?`, m.LoanID).Scan(&existing)
		if err != nil {
			return err
		}
		if existing > 0 {
			return apperr.ErrDuplicateReturn("a return has already been submitted for this loan")
		}

		if err := l.BeginReturnVerification(); err != nil {
			return err
		}

		const q = `
		INSERT INTO loan_returns
		(return_ulid, loan_id, item_condition, quantity, submitted_by, status, fine,
		 condition_note, photo_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(6))`
		res, err := tx.ExecContext(ctx, q,
			m.ReturnULID, m.LoanID, m.Condition, m.Quantity, m.SubmittedBy,
			m.Status, m.Fine, m.ConditionNote, m.PhotoURL,
		)
		if err != nil {
			if isDuplicateKey(err) {
				return apperr.ErrDuplicateReturn("a return has already been submitted for this loan")
			}
			return err
		}
		id, _ := res.LastInsertId()
		m.ReturnID = id

		if err := loans.SaveTransitionTx(ctx, tx, l); err != nil {
			return err
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ExecVerify settles a pending return. Accepting closes the loan and releases
// the returned units back to stock; rejecting reopens the loan and leaves
// stock untouched, the units are still with the borrower.
func (s *Store) ExecVerify(ctx context.Context, returnID int64, adminID, note string, accept bool, now time.Time) (*Return, *loans.Loan, error) {
	var (
		out  *Return
		loan *loans.Loan
	)
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		m, err := lockForUpdateTx(ctx, tx, returnID)
		if err != nil {
			return err
		}
		l, err := loans.LockForUpdateTx(ctx, tx, m.LoanID)
		if err != nil {
			return err
		}

		if accept {
			if err := m.Accept(adminID, note, now); err != nil {
				return err
			}
			if err := l.FinalizeReturn(now); err != nil {
				return err
			}
			if _, err := items.ReleaseTx(ctx, tx, l.ItemID, m.Quantity); err != nil {
				return err
			}
		} else {
			if err := m.Reject(adminID, note, now); err != nil {
				return err
			}
			if err := l.ReopenReturn(); err != nil {
				return err
			}
		}

		if err := saveVerdictTx(ctx, tx, m); err != nil {
			return err
		}
		if err := loans.SaveTransitionTx(ctx, tx, l); err != nil {
			return err
		}
		out = m
		loan = l
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, loan, nil
}

// ---- Queries ----

const returnJoins = ` FROM loan_returns r
	JOIN loans l ON l.loan_id = r.loan_id`

func (s *Store) GetRow(ctx context.Context, returnID int64) (*ReturnRow, error) {
	// single fetch keeps inactive items visible for historical returns
	q := `SELECT ` + returnColumns + `, l.loan_ulid, l.borrower_id, l.item_id, i.name` +
		returnJoins + ` JOIN items i ON i.item_id = l.item_id WHERE r.return_id = ?`
	row := ReturnRow{}
	m, err := scanReturn(s.db.QueryRowContext(ctx, q, returnID),
		&row.LoanULID, &row.BorrowerID, &row.ItemID, &row.ItemName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound("return not found")
		}
		return nil, err
	}
	row.Return = *m
	return &row, nil
}

func (s *Store) List(ctx context.Context, f ReturnFilter, p Page) ([]ReturnRow, int64, error) {
	where := strings.Builder{}
	args := []any{}
	if f.LoanID != nil {
		where.WriteString(` AND r.loan_id = ?`)
		args = append(args, *f.LoanID)
	}
	if f.Status != nil {
		where.WriteString(` AND r.status = ?`)
		args = append(args, *f.Status)
	}
	if f.SubmittedBy != nil {
		where.WriteString(` AND r.submitted_by = ?`)
		args = append(args, *f.SubmittedBy)
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

	// listings hide soft-deleted items, same policy as loan listings
	join := returnJoins + ` JOIN items i ON i.item_id = l.item_id AND i.active = 1`
	q := `SELECT ` + returnColumns + `, l.loan_ulid, l.borrower_id, l.item_id, i.name` + join +
		` WHERE 1=1` + where.String() +
		fmt.Sprintf(` ORDER BY r.created_at %s LIMIT ? OFFSET ?`, order)
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []ReturnRow
	for rows.Next() {
		row := ReturnRow{}
		m, err := scanReturn(rows, &row.LoanULID, &row.BorrowerID, &row.ItemID, &row.ItemName)
		if err != nil {
			return nil, 0, err
		}
		row.Return = *m
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*)` + join + ` WHERE 1=1` + where.String()
	if err := s.db.QueryRowContext(ctx, cq, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
