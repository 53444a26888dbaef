package notify

import (
	"context"
	"database/sql"
	"time"
)

type Notification struct {
	NotificationID int64
	RecipientID    string
	LoanID         sql.NullInt64
	Title          string
	Message        string
	Kind           string
	ReadAt         sql.NullTime
	CreatedAt      time.Time
}

// OverdueLoan is the slice of a loan the reminder worker needs.
type OverdueLoan struct {
	LoanID     int64
	BorrowerID string
	ItemName   string
	Quantity   int
	ReturnDate time.Time
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Insert(ctx context.Context, n *Notification) error {
	const q = `
	INSERT INTO notifications (recipient_id, loan_id, title, message, kind, created_at)
	VALUES (?, ?, ?, ?, ?, NOW(6))`
	res, err := s.db.ExecContext(ctx, q, n.RecipientID, n.LoanID, n.Title, n.Message, n.Kind)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	n.NotificationID = id
	return nil
}

func (s *Store) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error) {
	q := `
	SELECT notification_id, recipient_id, loan_id, title, message, kind, read_at, created_at
	FROM notifications
	WHERE recipient_id = ?`
	if unreadOnly {
		q += ` AND read_at IS NULL`
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, q, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(
			&n.NotificationID, &n.RecipientID, &n.LoanID, &n.Title, &n.Message,
			&n.Kind, &n.ReadAt, &n.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead is scoped to the recipient so nobody can mark someone else's
// notification.
func (s *Store) MarkRead(ctx context.Context, id int64, recipientID string) (int64, error) {
	const q = `UPDATE notifications SET read_at = NOW(6) WHERE notification_id = ? AND recipient_id = ? AND read_at IS NULL`
	res, err := s.db.ExecContext(ctx, q, id, recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListOverdueLoans returns approved, not yet returned loans whose effective
// return date lies strictly before now.
func (s *Store) ListOverdueLoans(ctx context.Context, now time.Time) ([]OverdueLoan, error) {
	const q = `
	SELECT l.loan_id, l.borrower_id, i.name, l.quantity, l.return_date
	FROM loans l
	JOIN items i ON i.item_id = l.item_id
	WHERE l.status = 'approved'
	  AND l.return_status <> 'returned'
	  AND l.return_date < ?`

	rows, err := s.db.QueryContext(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OverdueLoan
	for rows.Next() {
		var o OverdueLoan
		if err := rows.Scan(&o.LoanID, &o.BorrowerID, &o.ItemName, &o.Quantity, &o.ReturnDate); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
