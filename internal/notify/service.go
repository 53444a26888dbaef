package notify

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// Notification kinds emitted by the lending core.
const (
	KindLoanRequested     = "loan_requested"
	KindLoanApproved      = "loan_approved"
	KindLoanRejected      = "loan_rejected"
	KindLoanClosed        = "loan_closed"
	KindReturnSubmitted   = "return_submitted"
	KindReturnAccepted    = "return_accepted"
	KindReturnRejected    = "return_rejected"
	KindExtensionRequest  = "extension_requested"
	KindExtensionApproved = "extension_approved"
	KindExtensionRejected = "extension_rejected"
	KindLoanOverdue       = "loan_overdue"
)

type Service struct {
	db    *sql.DB
	store *Store
}

func NewService(conn *sql.DB) *Service {
	return &Service{db: conn, store: NewStore(conn)}
}

// Notify persists a notification record. Delivery is best effort: a failure
// is logged and swallowed so it can never fail the transition that caused it.
func (s *Service) Notify(ctx context.Context, recipientID string, loanID int64, title, message, kind string) {
	if recipientID == "" {
		log.Printf("[WARN] notification dropped, empty recipient (kind=%s loan=%d)", kind, loanID)
		return
	}
	n := &Notification{
		RecipientID: recipientID,
		Title:       title,
		Message:     message,
		Kind:        kind,
	}
	if loanID > 0 {
		n.LoanID = sql.NullInt64{Int64: loanID, Valid: true}
	}
	if err := s.store.Insert(ctx, n); err != nil {
		log.Printf("[ERROR] failed to create notification (kind=%s recipient=%s): %v", kind, recipientID, err)
	}
}

type NotificationResponse struct {
	NotificationID int64      `json:"notification_id"`
	LoanID         *int64     `json:"loan_id,omitempty"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	Kind           string     `json:"kind"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (s *Service) ListMine(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]NotificationResponse, error) {
	rows, err := s.store.ListByRecipient(ctx, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	out := make([]NotificationResponse, 0, len(rows))
	for _, n := range rows {
		r := NotificationResponse{
			NotificationID: n.NotificationID,
			Title:          n.Title,
			Message:        n.Message,
			Kind:           n.Kind,
			CreatedAt:      n.CreatedAt,
		}
		if n.LoanID.Valid {
			v := n.LoanID.Int64
			r.LoanID = &v
		}
		if n.ReadAt.Valid {
			v := n.ReadAt.Time
			r.ReadAt = &v
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) MarkRead(ctx context.Context, id int64, recipientID string) (bool, error) {
	n, err := s.store.MarkRead(ctx, id, recipientID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
