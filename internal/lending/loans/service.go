package loans

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/items"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/notify"
)

// ---- Clock & ID ----

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Emitter is the fire-and-forget notification collaborator. Implementations
// must never fail the calling transition.
type Emitter interface {
	Notify(ctx context.Context, recipientID string, loanID int64, title, message, kind string)
}

// LoanStore is what the service needs from persistence; the SQL
// implementation is *Store, tests plug in an in-memory fake.
type LoanStore interface {
	ExecRequestLoan(ctx context.Context, m *Loan) (*items.Item, error)
	ExecApprove(ctx context.Context, loanID int64, adminID, note string, now time.Time) (*Loan, error)
	ExecReject(ctx context.Context, loanID int64, adminID, reason string, now time.Time) (*Loan, error)
	ExecMarkReturned(ctx context.Context, loanID int64, now time.Time) (*Loan, error)
	ExecRequestExtension(ctx context.Context, loanID int64, borrowerID string, newReturnDate time.Time, reason string, now time.Time) (*Loan, error)
	ExecDecideExtension(ctx context.Context, loanID int64, adminID, note string, approve bool, now time.Time) (*Loan, error)
	ResolveID(ctx context.Context, key string) (int64, error)
	GetRow(ctx context.Context, loanID int64) (*LoanRow, error)
	List(ctx context.Context, f LoanFilter, p Page) ([]LoanRow, int64, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

type Service struct {
	store   LoanStore
	emitter Emitter
	clock   Clock
	id      IDGen
}

func NewService(conn *sql.DB, emitter Emitter) *Service {
	return &Service{
		store:   NewStore(conn),
		emitter: emitter,
		clock:   realClock{},
		id:      ulidGen{},
	}
}

// RequestLoan creates the loan in pending state. Stock is reserved
// immediately (reserve-early), so a later rejection has to give it back.
func (s *Service) RequestLoan(ctx context.Context, borrowerID string, req CreateLoanRequest) (LoanResponse, error) {
	if borrowerID == "" {
		return LoanResponse{}, apperr.ErrUnauthorized("borrower identity is required")
	}
	if req.Quantity < 1 {
		return LoanResponse{}, apperr.ErrInvalid("quantity must be >= 1")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return LoanResponse{}, apperr.ErrInvalid("reason is required")
	}
	pickupDate, err := parseDate(req.PickupDate, "pickup_date")
	if err != nil {
		return LoanResponse{}, err
	}
	returnDate, err := parseDate(req.ReturnDate, "return_date")
	if err != nil {
		return LoanResponse{}, err
	}
	if returnDate.Before(pickupDate) {
		return LoanResponse{}, apperr.ErrInvalid("return_date must not be before pickup_date")
	}
	if _, err := time.Parse("15:04", req.PickupTime); err != nil {
		return LoanResponse{}, apperr.ErrInvalid("invalid pickup_time format, expected HH:MM")
	}

	now := s.clock.Now()
	m := &Loan{
		LoanULID:     s.id.NewULID(now),
		ItemID:       req.ItemID,
		BorrowerID:   borrowerID,
		Quantity:     req.Quantity,
		PickupDate:   pickupDate,
		PickupTime:   req.PickupTime,
		ReturnDate:   returnDate,
		Reason:       strings.TrimSpace(req.Reason),
		Status:       StatusPending,
		ReturnStatus: ReturnNotReturned,
		CreatedAt:    now,
	}

	item, err := s.store.ExecRequestLoan(ctx, m)
	if err != nil {
		return LoanResponse{}, err
	}

	s.emitter.Notify(ctx, borrowerID, m.LoanID, "Loan request submitted",
		fmt.Sprintf("Your request for %d unit of '%s' is waiting for admin approval.", m.Quantity, item.Name),
		notify.KindLoanRequested)

	return buildLoanResponse(&LoanRow{Loan: *m, ItemName: item.Name}), nil
}

func (s *Service) ApproveLoan(ctx context.Context, key, adminID, note string) (LoanResponse, error) {
	id, err := s.store.ResolveID(ctx, key)
	if err != nil {
		return LoanResponse{}, err
	}
	m, err := s.store.ExecApprove(ctx, id, adminID, note, s.clock.Now())
	if err != nil {
		return LoanResponse{}, err
	}

	msg := "Your loan request has been approved."
	if strings.TrimSpace(note) != "" {
		msg += " Note: " + note
	}
	s.emitter.Notify(ctx, m.BorrowerID, m.LoanID, "Loan approved", msg, notify.KindLoanApproved)

	return s.responseFor(ctx, m)
}

func (s *Service) RejectLoan(ctx context.Context, key, adminID, reason string) (LoanResponse, error) {
	if strings.TrimSpace(reason) == "" {
		return LoanResponse{}, apperr.ErrInvalid("rejection reason is required")
	}
	id, err := s.store.ResolveID(ctx, key)
	if err != nil {
		return LoanResponse{}, err
	}
	m, err := s.store.ExecReject(ctx, id, adminID, reason, s.clock.Now())
	if err != nil {
		return LoanResponse{}, err
	}

	s.emitter.Notify(ctx, m.BorrowerID, m.LoanID, "Loan rejected",
		"Your loan request was rejected: "+reason, notify.KindLoanRejected)

	return s.responseFor(ctx, m)
}

// MarkReturned closes an approved loan directly, without the verification
// workflow (e.g. the admin takes the items back over the counter).
func (s *Service) MarkReturned(ctx context.Context, key, adminID string) (LoanResponse, error) {
	id, err := s.store.ResolveID(ctx, key)
	if err != nil {
		return LoanResponse{}, err
	}
	m, err := s.store.ExecMarkReturned(ctx, id, s.clock.Now())
	if err != nil {
		return LoanResponse{}, err
	}

	s.emitter.Notify(ctx, m.BorrowerID, m.LoanID, "Loan closed",
		"Your loan has been marked as returned by an administrator.", notify.KindLoanClosed)

	return s.responseFor(ctx, m)
}

func (s *Service) RequestExtension(ctx context.Context, key, borrowerID string, req RequestExtensionRequest) (LoanResponse, error) {
	newDate, err := parseDate(req.NewReturnDate, "new_return_date")
	if err != nil {
		return LoanResponse{}, err
	}
	id, err := s.store.ResolveID(ctx, key)
	if err != nil {
		return LoanResponse{}, err
	}
	m, err := s.store.ExecRequestExtension(ctx, id, borrowerID, newDate, req.Reason, s.clock.Now())
	if err != nil {
		return LoanResponse{}, err
	}

	if m.ApprovedBy.Valid {
		s.emitter.Notify(ctx, m.ApprovedBy.String, m.LoanID, "Extension requested",
			fmt.Sprintf("Borrower %s asked to extend loan %s until %s.",
				m.BorrowerID, m.LoanULID, newDate.Format("02 Jan 2006")),
			notify.KindExtensionRequest)
	}

	return s.responseFor(ctx, m)
}

func (s *Service) ApproveExtension(ctx context.Context, key, adminID, note string) (LoanResponse, error) {
	return s.decideExtension(ctx, key, adminID, note, true)
}

func (s *Service) RejectExtension(ctx context.Context, key, adminID, note string) (LoanResponse, error) {
	return s.decideExtension(ctx, key, adminID, note, false)
}

func (s *Service) decideExtension(ctx context.Context, key, adminID, note string, approve bool) (LoanResponse, error) {
	id, err := s.store.ResolveID(ctx, key)
	if err != nil {
		return LoanResponse{}, err
	}
	m, err := s.store.ExecDecideExtension(ctx, id, adminID, note, approve, s.clock.Now())
	if err != nil {
		return LoanResponse{}, err
	}

	if approve {
		s.emitter.Notify(ctx, m.BorrowerID, m.LoanID, "Extension approved",
			"Your loan is now due on "+m.ReturnDate.Format("02 Jan 2006")+".",
			notify.KindExtensionApproved)
	} else {
		msg := "Your extension request was rejected."
		if strings.TrimSpace(note) != "" {
			msg += " Note: " + note
		}
		s.emitter.Notify(ctx, m.BorrowerID, m.LoanID, "Extension rejected", msg,
			notify.KindExtensionRejected)
	}

	return s.responseFor(ctx, m)
}

// GetLoan returns a single loan; non-admin actors only see their own.
func (s *Service) GetLoan(ctx context.Context, key, actorID string, isAdmin bool) (LoanResponse, error) {
	id, err := s.store.ResolveID(ctx, key)
	if err != nil {
		return LoanResponse{}, err
	}
	row, err := s.store.GetRow(ctx, id)
	if err != nil {
		return LoanResponse{}, err
	}
	if !isAdmin && row.BorrowerID != actorID {
		return LoanResponse{}, apperr.ErrUnauthorized("not your loan")
	}
	return buildLoanResponse(row), nil
}

func (s *Service) ListLoans(ctx context.Context, f LoanFilter, p Page) (ListResult, error) {
	rows, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return ListResult{}, err
	}
	out := make([]LoanResponse, 0, len(rows))
	for i := range rows {
		out = append(out, buildLoanResponse(&rows[i]))
	}
	return ListResult{Loans: out, Total: total}, nil
}

func (s *Service) ListMyLoans(ctx context.Context, borrowerID string, f LoanFilter, p Page) (ListResult, error) {
	f.BorrowerID = &borrowerID
	return s.ListLoans(ctx, f, p)
}

// BulkDelete hard-deletes loan history rows. Administrative cleanup only.
func (s *Service) BulkDelete(ctx context.Context, req BulkDeleteRequest) (BulkDeleteResponse, error) {
	if len(req.LoanIDs) == 0 {
		return BulkDeleteResponse{}, apperr.ErrInvalid("loan_ids must not be empty")
	}
	n, err := s.store.DeleteByIDs(ctx, req.LoanIDs)
	if err != nil {
		return BulkDeleteResponse{}, err
	}
	return BulkDeleteResponse{Deleted: n}, nil
}

// ---- helpers ----

func (s *Service) responseFor(ctx context.Context, m *Loan) (LoanResponse, error) {
	row, err := s.store.GetRow(ctx, m.LoanID)
	if err != nil {
		// transition already committed; fall back to the bare loan
		return buildLoanResponse(&LoanRow{Loan: *m}), nil
	}
	return buildLoanResponse(row), nil
}

func parseDate(s, field string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, apperr.ErrInvalid("invalid " + field + " format, expected YYYY-MM-DD")
	}
	return t, nil
}

func buildLoanResponse(r *LoanRow) LoanResponse {
	resp := LoanResponse{
		LoanID:       r.LoanID,
		LoanULID:     r.LoanULID,
		ItemID:       r.ItemID,
		ItemName:     r.ItemName,
		BorrowerID:   r.BorrowerID,
		Quantity:     r.Quantity,
		PickupDate:   r.PickupDate,
		PickupTime:   r.PickupTime,
		ReturnDate:   r.ReturnDate,
		Reason:       r.Reason,
		Status:       r.Status,
		ReturnStatus: r.ReturnStatus,
		AdminNote:    nullToPtr(r.AdminNote),
		RejectReason: nullToPtr(r.RejectReason),
		ApprovedBy:   nullToPtr(r.ApprovedBy),
		ApprovedAt:   nullTimeToPtr(r.ApprovedAt),
		ReturnedAt:   nullTimeToPtr(r.ReturnedAt),
		CreatedAt:    r.CreatedAt,
	}
	if r.ExtensionStatus != ExtensionNone {
		resp.Extension = &ExtensionResponse{
			Status:     r.ExtensionStatus,
			NewDate:    nullTimeToPtr(r.ExtensionDate),
			Reason:     nullToPtr(r.ExtensionReason),
			DecidedBy:  nullToPtr(r.ExtensionDecidedBy),
			ApprovedAt: nullTimeToPtr(r.ExtensionApprovedAt),
			Count:      r.ExtensionCount,
		}
	}
	return resp
}

func nullToPtr(ns sql.NullString) *string {
	if ns.Valid {
		v := ns.String
		return &v
	}
	return nil
}

func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		v := nt.Time
		return &v
	}
	return nil
}
