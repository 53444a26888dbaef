package returns

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/loans"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/notify"
)

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

type Emitter interface {
	Notify(ctx context.Context, recipientID string, loanID int64, title, message, kind string)
}

// ReturnStore is what the service needs from persistence; the SQL
// implementation is *Store, tests plug in an in-memory fake.
type ReturnStore interface {
	ExecSubmitReturn(ctx context.Context, m *Return) (*loans.Loan, error)
	ExecVerify(ctx context.Context, returnID int64, adminID, note string, accept bool, now time.Time) (*Return, *loans.Loan, error)
	ResolveID(ctx context.Context, key string) (int64, error)
	ResolveLoanID(ctx context.Context, key string) (int64, error)
	GetRow(ctx context.Context, returnID int64) (*ReturnRow, error)
	List(ctx context.Context, f ReturnFilter, p Page) ([]ReturnRow, int64, error)
}

type Service struct {
	store   ReturnStore
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

// SubmitReturn files the borrower's claim that the items came back. The fine
// is computed from the reported condition here and frozen into the row.
func (s *Service) SubmitReturn(ctx context.Context, borrowerID string, req SubmitReturnRequest) (ReturnResponse, error) {
	if borrowerID == "" {
		return ReturnResponse{}, apperr.ErrUnauthorized("borrower identity is required")
	}
	if !req.Condition.Valid() {
		return ReturnResponse{}, apperr.ErrInvalid("condition must be one of good, minor_damage, major_damage, lost")
	}
	if req.Quantity < 1 {
		return ReturnResponse{}, apperr.ErrInvalid("quantity must be >= 1")
	}
	loanID, err := s.store.ResolveLoanID(ctx, req.LoanKey)
	if err != nil {
		return ReturnResponse{}, err
	}

	now := s.clock.Now()
	m := &Return{
		ReturnULID:  s.id.NewULID(now),
		LoanID:      loanID,
		Condition:   req.Condition,
		Quantity:    req.Quantity,
		SubmittedBy: borrowerID,
		Status:      VerifyPending,
		Fine:        ComputeFine(req.Condition),
		CreatedAt:   now,
	}
	if strings.TrimSpace(req.Note) != "" {
		m.ConditionNote = sql.NullString{String: strings.TrimSpace(req.Note), Valid: true}
	}
	if strings.TrimSpace(req.PhotoURL) != "" {
		m.PhotoURL = sql.NullString{String: strings.TrimSpace(req.PhotoURL), Valid: true}
	}

	loan, err := s.store.ExecSubmitReturn(ctx, m)
	if err != nil {
		return ReturnResponse{}, err
	}

	s.emitter.Notify(ctx, borrowerID, loan.LoanID, "Return submitted",
		"Your return is waiting for admin verification.", notify.KindReturnSubmitted)
	if loan.ApprovedBy.Valid {
		s.emitter.Notify(ctx, loan.ApprovedBy.String, loan.LoanID, "Return awaiting verification",
			fmt.Sprintf("Borrower %s returned %d unit of loan %s in condition %q.",
				loan.BorrowerID, m.Quantity, loan.LoanULID, m.Condition),
			notify.KindReturnSubmitted)
	}

	return s.responseFor(ctx, m)
}

func (s *Service) AcceptReturn(ctx context.Context, key, adminID, note string) (ReturnResponse, error) {
	return s.verify(ctx, key, adminID, note, true)
}

func (s *Service) RejectReturn(ctx context.Context, key, adminID, note string) (ReturnResponse, error) {
	return s.verify(ctx, key, adminID, note, false)
}

func (s *Service) verify(ctx context.Context, key, adminID, note string, accept bool) (ReturnResponse, error) {
	id, err := s.store.ResolveID(ctx, key)
	if err != nil {
		return ReturnResponse{}, err
	}
	m, loan, err := s.store.ExecVerify(ctx, id, adminID, note, accept, s.clock.Now())
	if err != nil {
		return ReturnResponse{}, err
	}

	if accept {
		msg := "Your return has been accepted and the loan is closed."
		if m.Fine > 0 {
			msg += fmt.Sprintf(" A fine of Rp%d applies for the reported condition.", m.Fine)
		}
		s.emitter.Notify(ctx, m.SubmittedBy, loan.LoanID, "Return accepted", msg, notify.KindReturnAccepted)
	} else {
		msg := "Your return was rejected; the loan is still open."
		if strings.TrimSpace(note) != "" {
			msg += " Note: " + note
		}
		s.emitter.Notify(ctx, m.SubmittedBy, loan.LoanID, "Return rejected", msg, notify.KindReturnRejected)
	}

	return s.responseFor(ctx, m)
}

// GetReturn returns a single return; non-admin actors only see their own.
func (s *Service) GetReturn(ctx context.Context, key, actorID string, isAdmin bool) (ReturnResponse, error) {
	id, err := s.store.ResolveID(ctx, key)
	if err != nil {
		return ReturnResponse{}, err
	}
	row, err := s.store.GetRow(ctx, id)
	if err != nil {
		return ReturnResponse{}, err
	}
	if !isAdmin && row.SubmittedBy != actorID {
		return ReturnResponse{}, apperr.ErrUnauthorized("not your return")
	}
	return buildReturnResponse(row), nil
}

func (s *Service) ListReturns(ctx context.Context, f ReturnFilter, p Page) (ListResult, error) {
	rows, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return ListResult{}, err
	}
	out := make([]ReturnResponse, 0, len(rows))
	for i := range rows {
		out = append(out, buildReturnResponse(&rows[i]))
	}
	return ListResult{Returns: out, Total: total}, nil
}

func (s *Service) ListMyReturns(ctx context.Context, borrowerID string, f ReturnFilter, p Page) (ListResult, error) {
	f.SubmittedBy = &borrowerID
	return s.ListReturns(ctx, f, p)
}

// ---- helpers ----

func (s *Service) responseFor(ctx context.Context, m *Return) (ReturnResponse, error) {
	row, err := s.store.GetRow(ctx, m.ReturnID)
	if err != nil {
		// transition already committed; fall back to the bare return
		return buildReturnResponse(&ReturnRow{Return: *m}), nil
	}
	return buildReturnResponse(row), nil
}

func buildReturnResponse(r *ReturnRow) ReturnResponse {
	return ReturnResponse{
		ReturnID:      r.ReturnID,
		ReturnULID:    r.ReturnULID,
		LoanID:        r.LoanID,
		LoanULID:      r.LoanULID,
		ItemID:        r.ItemID,
		ItemName:      r.ItemName,
		BorrowerID:    r.BorrowerID,
		Condition:     r.Condition,
		Quantity:      r.Quantity,
		SubmittedBy:   r.SubmittedBy,
		VerifiedBy:    nullToPtr(r.VerifiedBy),
		AdminNote:     nullToPtr(r.AdminNote),
		Status:        r.Status,
		Fine:          r.Fine,
		ConditionNote: nullToPtr(r.ConditionNote),
		PhotoURL:      nullToPtr(r.PhotoURL),
		VerifiedAt:    nullTimeToPtr(r.VerifiedAt),
		CreatedAt:     r.CreatedAt,
	}
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
