package loans

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
)

type LoanStatus string

const (
	StatusPending  LoanStatus = "pending"
	StatusApproved LoanStatus = "approved"
	StatusRejected LoanStatus = "rejected"
	StatusClosed   LoanStatus = "closed"
)

type ReturnStatus string

const (
	ReturnNotReturned         ReturnStatus = "not_returned"
	ReturnPendingVerification ReturnStatus = "pending_verification"
	ReturnReturned            ReturnStatus = "returned"
)

type ExtensionStatus string

const (
	ExtensionNone     ExtensionStatus = ""
	ExtensionPending  ExtensionStatus = "pending"
	ExtensionApproved ExtensionStatus = "approved"
	ExtensionRejected ExtensionStatus = "rejected"
)

const (
	maxExtensions       = 1
	extensionWindowDays = 3
)

// Loan is one row of the loans table.
type Loan struct {
	LoanID     int64
	LoanULID   string
	ItemID     int64
	BorrowerID string
	Quantity   int
	PickupDate time.Time
	PickupTime string
	// ReturnDate is the effective due date; it moves when an extension is
	// approved.
	ReturnDate   time.Time
	Reason       string
	Status       LoanStatus
	ReturnStatus ReturnStatus
	AdminNote    sql.NullString
	RejectReason sql.NullString
	ApprovedBy   sql.NullString
	ApprovedAt   sql.NullTime
	ReturnedAt   sql.NullTime

	ExtensionStatus     ExtensionStatus
	ExtensionDate       sql.NullTime
	ExtensionReason     sql.NullString
	ExtensionDecidedBy  sql.NullString
	ExtensionApprovedAt sql.NullTime
	ExtensionCount      int

	CreatedAt time.Time
}

// guardPending enforces the single approve-or-reject window. A second caller
// must get a distinguishable error, never a silent success.
func (l *Loan) guardPending() error {
	switch l.Status {
	case StatusPending:
		return nil
	case StatusApproved, StatusRejected, StatusClosed:
		return apperr.ErrAlreadyProcessed("loan has already been processed")
	default:
		return apperr.ErrInvariant(fmt.Sprintf("unknown loan status %q", l.Status))
	}
}

func (l *Loan) Approve(adminID, note string, now time.Time) error {
	if err := l.guardPending(); err != nil {
		return err
	}
	l.Status = StatusApproved
	l.ApprovedBy = sql.NullString{String: adminID, Valid: true}
	l.ApprovedAt = sql.NullTime{Time: now, Valid: true}
	if strings.TrimSpace(note) != "" {
		l.AdminNote = sql.NullString{String: note, Valid: true}
	}
	return nil
}

func (l *Loan) Reject(adminID, reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return apperr.ErrInvalid("rejection reason is required")
	}
	if err := l.guardPending(); err != nil {
		return err
	}
	l.Status = StatusRejected
	l.ApprovedBy = sql.NullString{String: adminID, Valid: true}
	l.ApprovedAt = sql.NullTime{Time: now, Valid: true}
	l.RejectReason = sql.NullString{String: reason, Valid: true}
	return nil
}

// MarkReturned is the administrative direct-close path that bypasses return
// verification. It is blocked while a verification is pending so the two
// paths cannot both release stock.
func (l *Loan) MarkReturned(now time.Time) error {
	if l.Status != StatusApproved {
		return apperr.ErrAlreadyProcessed("loan is not in an approved state")
	}
	if l.ReturnStatus != ReturnNotReturned {
		return apperr.ErrConflict("a return is already in progress for this loan")
	}
	l.Status = StatusClosed
	l.ReturnStatus = ReturnReturned
	l.ReturnedAt = sql.NullTime{Time: now, Valid: true}
	return nil
}

func (l *Loan) RequestExtension(newReturnDate time.Time, reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return apperr.ErrInvalid("extension reason is required")
	}
	if l.Status != StatusApproved {
		return apperr.ErrConflict("only approved loans can be extended")
	}
	if l.ReturnStatus != ReturnNotReturned {
		return apperr.ErrConflict("loan already has a return in progress")
	}
	if l.ExtensionStatus == ExtensionPending {
		return apperr.ErrConflict("an extension request is already pending")
	}
	if l.ExtensionCount >= maxExtensions {
		return apperr.ErrConflict("extension limit reached for this loan")
	}
	if !newReturnDate.After(l.ReturnDate) {
		return apperr.ErrInvalid("new return date must be after the current return date")
	}
	if newReturnDate.After(l.ReturnDate.AddDate(0, 0, extensionWindowDays)) {
		return apperr.ErrInvalid(fmt.Sprintf("new return date must be at most %d days after the current return date", extensionWindowDays))
	}
	l.ExtensionStatus = ExtensionPending
	l.ExtensionDate = sql.NullTime{Time: newReturnDate, Valid: true}
	l.ExtensionReason = sql.NullString{String: reason, Valid: true}
	return nil
}

func (l *Loan) guardExtensionPending() error {
	switch l.ExtensionStatus {
	case ExtensionPending:
		return nil
	case ExtensionNone:
		return apperr.ErrConflict("no extension has been requested")
	case ExtensionApproved, ExtensionRejected:
		return apperr.ErrAlreadyProcessed("extension request has already been processed")
	default:
		return apperr.ErrInvariant(fmt.Sprintf("unknown extension status %q", l.ExtensionStatus))
	}
}

func (l *Loan) ApproveExtension(now time.Time) error {
	if err := l.guardExtensionPending(); err != nil {
		return err
	}
	if !l.ExtensionDate.Valid {
		return apperr.ErrInvariant("pending extension has no requested date")
	}
	l.ExtensionStatus = ExtensionApproved
	l.ExtensionApprovedAt = sql.NullTime{Time: now, Valid: true}
	l.ExtensionCount++
	l.ReturnDate = l.ExtensionDate.Time
	return nil
}

func (l *Loan) RejectExtension() error {
	if err := l.guardExtensionPending(); err != nil {
		return err
	}
	l.ExtensionStatus = ExtensionRejected
	return nil
}

// BeginReturnVerification moves the loan into the two-step return flow when
// the borrower submits a return claim.
func (l *Loan) BeginReturnVerification() error {
	if l.Status != StatusApproved {
		return apperr.ErrConflict("only approved loans can be returned")
	}
	switch l.ReturnStatus {
	case ReturnNotReturned:
		l.ReturnStatus = ReturnPendingVerification
		return nil
	case ReturnPendingVerification:
		return apperr.ErrDuplicateReturn("a return is already awaiting verification")
	case ReturnReturned:
		return apperr.ErrConflict("loan has already been returned")
	default:
		return apperr.ErrInvariant(fmt.Sprintf("unknown return status %q", l.ReturnStatus))
	}
}

// FinalizeReturn closes the loan once an admin accepts the return.
func (l *Loan) FinalizeReturn(now time.Time) error {
	if l.Status != StatusApproved || l.ReturnStatus != ReturnPendingVerification {
		return apperr.ErrConflict("loan is not awaiting return verification")
	}
	l.ReturnStatus = ReturnReturned
	l.Status = StatusClosed
	l.ReturnedAt = sql.NullTime{Time: now, Valid: true}
	return nil
}

// ReopenReturn puts the loan back to not-returned after a rejected
// verification: the items are still physically with the borrower.
func (l *Loan) ReopenReturn() error {
	if l.ReturnStatus != ReturnPendingVerification {
		return apperr.ErrConflict("loan is not awaiting return verification")
	}
	l.ReturnStatus = ReturnNotReturned
	return nil
}

// UnitsReserved reports how many units of the item this loan currently holds
// against available stock.
func (l *Loan) UnitsReserved() int {
	switch l.Status {
	case StatusPending:
		return l.Quantity
	case StatusApproved:
		if l.ReturnStatus != ReturnReturned {
			return l.Quantity
		}
	}
	return 0
}
