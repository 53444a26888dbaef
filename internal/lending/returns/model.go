package returns

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
)

type ReturnCondition string

const (
	ConditionGood        ReturnCondition = "good"
	ConditionMinorDamage ReturnCondition = "minor_damage"
	ConditionMajorDamage ReturnCondition = "major_damage"
	ConditionLost        ReturnCondition = "lost"
)

func (c ReturnCondition) Valid() bool {
	switch c {
	case ConditionGood, ConditionMinorDamage, ConditionMajorDamage, ConditionLost:
		return true
	}
	return false
}

type VerifyStatus string

const (
	VerifyPending  VerifyStatus = "pending_verification"
	VerifyAccepted VerifyStatus = "accepted"
	VerifyRejected VerifyStatus = "rejected"
)

// fineByCondition is the flat penalty table, in rupiah. The fine is fixed at
// submission time and never recomputed at verification.
var fineByCondition = map[ReturnCondition]int64{
	ConditionGood:        0,
	ConditionMinorDamage: 10_000,
	ConditionMajorDamage: 50_000,
	ConditionLost:        100_000,
}

// ComputeFine is a pure function of the reported condition.
func ComputeFine(c ReturnCondition) int64 {
	return fineByCondition[c]
}

// Return is one row of the loan_returns table.
type Return struct {
	ReturnID      int64
	ReturnULID    string
	LoanID        int64
	Condition     ReturnCondition
	Quantity      int
	SubmittedBy   string
	VerifiedBy    sql.NullString
	AdminNote     sql.NullString
	Status        VerifyStatus
	Fine          int64
	ConditionNote sql.NullString
	PhotoURL      sql.NullString
	VerifiedAt    sql.NullTime
	CreatedAt     time.Time
}

// guardPending makes verified returns immutable in either direction.
func (r *Return) guardPending() error {
	switch r.Status {
	case VerifyPending:
		return nil
	case VerifyAccepted, VerifyRejected:
		return apperr.ErrAlreadyProcessed("return has already been verified")
	default:
		return apperr.ErrInvariant(fmt.Sprintf("unknown verification status %q", r.Status))
	}
}

func (r *Return) Accept(adminID, note string, now time.Time) error {
	if err := r.guardPending(); err != nil {
		return err
	}
	r.Status = VerifyAccepted
	r.VerifiedBy = sql.NullString{String: adminID, Valid: true}
	r.VerifiedAt = sql.NullTime{Time: now, Valid: true}
	if strings.TrimSpace(note) != "" {
		r.AdminNote = sql.NullString{String: note, Valid: true}
	}
	return nil
}

func (r *Return) Reject(adminID, note string, now time.Time) error {
	if err := r.guardPending(); err != nil {
		return err
	}
	r.Status = VerifyRejected
	r.VerifiedBy = sql.NullString{String: adminID, Valid: true}
	r.VerifiedAt = sql.NullTime{Time: now, Valid: true}
	if strings.TrimSpace(note) != "" {
		r.AdminNote = sql.NullString{String: note, Valid: true}
	}
	return nil
}
