package loans

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func apiCode(t *testing.T, err error) apperr.Code {
	t.Helper()
	var api *apperr.APIError
	require.True(t, errors.As(err, &api), "expected *apperr.APIError, got %v", err)
	return api.Code
}

func pendingLoan() *Loan {
	return &Loan{
		LoanID:       1,
		LoanULID:     "01HTESTLOAN0000000000000AA",
		ItemID:       7,
		BorrowerID:   "siswa-01",
		Quantity:     2,
		PickupDate:   testNow,
		PickupTime:   "10:00",
		ReturnDate:   testNow.AddDate(0, 0, 7),
		Reason:       "praktikum fisika",
		Status:       StatusPending,
		ReturnStatus: ReturnNotReturned,
		CreatedAt:    testNow,
	}
}

func approvedLoan() *Loan {
	l := pendingLoan()
	if err := l.Approve("admin-01", "", testNow); err != nil {
		panic(err)
	}
	return l
}

func TestLoanApprove(t *testing.T) {
	t.Run("pending to approved", func(t *testing.T) {
		l := pendingLoan()
		require.NoError(t, l.Approve("admin-01", "ambil di lab", testNow))
		assert.Equal(t, StatusApproved, l.Status)
		assert.Equal(t, "admin-01", l.ApprovedBy.String)
		assert.Equal(t, "ambil di lab", l.AdminNote.String)
		assert.True(t, l.ApprovedAt.Valid)
	})

	t.Run("second decision is rejected", func(t *testing.T) {
		l := approvedLoan()
		err := l.Approve("admin-02", "", testNow)
		assert.Equal(t, apperr.CodeAlreadyProcessed, apiCode(t, err))
		assert.Equal(t, "admin-01", l.ApprovedBy.String, "decision must not be overwritten")
	})

	t.Run("approve then reject is rejected", func(t *testing.T) {
		l := approvedLoan()
		err := l.Reject("admin-02", "terlambat", testNow)
		assert.Equal(t, apperr.CodeAlreadyProcessed, apiCode(t, err))
		assert.Equal(t, StatusApproved, l.Status)
	})
}

func TestLoanReject(t *testing.T) {
	t.Run("requires a reason", func(t *testing.T) {
		l := pendingLoan()
		err := l.Reject("admin-01", "  ", testNow)
		assert.Equal(t, apperr.CodeInvalidArgument, apiCode(t, err))
		assert.Equal(t, StatusPending, l.Status)
	})

	t.Run("pending to rejected", func(t *testing.T) {
		l := pendingLoan()
		require.NoError(t, l.Reject("admin-01", "stok dibutuhkan kelas lain", testNow))
		assert.Equal(t, StatusRejected, l.Status)
		assert.Equal(t, "stok dibutuhkan kelas lain", l.RejectReason.String)
	})

	t.Run("reject after reject", func(t *testing.T) {
		l := pendingLoan()
		require.NoError(t, l.Reject("admin-01", "alasan", testNow))
		err := l.Reject("admin-02", "alasan lain", testNow)
		assert.Equal(t, apperr.CodeAlreadyProcessed, apiCode(t, err))
	})
}

func TestLoanMarkReturned(t *testing.T) {
	t.Run("approved to closed", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.MarkReturned(testNow))
		assert.Equal(t, StatusClosed, l.Status)
		assert.Equal(t, ReturnReturned, l.ReturnStatus)
		assert.True(t, l.ReturnedAt.Valid)
	})

	t.Run("pending cannot be marked returned", func(t *testing.T) {
		l := pendingLoan()
		err := l.MarkReturned(testNow)
		assert.Equal(t, apperr.CodeAlreadyProcessed, apiCode(t, err))
	})

	t.Run("blocked while a return awaits verification", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.BeginReturnVerification())
		err := l.MarkReturned(testNow)
		assert.Equal(t, apperr.CodeConflict, apiCode(t, err))
		assert.Equal(t, StatusApproved, l.Status)
	})

	t.Run("closed loan cannot be closed again", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.MarkReturned(testNow))
		err := l.MarkReturned(testNow)
		assert.Equal(t, apperr.CodeAlreadyProcessed, apiCode(t, err))
	})
}

func TestLoanRequestExtension(t *testing.T) {
	newDate := func(l *Loan, days int) time.Time { return l.ReturnDate.AddDate(0, 0, days) }

	t.Run("approved loan within the window", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.RequestExtension(newDate(l, 2), "laporan belum selesai", testNow))
		assert.Equal(t, ExtensionPending, l.ExtensionStatus)
		assert.True(t, l.ExtensionDate.Valid)
	})

	t.Run("pending loan cannot be extended", func(t *testing.T) {
		l := pendingLoan()
		err := l.RequestExtension(newDate(l, 2), "alasan", testNow)
		assert.Equal(t, apperr.CodeConflict, apiCode(t, err))
	})

	t.Run("date must move forward", func(t *testing.T) {
		l := approvedLoan()
		err := l.RequestExtension(l.ReturnDate, "alasan", testNow)
		assert.Equal(t, apperr.CodeInvalidArgument, apiCode(t, err))
	})

	t.Run("window caps at three days", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.RequestExtension(newDate(l, 3), "alasan", testNow))

		l2 := approvedLoan()
		err := l2.RequestExtension(newDate(l2, 4), "alasan", testNow)
		assert.Equal(t, apperr.CodeInvalidArgument, apiCode(t, err))
	})

	t.Run("only one pending request at a time", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.RequestExtension(newDate(l, 1), "alasan", testNow))
		err := l.RequestExtension(newDate(l, 2), "alasan", testNow)
		assert.Equal(t, apperr.CodeConflict, apiCode(t, err))
	})

	t.Run("second extension after an approved one is capped", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.RequestExtension(newDate(l, 2), "alasan", testNow))
		require.NoError(t, l.ApproveExtension(testNow))
		err := l.RequestExtension(newDate(l, 2), "alasan lagi", testNow)
		assert.Equal(t, apperr.CodeConflict, apiCode(t, err))
	})

	t.Run("a rejected extension does not consume the cap", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.RequestExtension(newDate(l, 2), "alasan", testNow))
		require.NoError(t, l.RejectExtension())
		assert.Equal(t, 0, l.ExtensionCount)
	})

	t.Run("blocked during return verification", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.BeginReturnVerification())
		err := l.RequestExtension(newDate(l, 2), "alasan", testNow)
		assert.Equal(t, apperr.CodeConflict, apiCode(t, err))
	})
}

func TestLoanExtensionDecision(t *testing.T) {
	t.Run("approve moves the due date", func(t *testing.T) {
		l := approvedLoan()
		want := l.ReturnDate.AddDate(0, 0, 3)
		require.NoError(t, l.RequestExtension(want, "alasan", testNow))
		require.NoError(t, l.ApproveExtension(testNow))
		assert.Equal(t, ExtensionApproved, l.ExtensionStatus)
		assert.Equal(t, want, l.ReturnDate)
		assert.Equal(t, 1, l.ExtensionCount)
	})

	t.Run("reject keeps the due date", func(t *testing.T) {
		l := approvedLoan()
		orig := l.ReturnDate
		require.NoError(t, l.RequestExtension(orig.AddDate(0, 0, 2), "alasan", testNow))
		require.NoError(t, l.RejectExtension())
		assert.Equal(t, ExtensionRejected, l.ExtensionStatus)
		assert.Equal(t, orig, l.ReturnDate)
	})

	t.Run("decision without a request", func(t *testing.T) {
		l := approvedLoan()
		err := l.ApproveExtension(testNow)
		assert.Equal(t, apperr.CodeConflict, apiCode(t, err))
	})

	t.Run("double decision", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.RequestExtension(l.ReturnDate.AddDate(0, 0, 1), "alasan", testNow))
		require.NoError(t, l.ApproveExtension(testNow))
		err := l.RejectExtension()
		assert.Equal(t, apperr.CodeAlreadyProcessed, apiCode(t, err))
	})
}

func TestLoanReturnVerificationFlow(t *testing.T) {
	t.Run("begin then finalize closes the loan", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.BeginReturnVerification())
		assert.Equal(t, ReturnPendingVerification, l.ReturnStatus)
		require.NoError(t, l.FinalizeReturn(testNow))
		assert.Equal(t, StatusClosed, l.Status)
		assert.Equal(t, ReturnReturned, l.ReturnStatus)
	})

	t.Run("duplicate submission while pending", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.BeginReturnVerification())
		err := l.BeginReturnVerification()
		assert.Equal(t, apperr.CodeDuplicateReturn, apiCode(t, err))
	})

	t.Run("submission on a pending loan", func(t *testing.T) {
		l := pendingLoan()
		err := l.BeginReturnVerification()
		assert.Equal(t, apperr.CodeConflict, apiCode(t, err))
	})

	t.Run("submission on a returned loan", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.MarkReturned(testNow))
		err := l.BeginReturnVerification()
		assert.Equal(t, apperr.CodeConflict, apiCode(t, err))
	})

	t.Run("reopen after rejection goes back to not returned", func(t *testing.T) {
		l := approvedLoan()
		require.NoError(t, l.BeginReturnVerification())
		require.NoError(t, l.ReopenReturn())
		assert.Equal(t, ReturnNotReturned, l.ReturnStatus)
		assert.Equal(t, StatusApproved, l.Status)
		// loan can go through the flow again after a rejection is resolved
		// via the direct admin close
		require.NoError(t, l.MarkReturned(testNow))
	})

	t.Run("finalize without a pending verification", func(t *testing.T) {
		l := approvedLoan()
		err := l.FinalizeReturn(testNow)
		assert.Equal(t, apperr.CodeConflict, apiCode(t, err))
	})
}

func TestLoanUnitsReserved(t *testing.T) {
	l := pendingLoan()
	assert.Equal(t, 2, l.UnitsReserved())

	require.NoError(t, l.Approve("admin-01", "", testNow))
	assert.Equal(t, 2, l.UnitsReserved())

	require.NoError(t, l.MarkReturned(testNow))
	assert.Equal(t, 0, l.UnitsReserved())

	r := pendingLoan()
	require.NoError(t, r.Reject("admin-01", "alasan", testNow))
	assert.Equal(t, 0, r.UnitsReserved())
}
