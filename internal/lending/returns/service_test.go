package returns

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/items"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/loans"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/notify"
)

// fakeStore replays the same guard sequence as the SQL store against one
// in-memory loan, item and return.
type fakeStore struct {
	nextID int64
	loan   *loans.Loan
	item   *items.Item
	ret    *Return
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	item := &items.Item{
		ItemID: 7, Name: "Kamera", Category: items.CategoryElectronics,
		Condition: items.ConditionGood, TotalUnits: 5, AvailableUnits: 5, Active: true,
	}
	loan := &loans.Loan{
		LoanID:       1,
		LoanULID:     "01HTESTLOAN0000000000000AA",
		ItemID:       7,
		BorrowerID:   "siswa-01",
		Quantity:     2,
		ReturnDate:   testNow.AddDate(0, 0, 7),
		Status:       loans.StatusPending,
		ReturnStatus: loans.ReturnNotReturned,
	}
	require.NoError(t, item.Reserve(loan.Quantity))
	require.NoError(t, loan.Approve("admin-01", "", testNow))
	return &fakeStore{nextID: 1, loan: loan, item: item}
}

func (f *fakeStore) ExecSubmitReturn(_ context.Context, m *Return) (*loans.Loan, error) {
	if f.loan == nil || f.loan.LoanID != m.LoanID {
		return nil, apperr.ErrNotFound("loan not found")
	}
	if f.loan.BorrowerID != m.SubmittedBy {
		return nil, apperr.ErrUnauthorized("only the borrower can submit a return")
	}
	if m.Quantity > f.loan.Quantity {
		return nil, apperr.ErrInvalid("cannot return more than was borrowed")
	}
	if f.ret != nil {
		return nil, apperr.ErrDuplicateReturn("a return has already been submitted for this loan")
	}
	if err := f.loan.BeginReturnVerification(); err != nil {
		return nil, err
	}
	m.ReturnID = f.nextID
	f.nextID++
	f.ret = m
	return f.loan, nil
}

func (f *fakeStore) ExecVerify(_ context.Context, returnID int64, adminID, note string, accept bool, now time.Time) (*Return, *loans.Loan, error) {
	if f.ret == nil || f.ret.ReturnID != returnID {
		return nil, nil, apperr.ErrNotFound("return not found")
	}
	if accept {
		if err := f.ret.Accept(adminID, note, now); err != nil {
			return nil, nil, err
		}
		if err := f.loan.FinalizeReturn(now); err != nil {
			return nil, nil, err
		}
		if err := f.item.Release(f.ret.Quantity); err != nil {
			return nil, nil, err
		}
	} else {
		if err := f.ret.Reject(adminID, note, now); err != nil {
			return nil, nil, err
		}
		if err := f.loan.ReopenReturn(); err != nil {
			return nil, nil, err
		}
	}
	return f.ret, f.loan, nil
}

func (f *fakeStore) ResolveID(_ context.Context, key string) (int64, error) {
	if f.ret != nil && (key == f.ret.ReturnULID || key == fmt.Sprint(f.ret.ReturnID)) {
		return f.ret.ReturnID, nil
	}
	return 0, apperr.ErrNotFound("return not found")
}

func (f *fakeStore) ResolveLoanID(_ context.Context, key string) (int64, error) {
	if f.loan != nil && (key == f.loan.LoanULID || key == fmt.Sprint(f.loan.LoanID)) {
		return f.loan.LoanID, nil
	}
	return 0, apperr.ErrNotFound("loan not found")
}

func (f *fakeStore) GetRow(_ context.Context, returnID int64) (*ReturnRow, error) {
	if f.ret == nil || f.ret.ReturnID != returnID {
		return nil, apperr.ErrNotFound("return not found")
	}
	return &ReturnRow{
		Return:     *f.ret,
		LoanULID:   f.loan.LoanULID,
		BorrowerID: f.loan.BorrowerID,
		ItemID:     f.item.ItemID,
		ItemName:   f.item.Name,
	}, nil
}

func (f *fakeStore) List(_ context.Context, filter ReturnFilter, _ Page) ([]ReturnRow, int64, error) {
	if f.ret == nil {
		return nil, 0, nil
	}
	if filter.SubmittedBy != nil && *filter.SubmittedBy != f.ret.SubmittedBy {
		return nil, 0, nil
	}
	row, _ := f.GetRow(context.Background(), f.ret.ReturnID)
	return []ReturnRow{*row}, 1, nil
}

type sentNote struct {
	recipient string
	loanID    int64
	message   string
	kind      string
}

type fakeEmitter struct{ sent []sentNote }

func (f *fakeEmitter) Notify(_ context.Context, recipientID string, loanID int64, _, message, kind string) {
	f.sent = append(f.sent, sentNote{recipient: recipientID, loanID: loanID, message: message, kind: kind})
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDGen struct{ n int }

func (g *seqIDGen) NewULID(time.Time) string {
	g.n++
	return fmt.Sprintf("01HFAKERETURN%013d", g.n)
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeEmitter) {
	st := newFakeStore(t)
	em := &fakeEmitter{}
	svc := &Service{
		store:   st,
		emitter: em,
		clock:   fixedClock{t: testNow},
		id:      &seqIDGen{},
	}
	return svc, st, em
}

func validSubmit() SubmitReturnRequest {
	return SubmitReturnRequest{
		LoanKey:   "01HTESTLOAN0000000000000AA",
		Condition: ConditionGood,
		Quantity:  2,
	}
}

func TestServiceSubmitReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("moves the loan into verification", func(t *testing.T) {
		svc, st, em := newTestService(t)
		res, err := svc.SubmitReturn(ctx, "siswa-01", validSubmit())
		require.NoError(t, err)

		assert.Equal(t, VerifyPending, res.Status)
		assert.Equal(t, int64(0), res.Fine)
		assert.Equal(t, loans.ReturnPendingVerification, st.loan.ReturnStatus)
		assert.Equal(t, 3, st.item.AvailableUnits, "stock is not released until acceptance")

		// borrower confirmation plus a heads-up for the approving admin
		require.Len(t, em.sent, 2)
		assert.Equal(t, "siswa-01", em.sent[0].recipient)
		assert.Equal(t, notify.KindReturnSubmitted, em.sent[0].kind)
		assert.Equal(t, "admin-01", em.sent[1].recipient)
	})

	t.Run("fine is computed from the reported condition", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		req := validSubmit()
		req.Condition = ConditionLost
		res, err := svc.SubmitReturn(ctx, "siswa-01", req)
		require.NoError(t, err)
		assert.Equal(t, int64(100_000), res.Fine)
	})

	t.Run("unknown condition", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		req := validSubmit()
		req.Condition = "wet"
		_, err := svc.SubmitReturn(ctx, "siswa-01", req)
		assert.Equal(t, apperr.CodeInvalidArgument, apiCode(t, err))
	})

	t.Run("zero quantity", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		req := validSubmit()
		req.Quantity = 0
		_, err := svc.SubmitReturn(ctx, "siswa-01", req)
		assert.Equal(t, apperr.CodeInvalidArgument, apiCode(t, err))
	})

	t.Run("more than borrowed", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		req := validSubmit()
		req.Quantity = 3
		_, err := svc.SubmitReturn(ctx, "siswa-01", req)
		assert.Equal(t, apperr.CodeInvalidArgument, apiCode(t, err))
	})

	t.Run("only the borrower can submit", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		_, err := svc.SubmitReturn(ctx, "siswa-02", validSubmit())
		assert.Equal(t, apperr.CodeUnauthorized, apiCode(t, err))
		assert.Equal(t, loans.ReturnNotReturned, st.loan.ReturnStatus)
	})

	t.Run("duplicate submission", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.SubmitReturn(ctx, "siswa-01", validSubmit())
		require.NoError(t, err)
		_, err = svc.SubmitReturn(ctx, "siswa-01", validSubmit())
		assert.Equal(t, apperr.CodeDuplicateReturn, apiCode(t, err))
	})
}

func TestServiceVerifyReturn(t *testing.T) {
	ctx := context.Background()

	submit := func(t *testing.T, svc *Service, cond ReturnCondition) ReturnResponse {
		req := validSubmit()
		req.Condition = cond
		res, err := svc.SubmitReturn(ctx, "siswa-01", req)
		require.NoError(t, err)
		return res
	}

	t.Run("accept closes the loan and releases stock", func(t *testing.T) {
		svc, st, em := newTestService(t)
		res := submit(t, svc, ConditionGood)

		out, err := svc.AcceptReturn(ctx, res.ReturnULID, "admin-01", "lengkap")
		require.NoError(t, err)
		assert.Equal(t, VerifyAccepted, out.Status)
		assert.Equal(t, loans.StatusClosed, st.loan.Status)
		assert.Equal(t, loans.ReturnReturned, st.loan.ReturnStatus)
		assert.Equal(t, 5, st.item.AvailableUnits, "conservation: accepted return restores stock")

		last := em.sent[len(em.sent)-1]
		assert.Equal(t, "siswa-01", last.recipient)
		assert.Equal(t, notify.KindReturnAccepted, last.kind)
		assert.NotContains(t, last.message, "fine")
	})

	t.Run("accept with damage mentions the fine", func(t *testing.T) {
		svc, _, em := newTestService(t)
		res := submit(t, svc, ConditionMajorDamage)

		out, err := svc.AcceptReturn(ctx, res.ReturnULID, "admin-01", "")
		require.NoError(t, err)
		assert.Equal(t, int64(50_000), out.Fine)

		last := em.sent[len(em.sent)-1]
		assert.Contains(t, last.message, "Rp50000")
	})

	t.Run("reject reopens the loan and keeps stock", func(t *testing.T) {
		svc, st, em := newTestService(t)
		res := submit(t, svc, ConditionGood)

		out, err := svc.RejectReturn(ctx, res.ReturnULID, "admin-01", "jumlah tidak sesuai")
		require.NoError(t, err)
		assert.Equal(t, VerifyRejected, out.Status)
		assert.Equal(t, loans.StatusApproved, st.loan.Status)
		assert.Equal(t, loans.ReturnNotReturned, st.loan.ReturnStatus)
		assert.Equal(t, 3, st.item.AvailableUnits, "rejected verification must not release stock")

		last := em.sent[len(em.sent)-1]
		assert.Equal(t, notify.KindReturnRejected, last.kind)
		assert.Contains(t, last.message, "jumlah tidak sesuai")
	})

	t.Run("second verdict reports already processed", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		res := submit(t, svc, ConditionGood)
		_, err := svc.AcceptReturn(ctx, res.ReturnULID, "admin-01", "")
		require.NoError(t, err)

		_, err = svc.RejectReturn(ctx, res.ReturnULID, "admin-02", "salah")
		assert.Equal(t, apperr.CodeAlreadyProcessed, apiCode(t, err))
	})

	t.Run("unknown return", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.AcceptReturn(ctx, "no-such-return", "admin-01", "")
		assert.Equal(t, apperr.CodeNotFound, apiCode(t, err))
	})
}

func TestServiceGetReturnOwnership(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	res, err := svc.SubmitReturn(ctx, "siswa-01", validSubmit())
	require.NoError(t, err)

	_, err = svc.GetReturn(ctx, res.ReturnULID, "siswa-02", false)
	assert.Equal(t, apperr.CodeUnauthorized, apiCode(t, err))

	_, err = svc.GetReturn(ctx, res.ReturnULID, "siswa-01", false)
	assert.NoError(t, err)

	_, err = svc.GetReturn(ctx, res.ReturnULID, "admin-01", true)
	assert.NoError(t, err)
}
