package notify

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Reminder scans outstanding loans once a day and nags overdue borrowers.
// It runs outside the lending core; a failed sweep only logs.
type Reminder struct {
	svc      *Service
	interval time.Duration
}

func NewReminder(svc *Service) *Reminder {
	return &Reminder{svc: svc, interval: 24 * time.Hour}
}

func (r *Reminder) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		r.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Check(ctx)
			}
		}
	}()
}

func (r *Reminder) Check(ctx context.Context) {
	log.Println("[INFO] reminder: checking for overdue loans...")
	now := time.Now()
	loans, err := r.svc.store.ListOverdueLoans(ctx, now)
	if err != nil {
		log.Printf("[ERROR] reminder: %v", err)
		return
	}

	for _, l := range loans {
		daysLate := int(now.Sub(l.ReturnDate).Hours() / 24)
		if daysLate < 1 {
			daysLate = 1
		}
		msg := fmt.Sprintf("'%s' (%d unit) is %d day(s) overdue, due %s. Please return it.",
			l.ItemName, l.Quantity, daysLate, l.ReturnDate.Format("02 Jan 2006"))
		r.svc.Notify(ctx, l.BorrowerID, l.LoanID, "Loan overdue", msg, KindLoanOverdue)
	}
}
