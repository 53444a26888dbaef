package loans

import "time"

// ===== Requests =====

type CreateLoanRequest struct {
	ItemID   int64 `json:"item_id" binding:"required"`
	Quantity int   `json:"quantity" binding:"required"`
	// "2006-01-02" dates, "15:04" pickup time
	PickupDate string `json:"pickup_date" binding:"required"`
	PickupTime string `json:"pickup_time" binding:"required"`
	ReturnDate string `json:"return_date" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}

type ApproveLoanRequest struct {
	Note string `json:"note,omitempty"`
}

type RejectLoanRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type RequestExtensionRequest struct {
	NewReturnDate string `json:"new_return_date" binding:"required"`
	Reason        string `json:"reason" binding:"required"`
}

type DecideExtensionRequest struct {
	Note string `json:"note,omitempty"`
}

type BulkDeleteRequest struct {
	LoanIDs []int64 `json:"loan_ids" binding:"required"`
}

// ===== Responses =====

type ExtensionResponse struct {
	Status     ExtensionStatus `json:"status"`
	NewDate    *time.Time      `json:"new_return_date,omitempty"`
	Reason     *string         `json:"reason,omitempty"`
	DecidedBy  *string         `json:"decided_by,omitempty"`
	ApprovedAt *time.Time      `json:"approved_at,omitempty"`
	Count      int             `json:"count"`
}

type LoanResponse struct {
	LoanID       int64              `json:"loan_id"`
	LoanULID     string             `json:"loan_ulid"`
	ItemID       int64              `json:"item_id"`
	ItemName     string             `json:"item_name,omitempty"`
	BorrowerID   string             `json:"borrower_id"`
	Quantity     int                `json:"quantity"`
	PickupDate   time.Time          `json:"pickup_date"`
	PickupTime   string             `json:"pickup_time"`
	ReturnDate   time.Time          `json:"return_date"`
	Reason       string             `json:"reason"`
	Status       LoanStatus         `json:"status"`
	ReturnStatus ReturnStatus       `json:"return_status"`
	AdminNote    *string            `json:"admin_note,omitempty"`
	RejectReason *string            `json:"reject_reason,omitempty"`
	ApprovedBy   *string            `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time         `json:"approved_at,omitempty"`
	ReturnedAt   *time.Time         `json:"returned_at,omitempty"`
	Extension    *ExtensionResponse `json:"extension,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

type ListResult struct {
	Loans []LoanResponse `json:"loans"`
	Total int64          `json:"total"`
}

type BulkDeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// ===== Listing helpers =====

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

type LoanFilter struct {
	BorrowerID      *string
	Status          *LoanStatus
	ReturnStatus    *ReturnStatus
	OnlyOutstanding bool
	From            *time.Time
	To              *time.Time
}
