package returns

import "time"

// ===== Requests =====

type SubmitReturnRequest struct {
	// loan_key accepts a numeric loan_id or a loan_ulid
	LoanKey   string          `json:"loan_key" binding:"required"`
	Condition ReturnCondition `json:"condition" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required"`
	Note      string          `json:"note,omitempty"`
	PhotoURL  string          `json:"photo_url,omitempty"`
}

type VerifyReturnRequest struct {
	Decision string `json:"decision" binding:"required"` // "accept" or "reject"
	Note     string `json:"note,omitempty"`
}

// ===== Responses =====

type ReturnResponse struct {
	ReturnID      int64           `json:"return_id"`
	ReturnULID    string          `json:"return_ulid"`
	LoanID        int64           `json:"loan_id"`
	LoanULID      string          `json:"loan_ulid,omitempty"`
	ItemID        int64           `json:"item_id,omitempty"`
	ItemName      string          `json:"item_name,omitempty"`
	BorrowerID    string          `json:"borrower_id,omitempty"`
	Condition     ReturnCondition `json:"condition"`
	Quantity      int             `json:"quantity"`
	SubmittedBy   string          `json:"submitted_by"`
	VerifiedBy    *string         `json:"verified_by,omitempty"`
	AdminNote     *string         `json:"admin_note,omitempty"`
	Status        VerifyStatus    `json:"status"`
	Fine          int64           `json:"fine"`
	ConditionNote *string         `json:"condition_note,omitempty"`
	PhotoURL      *string         `json:"photo_url,omitempty"`
	VerifiedAt    *time.Time      `json:"verified_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ListResult struct {
	Returns []ReturnResponse `json:"returns"`
	Total   int64            `json:"total"`
}

// ===== Listing helpers =====

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

type ReturnFilter struct {
	LoanID      *int64
	Status      *VerifyStatus
	SubmittedBy *string
}
