package items

import "time"

// ===== Requests =====

type CreateItemRequest struct {
	Name        string    `json:"name" binding:"required"`
	Category    Category  `json:"category" binding:"required"`
	Description *string   `json:"description,omitempty"`
	PhotoURL    *string   `json:"photo_url,omitempty"`
	Condition   Condition `json:"condition"` // defaults to good
	Location    *string   `json:"location,omitempty"`
	TotalUnits  int       `json:"total_units"`
}

type UpdateItemRequest struct {
	Name        *string    `json:"name,omitempty"`
	Category    *Category  `json:"category,omitempty"`
	Description *string    `json:"description,omitempty"`
	PhotoURL    *string    `json:"photo_url,omitempty"`
	Condition   *Condition `json:"condition,omitempty"`
	Location    *string    `json:"location,omitempty"`
}

type ResizeStockRequest struct {
	TotalUnits int `json:"total_units"`
}

// ===== Responses =====

type ItemResponse struct {
	ItemID         int64        `json:"item_id"`
	Name           string       `json:"name"`
	Category       Category     `json:"category"`
	Description    *string      `json:"description,omitempty"`
	PhotoURL       *string      `json:"photo_url,omitempty"`
	Condition      Condition    `json:"condition"`
	Location       *string      `json:"location,omitempty"`
	TotalUnits     int          `json:"total_units"`
	AvailableUnits int          `json:"available_units"`
	Availability   Availability `json:"availability"`
	Active         bool         `json:"active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type ListResult struct {
	Items []ItemResponse `json:"items"`
	Total int64          `json:"total"`
}

// ===== Listing helpers =====

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

type ItemFilter struct {
	Category   *Category
	Active     *bool
	Borrowable bool // active and condition allows lending
	Name       *string
}
