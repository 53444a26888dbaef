package items

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
)

type Category string

const (
	CategoryElectronics Category = "electronics"
	CategorySports      Category = "sports"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryElectronics, CategorySports:
		return true
	}
	return false
}

type Condition string

const (
	ConditionGood        Condition = "good"
	ConditionMinorDamage Condition = "minor_damage"
	ConditionMajorDamage Condition = "major_damage"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionGood, ConditionMinorDamage, ConditionMajorDamage:
		return true
	}
	return false
}

// Availability is derived from available_units, never stored.
type Availability string

const (
	AvailabilityUnavailable Availability = "unavailable"
	AvailabilityLimited     Availability = "limited"
	AvailabilityAvailable   Availability = "available"
)

const limitedThreshold = 3

func AvailabilityOf(availableUnits int) Availability {
	switch {
	case availableUnits <= 0:
		return AvailabilityUnavailable
	case availableUnits <= limitedThreshold:
		return AvailabilityLimited
	default:
		return AvailabilityAvailable
	}
}

// Item is one row of the items table.
type Item struct {
	ItemID         int64
	Name           string
	Category       Category
	Description    sql.NullString
	PhotoURL       sql.NullString
	Condition      Condition
	Location       sql.NullString
	TotalUnits     int
	AvailableUnits int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (i *Item) Availability() Availability {
	return AvailabilityOf(i.AvailableUnits)
}

// Borrowable reports whether the item may enter a new loan at all,
// independent of stock level.
func (i *Item) Borrowable() error {
	if !i.Active {
		return apperr.ErrItemUnavailable("item is no longer available for borrowing")
	}
	if i.Condition == ConditionMajorDamage {
		return apperr.ErrItemUnavailable("item condition does not allow borrowing")
	}
	return nil
}

// Reserve deducts qty from available stock. Callers must hold the row lock.
func (i *Item) Reserve(qty int) error {
	if qty < 1 {
		return apperr.ErrInvalid("quantity must be >= 1")
	}
	if err := i.Borrowable(); err != nil {
		return err
	}
	if qty > i.AvailableUnits {
		return apperr.ErrInsufficientStock(
			fmt.Sprintf("requested %d units, only %d available", qty, i.AvailableUnits))
	}
	i.AvailableUnits -= qty
	return nil
}

// Release gives qty units back. Exceeding total_units means reserved units
// were released twice somewhere upstream; that is rejected, not clamped.
func (i *Item) Release(qty int) error {
	if qty < 1 {
		return apperr.ErrInvalid("quantity must be >= 1")
	}
	if i.AvailableUnits+qty > i.TotalUnits {
		return apperr.ErrInvariant(
			fmt.Sprintf("release of %d units would exceed total stock (%d/%d)",
				qty, i.AvailableUnits, i.TotalUnits))
	}
	i.AvailableUnits += qty
	return nil
}

// Resize corrects total stock by an admin. Available stock moves by the
// signed delta so units currently out on loan stay accounted for.
func (i *Item) Resize(newTotal int) error {
	if newTotal < 0 {
		return apperr.ErrInvalid("total units must be >= 0")
	}
	delta := newTotal - i.TotalUnits
	if i.AvailableUnits+delta < 0 {
		return apperr.ErrConflict("cannot shrink stock below the number of units currently on loan")
	}
	i.TotalUnits = newTotal
	i.AvailableUnits += delta
	return nil
}
