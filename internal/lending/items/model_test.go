package items

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
)

func apiCode(t *testing.T, err error) apperr.Code {
	t.Helper()
	var api *apperr.APIError
	require.True(t, errors.As(err, &api), "expected *apperr.APIError, got %v", err)
	return api.Code
}

func TestAvailabilityOf(t *testing.T) {
	tests := []struct {
		units int
		want  Availability
	}{
		{0, AvailabilityUnavailable},
		{-1, AvailabilityUnavailable},
		{1, AvailabilityLimited},
		{3, AvailabilityLimited},
		{4, AvailabilityAvailable},
		{100, AvailabilityAvailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AvailabilityOf(tt.units), "units=%d", tt.units)
	}
}

func TestItemReserve(t *testing.T) {
	newItem := func() *Item {
		return &Item{Name: "Proyektor", Condition: ConditionGood, TotalUnits: 5, AvailableUnits: 5, Active: true}
	}

	t.Run("deducts stock", func(t *testing.T) {
		it := newItem()
		require.NoError(t, it.Reserve(2))
		assert.Equal(t, 3, it.AvailableUnits)
		assert.Equal(t, 5, it.TotalUnits)
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		it := newItem()
		err := it.Reserve(0)
		assert.Equal(t, apperr.CodeInvalidArgument, apiCode(t, err))
	})

	t.Run("rejects over-reservation", func(t *testing.T) {
		it := newItem()
		err := it.Reserve(6)
		assert.Equal(t, apperr.CodeInsufficientStock, apiCode(t, err))
		assert.Equal(t, 5, it.AvailableUnits)
	})

	t.Run("exact remaining stock is allowed", func(t *testing.T) {
		it := newItem()
		require.NoError(t, it.Reserve(5))
		assert.Equal(t, 0, it.AvailableUnits)
		assert.Equal(t, AvailabilityUnavailable, it.Availability())
	})

	t.Run("inactive item is not borrowable", func(t *testing.T) {
		it := newItem()
		it.Active = false
		err := it.Reserve(1)
		assert.Equal(t, apperr.CodeItemUnavailable, apiCode(t, err))
	})

	t.Run("major damage blocks new loans", func(t *testing.T) {
		it := newItem()
		it.Condition = ConditionMajorDamage
		err := it.Reserve(1)
		assert.Equal(t, apperr.CodeItemUnavailable, apiCode(t, err))
	})

	t.Run("minor damage stays borrowable", func(t *testing.T) {
		it := newItem()
		it.Condition = ConditionMinorDamage
		assert.NoError(t, it.Reserve(1))
	})
}

func TestItemRelease(t *testing.T) {
	t.Run("gives stock back", func(t *testing.T) {
		it := &Item{TotalUnits: 5, AvailableUnits: 2, Active: true, Condition: ConditionGood}
		require.NoError(t, it.Release(3))
		assert.Equal(t, 5, it.AvailableUnits)
	})

	t.Run("never exceeds total units", func(t *testing.T) {
		it := &Item{TotalUnits: 5, AvailableUnits: 4, Active: true, Condition: ConditionGood}
		err := it.Release(2)
		assert.Equal(t, apperr.CodeInvariantViolation, apiCode(t, err))
		assert.Equal(t, 4, it.AvailableUnits, "rejected release must not change stock")
	})

	t.Run("release to an inactive item still works", func(t *testing.T) {
		// deactivation must not strand units that are already out on loan
		it := &Item{TotalUnits: 5, AvailableUnits: 2, Active: false, Condition: ConditionGood}
		assert.NoError(t, it.Release(1))
	})
}

func TestItemResize(t *testing.T) {
	t.Run("grow moves available by the delta", func(t *testing.T) {
		it := &Item{TotalUnits: 5, AvailableUnits: 2}
		require.NoError(t, it.Resize(8))
		assert.Equal(t, 8, it.TotalUnits)
		assert.Equal(t, 5, it.AvailableUnits)
	})

	t.Run("shrink keeps loaned units accounted for", func(t *testing.T) {
		it := &Item{TotalUnits: 5, AvailableUnits: 2} // 3 units out on loan
		require.NoError(t, it.Resize(3))
		assert.Equal(t, 3, it.TotalUnits)
		assert.Equal(t, 0, it.AvailableUnits)
	})

	t.Run("cannot shrink below loaned units", func(t *testing.T) {
		it := &Item{TotalUnits: 5, AvailableUnits: 2}
		err := it.Resize(2)
		assert.Equal(t, apperr.CodeConflict, apiCode(t, err))
		assert.Equal(t, 5, it.TotalUnits)
		assert.Equal(t, 2, it.AvailableUnits)
	})

	t.Run("negative total is invalid", func(t *testing.T) {
		it := &Item{TotalUnits: 5, AvailableUnits: 5}
		err := it.Resize(-1)
		assert.Equal(t, apperr.CodeInvalidArgument, apiCode(t, err))
	})
}
