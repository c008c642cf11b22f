// Package inventory implements the availability check that gates every buy.
//
// The check here is advisory: it lets the settlement engine reject hopeless
// requests before writing anything. The authoritative gate is the store's
// conditional decrement, which re-applies the same rule atomically at the
// write so that two racing buyers cannot both drain the last units.
package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficient is returned when requested quantity exceeds available
	// stock, or stock is already exhausted. Shared by the advisory check and
	// the store-level conditional decrement.
	ErrInsufficient = errors.New("inventory: insufficient available quantity")

	// ErrNonPositiveQuantity is returned for a zero or negative request.
	// Upstream validation should have caught this; the guard refuses anyway
	// because a negative decrement would mint stock.
	ErrNonPositiveQuantity = errors.New("inventory: requested quantity must be positive")
)

// Check decides whether a trade for requested units may proceed against
// available stock. available == requested is allowed and leaves stock at
// exactly zero, a legal terminal state.
func Check(available, requested int64) error {
	if requested <= 0 {
		return fmt.Errorf("%w: got %d", ErrNonPositiveQuantity, requested)
	}
	if available <= 0 || available < requested {
		return fmt.Errorf("%w: have %d, want %d", ErrInsufficient, available, requested)
	}
	return nil
}
