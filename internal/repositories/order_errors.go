package repositories

import "fmt"

// DuplicateOrderError reports an idempotency key that is already claimed.
// OrderID names the order created by the first claim.
type DuplicateOrderError struct {
	Key     string
	OrderID string
}

// Error implements the error interface.
func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("order: idempotency key %q already claimed by order %s", e.Key, e.OrderID)
}

// IsNotFound implements RepositoryError.
func (e *DuplicateOrderError) IsNotFound() bool { return false }

// IsConflict implements RepositoryError.
func (e *DuplicateOrderError) IsConflict() bool { return true }

// IsUnavailable implements RepositoryError.
func (e *DuplicateOrderError) IsUnavailable() bool { return false }
