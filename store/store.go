// Package store persists claim records.
package store

import (
	"context"
	"errors"

	"github.com/liamcoop/claims/claims"
)

var (
	// ErrNotFound is returned when no claim has the requested id
	ErrNotFound = errors.New("claim not found")
	// ErrExists is returned by Create for a duplicate id
	ErrExists = errors.New("claim already exists")
	// ErrConflict is returned when a claim keeps changing underneath an update
	ErrConflict = errors.New("claim was modified concurrently")
)

// MaxUpdateAttempts bounds the compare-and-set retries of an Update
const MaxUpdateAttempts = 5

// ClaimStore is the storage contract for claim records.
// Implementations return copies; callers never share state with the store.
type ClaimStore interface {
	Create(ctx context.Context, c *claims.Claim) error
	Get(ctx context.Context, id string) (*claims.Claim, error)
	// Update applies fn to the current record and saves the result atomically.
	// An error from fn aborts the update and is returned unchanged.
	Update(ctx context.Context, id string, fn func(*claims.Claim) error) (*claims.Claim, error)
	List(ctx context.Context, filter Filter) ([]*claims.Claim, error)
}

// Filter narrows List results. The zero value lists everything.
type Filter struct {
	Status claims.Status
	Limit  int
	Offset int
}
