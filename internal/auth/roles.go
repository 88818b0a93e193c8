// Package auth decides who may call privileged engine operations. Multisig
// quorum resolution happens upstream; by the time a call reaches an engine
// it carries a single resolved caller address.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotAuthorized is returned when a caller lacks the role an operation needs.
var ErrNotAuthorized = errors.New("not authorized")

// Gate answers ownership questions.
type Gate interface {
	IsOwner(caller common.Address) bool
}

// ClaimerGate also tracks the delegated claimer role.
type ClaimerGate interface {
	Gate
	IsClaimer(caller common.Address) bool
	Claimer() common.Address
	SetClaimer(caller, claimer common.Address) error
}

// Roles holds an owner and an optional claimer. Safe for concurrent use.
type Roles struct {
	mu      sync.RWMutex
	owner   common.Address
	claimer common.Address
}

// NewRoles creates a role set owned by owner.
func NewRoles(owner common.Address) *Roles {
	return &Roles{owner: owner}
}

// Owner returns the current owner.
func (r *Roles) Owner() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// IsOwner reports whether caller is the owner.
func (r *Roles) IsOwner(caller common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isOwner(caller)
}

func (r *Roles) isOwner(caller common.Address) bool {
	return caller != (common.Address{}) && caller == r.owner
}

// IsClaimer reports whether caller is the delegated claimer.
func (r *Roles) IsClaimer(caller common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return caller != (common.Address{}) && caller == r.claimer
}

// Claimer returns the delegated claimer, or the zero address.
func (r *Roles) Claimer() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.claimer
}

// SetClaimer replaces the claimer. Owner only.
func (r *Roles) SetClaimer(caller, claimer common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isOwner(caller) {
		return fmt.Errorf("%w: %s is not the owner", ErrNotAuthorized, caller.Hex())
	}
	r.claimer = claimer
	return nil
}

// TransferOwnership hands the owner role to newOwner. Owner only.
func (r *Roles) TransferOwnership(caller, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return errors.New("new owner is the zero address")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isOwner(caller) {
		return fmt.Errorf("%w: %s is not the owner", ErrNotAuthorized, caller.Hex())
	}
	r.owner = newOwner
	return nil
}

// RequireOwner returns ErrNotAuthorized unless caller owns g.
func RequireOwner(g Gate, caller common.Address) error {
	if !g.IsOwner(caller) {
		return fmt.Errorf("%w: %s is not the owner", ErrNotAuthorized, caller.Hex())
	}
	return nil
}
