// Package nft is an in-process ERC-721 style ownership registry spanning
// many collections.
package nft

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Errors.
var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExists   = errors.New("token already minted")
	ErrNotOwner      = errors.New("not token owner")
	ErrZeroAddress   = errors.New("zero address")
)

type token struct {
	owner    common.Address
	approved common.Address
}

// Registry tracks owners, per-token approvals and operator approvals.
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	tokens    map[string]*token // key: "collection-tokenId"
	operators map[common.Address]map[common.Address]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tokens:    make(map[string]*token),
		operators: make(map[common.Address]map[common.Address]bool),
	}
}

// Key returns the identifier used for a token across the module:
// lowercase collection hex, a dash, and the decimal token id.
func Key(collection common.Address, tokenID *big.Int) string {
	return strings.ToLower(collection.Hex()) + "-" + tokenID.String()
}

// Mint creates tokenID in collection owned by owner.
func (r *Registry) Mint(collection common.Address, tokenID *big.Int, owner common.Address) error {
	if owner == (common.Address{}) {
		return ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := Key(collection, tokenID)
	if _, ok := r.tokens[k]; ok {
		return fmt.Errorf("%w: %s", ErrTokenExists, k)
	}
	r.tokens[k] = &token{owner: owner}
	return nil
}

// OwnerOf returns the current owner of a token.
func (r *Registry) OwnerOf(collection common.Address, tokenID *big.Int) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, err := r.get(collection, tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return t.owner, nil
}

// BalanceOf counts the tokens owner holds in collection.
func (r *Registry) BalanceOf(collection, owner common.Address) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefix := strings.ToLower(collection.Hex()) + "-"
	n := 0
	for k, t := range r.tokens {
		if t.owner == owner && strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

// Approve lets operator move one token. Only the owner or one of the
// owner's operators may approve.
func (r *Registry) Approve(caller, collection common.Address, tokenID *big.Int, operator common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.get(collection, tokenID)
	if err != nil {
		return err
	}
	if caller != t.owner && !r.operators[t.owner][caller] {
		return fmt.Errorf("%w: %s cannot approve %s", ErrNotOwner, caller.Hex(), Key(collection, tokenID))
	}
	t.approved = operator
	return nil
}

// SetApprovalForAll lets operator move every token owner holds.
func (r *Registry) SetApprovalForAll(owner, operator common.Address, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.operators[owner] == nil {
		r.operators[owner] = make(map[common.Address]bool)
	}
	r.operators[owner][operator] = approved
}

// IsApproved reports whether operator may move the token, either through a
// per-token approval or an operator approval from the current owner.
func (r *Registry) IsApproved(collection common.Address, tokenID *big.Int, operator common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, err := r.get(collection, tokenID)
	if err != nil {
		return false
	}
	return t.approved == operator || r.operators[t.owner][operator]
}

// Transfer moves a token from one holder to another and clears its
// per-token approval. The caller is trusted to have checked approval.
func (r *Registry) Transfer(collection common.Address, tokenID *big.Int, from, to common.Address) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.get(collection, tokenID)
	if err != nil {
		return err
	}
	if t.owner != from {
		return fmt.Errorf("%w: %s is owned by %s, not %s", ErrNotOwner, Key(collection, tokenID), t.owner.Hex(), from.Hex())
	}
	t.owner = to
	t.approved = common.Address{}
	return nil
}

func (r *Registry) get(collection common.Address, tokenID *big.Int) (*token, error) {
	k := Key(collection, tokenID)
	t, ok := r.tokens[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, k)
	}
	return t, nil
}
