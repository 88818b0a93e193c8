// Package vesting is the token vault: it escrows grants pulled from the
// treasury and releases them monthly after a cliff.
package vesting

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/Mohsinsiddi/w3vault/internal/auth"
	"github.com/Mohsinsiddi/w3vault/internal/clock"
	"github.com/Mohsinsiddi/w3vault/internal/events"
	"github.com/Mohsinsiddi/w3vault/internal/keylock"
	"github.com/Mohsinsiddi/w3vault/internal/logging"
	"github.com/Mohsinsiddi/w3vault/internal/token"
)

var (
	ErrInvalidAmount   = errors.New("invalid grant amount")
	ErrInvalidSchedule = errors.New("invalid vesting schedule")
	ErrDuplicateGrant  = errors.New("recipient already has an active grant")
	ErrGrantNotFound   = errors.New("grant not found")
	ErrAlreadyRevoked  = errors.New("grant revoked")
	ErrNothingVested   = errors.New("nothing newly vested")
	ErrZeroRecipient   = errors.New("recipient is the zero address")
)

// Ledger is the token ledger the vault settles against.
type Ledger interface {
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
	Apply(ops ...token.Transfer) error
}

// Engine holds every grant. Operations on one recipient are linearised;
// different recipients proceed in parallel.
type Engine struct {
	vault    common.Address
	treasury common.Address
	gate     auth.ClaimerGate
	ledger   Ledger
	clock    clock.Clock
	sink     events.Sink
	log      *logrus.Entry

	payVestedOnRevoke bool

	locks     *keylock.Locker
	claimerMu sync.Mutex

	mu           sync.RWMutex
	grants       map[common.Address]*Grant
	totalClaimed *big.Int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) { e.log = l }
}

// WithVestedPayoutOnRevoke makes revocation pay the recipient whatever has
// vested but not been claimed before the rest returns to the treasury.
func WithVestedPayoutOnRevoke(enabled bool) Option {
	return func(e *Engine) { e.payVestedOnRevoke = enabled }
}

// New creates a vault holding funds at vault and pulling grants from
// treasury. The treasury must approve vault as a spender on the ledger.
func New(vault, treasury common.Address, gate auth.ClaimerGate, ledger Ledger, clk clock.Clock, sink events.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = events.Discard
	}
	e := &Engine{
		vault:        vault,
		treasury:     treasury,
		gate:         gate,
		ledger:       ledger,
		clock:        clk,
		sink:         sink,
		log:          logging.Discard(),
		locks:        keylock.New(),
		grants:       make(map[common.Address]*Grant),
		totalClaimed: new(big.Int),
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.WithField("component", "vesting")
	return e
}

// Vault returns the custody address.
func (e *Engine) Vault() common.Address { return e.vault }

// Treasury returns the address grants are funded from and revocations return to.
func (e *Engine) Treasury() common.Address { return e.treasury }

// AddTokenGrant escrows amount from the treasury for recipient. A revoked
// grant may be replaced; an active one may not.
func (e *Engine) AddTokenGrant(caller, recipient common.Address, amount *big.Int, durationMonths, cliffMonths uint64) error {
	if err := auth.RequireOwner(e.gate, caller); err != nil {
		return err
	}
	if recipient == (common.Address{}) {
		return ErrZeroRecipient
	}
	if err := ValidateTerms(amount, durationMonths, cliffMonths); err != nil {
		return err
	}

	unlock := e.locks.Lock(recipient.Hex())
	defer unlock()
	now := e.clock.Now()

	if g, ok := e.grant(recipient); ok && !g.Revoked {
		return fmt.Errorf("%w: %s", ErrDuplicateGrant, recipient.Hex())
	}
	if err := e.ledger.TransferFrom(e.vault, e.treasury, e.vault, amount); err != nil {
		return fmt.Errorf("funding grant for %s: %w", recipient.Hex(), err)
	}

	g := &Grant{
		Recipient:      recipient,
		Amount:         new(big.Int).Set(amount),
		DurationMonths: durationMonths,
		CliffMonths:    cliffMonths,
		StartTime:      now,
		Claimed:        new(big.Int),
	}
	e.mu.Lock()
	e.grants[recipient] = g
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"recipient": recipient.Hex(),
		"amount":    amount.String(),
		"duration":  durationMonths,
		"cliff":     cliffMonths,
	}).Debug("grant added")
	e.sink.Publish(events.Wrap(now, events.GrantAdded{
		Recipient:      recipient,
		Amount:         new(big.Int).Set(amount),
		StartTime:      now,
		DurationMonths: durationMonths,
		CliffMonths:    cliffMonths,
	}))
	return nil
}

// ClaimVestedTokensForRecipient pays recipient every month vested since the
// last claim. The caller must be the recipient or the delegated claimer.
func (e *Engine) ClaimVestedTokensForRecipient(caller, recipient common.Address) (*big.Int, error) {
	if caller != recipient && !e.gate.IsClaimer(caller) {
		return nil, fmt.Errorf("%w: %s may not claim for %s", auth.ErrNotAuthorized, caller.Hex(), recipient.Hex())
	}

	unlock := e.locks.Lock(recipient.Hex())
	defer unlock()
	now := e.clock.Now()

	g, ok := e.grant(recipient)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGrantNotFound, recipient.Hex())
	}
	if g.Revoked {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRevoked, recipient.Hex())
	}
	vested := VestedMonths(g, now)
	if vested <= g.MonthsClaimed {
		return nil, fmt.Errorf("%w: %d of %d months vested, %d already claimed",
			ErrNothingVested, vested, g.DurationMonths, g.MonthsClaimed)
	}

	amount := new(big.Int).Sub(ReleasedAt(g, vested), g.Claimed)
	if err := e.ledger.Apply(token.Transfer{From: e.vault, To: recipient, Amount: amount}); err != nil {
		return nil, fmt.Errorf("paying claim for %s: %w", recipient.Hex(), err)
	}
	e.commitClaim(recipient, vested, amount)

	e.log.WithFields(logrus.Fields{
		"recipient": recipient.Hex(),
		"amount":    amount.String(),
		"months":    vested,
	}).Debug("tokens claimed")
	e.sink.Publish(events.Wrap(now, events.TokensClaimed{
		Recipient:     recipient,
		Amount:        new(big.Int).Set(amount),
		MonthsClaimed: vested,
	}))
	return amount, nil
}

// RevokeTokenGrant ends recipient's grant and returns the unclaimed
// remainder to the treasury. Owner only.
func (e *Engine) RevokeTokenGrant(caller, recipient common.Address) error {
	if err := auth.RequireOwner(e.gate, caller); err != nil {
		return err
	}

	unlock := e.locks.Lock(recipient.Hex())
	defer unlock()
	now := e.clock.Now()

	g, ok := e.grant(recipient)
	if !ok {
		return fmt.Errorf("%w: %s", ErrGrantNotFound, recipient.Hex())
	}
	if g.Revoked {
		return fmt.Errorf("%w: %s", ErrAlreadyRevoked, recipient.Hex())
	}

	payout := new(big.Int)
	vested := g.MonthsClaimed
	if e.payVestedOnRevoke {
		if v := VestedMonths(g, now); v > g.MonthsClaimed {
			vested = v
			payout.Sub(ReleasedAt(g, v), g.Claimed)
		}
	}
	returned := new(big.Int).Sub(g.Amount, g.Claimed)
	returned.Sub(returned, payout)

	err := e.ledger.Apply(
		token.Transfer{From: e.vault, To: recipient, Amount: payout},
		token.Transfer{From: e.vault, To: e.treasury, Amount: returned},
	)
	if err != nil {
		return fmt.Errorf("settling revocation for %s: %w", recipient.Hex(), err)
	}
	if payout.Sign() > 0 {
		e.commitClaim(recipient, vested, payout)
	}
	e.mu.Lock()
	stored := e.grants[recipient]
	stored.Revoked = true
	stored.RevokedAt = now
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"recipient": recipient.Hex(),
		"paid":      payout.String(),
		"returned":  returned.String(),
	}).Debug("grant revoked")
	e.sink.Publish(events.Wrap(now, events.GrantRevoked{
		Recipient: recipient,
		Vested:    payout,
		Returned:  returned,
	}))
	return nil
}

// SetClaimer replaces the delegated claimer. Owner only.
func (e *Engine) SetClaimer(caller, claimer common.Address) error {
	e.claimerMu.Lock()
	defer e.claimerMu.Unlock()

	prev := e.gate.Claimer()
	if err := e.gate.SetClaimer(caller, claimer); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"previous": prev.Hex(),
		"claimer":  claimer.Hex(),
	}).Debug("claimer changed")
	e.sink.Publish(events.Wrap(e.clock.Now(), events.ClaimerChanged{Previous: prev, Claimer: claimer}))
	return nil
}

// Claimer returns the delegated claimer.
func (e *Engine) Claimer() common.Address { return e.gate.Claimer() }

// Claimable returns how much recipient could claim right now.
func (e *Engine) Claimable(recipient common.Address) (*big.Int, error) {
	g, ok := e.Grant(recipient)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGrantNotFound, recipient.Hex())
	}
	if g.Revoked {
		return new(big.Int), nil
	}
	vested := VestedMonths(g, e.clock.Now())
	if vested <= g.MonthsClaimed {
		return new(big.Int), nil
	}
	return new(big.Int).Sub(ReleasedAt(g, vested), g.Claimed), nil
}

// Grant returns a copy of recipient's grant.
func (e *Engine) Grant(recipient common.Address) (Grant, bool) {
	return e.grant(recipient)
}

// GrantMonthsClaimed returns how many months recipient has claimed.
func (e *Engine) GrantMonthsClaimed(recipient common.Address) uint64 {
	g, _ := e.grant(recipient)
	return g.MonthsClaimed
}

// Grants returns copies of every grant ordered by start time, then recipient.
func (e *Engine) Grants() []Grant {
	e.mu.RLock()
	out := make([]Grant, 0, len(e.grants))
	for _, g := range e.grants {
		out = append(out, g.clone())
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].Recipient.Cmp(out[j].Recipient) < 0
	})
	return out
}

// TotalClaimedByAll is the sum of every amount paid to recipients.
func (e *Engine) TotalClaimedByAll() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.totalClaimed)
}

// Now exposes the engine clock.
func (e *Engine) Now() time.Time { return e.clock.Now() }

func (e *Engine) grant(recipient common.Address) (Grant, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.grants[recipient]
	if !ok {
		return Grant{}, false
	}
	return g.clone(), true
}

func (e *Engine) commitClaim(recipient common.Address, vested uint64, amount *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g := e.grants[recipient]
	g.MonthsClaimed = vested
	g.Claimed.Add(g.Claimed, amount)
	e.totalClaimed.Add(e.totalClaimed, amount)
}
