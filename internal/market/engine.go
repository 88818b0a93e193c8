// Package market is the NFT marketplace: sellers list tokens from
// whitelisted collections and buyers settle in the ledger token, with a
// royalty routed to the collection's receiver.
package market

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
	"github.com/Mohsinsiddi/w3vault/internal/nft"
	"github.com/Mohsinsiddi/w3vault/internal/token"
)

var (
	ErrInvalidPrice   = errors.New("price must be above zero")
	ErrAlreadyListed  = errors.New("already listed")
	ErrNotListed      = errors.New("not listed")
	ErrNotWhitelisted = errors.New("collection not whitelisted")
	ErrNotTokenOwner  = errors.New("caller does not own the token")
	ErrNotApproved    = errors.New("marketplace not approved for token")
	ErrNotSeller      = fmt.Errorf("%w: caller is not the seller", auth.ErrNotAuthorized)
)

// Ledger is the token ledger purchases settle against.
type Ledger interface {
	BalanceOf(addr common.Address) *big.Int
	Allowance(owner, spender common.Address) *big.Int
	Approve(owner, spender common.Address, amount *big.Int) error
	Apply(ops ...token.Transfer) error
}

// Registry is the NFT ownership registry.
type Registry interface {
	OwnerOf(collection common.Address, tokenID *big.Int) (common.Address, error)
	IsApproved(collection common.Address, tokenID *big.Int, operator common.Address) bool
	Transfer(collection common.Address, tokenID *big.Int, from, to common.Address) error
}

// Listing is a sale offer. A listing with the zero seller is inactive.
type Listing struct {
	Collection common.Address
	TokenID    *big.Int
	Seller     common.Address
	Price      *big.Int
	ListedAt   time.Time
	UpdatedAt  time.Time
}

// Active reports whether the listing is live.
func (l Listing) Active() bool { return l.Seller != (common.Address{}) }

// Key returns the listing's collection-token identifier.
func (l Listing) Key() string { return nft.Key(l.Collection, l.TokenID) }

func (l *Listing) clone() Listing {
	out := *l
	out.TokenID = new(big.Int).Set(l.TokenID)
	out.Price = new(big.Int).Set(l.Price)
	return out
}

// Engine holds listings and the collection whitelist. Operations on one
// listing are linearised; different listings proceed in parallel.
type Engine struct {
	address   common.Address
	gate      auth.Gate
	ledger    Ledger
	registry  Registry
	royalties RoyaltySource
	clock     clock.Clock
	sink      events.Sink
	log       *logrus.Entry

	locks *keylock.Locker

	mu        sync.RWMutex
	listings  map[string]*Listing
	whitelist map[common.Address]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) { e.log = l }
}

// New creates a marketplace operating as address. Sellers approve address
// on the registry and buyers approve it on the ledger.
func New(address common.Address, gate auth.Gate, ledger Ledger, registry Registry, royalties RoyaltySource, clk clock.Clock, sink events.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = events.Discard
	}
	e := &Engine{
		address:   address,
		gate:      gate,
		ledger:    ledger,
		registry:  registry,
		royalties: royalties,
		clock:     clk,
		sink:      sink,
		log:       logging.Discard(),
		locks:     keylock.New(),
		listings:  make(map[string]*Listing),
		whitelist: make(map[common.Address]bool),
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.WithField("component", "market")
	return e
}

// Address returns the marketplace's own address.
func (e *Engine) Address() common.Address { return e.address }

// UpdateCollectionsWhitelist allows or disallows a collection. Owner only.
// Listings of a removed collection stay visible but cannot be updated or
// bought until it is allowed again.
func (e *Engine) UpdateCollectionsWhitelist(caller, collection common.Address, allowed bool) error {
	if err := auth.RequireOwner(e.gate, caller); err != nil {
		return err
	}
	e.mu.Lock()
	if allowed {
		e.whitelist[collection] = true
	} else {
		delete(e.whitelist, collection)
	}
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{"collection": collection.Hex(), "allowed": allowed}).Debug("whitelist updated")
	e.sink.Publish(events.Wrap(e.clock.Now(), events.WhitelistUpdated{Collection: collection, Allowed: allowed}))
	return nil
}

// IsWhitelisted reports whether collection may be traded.
func (e *Engine) IsWhitelisted(collection common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.whitelist[collection]
}

// Whitelist returns the allowed collections in address order.
func (e *Engine) Whitelist() []common.Address {
	e.mu.RLock()
	out := make([]common.Address, 0, len(e.whitelist))
	for c := range e.whitelist {
		out = append(out, c)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// ListItem offers the caller's token for price.
func (e *Engine) ListItem(caller, collection common.Address, tokenID, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	key := nft.Key(collection, tokenID)
	unlock := e.locks.Lock(key)
	defer unlock()
	now := e.clock.Now()

	if !e.IsWhitelisted(collection) {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, collection.Hex())
	}
	if _, ok := e.listing(key); ok {
		return fmt.Errorf("%w: %s", ErrAlreadyListed, key)
	}
	owner, err := e.registry.OwnerOf(collection, tokenID)
	if err != nil {
		return fmt.Errorf("listing %s: %w", key, err)
	}
	if owner != caller {
		return fmt.Errorf("%w: %s is owned by %s", ErrNotTokenOwner, key, owner.Hex())
	}
	if !e.registry.IsApproved(collection, tokenID, e.address) {
		return fmt.Errorf("%w: %s", ErrNotApproved, key)
	}

	l := &Listing{
		Collection: collection,
		TokenID:    new(big.Int).Set(tokenID),
		Seller:     caller,
		Price:      new(big.Int).Set(price),
		ListedAt:   now,
		UpdatedAt:  now,
	}
	e.mu.Lock()
	e.listings[key] = l
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{"listing": key, "seller": caller.Hex(), "price": price.String()}).Debug("item listed")
	e.sink.Publish(events.Wrap(now, events.ItemListed{
		Seller:     caller,
		Collection: collection,
		TokenID:    new(big.Int).Set(tokenID),
		Price:      new(big.Int).Set(price),
	}))
	return nil
}

// UpdateListing reprices an active listing. Seller only.
func (e *Engine) UpdateListing(caller, collection common.Address, tokenID, price *big.Int) error {
	key := nft.Key(collection, tokenID)
	unlock := e.locks.Lock(key)
	defer unlock()
	now := e.clock.Now()

	l, ok := e.listing(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotListed, key)
	}
	if l.Seller != caller {
		return fmt.Errorf("%w: %s", ErrNotSeller, key)
	}
	if !e.IsWhitelisted(collection) {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, collection.Hex())
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}

	e.mu.Lock()
	stored := e.listings[key]
	stored.Price = new(big.Int).Set(price)
	stored.UpdatedAt = now
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{"listing": key, "price": price.String()}).Debug("listing updated")
	e.sink.Publish(events.Wrap(now, events.ListingUpdated{
		Seller:     caller,
		Collection: collection,
		TokenID:    new(big.Int).Set(tokenID),
		Price:      new(big.Int).Set(price),
	}))
	return nil
}

// CancelListing withdraws a listing. Seller only.
func (e *Engine) CancelListing(caller, collection common.Address, tokenID *big.Int) error {
	return e.cancel(caller, collection, tokenID, false)
}

// ForceCancelListing withdraws any listing. Marketplace owner only.
func (e *Engine) ForceCancelListing(caller, collection common.Address, tokenID *big.Int) error {
	if err := auth.RequireOwner(e.gate, caller); err != nil {
		return err
	}
	return e.cancel(caller, collection, tokenID, true)
}

func (e *Engine) cancel(caller, collection common.Address, tokenID *big.Int, forced bool) error {
	key := nft.Key(collection, tokenID)
	unlock := e.locks.Lock(key)
	defer unlock()
	now := e.clock.Now()

	l, ok := e.listing(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotListed, key)
	}
	if !forced && l.Seller != caller {
		return fmt.Errorf("%w: %s", ErrNotSeller, key)
	}
	e.remove(key)

	e.log.WithFields(logrus.Fields{"listing": key, "forced": forced}).Debug("listing cancelled")
	e.sink.Publish(events.Wrap(now, events.ItemCancelled{
		Seller:     l.Seller,
		Collection: collection,
		TokenID:    new(big.Int).Set(tokenID),
		Forced:     forced,
	}))
	return nil
}

// Quote returns how a sale at price would be split, without side effects.
func (e *Engine) Quote(collection common.Address, tokenID, price *big.Int) Split {
	receiver, bps := e.royalties.RoyaltyInfo(collection, tokenID)
	return SplitPrice(price, receiver, bps)
}

// BuyItem purchases a listing for buyer. The buyer must have approved the
// marketplace for at least the price. Payment settles first in one batch;
// if the token then cannot move, the buyer is refunded and their allowance
// restored.
func (e *Engine) BuyItem(buyer, collection common.Address, tokenID *big.Int) (Split, error) {
	key := nft.Key(collection, tokenID)
	unlock := e.locks.Lock(key)
	defer unlock()
	now := e.clock.Now()

	l, ok := e.listing(key)
	if !ok {
		return Split{}, fmt.Errorf("%w: %s", ErrNotListed, key)
	}
	if !e.IsWhitelisted(collection) {
		return Split{}, fmt.Errorf("%w: %s", ErrNotWhitelisted, collection.Hex())
	}
	if bal := e.ledger.BalanceOf(buyer); bal.Cmp(l.Price) < 0 {
		return Split{}, fmt.Errorf("%w: %s holds %s, price is %s", token.ErrInsufficientBalance, buyer.Hex(), bal, l.Price)
	}
	if allowed := e.ledger.Allowance(buyer, e.address); allowed.Cmp(l.Price) < 0 {
		return Split{}, fmt.Errorf("%w: marketplace may spend %s of %s, price is %s", token.ErrInsufficientAllowance, allowed, buyer.Hex(), l.Price)
	}
	owner, err := e.registry.OwnerOf(collection, tokenID)
	if err != nil {
		return Split{}, fmt.Errorf("buying %s: %w", key, err)
	}
	if owner != l.Seller {
		return Split{}, fmt.Errorf("%w: seller %s no longer holds %s", ErrNotTokenOwner, l.Seller.Hex(), key)
	}
	if !e.registry.IsApproved(collection, tokenID, e.address) {
		return Split{}, fmt.Errorf("%w: %s", ErrNotApproved, key)
	}

	split := e.Quote(collection, tokenID, l.Price)
	err = e.ledger.Apply(
		token.Transfer{Spender: e.address, From: buyer, To: l.Seller, Amount: split.Proceeds},
		token.Transfer{Spender: e.address, From: buyer, To: split.Receiver, Amount: split.Royalty},
	)
	if err != nil {
		return Split{}, fmt.Errorf("settling %s: %w", key, err)
	}
	if err := e.registry.Transfer(collection, tokenID, l.Seller, buyer); err != nil {
		e.refund(l, buyer, split)
		return Split{}, fmt.Errorf("buying %s: %w", key, err)
	}
	e.remove(key)

	e.log.WithFields(logrus.Fields{
		"listing": key,
		"buyer":   buyer.Hex(),
		"price":   split.Price.String(),
		"royalty": split.Royalty.String(),
	}).Debug("item bought")
	e.sink.Publish(events.Wrap(now, events.ItemBought{
		Buyer:           buyer,
		Seller:          l.Seller,
		Collection:      collection,
		TokenID:         new(big.Int).Set(tokenID),
		Price:           new(big.Int).Set(split.Price),
		Royalty:         new(big.Int).Set(split.Royalty),
		RoyaltyReceiver: split.Receiver,
	}))
	return split, nil
}

func (e *Engine) refund(l Listing, buyer common.Address, split Split) {
	log := e.log.WithFields(logrus.Fields{"listing": l.Key(), "buyer": buyer.Hex()})
	err := e.ledger.Apply(
		token.Transfer{From: l.Seller, To: buyer, Amount: split.Proceeds},
		token.Transfer{From: split.Receiver, To: buyer, Amount: split.Royalty},
	)
	if err != nil {
		log.WithError(err).Error("refunding buyer after failed token transfer")
		return
	}
	allowed := new(big.Int).Add(e.ledger.Allowance(buyer, e.address), split.Price)
	if err := e.ledger.Approve(buyer, e.address, allowed); err != nil {
		log.WithError(err).Error("restoring buyer allowance after refund")
	}
}

// GetListing returns the listing for a token. Inactive tokens yield a
// listing with the zero seller and a zero price.
func (e *Engine) GetListing(collection common.Address, tokenID *big.Int) Listing {
	if l, ok := e.listing(nft.Key(collection, tokenID)); ok {
		return l
	}
	return Listing{Collection: collection, TokenID: new(big.Int).Set(tokenID), Price: new(big.Int)}
}

// Listings returns every active listing ordered by key.
func (e *Engine) Listings() []Listing {
	e.mu.RLock()
	out := make([]Listing, 0, len(e.listings))
	for _, l := range e.listings {
		out = append(out, l.clone())
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (e *Engine) listing(key string) (Listing, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.listings[key]
	if !ok {
		return Listing{}, false
	}
	return l.clone(), true
}

func (e *Engine) remove(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listings, key)
}
