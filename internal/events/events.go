// Package events defines what the vault and marketplace engines announce,
// the sinks those announcements flow into, and the wire codec used to carry
// them to the indexer.
package events

import (
	"encoding/hex"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Kind names an event type.
type Kind string

// Event kinds.
const (
	KindGrantAdded       Kind = "GrantAdded"
	KindTokensClaimed    Kind = "TokensClaimed"
	KindGrantRevoked     Kind = "GrantRevoked"
	KindClaimerChanged   Kind = "ClaimerChanged"
	KindItemListed       Kind = "ItemListed"
	KindListingUpdated   Kind = "ListingUpdated"
	KindItemCancelled    Kind = "ItemCancelled"
	KindItemBought       Kind = "ItemBought"
	KindWhitelistUpdated Kind = "WhitelistUpdated"
)

// Solidity-style signatures; their Keccak-256 is the event topic.
var signatures = map[Kind]string{
	KindGrantAdded:       "GrantAdded(address,uint256,uint256,uint256,uint256)",
	KindTokensClaimed:    "TokensClaimed(address,uint256,uint256)",
	KindGrantRevoked:     "GrantRevoked(address,uint256,uint256)",
	KindClaimerChanged:   "ClaimerChanged(address,address)",
	KindItemListed:       "ItemListed(address,address,uint256,uint256)",
	KindListingUpdated:   "ListingUpdated(address,address,uint256,uint256)",
	KindItemCancelled:    "ItemCancelled(address,address,uint256)",
	KindItemBought:       "ItemBought(address,address,uint256,uint256)",
	KindWhitelistUpdated: "WhitelistUpdated(address,bool)",
}

var topics = func() map[Kind]common.Hash {
	out := make(map[Kind]common.Hash, len(signatures))
	for k, sig := range signatures {
		h := sha3.NewLegacyKeccak256()
		h.Write([]byte(sig))
		out[k] = common.BytesToHash(h.Sum(nil))
	}
	return out
}()

// Kinds lists every kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindGrantAdded, KindTokensClaimed, KindGrantRevoked, KindClaimerChanged,
		KindItemListed, KindListingUpdated, KindItemCancelled, KindItemBought, KindWhitelistUpdated,
	}
}

// Signature returns the Solidity-style signature of k.
func Signature(k Kind) string { return signatures[k] }

// Topic returns the Keccak-256 topic of k, or the zero hash for unknown kinds.
func Topic(k Kind) common.Hash { return topics[k] }

// Selector returns the first four topic bytes as 0x-prefixed hex.
func Selector(k Kind) string {
	t := Topic(k)
	return "0x" + hex.EncodeToString(t[:4])
}

// Event is implemented by every event payload in this package.
type Event interface {
	Kind() Kind
	fields() map[string]string
}

// Envelope wraps an event with its position in the stream.
type Envelope struct {
	Seq   uint64
	ID    string
	Time  time.Time
	Event Event
}

// Wrap creates an unstamped envelope. The Bus assigns Seq and ID.
func Wrap(at time.Time, ev Event) Envelope {
	return Envelope{Time: at, Event: ev}
}

// Kind returns the kind of the wrapped event.
func (e Envelope) Kind() Kind {
	if e.Event == nil {
		return ""
	}
	return e.Event.Kind()
}

// Fields returns the payload as the string map carried on the wire.
func (e Envelope) Fields() map[string]string {
	if e.Event == nil {
		return nil
	}
	return e.Event.fields()
}

// Topic returns the topic of the wrapped event.
func (e Envelope) Topic() common.Hash { return Topic(e.Kind()) }

// GrantAdded is emitted when a vesting grant is created.
type GrantAdded struct {
	Recipient      common.Address
	Amount         *big.Int
	StartTime      time.Time
	DurationMonths uint64
	CliffMonths    uint64
}

func (GrantAdded) Kind() Kind { return KindGrantAdded }

// TokensClaimed is emitted for every successful claim. MonthsClaimed is the
// grant's running total after the claim.
type TokensClaimed struct {
	Recipient     common.Address
	Amount        *big.Int
	MonthsClaimed uint64
}

func (TokensClaimed) Kind() Kind { return KindTokensClaimed }

// GrantRevoked is emitted when a grant is revoked. Vested is what the
// recipient received as part of the revocation; Returned went back to the
// treasury.
type GrantRevoked struct {
	Recipient common.Address
	Vested    *big.Int
	Returned  *big.Int
}

func (GrantRevoked) Kind() Kind { return KindGrantRevoked }

// ClaimerChanged is emitted when the delegated claimer is replaced.
type ClaimerChanged struct {
	Previous common.Address
	Claimer  common.Address
}

func (ClaimerChanged) Kind() Kind { return KindClaimerChanged }

// ItemListed is emitted when a listing is created.
type ItemListed struct {
	Seller     common.Address
	Collection common.Address
	TokenID    *big.Int
	Price      *big.Int
}

func (ItemListed) Kind() Kind { return KindItemListed }

// ListingUpdated is emitted when a seller reprices a listing.
type ListingUpdated struct {
	Seller     common.Address
	Collection common.Address
	TokenID    *big.Int
	Price      *big.Int
}

func (ListingUpdated) Kind() Kind { return KindListingUpdated }

// ItemCancelled is emitted when a listing is cancelled by its seller or,
// with Forced set, by the marketplace owner.
type ItemCancelled struct {
	Seller     common.Address
	Collection common.Address
	TokenID    *big.Int
	Forced     bool
}

func (ItemCancelled) Kind() Kind { return KindItemCancelled }

// ItemBought is emitted when a listing is purchased.
type ItemBought struct {
	Buyer           common.Address
	Seller          common.Address
	Collection      common.Address
	TokenID         *big.Int
	Price           *big.Int
	Royalty         *big.Int
	RoyaltyReceiver common.Address
}

func (ItemBought) Kind() Kind { return KindItemBought }

// WhitelistUpdated is emitted when a collection is allowed or disallowed.
type WhitelistUpdated struct {
	Collection common.Address
	Allowed    bool
}

func (WhitelistUpdated) Kind() Kind { return KindWhitelistUpdated }
