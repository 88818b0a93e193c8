package market

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MaxBps is 100%.
const MaxBps = 10_000

// ErrInvalidRoyalty is returned for rates above MaxBps.
var ErrInvalidRoyalty = errors.New("invalid royalty rate")

// RoyaltySource decides who earns a royalty on a sale and at what rate.
type RoyaltySource interface {
	RoyaltyInfo(collection common.Address, tokenID *big.Int) (receiver common.Address, bps uint16)
}

// Split is how a sale price is divided.
type Split struct {
	Price    *big.Int
	Royalty  *big.Int
	Proceeds *big.Int
	Receiver common.Address
	Bps      uint16
}

// RoyaltyAmount returns price*bps/10000 rounded half up.
func RoyaltyAmount(price *big.Int, bps uint16) *big.Int {
	out := new(big.Int).Mul(price, big.NewInt(int64(bps)))
	out.Add(out, big.NewInt(MaxBps/2))
	return out.Quo(out, big.NewInt(MaxBps))
}

// SplitPrice divides price between receiver and seller. Without a receiver
// the seller keeps everything.
func SplitPrice(price *big.Int, receiver common.Address, bps uint16) Split {
	royalty := new(big.Int)
	if receiver != (common.Address{}) && bps > 0 {
		royalty = RoyaltyAmount(price, bps)
	} else {
		bps = 0
	}
	return Split{
		Price:    new(big.Int).Set(price),
		Royalty:  royalty,
		Proceeds: new(big.Int).Sub(price, royalty),
		Receiver: receiver,
		Bps:      bps,
	}
}

// RoyaltyRule is one collection's royalty terms.
type RoyaltyRule struct {
	Collection common.Address
	Receiver   common.Address
	Bps        uint16
}

// RoyaltyTable holds per-collection terms with a fallback. Safe for
// concurrent use.
type RoyaltyTable struct {
	mu              sync.RWMutex
	rules           map[common.Address]RoyaltyRule
	defaultReceiver common.Address
	defaultBps      uint16
}

// NewRoyaltyTable creates a table paying defaultBps to defaultReceiver for
// collections without their own rule.
func NewRoyaltyTable(defaultReceiver common.Address, defaultBps uint16) (*RoyaltyTable, error) {
	if defaultBps > MaxBps {
		return nil, fmt.Errorf("%w: %d bps", ErrInvalidRoyalty, defaultBps)
	}
	return &RoyaltyTable{
		rules:           make(map[common.Address]RoyaltyRule),
		defaultReceiver: defaultReceiver,
		defaultBps:      defaultBps,
	}, nil
}

// Set installs or replaces the rule for collection.
func (t *RoyaltyTable) Set(collection, receiver common.Address, bps uint16) error {
	if bps > MaxBps {
		return fmt.Errorf("%w: %d bps", ErrInvalidRoyalty, bps)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules[collection] = RoyaltyRule{Collection: collection, Receiver: receiver, Bps: bps}
	return nil
}

// Remove drops collection's rule so the default applies again.
func (t *RoyaltyTable) Remove(collection common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rules, collection)
}

// RoyaltyInfo implements RoyaltySource.
func (t *RoyaltyTable) RoyaltyInfo(collection common.Address, _ *big.Int) (common.Address, uint16) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.rules[collection]; ok {
		return r.Receiver, r.Bps
	}
	return t.defaultReceiver, t.defaultBps
}

// Rules returns every collection rule ordered by collection.
func (t *RoyaltyTable) Rules() []RoyaltyRule {
	t.mu.RLock()
	out := make([]RoyaltyRule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Collection.Cmp(out[j].Collection) < 0 })
	return out
}
