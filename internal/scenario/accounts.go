package scenario

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Built-in aliases for the engines' own addresses.
const (
	AliasVault  = "vault"
	AliasMarket = "market"
)

// DeriveAddress maps an alias to the last 20 bytes of its Keccak-256 hash,
// the same way a contract address is cut from a hash.
func DeriveAddress(alias string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(alias))[12:])
}

// Book resolves aliases to addresses and back.
type Book struct {
	byAlias map[string]common.Address
	byAddr  map[common.Address]string
}

func newBook(f *File) (*Book, error) {
	b := &Book{
		byAlias: make(map[string]common.Address),
		byAddr:  make(map[common.Address]string),
	}
	aliases := append([]string{AliasVault, AliasMarket}, f.Accounts...)
	for _, a := range aliases {
		addr := DeriveAddress(a)
		if pinned, ok := f.Addresses[a]; ok {
			if !common.IsHexAddress(pinned) {
				return nil, fmt.Errorf("%w: address for %s: %q", ErrInvalid, a, pinned)
			}
			addr = common.HexToAddress(pinned)
		}
		if err := b.add(a, addr); err != nil {
			return nil, err
		}
	}
	for a := range f.Addresses {
		if _, ok := b.byAlias[a]; !ok {
			return nil, fmt.Errorf("%w: address pinned for undeclared account %q", ErrInvalid, a)
		}
	}
	return b, nil
}

func (b *Book) add(alias string, addr common.Address) error {
	if alias == "" {
		return fmt.Errorf("%w: empty account alias", ErrInvalid)
	}
	if _, dup := b.byAlias[alias]; dup {
		return fmt.Errorf("%w: account %q declared twice", ErrInvalid, alias)
	}
	if other, dup := b.byAddr[addr]; dup {
		return fmt.Errorf("%w: %q and %q share address %s", ErrInvalid, alias, other, addr.Hex())
	}
	b.byAlias[alias] = addr
	b.byAddr[addr] = alias
	return nil
}

// Resolve returns the address behind alias.
func (b *Book) Resolve(alias string) (common.Address, error) {
	addr, ok := b.byAlias[alias]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: unknown account %q", ErrInvalid, alias)
	}
	return addr, nil
}

// Name returns the alias for addr, or its short hex when it has none.
func (b *Book) Name(addr common.Address) string {
	if addr == (common.Address{}) {
		return "-"
	}
	if a, ok := b.byAddr[addr]; ok {
		return a
	}
	return addr.Hex()
}

// Aliases returns every alias in sorted order.
func (b *Book) Aliases() []string {
	out := make([]string, 0, len(b.byAlias))
	for a := range b.byAlias {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// tokenRef parses "collection#id".
func (b *Book) tokenRef(ref string) (common.Address, *big.Int, error) {
	alias, id, ok := strings.Cut(ref, "#")
	if !ok {
		return common.Address{}, nil, fmt.Errorf("%w: token %q must look like collection#id", ErrInvalid, ref)
	}
	collection, err := b.Resolve(alias)
	if err != nil {
		return common.Address{}, nil, err
	}
	tokenID, ok := new(big.Int).SetString(id, 10)
	if !ok || tokenID.Sign() < 0 {
		return common.Address{}, nil, fmt.Errorf("%w: token id %q", ErrInvalid, id)
	}
	return collection, tokenID, nil
}

// tokenName renders a collection and id back as "collection#id".
func (b *Book) tokenName(collection common.Address, tokenID *big.Int) string {
	return b.Name(collection) + "#" + tokenID.String()
}
