// Package token is an in-process fungible token ledger with ERC-20 balance
// and allowance semantics. The vault and marketplace engines move funds
// through it; Apply gives them all-or-nothing multi-transfer settlement.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Errors.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNegativeAmount        = errors.New("negative amount")
)

// Transfer is one leg of a settlement. When Spender is set the move is
// performed on From's behalf and consumes Spender's allowance.
type Transfer struct {
	Spender common.Address
	From    common.Address
	To      common.Address
	Amount  *big.Int
}

func (t Transfer) delegated() bool { return t.Spender != (common.Address{}) && t.Spender != t.From }

// Ledger holds balances and allowances. Safe for concurrent use.
type Ledger struct {
	symbol string

	mu         sync.RWMutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	supply     *big.Int
}

// NewLedger creates an empty ledger.
func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol:     symbol,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		supply:     new(big.Int),
	}
}

// Symbol returns the token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Mint credits amount to addr.
func (l *Ledger) Mint(addr common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
	l.supply.Add(l.supply, amount)
	return nil
}

// Burn debits amount from addr.
func (l *Ledger) Burn(addr common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balanceOf(addr).Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, burning %s", ErrInsufficientBalance, addr.Hex(), l.balanceOf(addr), amount)
	}
	l.debit(addr, amount)
	l.supply.Sub(l.supply, amount)
	return nil
}

// TotalSupply returns minted minus burned.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.supply)
}

// BalanceOf returns a copy of addr's balance.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.balanceOf(addr))
}

// Allowance returns how much spender may move on owner's behalf.
func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.allowance(owner, spender))
}

// Approve sets spender's allowance over owner's funds, replacing any
// previous value.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[common.Address]*big.Int)
	}
	l.allowances[owner][spender] = new(big.Int).Set(amount)
	return nil
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	return l.Apply(Transfer{From: from, To: to, Amount: amount})
}

// TransferFrom moves amount from one account to another on spender's behalf.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	return l.Apply(Transfer{Spender: spender, From: from, To: to, Amount: amount})
}

// Apply commits every transfer or none of them. Legs are validated in order
// against a working copy of the touched balances and allowances, so a later
// leg may spend funds an earlier leg delivered.
func (l *Ledger) Apply(ops ...Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances := make(map[common.Address]*big.Int)
	allowances := make(map[[2]common.Address]*big.Int)

	bal := func(a common.Address) *big.Int {
		if b, ok := balances[a]; ok {
			return b
		}
		b := new(big.Int).Set(l.balanceOf(a))
		balances[a] = b
		return b
	}
	allow := func(owner, spender common.Address) *big.Int {
		k := [2]common.Address{owner, spender}
		if v, ok := allowances[k]; ok {
			return v
		}
		v := new(big.Int).Set(l.allowance(owner, spender))
		allowances[k] = v
		return v
	}

	for i, op := range ops {
		if op.Amount == nil || op.Amount.Sign() == 0 {
			continue
		}
		if op.Amount.Sign() < 0 {
			return fmt.Errorf("transfer %d: %w", i, ErrNegativeAmount)
		}
		if op.delegated() {
			a := allow(op.From, op.Spender)
			if a.Cmp(op.Amount) < 0 {
				return fmt.Errorf("transfer %d: %w: %s may spend %s of %s, needs %s",
					i, ErrInsufficientAllowance, op.Spender.Hex(), a, op.From.Hex(), op.Amount)
			}
			a.Sub(a, op.Amount)
		}
		from := bal(op.From)
		if from.Cmp(op.Amount) < 0 {
			return fmt.Errorf("transfer %d: %w: %s holds %s, needs %s",
				i, ErrInsufficientBalance, op.From.Hex(), from, op.Amount)
		}
		from.Sub(from, op.Amount)
		to := bal(op.To)
		to.Add(to, op.Amount)
	}

	for a, b := range balances {
		l.balances[a] = b
	}
	for k, v := range allowances {
		if l.allowances[k[0]] == nil {
			l.allowances[k[0]] = make(map[common.Address]*big.Int)
		}
		l.allowances[k[0]][k[1]] = v
	}
	return nil
}

// Holders returns every account with a non-zero balance.
func (l *Ledger) Holders() map[common.Address]*big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[common.Address]*big.Int, len(l.balances))
	for a, b := range l.balances {
		if b.Sign() > 0 {
			out[a] = new(big.Int).Set(b)
		}
	}
	return out
}

// --- internal ---

func (l *Ledger) balanceOf(addr common.Address) *big.Int {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return new(big.Int)
}

func (l *Ledger) allowance(owner, spender common.Address) *big.Int {
	if a, ok := l.allowances[owner][spender]; ok {
		return a
	}
	return new(big.Int)
}

func (l *Ledger) credit(addr common.Address, amount *big.Int) {
	l.balances[addr] = new(big.Int).Add(l.balanceOf(addr), amount)
}

func (l *Ledger) debit(addr common.Address, amount *big.Int) {
	l.balances[addr] = new(big.Int).Sub(l.balanceOf(addr), amount)
}
