package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/Mohsinsiddi/w3vault/internal/auth"
	"github.com/Mohsinsiddi/w3vault/internal/clock"
	"github.com/Mohsinsiddi/w3vault/internal/events"
	"github.com/Mohsinsiddi/w3vault/internal/logging"
	"github.com/Mohsinsiddi/w3vault/internal/market"
	"github.com/Mohsinsiddi/w3vault/internal/nft"
	"github.com/Mohsinsiddi/w3vault/internal/token"
	"github.com/Mohsinsiddi/w3vault/internal/units"
	"github.com/Mohsinsiddi/w3vault/internal/vesting"
)

// namedErrors are the error names a step may expect.
var namedErrors = map[string]error{
	"not_authorized":         auth.ErrNotAuthorized,
	"invalid_amount":         vesting.ErrInvalidAmount,
	"invalid_schedule":       vesting.ErrInvalidSchedule,
	"duplicate_grant":        vesting.ErrDuplicateGrant,
	"grant_not_found":        vesting.ErrGrantNotFound,
	"already_revoked":        vesting.ErrAlreadyRevoked,
	"nothing_vested":         vesting.ErrNothingVested,
	"invalid_price":          market.ErrInvalidPrice,
	"already_listed":         market.ErrAlreadyListed,
	"not_listed":             market.ErrNotListed,
	"not_whitelisted":        market.ErrNotWhitelisted,
	"not_token_owner":        market.ErrNotTokenOwner,
	"not_approved":           market.ErrNotApproved,
	"not_seller":             market.ErrNotSeller,
	"insufficient_balance":   token.ErrInsufficientBalance,
	"insufficient_allowance": token.ErrInsufficientAllowance,
	"token_not_found":        nft.ErrTokenNotFound,
	"not_owner":              nft.ErrNotOwner,
}

// outcome is what an action reports back.
type outcome struct {
	summary  string
	amount   *big.Int
	royalty  *big.Int
	proceeds *big.Int
}

type action func(r *runner, s Step, caller common.Address) (outcome, error)

var actions = map[string]action{
	"add_grant":    (*runner).addGrant,
	"claim":        (*runner).claim,
	"revoke":       (*runner).revoke,
	"set_claimer":  (*runner).setClaimer,
	"whitelist":    (*runner).whitelist,
	"list":         (*runner).list,
	"update":       (*runner).update,
	"cancel":       (*runner).cancel,
	"force_cancel": (*runner).forceCancel,
	"buy":          (*runner).buy,
	"approve":      (*runner).approve,
	"approve_nft":  (*runner).approveNFT,
	"transfer":     (*runner).transfer,
	"transfer_nft": (*runner).transferNFT,
	"mint":         (*runner).mint,
	"advance":      (*runner).advance,
	"assert":       (*runner).assert,
}

// callerless actions ignore "as".
var callerless = map[string]bool{"advance": true, "assert": true, "mint": true}

// Option configures a run.
type Option func(*runner)

// WithSink attaches an extra event sink, e.g. a RedisSink feeding the indexer.
func WithSink(s events.Sink) Option {
	return func(r *runner) { r.sinks = append(r.sinks, s) }
}

// WithLogger sets the logger handed to the engines.
func WithLogger(l *logrus.Entry) Option {
	return func(r *runner) { r.logger = l }
}

type runner struct {
	f        *File
	book     *Book
	clock    *clock.Manual
	ledger   *token.Ledger
	registry *nft.Registry
	vault    *vesting.Engine
	market   *market.Engine
	events   *events.Log

	vaultOwner  common.Address
	marketOwner common.Address
	treasury    common.Address

	sinks  []events.Sink
	logger *logrus.Entry
}

// Run executes f against fresh engines. The report covers every step
// reached; the first failing step stops the run and its error wraps
// ErrExpectation or the engine error.
func Run(ctx context.Context, f *File, opts ...Option) (*Report, error) {
	r := &runner{f: f, logger: logging.Discard()}
	for _, o := range opts {
		o(r)
	}
	if err := r.setup(); err != nil {
		return nil, err
	}

	rep := newReport(f)
	var runErr error
	for i, s := range f.Steps {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		res, err := r.step(i, s)
		rep.Steps = append(rep.Steps, res)
		if err != nil {
			runErr = fmt.Errorf("step %d (%s): %w", i+1, s.Action, err)
			break
		}
	}
	r.summarise(rep)
	return rep, runErr
}

func (r *runner) setup() error {
	book, err := newBook(r.f)
	if err != nil {
		return err
	}
	r.book = book
	if r.vaultOwner, err = book.Resolve(r.f.Roles.VaultOwner); err != nil {
		return err
	}
	if r.marketOwner, err = book.Resolve(r.f.Roles.MarketOwner); err != nil {
		return err
	}
	if r.treasury, err = book.Resolve(r.f.Roles.Treasury); err != nil {
		return err
	}
	vaultAddr, err := book.Resolve(AliasVault)
	if err != nil {
		return err
	}
	marketAddr, err := book.Resolve(AliasMarket)
	if err != nil {
		return err
	}

	r.clock = clock.NewManual(r.f.Start)
	r.ledger = token.NewLedger(r.f.Token.Symbol)
	r.registry = nft.NewRegistry()
	r.events = events.NewLog()
	bus := events.NewBus(append([]events.Sink{r.events}, r.sinks...)...)

	royalties, err := r.royaltyTable()
	if err != nil {
		return err
	}
	r.vault = vesting.New(vaultAddr, r.treasury, auth.NewRoles(r.vaultOwner), r.ledger, r.clock, bus,
		vesting.WithLogger(r.logger),
		vesting.WithVestedPayoutOnRevoke(r.f.Vesting.PayVestedOnRevoke),
	)
	r.market = market.New(marketAddr, auth.NewRoles(r.marketOwner), r.ledger, r.registry, royalties, r.clock, bus,
		market.WithLogger(r.logger),
	)

	aliases := make([]string, 0, len(r.f.Mint))
	for a := range r.f.Mint {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	for _, a := range aliases {
		addr, err := book.Resolve(a)
		if err != nil {
			return err
		}
		amount, err := r.parseAmount(r.f.Mint[a])
		if err != nil {
			return fmt.Errorf("mint for %s: %w", a, err)
		}
		if err := r.ledger.Mint(addr, amount); err != nil {
			return fmt.Errorf("mint for %s: %w", a, err)
		}
	}

	allowance := r.ledger.BalanceOf(r.treasury)
	if r.f.Vesting.TreasuryAllowance != "" {
		if allowance, err = r.parseAmount(r.f.Vesting.TreasuryAllowance); err != nil {
			return fmt.Errorf("treasury allowance: %w", err)
		}
	}
	if err := r.ledger.Approve(r.treasury, vaultAddr, allowance); err != nil {
		return fmt.Errorf("treasury allowance: %w", err)
	}

	for _, n := range r.f.NFTs {
		collection, tokenID, err := book.tokenRef(n.Token)
		if err != nil {
			return err
		}
		owner, err := book.Resolve(n.Owner)
		if err != nil {
			return err
		}
		if err := r.registry.Mint(collection, tokenID, owner); err != nil {
			return fmt.Errorf("minting %s: %w", n.Token, err)
		}
		if n.Approve {
			if err := r.registry.Approve(owner, collection, tokenID, marketAddr); err != nil {
				return fmt.Errorf("approving %s: %w", n.Token, err)
			}
		}
	}

	for _, c := range r.f.Whitelist {
		collection, err := book.Resolve(c)
		if err != nil {
			return err
		}
		if err := r.market.UpdateCollectionsWhitelist(r.marketOwner, collection, true); err != nil {
			return fmt.Errorf("whitelisting %s: %w", c, err)
		}
	}
	if r.f.Roles.Claimer != "" {
		claimer, err := book.Resolve(r.f.Roles.Claimer)
		if err != nil {
			return err
		}
		if err := r.vault.SetClaimer(r.vaultOwner, claimer); err != nil {
			return fmt.Errorf("setting claimer: %w", err)
		}
	}
	return nil
}

func (r *runner) royaltyTable() (*market.RoyaltyTable, error) {
	var receiver common.Address
	if r.f.Market.DefaultRoyaltyReceiver != "" {
		addr, err := r.book.Resolve(r.f.Market.DefaultRoyaltyReceiver)
		if err != nil {
			return nil, err
		}
		receiver = addr
	}
	table, err := market.NewRoyaltyTable(receiver, r.f.Market.DefaultRoyaltyBps)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for _, rr := range r.f.Market.Royalties {
		collection, err := r.book.Resolve(rr.Collection)
		if err != nil {
			return nil, err
		}
		to, err := r.book.Resolve(rr.Receiver)
		if err != nil {
			return nil, err
		}
		if err := table.Set(collection, to, rr.Bps); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	return table, nil
}

func (r *runner) step(i int, s Step) (StepResult, error) {
	res := StepResult{
		Index:  i + 1,
		Time:   r.clock.Now(),
		Action: s.Action,
		As:     s.As,
		Args:   formatArgs(s.Args),
	}
	var caller common.Address
	if !callerless[s.Action] {
		addr, err := r.book.Resolve(s.As)
		if err != nil {
			return res.fail(err)
		}
		caller = addr
	}

	out, err := actions[s.Action](r, s, caller)
	if errors.Is(err, ErrInvalid) {
		return res.fail(err)
	}
	if s.Expect != nil && s.Expect.Error != "" {
		want := namedErrors[s.Expect.Error]
		switch {
		case err == nil:
			return res.fail(fmt.Errorf("%w: wanted %s, step succeeded", ErrExpectation, s.Expect.Error))
		case !errors.Is(err, want):
			return res.fail(fmt.Errorf("%w: wanted %s, got: %w", ErrExpectation, s.Expect.Error, err))
		}
		res.Result = "rejected: " + s.Expect.Error
		return res, nil
	}
	if err != nil {
		return res.fail(err)
	}
	if err := r.checkExpect(s.Expect, out); err != nil {
		return res.fail(err)
	}
	res.Result = out.summary
	return res, nil
}

func (r *runner) checkExpect(e *Expect, out outcome) error {
	if e == nil {
		return nil
	}
	for _, c := range []struct {
		name string
		want string
		got  *big.Int
	}{
		{"amount", e.Amount, out.amount},
		{"royalty", e.Royalty, out.royalty},
		{"proceeds", e.Proceeds, out.proceeds},
	} {
		if c.want == "" {
			continue
		}
		want, err := r.parseAmount(c.want)
		if err != nil {
			return fmt.Errorf("%w: expected %s: %w", ErrInvalid, c.name, err)
		}
		if c.got == nil || c.got.Cmp(want) != 0 {
			return fmt.Errorf("%w: %s is %s, wanted %s", ErrExpectation, c.name, r.fmtAmount(c.got), r.fmtAmount(want))
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Vault actions
// ---------------------------------------------------------------------------

func (r *runner) addGrant(s Step, caller common.Address) (outcome, error) {
	recipient, err := r.argAddr(s, "recipient", "")
	if err != nil {
		return outcome{}, err
	}
	amount, err := r.argAmount(s, "amount")
	if err != nil {
		return outcome{}, err
	}
	duration, err := r.argUint(s, "duration")
	if err != nil {
		return outcome{}, err
	}
	cliff, err := r.argUint(s, "cliff")
	if err != nil {
		return outcome{}, err
	}
	if err := r.vault.AddTokenGrant(caller, recipient, amount, duration, cliff); err != nil {
		return outcome{}, err
	}
	return outcome{summary: "granted " + r.fmtAmount(amount), amount: amount}, nil
}

func (r *runner) claim(s Step, caller common.Address) (outcome, error) {
	recipient, err := r.argAddr(s, "recipient", s.As)
	if err != nil {
		return outcome{}, err
	}
	paid, err := r.vault.ClaimVestedTokensForRecipient(caller, recipient)
	if err != nil {
		return outcome{}, err
	}
	months := r.vault.GrantMonthsClaimed(recipient)
	return outcome{summary: fmt.Sprintf("paid %s (%d months)", r.fmtAmount(paid), months), amount: paid}, nil
}

func (r *runner) revoke(s Step, caller common.Address) (outcome, error) {
	recipient, err := r.argAddr(s, "recipient", "")
	if err != nil {
		return outcome{}, err
	}
	before, _ := r.vault.Grant(recipient)
	treasuryBefore := r.ledger.BalanceOf(r.treasury)
	if err := r.vault.RevokeTokenGrant(caller, recipient); err != nil {
		return outcome{}, err
	}
	after, _ := r.vault.Grant(recipient)
	paid := new(big.Int).Sub(after.Claimed, before.Claimed)
	returned := new(big.Int).Sub(r.ledger.BalanceOf(r.treasury), treasuryBefore)
	return outcome{
		summary: fmt.Sprintf("paid %s, returned %s", r.fmtAmount(paid), r.fmtAmount(returned)),
		amount:  returned,
	}, nil
}

func (r *runner) setClaimer(s Step, caller common.Address) (outcome, error) {
	claimer, err := r.argAddr(s, "claimer", "")
	if err != nil {
		return outcome{}, err
	}
	if err := r.vault.SetClaimer(caller, claimer); err != nil {
		return outcome{}, err
	}
	return outcome{summary: "claimer " + r.book.Name(claimer)}, nil
}

// ---------------------------------------------------------------------------
// Marketplace actions
// ---------------------------------------------------------------------------

func (r *runner) whitelist(s Step, caller common.Address) (outcome, error) {
	collection, err := r.argAddr(s, "collection", "")
	if err != nil {
		return outcome{}, err
	}
	allowed := true
	if v, ok := s.Args["allowed"]; ok {
		if allowed, err = strconv.ParseBool(v); err != nil {
			return outcome{}, fmt.Errorf("%w: allowed %q", ErrInvalid, v)
		}
	}
	if err := r.market.UpdateCollectionsWhitelist(caller, collection, allowed); err != nil {
		return outcome{}, err
	}
	if allowed {
		return outcome{summary: "whitelisted"}, nil
	}
	return outcome{summary: "delisted collection"}, nil
}

func (r *runner) list(s Step, caller common.Address) (outcome, error) {
	collection, tokenID, err := r.argToken(s)
	if err != nil {
		return outcome{}, err
	}
	price, err := r.argAmount(s, "price")
	if err != nil {
		return outcome{}, err
	}
	if err := r.market.ListItem(caller, collection, tokenID, price); err != nil {
		return outcome{}, err
	}
	return outcome{summary: "listed at " + r.fmtAmount(price), amount: price}, nil
}

func (r *runner) update(s Step, caller common.Address) (outcome, error) {
	collection, tokenID, err := r.argToken(s)
	if err != nil {
		return outcome{}, err
	}
	price, err := r.argAmount(s, "price")
	if err != nil {
		return outcome{}, err
	}
	if err := r.market.UpdateListing(caller, collection, tokenID, price); err != nil {
		return outcome{}, err
	}
	return outcome{summary: "repriced to " + r.fmtAmount(price), amount: price}, nil
}

func (r *runner) cancel(s Step, caller common.Address) (outcome, error) {
	collection, tokenID, err := r.argToken(s)
	if err != nil {
		return outcome{}, err
	}
	if err := r.market.CancelListing(caller, collection, tokenID); err != nil {
		return outcome{}, err
	}
	return outcome{summary: "cancelled"}, nil
}

func (r *runner) forceCancel(s Step, caller common.Address) (outcome, error) {
	collection, tokenID, err := r.argToken(s)
	if err != nil {
		return outcome{}, err
	}
	if err := r.market.ForceCancelListing(caller, collection, tokenID); err != nil {
		return outcome{}, err
	}
	return outcome{summary: "force cancelled"}, nil
}

func (r *runner) buy(s Step, caller common.Address) (outcome, error) {
	collection, tokenID, err := r.argToken(s)
	if err != nil {
		return outcome{}, err
	}
	split, err := r.market.BuyItem(caller, collection, tokenID)
	if err != nil {
		return outcome{}, err
	}
	summary := fmt.Sprintf("paid %s, seller gets %s", r.fmtAmount(split.Price), r.fmtAmount(split.Proceeds))
	if split.Royalty.Sign() > 0 {
		summary += fmt.Sprintf(", royalty %s to %s", r.fmtAmount(split.Royalty), r.book.Name(split.Receiver))
	}
	return outcome{summary: summary, amount: split.Price, royalty: split.Royalty, proceeds: split.Proceeds}, nil
}

// ---------------------------------------------------------------------------
// Ledger and registry actions
// ---------------------------------------------------------------------------

func (r *runner) approve(s Step, caller common.Address) (outcome, error) {
	spender, err := r.argAddr(s, "spender", AliasMarket)
	if err != nil {
		return outcome{}, err
	}
	amount, err := r.argAmount(s, "amount")
	if err != nil {
		return outcome{}, err
	}
	if err := r.ledger.Approve(caller, spender, amount); err != nil {
		return outcome{}, err
	}
	return outcome{summary: fmt.Sprintf("%s may spend %s", r.book.Name(spender), r.fmtAmount(amount))}, nil
}

func (r *runner) approveNFT(s Step, caller common.Address) (outcome, error) {
	collection, tokenID, err := r.argToken(s)
	if err != nil {
		return outcome{}, err
	}
	operator, err := r.argAddr(s, "operator", AliasMarket)
	if err != nil {
		return outcome{}, err
	}
	if err := r.registry.Approve(caller, collection, tokenID, operator); err != nil {
		return outcome{}, err
	}
	return outcome{summary: "approved " + r.book.Name(operator)}, nil
}

func (r *runner) transfer(s Step, caller common.Address) (outcome, error) {
	to, err := r.argAddr(s, "to", "")
	if err != nil {
		return outcome{}, err
	}
	amount, err := r.argAmount(s, "amount")
	if err != nil {
		return outcome{}, err
	}
	if err := r.ledger.Transfer(caller, to, amount); err != nil {
		return outcome{}, err
	}
	return outcome{summary: "sent " + r.fmtAmount(amount), amount: amount}, nil
}

func (r *runner) transferNFT(s Step, caller common.Address) (outcome, error) {
	collection, tokenID, err := r.argToken(s)
	if err != nil {
		return outcome{}, err
	}
	to, err := r.argAddr(s, "to", "")
	if err != nil {
		return outcome{}, err
	}
	owner, err := r.registry.OwnerOf(collection, tokenID)
	if err != nil {
		return outcome{}, err
	}
	if owner != caller && !r.registry.IsApproved(collection, tokenID, caller) {
		return outcome{}, fmt.Errorf("%w: %s", nft.ErrNotOwner, r.book.tokenName(collection, tokenID))
	}
	if err := r.registry.Transfer(collection, tokenID, owner, to); err != nil {
		return outcome{}, err
	}
	return outcome{summary: "moved to " + r.book.Name(to)}, nil
}

func (r *runner) mint(s Step, _ common.Address) (outcome, error) {
	to, err := r.argAddr(s, "to", "")
	if err != nil {
		return outcome{}, err
	}
	amount, err := r.argAmount(s, "amount")
	if err != nil {
		return outcome{}, err
	}
	if err := r.ledger.Mint(to, amount); err != nil {
		return outcome{}, err
	}
	return outcome{summary: "minted " + r.fmtAmount(amount), amount: amount}, nil
}

// ---------------------------------------------------------------------------
// Time and assertions
// ---------------------------------------------------------------------------

func (r *runner) advance(s Step, _ common.Address) (outcome, error) {
	months, err := r.optUint(s, "months")
	if err != nil {
		return outcome{}, err
	}
	days, err := r.optUint(s, "days")
	if err != nil {
		return outcome{}, err
	}
	if months == 0 && days == 0 {
		return outcome{}, fmt.Errorf("%w: advance needs months or days", ErrInvalid)
	}
	r.clock.AdvanceMonths(int(months))
	now := r.clock.Advance(time.Duration(days) * 24 * time.Hour)
	return outcome{summary: "now " + now.Format("2006-01-02")}, nil
}

func (r *runner) assert(s Step, _ common.Address) (outcome, error) {
	var failures []string
	checks := 0
	check := func(what string, got, want *big.Int) {
		checks++
		if got.Cmp(want) != 0 {
			failures = append(failures, fmt.Sprintf("%s is %s, wanted %s", what, r.fmtAmount(got), r.fmtAmount(want)))
		}
	}

	for _, alias := range sortedKeys(s.Balances) {
		addr, err := r.book.Resolve(alias)
		if err != nil {
			return outcome{}, err
		}
		want, err := r.parseAmount(s.Balances[alias])
		if err != nil {
			return outcome{}, fmt.Errorf("%w: balance of %s: %w", ErrInvalid, alias, err)
		}
		check("balance of "+alias, r.ledger.BalanceOf(addr), want)
	}
	for _, alias := range sortedKeys(s.Claimable) {
		addr, err := r.book.Resolve(alias)
		if err != nil {
			return outcome{}, err
		}
		want, err := r.parseAmount(s.Claimable[alias])
		if err != nil {
			return outcome{}, fmt.Errorf("%w: claimable for %s: %w", ErrInvalid, alias, err)
		}
		got, err := r.vault.Claimable(addr)
		if err != nil {
			got = new(big.Int)
		}
		check("claimable for "+alias, got, want)
	}
	if s.TotalClaimed != "" {
		want, err := r.parseAmount(s.TotalClaimed)
		if err != nil {
			return outcome{}, fmt.Errorf("%w: total_claimed: %w", ErrInvalid, err)
		}
		check("total claimed", r.vault.TotalClaimedByAll(), want)
	}
	for _, ref := range sortedKeys(s.Owners) {
		checks++
		collection, tokenID, err := r.book.tokenRef(ref)
		if err != nil {
			return outcome{}, err
		}
		owner, err := r.registry.OwnerOf(collection, tokenID)
		if err != nil {
			return outcome{}, err
		}
		if got := r.book.Name(owner); got != s.Owners[ref] {
			failures = append(failures, fmt.Sprintf("owner of %s is %s, wanted %s", ref, got, s.Owners[ref]))
		}
	}
	for _, ref := range sortedKeys(s.Listings) {
		checks++
		collection, tokenID, err := r.book.tokenRef(ref)
		if err != nil {
			return outcome{}, err
		}
		l := r.market.GetListing(collection, tokenID)
		want := s.Listings[ref]
		if want == "none" {
			if l.Active() {
				failures = append(failures, fmt.Sprintf("%s is listed at %s, wanted none", ref, r.fmtAmount(l.Price)))
			}
			continue
		}
		price, err := r.parseAmount(want)
		if err != nil {
			return outcome{}, fmt.Errorf("%w: listing %s: %w", ErrInvalid, ref, err)
		}
		if !l.Active() || l.Price.Cmp(price) != 0 {
			failures = append(failures, fmt.Sprintf("%s is listed at %s, wanted %s", ref, r.fmtAmount(l.Price), r.fmtAmount(price)))
		}
	}

	if checks == 0 {
		return outcome{}, fmt.Errorf("%w: assert has nothing to check", ErrInvalid)
	}
	if len(failures) > 0 {
		return outcome{}, fmt.Errorf("%w: %s", ErrExpectation, strings.Join(failures, "; "))
	}
	return outcome{summary: fmt.Sprintf("%d checks passed", checks)}, nil
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func (r *runner) parseAmount(s string) (*big.Int, error) {
	return units.Amount(s, r.f.Token.Decimals)
}

func (r *runner) fmtAmount(v *big.Int) string {
	return units.FormatUnits(v, r.f.Token.Decimals) + " " + r.f.Token.Symbol
}

func (r *runner) arg(s Step, name string) (string, error) {
	v, ok := s.Args[name]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s needs %q", ErrInvalid, s.Action, name)
	}
	return v, nil
}

func (r *runner) argAddr(s Step, name, fallback string) (common.Address, error) {
	alias, ok := s.Args[name]
	if !ok || alias == "" {
		alias = fallback
	}
	if alias == "" {
		return common.Address{}, fmt.Errorf("%w: %s needs %q", ErrInvalid, s.Action, name)
	}
	return r.book.Resolve(alias)
}

func (r *runner) argAmount(s Step, name string) (*big.Int, error) {
	v, err := r.arg(s, name)
	if err != nil {
		return nil, err
	}
	amount, err := r.parseAmount(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, name, err)
	}
	return amount, nil
}

func (r *runner) argUint(s Step, name string) (uint64, error) {
	v, err := r.arg(s, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalid, name, v)
	}
	return n, nil
}

func (r *runner) optUint(s Step, name string) (uint64, error) {
	if _, ok := s.Args[name]; !ok {
		return 0, nil
	}
	return r.argUint(s, name)
}

func (r *runner) argToken(s Step) (common.Address, *big.Int, error) {
	ref, err := r.arg(s, "token")
	if err != nil {
		return common.Address{}, nil, err
	}
	return r.book.tokenRef(ref)
}

func formatArgs(args map[string]string) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, 0, len(args))
	for _, k := range sortedKeys(args) {
		parts = append(parts, k+"="+args[k])
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
