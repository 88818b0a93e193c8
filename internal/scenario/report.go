package scenario

import (
	"fmt"
	"io"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/Mohsinsiddi/w3vault/internal/events"
	"github.com/Mohsinsiddi/w3vault/internal/units"
)

// StepResult is one executed step.
type StepResult struct {
	Index  int
	Time   time.Time
	Action string
	As     string
	Args   string
	Result string
	Failed bool
}

func (s StepResult) fail(err error) (StepResult, error) {
	s.Failed = true
	s.Result = "FAIL: " + err.Error()
	return s, err
}

// Balance is an account's closing token balance.
type Balance struct {
	Alias  string
	Amount *big.Int
}

// GrantLine is a grant's closing state.
type GrantLine struct {
	Recipient     string
	Amount        *big.Int
	Claimed       *big.Int
	MonthsClaimed uint64
	Duration      uint64
	Cliff         uint64
	Revoked       bool
}

// ListingLine is an open listing at the end of the run.
type ListingLine struct {
	Token  string
	Seller string
	Price  *big.Int
}

// KindCount counts published events of one kind.
type KindCount struct {
	Kind  events.Kind
	Count int
}

// Report is the outcome of a run.
type Report struct {
	Name         string
	Start        time.Time
	End          time.Time
	Token        Token
	Steps        []StepResult
	Balances     []Balance
	Grants       []GrantLine
	Listings     []ListingLine
	TotalClaimed *big.Int
	Events       []KindCount
	// Envelopes is the full published event stream.
	Envelopes []events.Envelope
}

func newReport(f *File) *Report {
	return &Report{Name: f.Name, Start: f.Start, Token: f.Token}
}

// Failed reports whether any step failed.
func (r *Report) Failed() bool {
	for _, s := range r.Steps {
		if s.Failed {
			return true
		}
	}
	return false
}

func (r *runner) summarise(rep *Report) {
	rep.End = r.clock.Now()
	for _, alias := range r.book.Aliases() {
		addr, _ := r.book.Resolve(alias)
		rep.Balances = append(rep.Balances, Balance{Alias: alias, Amount: r.ledger.BalanceOf(addr)})
	}
	for _, g := range r.vault.Grants() {
		rep.Grants = append(rep.Grants, GrantLine{
			Recipient:     r.book.Name(g.Recipient),
			Amount:        g.Amount,
			Claimed:       g.Claimed,
			MonthsClaimed: g.MonthsClaimed,
			Duration:      g.DurationMonths,
			Cliff:         g.CliffMonths,
			Revoked:       g.Revoked,
		})
	}
	sort.SliceStable(rep.Grants, func(i, j int) bool { return rep.Grants[i].Recipient < rep.Grants[j].Recipient })
	for _, l := range r.market.Listings() {
		rep.Listings = append(rep.Listings, ListingLine{
			Token:  r.book.tokenName(l.Collection, l.TokenID),
			Seller: r.book.Name(l.Seller),
			Price:  l.Price,
		})
	}
	sort.SliceStable(rep.Listings, func(i, j int) bool { return rep.Listings[i].Token < rep.Listings[j].Token })
	rep.TotalClaimed = r.vault.TotalClaimedByAll()
	rep.Envelopes = r.events.All()
	for _, k := range events.Kinds() {
		if n := len(r.events.OfKind(k)); n > 0 {
			rep.Events = append(rep.Events, KindCount{Kind: k, Count: n})
		}
	}
}

func (r *Report) amount(v *big.Int) string {
	return units.FormatUnits(v, r.Token.Decimals) + " " + r.Token.Symbol
}

// WriteTo renders the report as plain text.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "scenario: %s\n", r.Name)
	fmt.Fprintf(&sb, "period:   %s .. %s\n", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	fmt.Fprintf(&sb, "token:    %s (%d decimals)\n", r.Token.Symbol, r.Token.Decimals)

	sb.WriteString("\nsteps:\n")
	for _, s := range r.Steps {
		as := s.As
		if as == "" {
			as = "-"
		}
		line := fmt.Sprintf("  %02d %s %-12s %-9s", s.Index, s.Time.Format("2006-01-02"), s.Action, as)
		line = strings.TrimRight(line+" "+s.Args, " ")
		fmt.Fprintf(&sb, "%s\n       => %s\n", line, s.Result)
	}

	sb.WriteString("\nbalances:\n")
	for _, b := range r.Balances {
		fmt.Fprintf(&sb, "  %-10s %s\n", b.Alias, r.amount(b.Amount))
	}

	sb.WriteString("\ngrants:\n")
	if len(r.Grants) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, g := range r.Grants {
		status := "active"
		if g.Revoked {
			status = "revoked"
		}
		fmt.Fprintf(&sb, "  %-10s %s, claimed %s, months %d/%d, cliff %d, %s\n",
			g.Recipient, r.amount(g.Amount), r.amount(g.Claimed), g.MonthsClaimed, g.Duration, g.Cliff, status)
	}
	fmt.Fprintf(&sb, "  total claimed: %s\n", r.amount(r.TotalClaimed))

	sb.WriteString("\nlistings:\n")
	if len(r.Listings) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, l := range r.Listings {
		fmt.Fprintf(&sb, "  %-10s %s by %s\n", l.Token, r.amount(l.Price), l.Seller)
	}

	total := 0
	for _, k := range r.Events {
		total += k.Count
	}
	fmt.Fprintf(&sb, "\nevents: %d\n", total)
	for _, k := range r.Events {
		fmt.Fprintf(&sb, "  %-18s %d\n", k.Kind, k.Count)
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// String renders the report as plain text.
func (r *Report) String() string {
	var sb strings.Builder
	_, _ = r.WriteTo(&sb)
	return sb.String()
}
