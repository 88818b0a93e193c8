package ui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mohsinsiddi/w3vault/internal/events"
)

// maxFeedRows caps how many envelopes the feed keeps.
const maxFeedRows = 200

var spinFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// FeedEventMsg delivers one envelope to the feed.
type FeedEventMsg struct{ Envelope events.Envelope }

// FeedClosedMsg reports that the source stream ended.
type FeedClosedMsg struct{ Err error }

// FeedModel is the Bubble Tea model for the live event stream.
type FeedModel struct {
	Channel  string
	Rows     []events.Envelope
	Closed   bool
	ErrMsg   string
	Frame    int
	Quitting bool

	cursor   int
	expanded bool
	counts   map[events.Kind]int
}

// NewFeedModel returns an empty feed for channel.
func NewFeedModel(channel string) FeedModel {
	return FeedModel{Channel: channel, counts: make(map[events.Kind]int)}
}

type feedTickMsg struct{}

func feedSpinTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return feedTickMsg{}
	})
}

func (m FeedModel) Init() tea.Cmd { return feedSpinTick() }

func (m FeedModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.Rows)-1 {
				m.cursor++
			}
		case "enter", " ":
			m.expanded = !m.expanded
		}

	case feedTickMsg:
		if m.Closed {
			return m, nil
		}
		m.Frame = (m.Frame + 1) % len(spinFrames)
		return m, feedSpinTick()

	case FeedEventMsg:
		// Newest first; keep the cursor on the row it was on.
		m.Rows = append([]events.Envelope{msg.Envelope}, m.Rows...)
		if len(m.Rows) > maxFeedRows {
			m.Rows = m.Rows[:maxFeedRows]
		}
		if m.cursor > 0 {
			m.cursor = min(m.cursor+1, len(m.Rows)-1)
		}
		if m.counts == nil {
			m.counts = make(map[events.Kind]int)
		}
		m.counts[msg.Envelope.Kind()]++

	case FeedClosedMsg:
		m.Closed = true
		if msg.Err != nil {
			m.ErrMsg = msg.Err.Error()
		}
	}

	return m, nil
}

// Selected returns the envelope under the cursor.
func (m FeedModel) Selected() (events.Envelope, bool) {
	if m.cursor >= len(m.Rows) {
		return events.Envelope{}, false
	}
	return m.Rows[m.cursor], true
}

func (m FeedModel) View() string {
	if m.Quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(StyleTitle.Render("👁  Live Events  ·  "+m.Channel) + "\n")

	switch {
	case m.ErrMsg != "":
		sb.WriteString(StyleError.Render("✗ "+m.ErrMsg) + "\n\n")
	case m.Closed:
		sb.WriteString(StyleMeta.Render("  stream closed") + "\n\n")
	default:
		sb.WriteString(StyleInfo.Render(fmt.Sprintf("%s listening…", spinFrames[m.Frame])) + "\n\n")
	}

	const (
		wSeq  = 8
		wKind = 18
		wTime = 20
	)
	sep := StyleMeta.Render(strings.Repeat("─", wSeq+wKind+wTime+40))
	sb.WriteString(
		padR(StyleDim.Render("SEQ"), wSeq) + "  " +
			padR(StyleDim.Render("KIND"), wKind) + "  " +
			padR(StyleDim.Render("TIME"), wTime) + "  " +
			StyleDim.Render("SUMMARY") + "\n",
	)
	sb.WriteString(sep + "\n")

	if len(m.Rows) == 0 {
		sb.WriteString(StyleMeta.Render("  Waiting for events…") + "\n")
	} else {
		for i, env := range m.Rows {
			line := padR(StyleMeta.Render(fmt.Sprintf("#%d", env.Seq)), wSeq) + "  " +
				padR(KindName(string(env.Kind())), wKind) + "  " +
				padR(StyleMeta.Render(env.Time.UTC().Format("2006-01-02 15:04:05")), wTime) + "  " +
				Summary(env)
			if i == m.cursor {
				sb.WriteString(StyleSelected.Render(line) + "\n")
				if m.expanded {
					sb.WriteString(fieldLines(env))
				}
			} else {
				sb.WriteString(line + "\n")
			}
		}
		sb.WriteString(sep + "\n")
		sb.WriteString(StyleMeta.Render("  "+m.tally()) + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(feedControls())
	sb.WriteString("\n")
	return sb.String()
}

func (m FeedModel) tally() string {
	parts := make([]string, 0, len(m.counts))
	for _, k := range events.Kinds() {
		if n := m.counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", k, n))
		}
	}
	return fmt.Sprintf("%d event(s)  %s", len(m.Rows), strings.Join(parts, " · "))
}

func fieldLines(env events.Envelope) string {
	f := env.Fields()
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString("      " + StyleMeta.Render(fmt.Sprintf("%-18s", k)) + " " + Val(f[k]) + "\n")
	}
	return sb.String()
}

// Summary is a one-line description of an envelope's payload.
func Summary(env events.Envelope) string {
	f := env.Fields()
	short := func(name string) string { return TruncateAddr(f[name]) }
	switch env.Kind() {
	case events.KindGrantAdded:
		return fmt.Sprintf("%s ← %s over %s months, cliff %s", short("recipient"), f["amount"], f["duration"], f["cliff"])
	case events.KindTokensClaimed:
		return fmt.Sprintf("%s claimed %s (%s months)", short("recipient"), f["amount"], f["months"])
	case events.KindGrantRevoked:
		return fmt.Sprintf("%s revoked, %s returned", short("recipient"), f["returned"])
	case events.KindClaimerChanged:
		return fmt.Sprintf("%s → %s", short("previous"), short("claimer"))
	case events.KindItemListed, events.KindListingUpdated:
		return fmt.Sprintf("%s #%s at %s by %s", short("collection"), f["token_id"], f["price"], short("seller"))
	case events.KindItemCancelled:
		return fmt.Sprintf("%s #%s by %s", short("collection"), f["token_id"], short("seller"))
	case events.KindItemBought:
		return fmt.Sprintf("%s #%s for %s by %s (royalty %s)", short("collection"), f["token_id"], f["price"], short("buyer"), f["royalty"])
	case events.KindWhitelistUpdated:
		return fmt.Sprintf("%s allowed=%s", short("collection"), f["allowed"])
	}
	return ""
}

func feedControls() string {
	sep := StyleMeta.Render("   ")
	var sb strings.Builder
	sb.WriteString(StyleMeta.Render("[ ↑↓ ]"))
	sb.WriteString(StyleMeta.Render(" navigate"))
	sb.WriteString(sep)
	sb.WriteString(StyleInfo.Render("[ enter ]"))
	sb.WriteString(StyleMeta.Render(" fields"))
	sb.WriteString(sep)
	sb.WriteString(StyleMeta.Render("[ q ]"))
	sb.WriteString(StyleMeta.Render(" quit"))
	return sb.String()
}

// RunFeed shows src in a full-screen feed until the user quits or ctx ends.
func RunFeed(ctx context.Context, channel string, src <-chan events.Envelope) error {
	p := tea.NewProgram(NewFeedModel(channel), tea.WithAltScreen(), tea.WithContext(ctx))
	go func() {
		for env := range src {
			p.Send(FeedEventMsg{Envelope: env})
		}
		p.Send(FeedClosedMsg{Err: ctx.Err()})
	}()
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
