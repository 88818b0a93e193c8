// Package indexer folds the event stream into queryable listing and grant
// records, keeping the raw events alongside them.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Mohsinsiddi/w3vault/internal/events"
	"github.com/Mohsinsiddi/w3vault/internal/logging"
	"github.com/Mohsinsiddi/w3vault/internal/nft"
)

// Handler applies envelopes to a store. Each envelope is applied in one
// transaction together with its raw copy and the checkpoint. Envelopes are
// recognised by ID, so replays and redeliveries change nothing, while a
// second publisher whose sequence numbers overlap the first is still applied.
type Handler struct {
	store *SQLiteStore
	log   *logrus.Entry
}

// NewHandler creates a handler writing to store.
func NewHandler(store *SQLiteStore, log *logrus.Entry) *Handler {
	if log == nil {
		log = logging.Discard()
	}
	return &Handler{store: store, log: log.WithField("component", "indexer")}
}

// Handle applies env.
func (h *Handler) Handle(ctx context.Context, env events.Envelope) error {
	if env.ID == "" {
		// Envelopes that skipped a Bus carry no ID; they cannot be deduplicated.
		env.ID = uuid.NewString()
		h.log.WithField("source_seq", env.Seq).Warn("event without id")
	}
	payload, err := events.Encode(env)
	if err != nil {
		return err
	}
	var pos uint64
	err = h.store.Update(ctx, func(tx *Tx) error {
		seq, ok, err := tx.InsertEvent(RawEvent{
			SourceSeq: env.Seq,
			ID:        env.ID,
			Kind:      string(env.Kind()),
			Topic:     env.Topic().Hex(),
			Time:      env.Time,
			Payload:   payload,
		})
		if err != nil || !ok {
			return err
		}
		if err := apply(tx, env, seq); err != nil {
			return fmt.Errorf("apply %s %s: %w", env.Kind(), env.ID, err)
		}
		pos = seq
		return tx.SetCheckpoint(seq)
	})
	if err != nil {
		return err
	}

	log := h.log.WithFields(logrus.Fields{"id": env.ID, "source_seq": env.Seq, "kind": env.Kind()})
	if pos > 0 {
		log.WithField("seq", pos).Debug("event indexed")
	} else {
		log.Debug("event already indexed")
	}
	return nil
}

// Run handles envelopes from in until it closes or ctx ends.
func (h *Handler) Run(ctx context.Context, in <-chan events.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-in:
			if !ok {
				return nil
			}
			if err := h.Handle(ctx, env); err != nil {
				h.log.WithError(err).WithField("id", env.ID).Error("index event")
				return err
			}
		}
	}
}

func apply(tx *Tx, env events.Envelope, seq uint64) error {
	at := env.Time
	switch ev := env.Event.(type) {
	case events.ItemListed:
		return tx.PutListing(ListingRecord{
			ID:         nft.Key(ev.Collection, ev.TokenID),
			Collection: ev.Collection.Hex(),
			TokenID:    ev.TokenID.String(),
			Seller:     ev.Seller.Hex(),
			Price:      ev.Price.String(),
			Status:     StatusListed,
			UpdatedSeq: seq,
			UpdatedAt:  at,
		})

	case events.ListingUpdated:
		return updateListing(tx, nft.Key(ev.Collection, ev.TokenID), seq, at, func(l *ListingRecord) {
			l.Price = ev.Price.String()
		})

	case events.ItemCancelled:
		return updateListing(tx, nft.Key(ev.Collection, ev.TokenID), seq, at, func(l *ListingRecord) {
			l.Status = StatusCancelled
		})

	case events.ItemBought:
		return updateListing(tx, nft.Key(ev.Collection, ev.TokenID), seq, at, func(l *ListingRecord) {
			l.Status = StatusBought
			l.Buyer = ev.Buyer.Hex()
		})

	case events.GrantAdded:
		return tx.PutGrant(GrantRecord{
			Recipient:      ev.Recipient.Hex(),
			Amount:         ev.Amount.String(),
			DurationMonths: ev.DurationMonths,
			CliffMonths:    ev.CliffMonths,
			StartTime:      ev.StartTime,
			Claimed:        "0",
			Returned:       "0",
			UpdatedSeq:     seq,
			UpdatedAt:      at,
		})

	case events.TokensClaimed:
		return updateGrant(tx, ev.Recipient.Hex(), seq, at, func(g *GrantRecord) error {
			claimed, err := addDecimal(g.Claimed, ev.Amount)
			if err != nil {
				return err
			}
			g.Claimed = claimed
			g.MonthsClaimed = ev.MonthsClaimed
			return nil
		})

	case events.GrantRevoked:
		return updateGrant(tx, ev.Recipient.Hex(), seq, at, func(g *GrantRecord) error {
			claimed, err := addDecimal(g.Claimed, ev.Vested)
			if err != nil {
				return err
			}
			g.Claimed = claimed
			g.Returned = ev.Returned.String()
			g.Revoked = true
			return nil
		})
	}
	// Whitelist and claimer changes only live in the raw log.
	return nil
}

// updateListing mutates an existing listing. Events for listings the index
// never saw are ignored.
func updateListing(tx *Tx, id string, seq uint64, at time.Time, fn func(*ListingRecord)) error {
	l, ok, err := tx.Listing(id)
	if err != nil || !ok {
		return err
	}
	fn(&l)
	l.UpdatedSeq = seq
	l.UpdatedAt = at
	return tx.PutListing(l)
}

func updateGrant(tx *Tx, recipient string, seq uint64, at time.Time, fn func(*GrantRecord) error) error {
	g, ok, err := tx.Grant(recipient)
	if err != nil || !ok {
		return err
	}
	if err := fn(&g); err != nil {
		return err
	}
	g.UpdatedSeq = seq
	g.UpdatedAt = at
	return tx.PutGrant(g)
}
