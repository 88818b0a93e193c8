package events

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownKind = errors.New("unknown event kind")
	ErrBadField    = errors.New("malformed event field")
)

// wire is the flat msgpack form of an Envelope. Amounts travel as decimal
// strings, addresses as checksummed hex.
type wire struct {
	Seq    uint64            `msgpack:"seq"`
	ID     string            `msgpack:"id"`
	Kind   string            `msgpack:"kind"`
	Topic  string            `msgpack:"topic"`
	Time   int64             `msgpack:"time"`
	Fields map[string]string `msgpack:"fields"`
}

// Encode serialises env with msgpack.
func Encode(env Envelope) ([]byte, error) {
	if env.Event == nil {
		return nil, fmt.Errorf("encode envelope %d: %w", env.Seq, ErrUnknownKind)
	}
	return msgpack.Marshal(wire{
		Seq:    env.Seq,
		ID:     env.ID,
		Kind:   string(env.Kind()),
		Topic:  env.Topic().Hex(),
		Time:   env.Time.UnixNano(),
		Fields: env.Event.fields(),
	})
}

// Decode is the inverse of Encode.
func Decode(data []byte) (Envelope, error) {
	var w wire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	dec, ok := decoders[Kind(w.Kind)]
	if !ok {
		return Envelope{}, fmt.Errorf("decode envelope %d: %w: %q", w.Seq, ErrUnknownKind, w.Kind)
	}
	r := fieldReader{f: w.Fields}
	ev := dec(&r)
	if r.err != nil {
		return Envelope{}, fmt.Errorf("decode %s envelope %d: %w", w.Kind, w.Seq, r.err)
	}
	return Envelope{
		Seq:   w.Seq,
		ID:    w.ID,
		Time:  time.Unix(0, w.Time).UTC(),
		Event: ev,
	}, nil
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (e GrantAdded) fields() map[string]string {
	return map[string]string{
		"recipient": e.Recipient.Hex(),
		"amount":    amount(e.Amount),
		"start":     strconv.FormatInt(e.StartTime.UnixNano(), 10),
		"duration":  strconv.FormatUint(e.DurationMonths, 10),
		"cliff":     strconv.FormatUint(e.CliffMonths, 10),
	}
}

func (e TokensClaimed) fields() map[string]string {
	return map[string]string{
		"recipient": e.Recipient.Hex(),
		"amount":    amount(e.Amount),
		"months":    strconv.FormatUint(e.MonthsClaimed, 10),
	}
}

func (e GrantRevoked) fields() map[string]string {
	return map[string]string{
		"recipient": e.Recipient.Hex(),
		"vested":    amount(e.Vested),
		"returned":  amount(e.Returned),
	}
}

func (e ClaimerChanged) fields() map[string]string {
	return map[string]string{
		"previous": e.Previous.Hex(),
		"claimer":  e.Claimer.Hex(),
	}
}

func (e ItemListed) fields() map[string]string {
	return map[string]string{
		"seller":     e.Seller.Hex(),
		"collection": e.Collection.Hex(),
		"token_id":   amount(e.TokenID),
		"price":      amount(e.Price),
	}
}

func (e ListingUpdated) fields() map[string]string {
	return map[string]string{
		"seller":     e.Seller.Hex(),
		"collection": e.Collection.Hex(),
		"token_id":   amount(e.TokenID),
		"price":      amount(e.Price),
	}
}

func (e ItemCancelled) fields() map[string]string {
	return map[string]string{
		"seller":     e.Seller.Hex(),
		"collection": e.Collection.Hex(),
		"token_id":   amount(e.TokenID),
		"forced":     strconv.FormatBool(e.Forced),
	}
}

func (e ItemBought) fields() map[string]string {
	return map[string]string{
		"buyer":            e.Buyer.Hex(),
		"seller":           e.Seller.Hex(),
		"collection":       e.Collection.Hex(),
		"token_id":         amount(e.TokenID),
		"price":            amount(e.Price),
		"royalty":          amount(e.Royalty),
		"royalty_receiver": e.RoyaltyReceiver.Hex(),
	}
}

func (e WhitelistUpdated) fields() map[string]string {
	return map[string]string{
		"collection": e.Collection.Hex(),
		"allowed":    strconv.FormatBool(e.Allowed),
	}
}

// fieldReader pulls typed values out of a wire field map, remembering the
// first failure.
type fieldReader struct {
	f   map[string]string
	err error
}

func (r *fieldReader) raw(name string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	v, ok := r.f[name]
	if !ok {
		r.err = fmt.Errorf("%w: missing %q", ErrBadField, name)
	}
	return v, ok
}

func (r *fieldReader) address(name string) common.Address {
	v, ok := r.raw(name)
	if !ok {
		return common.Address{}
	}
	if !common.IsHexAddress(v) {
		r.err = fmt.Errorf("%w: %s=%q is not an address", ErrBadField, name, v)
		return common.Address{}
	}
	return common.HexToAddress(v)
}

func (r *fieldReader) amount(name string) *big.Int {
	v, ok := r.raw(name)
	if !ok {
		return nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		r.err = fmt.Errorf("%w: %s=%q is not an integer", ErrBadField, name, v)
		return nil
	}
	return n
}

func (r *fieldReader) uint(name string) uint64 {
	v, ok := r.raw(name)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		r.err = fmt.Errorf("%w: %s: %v", ErrBadField, name, err)
	}
	return n
}

func (r *fieldReader) unixNano(name string) time.Time {
	v, ok := r.raw(name)
	if !ok {
		return time.Time{}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.err = fmt.Errorf("%w: %s: %v", ErrBadField, name, err)
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (r *fieldReader) bool(name string) bool {
	v, ok := r.raw(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.err = fmt.Errorf("%w: %s: %v", ErrBadField, name, err)
	}
	return b
}

var decoders = map[Kind]func(r *fieldReader) Event{
	KindGrantAdded: func(r *fieldReader) Event {
		return GrantAdded{
			Recipient:      r.address("recipient"),
			Amount:         r.amount("amount"),
			StartTime:      r.unixNano("start"),
			DurationMonths: r.uint("duration"),
			CliffMonths:    r.uint("cliff"),
		}
	},
	KindTokensClaimed: func(r *fieldReader) Event {
		return TokensClaimed{
			Recipient:     r.address("recipient"),
			Amount:        r.amount("amount"),
			MonthsClaimed: r.uint("months"),
		}
	},
	KindGrantRevoked: func(r *fieldReader) Event {
		return GrantRevoked{
			Recipient: r.address("recipient"),
			Vested:    r.amount("vested"),
			Returned:  r.amount("returned"),
		}
	},
	KindClaimerChanged: func(r *fieldReader) Event {
		return ClaimerChanged{
			Previous: r.address("previous"),
			Claimer:  r.address("claimer"),
		}
	},
	KindItemListed: func(r *fieldReader) Event {
		return ItemListed{
			Seller:     r.address("seller"),
			Collection: r.address("collection"),
			TokenID:    r.amount("token_id"),
			Price:      r.amount("price"),
		}
	},
	KindListingUpdated: func(r *fieldReader) Event {
		return ListingUpdated{
			Seller:     r.address("seller"),
			Collection: r.address("collection"),
			TokenID:    r.amount("token_id"),
			Price:      r.amount("price"),
		}
	},
	KindItemCancelled: func(r *fieldReader) Event {
		return ItemCancelled{
			Seller:     r.address("seller"),
			Collection: r.address("collection"),
			TokenID:    r.amount("token_id"),
			Forced:     r.bool("forced"),
		}
	},
	KindItemBought: func(r *fieldReader) Event {
		return ItemBought{
			Buyer:           r.address("buyer"),
			Seller:          r.address("seller"),
			Collection:      r.address("collection"),
			TokenID:         r.amount("token_id"),
			Price:           r.amount("price"),
			Royalty:         r.amount("royalty"),
			RoyaltyReceiver: r.address("royalty_receiver"),
		}
	},
	KindWhitelistUpdated: func(r *fieldReader) Event {
		return WhitelistUpdated{
			Collection: r.address("collection"),
			Allowed:    r.bool("allowed"),
		}
	},
}
