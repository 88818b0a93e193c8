package indexer

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Status is a listing's indexed state.
type Status int

const (
	StatusListed Status = iota
	StatusCancelled
	StatusBought
)

func (s Status) String() string {
	switch s {
	case StatusListed:
		return "listed"
	case StatusCancelled:
		return "cancelled"
	case StatusBought:
		return "bought"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus accepts a status name or its number.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "listed", "0":
		return StatusListed, nil
	case "cancelled", "canceled", "1":
		return StatusCancelled, nil
	case "bought", "sold", "2":
		return StatusBought, nil
	}
	return 0, fmt.Errorf("unknown listing status %q (use listed, cancelled or bought)", s)
}

// ListingRecord is the indexed view of one token's most recent listing.
type ListingRecord struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	TokenID    string    `json:"tokenId"`
	Seller     string    `json:"seller"`
	Price      string    `json:"price"`
	Status     Status    `json:"status"`
	Buyer      string    `json:"buyer,omitempty"`
	UpdatedSeq uint64    `json:"updatedSeq"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// GrantRecord is the indexed view of a vesting grant.
type GrantRecord struct {
	Recipient      string    `json:"recipient"`
	Amount         string    `json:"amount"`
	DurationMonths uint64    `json:"durationMonths"`
	CliffMonths    uint64    `json:"cliffMonths"`
	StartTime      time.Time `json:"startTime"`
	MonthsClaimed  uint64    `json:"monthsClaimed"`
	Claimed        string    `json:"claimed"`
	Returned       string    `json:"returned"`
	Revoked        bool      `json:"revoked"`
	UpdatedSeq     uint64    `json:"updatedSeq"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// RawEvent is a stored envelope. Seq is its position in the index and
// SourceSeq the publisher's sequence number.
type RawEvent struct {
	Seq       uint64
	SourceSeq uint64
	ID        string
	Kind    string
	Topic   string
	Time    time.Time
	Payload []byte
}

func addDecimal(a string, b *big.Int) (string, error) {
	n, ok := new(big.Int).SetString(a, 10)
	if !ok {
		return "", fmt.Errorf("stored amount %q is not an integer", a)
	}
	if b != nil {
		n.Add(n, b)
	}
	return n.String(), nil
}
