package indexer

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned by point reads that match nothing.
var ErrNotFound = errors.New("not found")

// Reader is the query side of the index.
type Reader interface {
	Checkpoint(ctx context.Context) (uint64, error)
	Listing(ctx context.Context, id string) (ListingRecord, error)
	Listings(ctx context.Context, filter ListingFilter) ([]ListingRecord, error)
	Grant(ctx context.Context, recipient common.Address) (GrantRecord, error)
	Grants(ctx context.Context) ([]GrantRecord, error)
	Events(ctx context.Context, afterSeq uint64, limit int) ([]RawEvent, error)
}

// ListingFilter narrows Listings. Zero values match everything.
type ListingFilter struct {
	Status *Status
	Seller common.Address
	Limit  int
}

// SQLiteStore keeps the index in a SQLite database in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

var _ Reader = (*SQLiteStore)(nil)

// Open creates or opens the index at path and applies the schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect index: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Update runs fn inside one transaction.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&Tx{tx: sqlTx, ctx: ctx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Checkpoint returns the index position of the last applied event, zero
// when empty.
func (s *SQLiteStore) Checkpoint(ctx context.Context) (uint64, error) {
	return checkpoint(ctx, s.db)
}

// Listing returns the listing with id.
func (s *SQLiteStore) Listing(ctx context.Context, id string) (ListingRecord, error) {
	row := s.db.QueryRowContext(ctx, listingSelect+" WHERE id = ?", strings.ToLower(id))
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ListingRecord{}, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	return l, err
}

// Listings returns listings matching filter, most recently updated first.
func (s *SQLiteStore) Listings(ctx context.Context, filter ListingFilter) ([]ListingRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, int(*filter.Status))
	}
	if filter.Seller != (common.Address{}) {
		where = append(where, "seller = ?")
		args = append(args, filter.Seller.Hex())
	}
	q := listingSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY updated_seq DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var out []ListingRecord
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Grant returns recipient's grant.
func (s *SQLiteStore) Grant(ctx context.Context, recipient common.Address) (GrantRecord, error) {
	row := s.db.QueryRowContext(ctx, grantSelect+" WHERE recipient = ?", recipient.Hex())
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return GrantRecord{}, fmt.Errorf("grant %s: %w", recipient.Hex(), ErrNotFound)
	}
	return g, err
}

// Grants returns every grant ordered by start time.
func (s *SQLiteStore) Grants(ctx context.Context) ([]GrantRecord, error) {
	rows, err := s.db.QueryContext(ctx, grantSelect+" ORDER BY start_time, recipient")
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	var out []GrantRecord
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Events returns up to limit raw events after afterSeq in sequence order.
func (s *SQLiteStore) Events(ctx context.Context, afterSeq uint64, limit int) ([]RawEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, source_seq, id, kind, topic, time, payload
		FROM events WHERE seq > ? ORDER BY seq LIMIT ?
	`, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []RawEvent
	for rows.Next() {
		var (
			e              RawEvent
			seq, src, nsec int64
		)
		if err := rows.Scan(&seq, &src, &e.ID, &e.Kind, &e.Topic, &nsec, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Seq = uint64(seq)
		e.SourceSeq = uint64(src)
		e.Time = time.Unix(0, nsec).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Tx is a write transaction.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// InsertEvent stores a raw envelope and returns the position the index gave
// it. e.Seq is ignored. An envelope whose ID is already stored is not
// inserted again and ok is false.
func (t *Tx) InsertEvent(e RawEvent) (seq uint64, ok bool, err error) {
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO events (id, source_seq, kind, topic, time, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, int64(e.SourceSeq), e.Kind, e.Topic, e.Time.UnixNano(), e.Payload)
	if err != nil {
		return 0, false, fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return uint64(id), true, nil
}

// SetCheckpoint records seq as the last applied event.
func (t *Tx) SetCheckpoint(seq uint64) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO checkpoint (id, last_seq) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_seq = excluded.last_seq
	`, int64(seq))
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

// Listing loads a listing; ok is false when absent.
func (t *Tx) Listing(id string) (ListingRecord, bool, error) {
	l, err := scanListing(t.tx.QueryRowContext(t.ctx, listingSelect+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return ListingRecord{}, false, nil
	}
	return l, err == nil, err
}

// PutListing inserts or replaces a listing.
func (t *Tx) PutListing(l ListingRecord) error {
	var buyer any
	if l.Buyer != "" {
		buyer = l.Buyer
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT OR REPLACE INTO listings
		(id, collection, token_id, seller, price, status, buyer, updated_seq, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.Collection, l.TokenID, l.Seller, l.Price, int(l.Status), buyer,
		int64(l.UpdatedSeq), l.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("put listing %s: %w", l.ID, err)
	}
	return nil
}

// Grant loads a grant; ok is false when absent.
func (t *Tx) Grant(recipient string) (GrantRecord, bool, error) {
	g, err := scanGrant(t.tx.QueryRowContext(t.ctx, grantSelect+" WHERE recipient = ?", recipient))
	if errors.Is(err, sql.ErrNoRows) {
		return GrantRecord{}, false, nil
	}
	return g, err == nil, err
}

// PutGrant inserts or replaces a grant.
func (t *Tx) PutGrant(g GrantRecord) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT OR REPLACE INTO grants
		(recipient, amount, duration_months, cliff_months, start_time,
		 months_claimed, claimed, returned, revoked, updated_seq, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.Recipient, g.Amount, int64(g.DurationMonths), int64(g.CliffMonths), g.StartTime.Unix(),
		int64(g.MonthsClaimed), g.Claimed, g.Returned, g.Revoked, int64(g.UpdatedSeq), g.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("put grant %s: %w", g.Recipient, err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func checkpoint(ctx context.Context, q queryer) (uint64, error) {
	var seq int64
	err := q.QueryRowContext(ctx, "SELECT last_seq FROM checkpoint WHERE id = 1").Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	return uint64(seq), nil
}

type scanner interface {
	Scan(dest ...any) error
}

const listingSelect = `SELECT id, collection, token_id, seller, price, status, buyer, updated_seq, updated_at FROM listings`

func scanListing(s scanner) (ListingRecord, error) {
	var (
		l              ListingRecord
		status         int
		buyer          sql.NullString
		seq, updatedAt int64
	)
	err := s.Scan(&l.ID, &l.Collection, &l.TokenID, &l.Seller, &l.Price, &status, &buyer, &seq, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return l, err
		}
		return l, fmt.Errorf("scan listing: %w", err)
	}
	l.Status = Status(status)
	l.Buyer = buyer.String
	l.UpdatedSeq = uint64(seq)
	l.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return l, nil
}

const grantSelect = `SELECT recipient, amount, duration_months, cliff_months, start_time,
	months_claimed, claimed, returned, revoked, updated_seq, updated_at FROM grants`

func scanGrant(s scanner) (GrantRecord, error) {
	var (
		g                              GrantRecord
		duration, cliff, start, months int64
		seq, updatedAt                 int64
	)
	err := s.Scan(&g.Recipient, &g.Amount, &duration, &cliff, &start,
		&months, &g.Claimed, &g.Returned, &g.Revoked, &seq, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return g, err
		}
		return g, fmt.Errorf("scan grant: %w", err)
	}
	g.DurationMonths = uint64(duration)
	g.CliffMonths = uint64(cliff)
	g.StartTime = time.Unix(start, 0).UTC()
	g.MonthsClaimed = uint64(months)
	g.UpdatedSeq = uint64(seq)
	g.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return g, nil
}
