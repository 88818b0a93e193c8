// Package api serves the index over HTTP as JSON.
package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/Mohsinsiddi/w3vault/internal/indexer"
	"github.com/Mohsinsiddi/w3vault/internal/logging"
)

const maxLimit = 500

// Server exposes an indexer.Reader.
type Server struct {
	app   *fiber.App
	store indexer.Reader
	log   *logrus.Entry
}

type healthzResponse struct {
	OK         bool   `json:"ok"`
	Now        int64  `json:"now"`
	Checkpoint uint64 `json:"checkpoint"`
	Error      string `json:"error,omitempty"`
}

type eventResponse struct {
	Seq       uint64    `json:"seq"`
	SourceSeq uint64    `json:"sourceSeq"`
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Topic     string    `json:"topic"`
	Time      time.Time `json:"time"`
}

// New builds the routes.
func New(store indexer.Reader, log *logrus.Entry) *Server {
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{
		app:   fiber.New(fiber.Config{DisableStartupMessage: true}),
		store: store,
		log:   log.WithField("component", "api"),
	}
	s.app.Get("/healthz", s.healthz)
	s.app.Get("/listings", s.listings)
	s.app.Get("/listings/:id", s.listing)
	s.app.Get("/grants", s.grants)
	s.app.Get("/grants/:recipient", s.grant)
	s.app.Get("/events", s.events)
	return s
}

// App returns the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.WithField("addr", addr).Info("serving index")
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits up to timeout for open
// requests to finish.
func (s *Server) Shutdown(timeout time.Duration) error { return s.app.ShutdownWithTimeout(timeout) }

func (s *Server) healthz(c *fiber.Ctx) error {
	resp := healthzResponse{OK: true, Now: time.Now().Unix()}
	seq, err := s.store.Checkpoint(c.UserContext())
	if err != nil {
		resp.OK = false
		resp.Error = err.Error()
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	resp.Checkpoint = seq
	return c.JSON(resp)
}

func (s *Server) listings(c *fiber.Ctx) error {
	var filter indexer.ListingFilter
	if v := c.Query("status"); v != "" {
		st, err := indexer.ParseStatus(v)
		if err != nil {
			return badRequest(c, err.Error())
		}
		filter.Status = &st
	}
	if v := c.Query("seller"); v != "" {
		if !common.IsHexAddress(v) {
			return badRequest(c, "seller is not an address")
		}
		filter.Seller = common.HexToAddress(v)
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	filter.Limit = limit

	out, err := s.store.Listings(c.UserContext(), filter)
	if err != nil {
		return s.internal(c, err)
	}
	if out == nil {
		out = []indexer.ListingRecord{}
	}
	return c.JSON(out)
}

func (s *Server) listing(c *fiber.Ctx) error {
	l, err := s.store.Listing(c.UserContext(), c.Params("id"))
	if errors.Is(err, indexer.ErrNotFound) {
		return notFound(c, "listing not found")
	}
	if err != nil {
		return s.internal(c, err)
	}
	return c.JSON(l)
}

func (s *Server) grants(c *fiber.Ctx) error {
	out, err := s.store.Grants(c.UserContext())
	if err != nil {
		return s.internal(c, err)
	}
	if out == nil {
		out = []indexer.GrantRecord{}
	}
	return c.JSON(out)
}

func (s *Server) grant(c *fiber.Ctx) error {
	r := c.Params("recipient")
	if !common.IsHexAddress(r) {
		return badRequest(c, "recipient is not an address")
	}
	g, err := s.store.Grant(c.UserContext(), common.HexToAddress(r))
	if errors.Is(err, indexer.ErrNotFound) {
		return notFound(c, "grant not found")
	}
	if err != nil {
		return s.internal(c, err)
	}
	return c.JSON(g)
}

func (s *Server) events(c *fiber.Ctx) error {
	var after uint64
	if v := c.Query("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "after must be a sequence number")
		}
		after = n
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	raw, err := s.store.Events(c.UserContext(), after, limit)
	if err != nil {
		return s.internal(c, err)
	}
	out := make([]eventResponse, 0, len(raw))
	for _, e := range raw {
		out = append(out, eventResponse{Seq: e.Seq, SourceSeq: e.SourceSeq, ID: e.ID, Kind: e.Kind, Topic: e.Topic, Time: e.Time})
	}
	return c.JSON(out)
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return min(n, maxLimit), nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msg})
}

func (s *Server) internal(c *fiber.Ctx, err error) error {
	s.log.WithError(err).WithField("path", c.Path()).Error("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
