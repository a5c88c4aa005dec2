// Package server implements the goplace presence server: websocket
// sessions, room membership and the moderation console.
//
// All session, room and directory state is owned by a single hub goroutine.
// Connection pumps and identity checks post closures to the hub instead of
// touching state, so every effect of one frame completes before the next
// frame is handled.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/goplace/pkg/catalog"
	"github.com/NicolasHaas/goplace/pkg/datastore"
	"github.com/NicolasHaas/goplace/pkg/directory"
	"github.com/NicolasHaas/goplace/pkg/filter"
	"github.com/NicolasHaas/goplace/pkg/identity"
	"github.com/NicolasHaas/goplace/pkg/model"
	"github.com/NicolasHaas/goplace/pkg/protocol"
	"github.com/NicolasHaas/goplace/pkg/rooms"
	"github.com/NicolasHaas/goplace/pkg/store"
)

// Dependencies holds external dependencies for the server. Stores left nil
// are kept in memory; a nil Catalog is empty and a nil Filter uses the
// built-in denylist.
type Dependencies struct {
	Accounts datastore.DataStore
	Verifier identity.Verifier
	Bans     *store.BanStore
	ModLog   *store.ModLog
	Mailbox  *store.Mailbox
	Rooms    []model.Room
	Catalog  *catalog.Catalog
	Filter   *filter.Filter
}

// Server is the goplace server.
type Server struct {
	cfg      Config
	dir      *directory.Directory
	rooms    *rooms.Catalog
	verifier identity.Verifier
	bans     *store.BanStore
	modLog   *store.ModLog
	mailbox  *store.Mailbox
	catalog  *catalog.Catalog
	filter   *filter.Filter
	metrics  *Metrics
	upgrader websocket.Upgrader
	now      func() time.Time

	events     chan func()
	conns      map[string]*conn
	globalMute bool
	stopping   bool

	started bool
	pumps   sync.WaitGroup

	httpSrv  *http.Server
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a Server. Call Run or Start to begin serving.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Accounts == nil {
		return nil, errors.New("server: missing accounts dependency")
	}
	if deps.Verifier == nil {
		return nil, errors.New("server: missing verifier dependency")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dir, err := directory.New(deps.Accounts)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	rc, err := rooms.New(deps.Rooms, dir)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		dir:      dir,
		rooms:    rc,
		verifier: deps.Verifier,
		bans:     deps.Bans,
		modLog:   deps.ModLog,
		mailbox:  deps.Mailbox,
		catalog:  deps.Catalog,
		filter:   deps.Filter,
		metrics:  NewMetrics(),
		now:      time.Now,
		events:   make(chan func(), 256),
		conns:    make(map[string]*conn),
	}
	if s.bans == nil {
		s.bans, _ = store.OpenBans("")
	}
	if s.modLog == nil {
		s.modLog, _ = store.OpenModLog("")
	}
	if s.mailbox == nil {
		s.mailbox, _ = store.OpenMailbox("")
	}
	if s.catalog == nil {
		s.catalog = catalog.Empty()
	}
	if s.filter == nil {
		s.filter = filter.Default()
	}
	s.upgrader = websocket.Upgrader{
		Subprotocols: []string{protocol.Subprotocol},
		// Origins are checked before the upgrade.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}
