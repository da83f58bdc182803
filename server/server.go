// Package server exposes the sift HTTP API: dataset and lineage CRUD, analysis
// job submission, paginated document access proxied from the engine, and
// active-learning sessions, plus a WebSocket feed of lineage graph events.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/siftlab/sift/config"
	"github.com/siftlab/sift/engine"
	"github.com/siftlab/sift/errors"
	"github.com/siftlab/sift/learning"
	"github.com/siftlab/sift/lineage"
)

// MaxClients bounds concurrent WebSocket connections
const MaxClients = 64

// datasetView bundles the live runtime of one dataset: its in-memory lineage
// store, the engine client bound to the dataset, and the learning controller.
type datasetView struct {
	store    *lineage.Store
	engine   *engine.Client
	learning *learning.Controller
	events   chan lineage.Event
}

// graphEvent is the WebSocket frame broadcast for every lineage mutation
type graphEvent struct {
	Type      string        `json:"type"`
	DatasetID int64         `json:"dataset_id"`
	Event     lineage.Event `json:"event"`
}

// SiftServer serves the dataset API and relays lineage events to clients
type SiftServer struct {
	db     *sql.DB
	mirror *lineage.SQLStore
	cfg    *config.Config
	logger *zap.SugaredLogger

	viewsMu sync.RWMutex
	views   map[int64]*datasetView

	mu         sync.Mutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *graphEvent

	httpServer *http.Server

	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	broadcastDrops atomic.Int64
}

// NewSiftServer creates a server over an open, migrated database. Every
// dataset found in the mirror is loaded into memory and wired to the engine.
func NewSiftServer(db *sql.DB, cfg *config.Config, logger *zap.SugaredLogger) (*SiftServer, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &SiftServer{
		db:         db,
		mirror:     lineage.NewSQLStore(db),
		cfg:        cfg,
		logger:     logger,
		views:      make(map[int64]*datasetView),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *graphEvent, 256),
		ctx:        ctx,
		cancel:     cancel,
	}

	datasets, err := s.mirror.ListDatasets()
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to list datasets")
	}
	for _, ds := range datasets {
		store, err := s.mirror.LoadStore(ds.ID, logger)
		if err != nil {
			cancel()
			return nil, errors.Wrapf(err, "failed to load dataset %d", ds.ID)
		}
		s.openView(store)
	}

	logger.Infow("Server initialized", "datasets", len(datasets))
	return s, nil
}

// openView wires a loaded store into the server: engine client, learning
// controller, and the event forwarder feeding the WebSocket broadcast.
func (s *SiftServer) openView(store *lineage.Store) *datasetView {
	ds := store.Dataset()
	eng := engine.NewClient(s.cfg.Engine, ds.ID, s.logger)
	view := &datasetView{
		store:    store,
		engine:   eng,
		learning: learning.NewController(eng, store, s.logger),
		events:   store.Subscribe(),
	}

	s.viewsMu.Lock()
	s.views[ds.ID] = view
	s.viewsMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.forwardEvents(ds.ID, view.events)
	}()
	return view
}

// view returns the runtime for a dataset
func (s *SiftServer) view(datasetID int64) (*datasetView, error) {
	s.viewsMu.RLock()
	defer s.viewsMu.RUnlock()

	v, ok := s.views[datasetID]
	if !ok {
		return nil, errors.NewNotFound("dataset %d", datasetID)
	}
	return v, nil
}

// forwardEvents relays one store's events to the broadcast channel and mirrors
// cascade deletions to the database. Deletions are mirrored here rather than
// in the handlers because only the store knows the full closure it removed.
func (s *SiftServer) forwardEvents(datasetID int64, events chan lineage.Event) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}

			switch ev.Kind {
			case lineage.EventSubsetDeleted:
				if err := s.mirror.DeleteSubsets(datasetID, []int64{ev.SubsetID}); err != nil {
					s.logger.Errorw("Failed to mirror subset deletion",
						"dataset_id", datasetID,
						"subset_id", ev.SubsetID,
						"error", err,
					)
				}
			case lineage.EventMethodDeleted:
				if err := s.mirror.DeleteMethods(datasetID, []int64{ev.MethodID}); err != nil {
					s.logger.Errorw("Failed to mirror method deletion",
						"dataset_id", datasetID,
						"method_id", ev.MethodID,
						"error", err,
					)
				}
			}

			frame := &graphEvent{Type: "lineage", DatasetID: datasetID, Event: ev}
			select {
			case s.broadcast <- frame:
			case <-s.ctx.Done():
				return
			default:
				s.broadcastDrops.Add(1)
				s.logger.Warnw("Broadcast queue full, dropping event",
					"dataset_id", datasetID,
					"kind", ev.Kind,
				)
			}
		}
	}
}

// Run is the hub event loop owning client registration and broadcasts
func (s *SiftServer) Run() {
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugw("Server hub stopping due to context cancellation")
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		case ev := <-s.broadcast:
			s.handleBroadcast(ev)
		}
	}
}

// handleClientRegister handles a new client connection
func (s *SiftServer) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		"client_id", client.id,
		"total_clients", total,
	)
}

// handleClientUnregister handles a client disconnection
func (s *SiftServer) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, client)
	total := len(s.clients)
	s.mu.Unlock()

	client.close()
	s.logger.Infow("Client disconnected",
		"client_id", client.id,
		"total_clients", total,
	)
}

// handleBroadcast fans an event out to every connected client. Clients whose
// send buffer is full miss the event; they resynchronize over the HTTP API.
func (s *SiftServer) handleBroadcast(ev *graphEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		select {
		case client.send <- ev:
		default:
			s.broadcastDrops.Add(1)
			s.logger.Warnw("Client send channel full, dropping event",
				"client_id", client.id,
			)
		}
	}
}
