package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/metrics"
	"github.com/Tyrowin/chatroom/internal/room"
	"github.com/Tyrowin/chatroom/internal/snapshot"
)

// Hub tracks the live clients and the rooms they belong to. Rooms are
// created on first use and live until the hub shuts down.
type Hub struct {
	store      snapshot.Store
	log        *zap.Logger
	clients    map[*Client]struct{}
	rooms      map[string]*room.Room
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	roomWG     sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	roomCtx    context.Context
	roomCancel context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub whose rooms snapshot into store. A nil store keeps
// snapshots in memory.
func NewHub(store snapshot.Store) *Hub {
	if store == nil {
		store = snapshot.NewMemory()
	}
	ctx, cancel := context.WithCancel(context.Background())
	roomCtx, roomCancel := context.WithCancel(context.Background())
	return &Hub{
		store:      store,
		log:        zap.L().Named("hub"),
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]*room.Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		roomCtx:    roomCtx,
		roomCancel: roomCancel,
		done:       make(chan struct{}),
	}
}

// Register hands a new client to the hub. It reports false once the hub is
// shutting down.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// leave is called by a client's read pump when the connection ends.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
		c.closeSend()
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. It should be called in a separate goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	rm := h.roomFor(client.roomName)
	client.room = rm

	h.mutex.Lock()
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	metrics.Connections.Inc()
	h.log.Info("Client registered",
		zap.String("addr", client.addr),
		zap.String("room", client.roomName),
		zap.Int("clients", clientCount))

	rm.Connect(client, client.requestedID)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	client.room.Disconnect(client)
	client.closeSend()
	metrics.Connections.Dec()
	h.log.Info("Client unregistered",
		zap.String("addr", client.addr),
		zap.String("room", client.roomName),
		zap.Int("clients", clientCount))
}

// roomFor returns the named room, starting it if needed.
func (h *Hub) roomFor(name string) *room.Room {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if rm, ok := h.rooms[name]; ok {
		return rm
	}

	cfg := currentConfig()
	rm := room.New(room.Options{
		Name:          name,
		AdminPassword: cfg.Room.AdminPassword,
		Settings:      cfg.RoomSettings(),
		Store:         h.store,
		Logger:        zap.L(),
	})
	h.rooms[name] = rm
	metrics.Rooms.Inc()

	h.roomWG.Add(1)
	go func() {
		defer h.roomWG.Done()
		defer metrics.Rooms.Dec()
		if err := rm.Run(h.roomCtx); err != nil {
			h.log.Error("Room stopped with error", zap.String("room", name), zap.Error(err))
		}
	}()
	h.log.Info("Room created", zap.String("room", name))
	return rm
}

// Room returns the named room if it has been started.
func (h *Hub) Room(name string) (*room.Room, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	rm, ok := h.rooms[name]
	return rm, ok
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("Error closing client connection", zap.String("addr", client.addr), zap.Error(err))
		}
	}

	h.log.Info("Closed client connections", zap.Int("clients", len(clients)))
}

// Shutdown stops accepting clients, closes every connection and then stops
// the rooms, which flush their snapshots. It returns context.DeadlineExceeded
// when that takes longer than timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown")
	deadline := time.After(timeout)

	h.cancel()
	<-h.done

	if !waitFor(&h.wg, deadline) {
		h.log.Warn("Hub shutdown timeout reached, some client goroutines may still be running")
		h.roomCancel()
		return context.DeadlineExceeded
	}

	h.roomCancel()
	if !waitFor(&h.roomWG, deadline) {
		h.log.Warn("Hub shutdown timeout reached before every room flushed")
		return context.DeadlineExceeded
	}

	h.log.Info("Hub shutdown completed successfully")
	return nil
}

func waitFor(wg *sync.WaitGroup, deadline <-chan time.Time) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-deadline:
		return false
	}
}
