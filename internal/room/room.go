// Package room implements the per-room session coordinator: a single event
// loop that owns message history, presence, admin settings and every
// message sub-field, and broadcasts state changes in one consistent order to
// every connection of the room.
package room

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/Tyrowin/chatroom/internal/snapshot"
)

// DefaultQueueSize bounds the number of pending events per room.
const DefaultQueueSize = 256

// Conn is the room's view of one live client connection. Send must not
// block; it reports false when the frame could not be queued.
type Conn interface {
	Send(frame []byte) bool
}

// BatchConn is a Conn that takes an ordered burst of frames as one unit.
// The connect sequence, which carries the whole history, is delivered
// through SendBatch when the connection supports it.
type BatchConn interface {
	Conn
	SendBatch(frames [][]byte) bool
}

// Options configures a Room.
type Options struct {
	Name          string
	AdminPassword string
	Settings      protocol.Settings
	Store         snapshot.Store
	Logger        *zap.Logger
	QueueSize     int

	// Now and AfterFunc default to the time package.
	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) Timer
}

// Timer is the handle of a scheduled expiry.
type Timer interface {
	Stop() bool
}

// Room is one chat room. All state below the events channel is owned by the
// goroutine running Run.
type Room struct {
	name          string
	adminPassword string
	log           *zap.Logger
	now           func() time.Time
	afterFunc     func(d time.Duration, f func()) Timer
	store         snapshot.Store
	persist       *persister

	events   chan event
	done     chan struct{}
	stopOnce sync.Once

	sessions  map[Conn]*session
	byID      map[string]*session
	messages  []*protocol.Message
	index     map[string]*protocol.Message
	settings  protocol.Settings
	timers    map[string]Timer
	confirmed map[string]map[string]struct{}
	rankings  map[string]int
	lastStamp int64
}

type event interface{}

type connectEvent struct {
	conn Conn
	id   string
}

type disconnectEvent struct {
	conn Conn
}

type frameEvent struct {
	conn  Conn
	frame []byte
}

type expireEvent struct {
	messageID string
}

// syncEvent runs fn inside the loop; it is used by Snapshot.
type syncEvent struct {
	fn func()
}

// New builds a room from opts. The room does nothing until Run is called.
func New(opts Options) *Room {
	if opts.Name == "" {
		opts.Name = "main"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Store == nil {
		opts.Store = snapshot.NewMemory()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	settings := opts.Settings
	if settings.BannedWords == nil {
		settings.BannedWords = []string{}
	}
	if settings.MaxMessageHistory < 0 {
		settings.MaxMessageHistory = protocol.DefaultMaxMessageHistory
	}

	log := opts.Logger.With(zap.String("room", opts.Name))
	return &Room{
		name:          opts.Name,
		adminPassword: opts.AdminPassword,
		log:           log,
		now:           opts.Now,
		afterFunc:     opts.AfterFunc,
		store:         opts.Store,
		persist:       newPersister(opts.Store, log),
		events:        make(chan event, opts.QueueSize),
		done:          make(chan struct{}),
		sessions:      make(map[Conn]*session),
		byID:          make(map[string]*session),
		index:         make(map[string]*protocol.Message),
		settings:      settings.Clone(),
		timers:        make(map[string]Timer),
		confirmed:     make(map[string]map[string]struct{}),
		rankings:      make(map[string]int),
	}
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// Done is closed once Run has returned.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Connect registers c with the room. requestedID is the identity the client
// asked for; the room assigns a fresh one when it is empty or already live.
func (r *Room) Connect(c Conn, requestedID string) {
	r.post(connectEvent{conn: c, id: requestedID})
}

// Disconnect removes c from the room.
func (r *Room) Disconnect(c Conn) {
	r.post(disconnectEvent{conn: c})
}

// Submit queues one inbound frame from c.
func (r *Room) Submit(c Conn, frame []byte) {
	r.post(frameEvent{conn: c, frame: frame})
}

// Snapshot returns a copy of the current history and settings, taken inside
// the event loop. It returns false if the room has stopped.
func (r *Room) Snapshot(ctx context.Context) ([]protocol.Message, protocol.Settings, bool) {
	type result struct {
		messages []protocol.Message
		settings protocol.Settings
	}
	out := make(chan result, 1)
	ok := r.post(syncEvent{fn: func() {
		out <- result{messages: r.copyMessages(), settings: r.settings.Clone()}
	}})
	if !ok {
		return nil, protocol.Settings{}, false
	}
	select {
	case res := <-out:
		return res.messages, res.settings, true
	case <-ctx.Done():
		return nil, protocol.Settings{}, false
	case <-r.done:
		return nil, protocol.Settings{}, false
	}
}

func (r *Room) post(ev event) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

// Run loads the room snapshot and processes events until ctx is cancelled.
// Pending snapshots are flushed before Run returns.
func (r *Room) Run(ctx context.Context) error {
	defer r.stop()

	r.restore(ctx)

	persistCtx, cancelPersist := context.WithCancel(context.Background())
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		r.persist.run(persistCtx)
	}()

	r.log.Info("Room started", zap.Int("messages", len(r.messages)))

	for {
		select {
		case <-ctx.Done():
			r.stop()
			r.shutdown()
			cancelPersist()
			<-persistDone
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.persist.flush(flushCtx)
			cancel()
			r.log.Info("Room stopped", zap.Int("messages", len(r.messages)))
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

func (r *Room) stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Room) shutdown() {
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

// handle processes one event. A panicking handler is logged and reported to
// the originating connection; the loop keeps running.
func (r *Room) handle(ev event) {
	var origin *session
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Recovered from panic in room handler",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
			if origin != nil {
				r.sendError(origin, reject(KindInternal, ErrInternal))
			}
		}
	}()

	switch ev := ev.(type) {
	case connectEvent:
		r.handleConnect(ev.conn, ev.id)
	case disconnectEvent:
		r.handleDisconnect(ev.conn)
	case frameEvent:
		s, ok := r.sessions[ev.conn]
		if !ok {
			r.log.Debug("Dropping frame from unknown connection")
			return
		}
		origin = s
		r.handleFrame(s, ev.frame)
	case expireEvent:
		r.expire(ev.messageID)
	case syncEvent:
		ev.fn()
	default:
		r.log.Warn("Ignoring unknown room event", zap.Any("event", ev))
	}
}

// nowMillis returns the current time in epoch milliseconds.
func (r *Room) nowMillis() int64 {
	return r.now().UnixMilli()
}

// nextStamp returns a timestamp strictly greater than every one assigned so far.
func (r *Room) nextStamp() int64 {
	ts := r.nowMillis()
	if ts <= r.lastStamp {
		ts = r.lastStamp + 1
	}
	r.lastStamp = ts
	return ts
}
