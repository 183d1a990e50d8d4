package room

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/Tyrowin/chatroom/internal/snapshot"
)

const testPassword = "letmein"

// fakeConn records every frame the room sends it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (c *fakeConn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m), "frame %s", f)
		out = append(out, m)
	}
	return out
}

// infos returns the systemInfo frames with the given action.
func (c *fakeConn) infos(t *testing.T, action protocol.Action) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.decoded(t) {
		if m["type"] == protocol.TypeSystemInfo && m["action"] == string(action) {
			out = append(out, m)
		}
	}
	return out
}

// ofType returns the frames whose type field equals typ.
func (c *fakeConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.decoded(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) lastError(t *testing.T) map[string]any {
	t.Helper()
	errs := c.infos(t, protocol.InfoError)
	require.NotEmpty(t, errs, "expected an error frame")
	return errs[len(errs)-1]
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// batchConn is a fakeConn that also records SendBatch calls.
type batchConn struct {
	fakeConn
	batches int
}

func (c *batchConn) SendBatch(frames [][]byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.batches++
	c.frames = append(c.frames, frames...)
	return true
}

// manualTimer is fired by the test instead of the clock.
type manualTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (m *manualTimer) Stop() bool {
	was := !m.stopped
	m.stopped = true
	return was
}

type harness struct {
	t      *testing.T
	room   *Room
	store  *snapshot.MemoryStore
	now    time.Time
	timers []*manualTimer
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		store: snapshot.NewMemory(),
		now:   time.UnixMilli(1_700_000_000_000),
	}
	opts := Options{
		Name:          "test",
		AdminPassword: testPassword,
		Settings:      protocol.DefaultSettings(),
		Store:         h.store,
		Now:           func() time.Time { return h.now },
		AfterFunc: func(d time.Duration, f func()) Timer {
			mt := &manualTimer{delay: d, fn: f}
			h.timers = append(h.timers, mt)
			return mt
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.room = New(opts)
	return h
}

func (h *harness) connect(id string) *fakeConn {
	c := &fakeConn{}
	h.room.handle(connectEvent{conn: c, id: id})
	return c
}

func (h *harness) join(id, name string) *fakeConn {
	c := h.connect(id)
	h.send(c, `{"type":"clientAction","action":"join","name":"`+name+`"}`)
	return c
}

func (h *harness) send(c *fakeConn, frame string) {
	h.room.handle(frameEvent{conn: c, frame: []byte(frame)})
}

func (h *harness) sendJSON(c *fakeConn, v any) {
	h.t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(h.t, err)
	h.room.handle(frameEvent{conn: c, frame: raw})
}

// say submits a text message and returns the stored copy.
func (h *harness) say(c *fakeConn, text string) *protocol.Message {
	h.t.Helper()
	before := len(h.room.messages)
	h.sendJSON(c, map[string]any{"type": "text", "text": text})
	require.Len(h.t, h.room.messages, min(before+1, h.room.settings.MaxMessageHistory), "message %q not stored", text)
	return h.room.messages[len(h.room.messages)-1]
}

func (h *harness) action(c *fakeConn, action, target string, extra map[string]any) {
	frame := map[string]any{"type": "clientAction", "action": action, "targetMessageId": target}
	for k, v := range extra {
		frame[k] = v
	}
	h.sendJSON(c, frame)
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

// fire runs every live timer and processes the events they post.
func (h *harness) fire() {
	for _, mt := range h.timers {
		if !mt.stopped {
			mt.stopped = true
			mt.fn()
		}
	}
	h.drain()
}

func (h *harness) drain() {
	for {
		select {
		case ev := <-h.room.events:
			h.room.handle(ev)
		default:
			return
		}
	}
}

func (h *harness) texts() []string {
	out := make([]string, 0, len(h.room.messages))
	for _, m := range h.room.messages {
		out = append(out, m.Text)
	}
	return out
}
