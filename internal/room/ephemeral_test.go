package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/Tyrowin/chatroom/internal/snapshot"
)

func (h *harness) ephemeral(c *fakeConn, fields map[string]any) *protocol.Message {
	h.t.Helper()
	frame := map[string]any{"type": "text", "text": "secret"}
	for k, v := range fields {
		frame[k] = v
	}
	h.sendJSON(c, frame)
	require.NotEmpty(h.t, h.room.messages)
	return h.room.messages[len(h.room.messages)-1]
}

func TestExpiryHidesOnce(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	m := h.ephemeral(alice, map[string]any{"expiresAt": h.now.Add(time.Minute).UnixMilli()})

	require.Len(t, h.timers, 1)
	assert.Equal(t, time.Minute, h.timers[0].delay)

	h.advance(time.Minute)
	h.fire()

	assert.True(t, m.IsHidden)
	expired := alice.infos(t, protocol.InfoMessageExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, protocol.ExpiredByDeadline, expired[0]["reason"])

	h.room.handle(expireEvent{messageID: m.ID})
	assert.Len(t, alice.infos(t, protocol.InfoMessageExpired), 1, "hidden exactly once")
	assert.True(t, m.IsHidden)
}

func TestEarlyExpiryReschedules(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	m := h.ephemeral(alice, map[string]any{"expiresAt": h.now.Add(time.Minute).UnixMilli()})

	h.advance(30 * time.Second)
	h.fire()

	assert.False(t, m.IsHidden)
	require.Len(t, h.timers, 2)
	assert.Equal(t, 30*time.Second, h.timers[1].delay)
}

func TestExpiryAfterDeleteIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	admin := h.connect("admin")
	alice := h.join("alice", "Alice")
	m := h.ephemeral(alice, map[string]any{"expiresAt": h.now.Add(time.Second).UnixMilli()})
	fn := h.timers[0].fn

	h.action(admin, protocol.ActionDeleteMessage, m.ID, map[string]any{"password": testPassword})
	assert.True(t, h.timers[0].stopped)

	h.advance(time.Second)
	fn()
	h.drain()

	assert.Empty(t, alice.infos(t, protocol.InfoMessageExpired))
}

func TestExpiresAtMustBeInFuture(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")

	h.sendJSON(alice, map[string]any{"type": "text", "text": "late", "expiresAt": h.now.UnixMilli()})

	errFrame := alice.lastError(t)
	assert.Equal(t, string(KindValidation), errFrame["code"])
	assert.Contains(t, errFrame["message"], "future")
	assert.Empty(t, h.room.messages)
	assert.Empty(t, h.timers)
}

func TestMaxViewsHidesOnLimit(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	u1 := h.join("u1", "U1")
	u2 := h.join("u2", "U2")
	m := h.ephemeral(alice, map[string]any{"maxViews": 1})
	alice.reset()

	h.action(u1, protocol.ActionViewMessage, m.ID, nil)

	assert.True(t, m.IsHidden)
	assert.Equal(t, 1, m.ViewCount)
	viewed := alice.infos(t, protocol.InfoMessageViewed)
	require.Len(t, viewed, 1)
	assert.Equal(t, 1.0, viewed[0]["viewCount"])
	expired := alice.infos(t, protocol.InfoMessageExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, protocol.ExpiredByMaxViews, expired[0]["reason"])

	alice.reset()
	u2.reset()
	h.action(u2, protocol.ActionViewMessage, m.ID, nil)

	assert.Equal(t, 1, m.ViewCount, "views after hide are not counted")
	assert.Len(t, u2.infos(t, protocol.InfoMessageExpired), 1)
	assert.Empty(t, alice.decoded(t), "rejected views are not broadcast")
}

func TestOneTimeView(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	viewer := h.join("v", "V")
	m := h.ephemeral(alice, map[string]any{"oneTimeView": true})

	h.action(viewer, protocol.ActionViewMessage, m.ID, nil)
	require.Equal(t, []string{"v"}, m.ViewedBy)

	viewer.reset()
	h.action(viewer, protocol.ActionViewMessage, m.ID, nil)

	assert.Len(t, viewer.infos(t, protocol.InfoAlreadyViewed), 1)
	assert.Empty(t, viewer.infos(t, protocol.InfoMessageViewed))
	assert.Len(t, m.ViewedBy, 1)
	assert.Equal(t, 1, m.ViewCount)
}

func TestRequireConfirmation(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	viewer := h.join("v", "V")
	m := h.ephemeral(alice, map[string]any{"requireConfirmation": true})
	alice.reset()

	h.action(viewer, protocol.ActionViewMessage, m.ID, nil)

	prompts := viewer.infos(t, protocol.InfoConfirmView)
	require.Len(t, prompts, 1)
	assert.Equal(t, m.ID, prompts[0]["targetMessageId"])
	assert.Zero(t, m.ViewCount)
	assert.Empty(t, alice.decoded(t), "the prompt goes to the viewer only")

	h.action(viewer, protocol.ActionConfirmView, m.ID, nil)
	assert.Equal(t, 1, m.ViewCount)

	h.action(viewer, protocol.ActionViewMessage, m.ID, nil)
	assert.Equal(t, 2, m.ViewCount, "a confirmed viewer is not prompted again")
	assert.Len(t, viewer.infos(t, protocol.InfoConfirmView), 1)
}

func TestOneTimeCheckedBeforeConfirmation(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	viewer := h.join("v", "V")
	m := h.ephemeral(alice, map[string]any{"requireConfirmation": true, "oneTimeView": true})

	h.action(viewer, protocol.ActionConfirmView, m.ID, nil)
	require.Equal(t, 1, m.ViewCount)

	viewer.reset()
	h.action(viewer, protocol.ActionViewMessage, m.ID, nil)

	assert.Len(t, viewer.infos(t, protocol.InfoAlreadyViewed), 1)
	assert.Empty(t, viewer.infos(t, protocol.InfoConfirmView))
}

func TestHiddenNeverReverts(t *testing.T) {
	m := &protocol.Message{}
	assert.True(t, hide(m))
	assert.False(t, hide(m))
	assert.True(t, m.IsHidden)
}

func TestRestoreHidesPastDeadlines(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	past := h.ephemeral(alice, map[string]any{"expiresAt": h.now.Add(time.Second).UnixMilli()})
	future := h.ephemeral(alice, map[string]any{"expiresAt": h.now.Add(time.Hour).UnixMilli()})
	h.room.persistMessages()
	h.room.persist.flush(testContext(t))

	later := newHarness(t, func(o *Options) { o.Store = h.store })
	later.now = h.now.Add(time.Minute)
	later.room.restore(testContext(t))

	restoredPast, ok := later.room.find(past.ID)
	require.True(t, ok)
	assert.True(t, restoredPast.IsHidden)
	restoredFuture, ok := later.room.find(future.ID)
	require.True(t, ok)
	assert.False(t, restoredFuture.IsHidden)
	require.Len(t, later.timers, 1)
	assert.Equal(t, 59*time.Minute, later.timers[0].delay)
}

func TestRestoreHidesExhaustedViewLimits(t *testing.T) {
	store := snapshot.NewMemory()
	value, err := snapshot.Encode([]protocol.Message{
		{Type: protocol.TypeText, ID: "spent", UserID: "alice", Text: "gone", MaxViews: 2, ViewCount: 2, Timestamp: 1},
		{Type: protocol.TypeText, ID: "fresh", UserID: "alice", Text: "left", MaxViews: 2, ViewCount: 1, Timestamp: 2},
		{Type: protocol.TypeText, ID: "plain", UserID: "alice", Text: "kept", Timestamp: 3},
	})
	require.NoError(t, err)
	require.NoError(t, store.Save(testContext(t), snapshot.MessagesKey("test"), value))

	h := newHarness(t, func(o *Options) { o.Store = store })
	h.room.restore(testContext(t))

	spent, ok := h.room.find("spent")
	require.True(t, ok)
	assert.True(t, spent.IsHidden)
	fresh, ok := h.room.find("fresh")
	require.True(t, ok)
	assert.False(t, fresh.IsHidden)
	plain, ok := h.room.find("plain")
	require.True(t, ok)
	assert.False(t, plain.Ephemeral())
	assert.False(t, plain.IsHidden)
	assert.Empty(t, h.timers)
}

// testContext stands in for testing.T.Context (Go 1.24+): a context
// cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
