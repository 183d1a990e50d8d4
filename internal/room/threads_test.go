package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatroom/internal/protocol"
)

func TestCreateThreadAndReply(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	bob := h.join("bob", "Bob")
	root := h.say(alice, "root")
	reply := h.say(bob, "reply")

	h.action(alice, protocol.ActionCreateThread, root.ID, nil)

	require.NotEmpty(t, root.ThreadID)
	assert.True(t, root.IsThreadStarter)
	assert.Equal(t, 1, root.ThreadMessageCount)
	updates := bob.infos(t, protocol.InfoThreadUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, 1.0, updates[0]["threadMessageCount"])
	assert.Equal(t, root.ThreadID, updates[0]["threadId"])

	h.action(bob, protocol.ActionReplyInThread, reply.ID, map[string]any{"threadId": root.ThreadID})

	assert.Equal(t, root.ThreadID, reply.ThreadID)
	assert.Equal(t, 2, root.ThreadMessageCount)
	updates = bob.infos(t, protocol.InfoThreadUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, 2.0, updates[1]["threadMessageCount"])
	assert.Equal(t, root.ID, updates[1]["targetMessageId"])

	h.action(bob, protocol.ActionReplyInThread, reply.ID, map[string]any{"threadId": root.ThreadID})
	assert.Equal(t, 2, root.ThreadMessageCount, "a reply is counted once")
}

func TestCreateThreadIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	root := h.say(alice, "root")

	h.action(alice, protocol.ActionCreateThread, root.ID, nil)
	threadID := root.ThreadID
	h.action(alice, protocol.ActionCreateThread, root.ID, nil)

	assert.Equal(t, threadID, root.ThreadID)
	assert.Equal(t, 1, root.ThreadMessageCount)
	assert.Len(t, alice.infos(t, protocol.InfoThreadUpdate), 2)
}

func TestReplyInUnknownThreadIsDropped(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	m := h.say(alice, "lonely")
	alice.reset()

	h.action(alice, protocol.ActionReplyInThread, m.ID, map[string]any{"threadId": "missing"})
	h.action(alice, protocol.ActionReplyInThread, "missing", map[string]any{"threadId": "missing"})

	assert.Empty(t, m.ThreadID)
	assert.Empty(t, alice.decoded(t))
}

func TestReplyToStarterItselfIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	root := h.say(alice, "root")
	h.action(alice, protocol.ActionCreateThread, root.ID, nil)

	h.action(alice, protocol.ActionReplyInThread, root.ID, map[string]any{"threadId": root.ThreadID})

	assert.Equal(t, 1, root.ThreadMessageCount)
}

func TestSubmissionWithThreadID(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	root := h.say(alice, "root")
	h.action(alice, protocol.ActionCreateThread, root.ID, nil)

	h.sendJSON(alice, map[string]any{"type": "text", "text": "in thread", "threadId": root.ThreadID})
	inThread := h.room.messages[len(h.room.messages)-1]
	assert.Equal(t, root.ThreadID, inThread.ThreadID)
	assert.Equal(t, 2, root.ThreadMessageCount)

	h.sendJSON(alice, map[string]any{"type": "text", "text": "stray", "threadId": "nope", "isThreadStarter": true})
	stray := h.room.messages[len(h.room.messages)-1]
	assert.Equal(t, "stray", stray.Text)
	assert.Empty(t, stray.ThreadID)
	assert.False(t, stray.IsThreadStarter)
	assert.Equal(t, 2, root.ThreadMessageCount)
}

func TestThreadActionsOnUnknownMessage(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.join("alice", "Alice")
	alice.reset()

	h.action(alice, protocol.ActionCreateThread, "nope", nil)

	assert.Empty(t, alice.decoded(t))
}
