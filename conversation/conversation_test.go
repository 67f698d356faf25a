package conversation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistory_AppendAndLastMessage(t *testing.T) {
	h := New()
	require.NoError(t, h.Append(TextMessage(RoleUser, "hello")))
	require.NoError(t, h.Append(TextMessage(RoleAssistant, "hi there")))

	last, ok := h.LastMessage()
	require.True(t, ok)
	require.Equal(t, "hi there", last.Text)
	require.Equal(t, 2, h.Length())
}

func TestHistory_ToolResultMustReferenceKnownToolUse(t *testing.T) {
	h := New()
	err := h.Append(BlockMessage(RoleUser, ToolResultBlockOf("missing", "x")))
	require.Error(t, err)
}

func TestHistory_ToolUseThenToolResultRoundTrips(t *testing.T) {
	h := New()
	require.NoError(t, h.Append(BlockMessage(RoleAssistant, ToolUseBlockOf("call_1", "read_file", map[string]any{"path": "a.go"}))))
	require.NoError(t, h.Append(BlockMessage(RoleUser, ToolResultBlockOf("call_1", "file contents"))))

	msgs := h.GetMessages()
	require.Len(t, msgs, 2)
	require.Equal(t, "call_1", msgs[1].Blocks[0].ToolResult.ToolUseID)
}

func TestHistory_SnapshotRestoreRoundTrip(t *testing.T) {
	h := New()
	require.NoError(t, h.Append(TextMessage(RoleUser, "a")))
	require.NoError(t, h.Append(TextMessage(RoleAssistant, "b")))

	snap := h.Snapshot()

	h2 := New()
	h2.Restore(snap)
	require.Equal(t, h.GetMessages(), h2.GetMessages())
}

func TestHistory_EmptyLastMessage(t *testing.T) {
	h := New()
	_, ok := h.LastMessage()
	require.False(t, ok)
}
