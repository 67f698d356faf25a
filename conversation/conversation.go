// Package conversation implements ConversationHistory (spec §4.3): an
// ordered, append-only list of role-tagged messages whose content is
// either plain text or a sequence of typed content blocks.
//
// Generalized from the teacher's graph/model/chat.go Message (a bare
// Role+Content string) into the block-sequence form the spec requires:
// text, tool_use, and tool_result blocks, with the round-trip and
// tool_use/tool_result pairing invariants from spec §3.
package conversation

import agentcoreerrors "github.com/kalyank1144/agentcore/errors"

// Role identifies a message's sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block is one element of a message's content sequence. Exactly one of
// Text, ToolUse, or ToolResult is non-nil/non-zero per spec §3's
// definition of a content block.
type Block struct {
	Text       *TextBlock
	ToolUse    *ToolUseBlock
	ToolResult *ToolResultBlock
}

// TextBlock is a plain-text content block.
type TextBlock struct {
	Text string
}

// ToolUseBlock is an assistant request to invoke a tool.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResultBlock is the result of a prior tool_use, referenced by
// ToolUseID. Every ToolResultBlock in the history must reference an
// earlier ToolUseBlock's ID (spec §3 invariant).
type ToolResultBlock struct {
	ToolUseID string
	Content   string
}

// TextBlockOf returns a Block wrapping plain text.
func TextBlockOf(text string) Block { return Block{Text: &TextBlock{Text: text}} }

// ToolUseBlockOf returns a Block wrapping a tool_use request.
func ToolUseBlockOf(id, name string, input map[string]any) Block {
	return Block{ToolUse: &ToolUseBlock{ID: id, Name: name, Input: input}}
}

// ToolResultBlockOf returns a Block wrapping a tool_result.
func ToolResultBlockOf(toolUseID, content string) Block {
	return Block{ToolResult: &ToolResultBlock{ToolUseID: toolUseID, Content: content}}
}

// Message is one role-tagged entry in the history. Content is either a
// plain string (Text non-empty, Blocks nil) or an ordered sequence of
// content blocks (spec §3).
type Message struct {
	Role   Role
	Text   string
	Blocks []Block
}

// TextMessage constructs a plain-string message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// BlockMessage constructs a message whose content is a block sequence.
func BlockMessage(role Role, blocks ...Block) Message {
	return Message{Role: role, Blocks: blocks}
}

// IsBlockForm reports whether m's content is a block sequence rather
// than a plain string.
func (m Message) IsBlockForm() bool { return m.Blocks != nil }

// History is the append-only, ordered list of messages for one loop run
// (spec §4.3, §3).
type History struct {
	messages []Message
}

// New constructs an empty History.
func New() *History { return &History{} }

// Append adds msg to the end of the history. If msg is a tool_result
// block message, every tool_use id it references must already appear in
// an earlier message of the history, per spec §3; violations return
// errors.KindValidationError.
func (h *History) Append(msg Message) error {
	if msg.IsBlockForm() {
		for _, b := range msg.Blocks {
			if b.ToolResult == nil {
				continue
			}
			if !h.hasToolUse(b.ToolResult.ToolUseID) {
				return agentcoreerrors.New(agentcoreerrors.KindValidationError,
					"tool_result references unknown tool_use id: "+b.ToolResult.ToolUseID)
			}
		}
	}
	h.messages = append(h.messages, msg)
	return nil
}

func (h *History) hasToolUse(id string) bool {
	for _, m := range h.messages {
		for _, b := range m.Blocks {
			if b.ToolUse != nil && b.ToolUse.ID == id {
				return true
			}
		}
	}
	return false
}

// LastMessage returns the most recently appended message and true, or
// the zero Message and false if the history is empty.
func (h *History) LastMessage() (Message, bool) {
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Length returns the number of messages in the history.
func (h *History) Length() int { return len(h.messages) }

// GetMessages returns a read-only copy of the full message list, in
// insertion order.
func (h *History) GetMessages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Snapshot captures the history for inclusion in a LoopSession
// (spec §3 "conversation_snapshot").
func (h *History) Snapshot() []Message { return h.GetMessages() }

// Restore replaces the history's contents with a prior snapshot, used
// when resuming a paused loop.
func (h *History) Restore(messages []Message) {
	h.messages = append([]Message(nil), messages...)
}
