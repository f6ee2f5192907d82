package llm

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation with the provider.
type Message struct {
	Role    Role   `json:"role" msgpack:"role"`
	Content string `json:"content" msgpack:"content"`
}

// Conversation is an ordered message history. The helpers below return new
// slices so callers can branch a conversation without aliasing.
type Conversation []Message

// With returns a copy of the conversation with one message appended.
func (c Conversation) With(role Role, content string) Conversation {
	out := make(Conversation, len(c), len(c)+1)
	copy(out, c)
	return append(out, Message{Role: role, Content: content})
}

// Clone returns an independent copy of the conversation.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// Last returns the final message, if any.
func (c Conversation) Last() (Message, bool) {
	if len(c) == 0 {
		return Message{}, false
	}
	return c[len(c)-1], true
}
