// Package transcript accumulates the turns of a chat session in memory.
package transcript

import "sync"

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation. Its JSON form is the chat_history
// entry sent upstream.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is an append-only, ordered list of turns. The zero value is an
// empty transcript ready for use.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{}
}

// Append adds a single turn.
func (t *Transcript) Append(turn Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
}

// AppendExchange records a completed round trip, user turn first.
func (t *Transcript) AppendExchange(user, assistant string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns,
		Turn{Role: RoleUser, Content: user},
		Turn{Role: RoleAssistant, Content: assistant},
	)
}

// Snapshot returns a copy of the turns in conversation order.
func (t *Transcript) Snapshot() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) IsEmpty() bool {
	return t.Len() == 0
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}
