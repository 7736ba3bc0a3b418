package llmassist

import "sync"

// maxTurns is the number of (user, assistant) turns retained on top of the
// leading system message ("LLM request context").
const maxTurns = 10

// Turn is one message in a session's conversation history.
type Turn struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// ContextStore is the session-keyed conversation history the bridge appends
// to on every llm_assist round trip. It is an explicit, owned mapping
// rather than a module-level singleton.
type ContextStore struct {
	systemPrompt string

	mu       sync.Mutex
	sessions map[string][]Turn
}

// NewContextStore constructs a store seeded with systemPrompt for every new
// session. An empty systemPrompt falls back to DefaultSystemPrompt.
func NewContextStore(systemPrompt string) *ContextStore {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &ContextStore{
		systemPrompt: systemPrompt,
		sessions:     make(map[string][]Turn),
	}
}

// Get returns a copy of sessionID's current history, creating it (with just
// the system message) if it doesn't exist yet.
func (c *ContextStore) Get(sessionID string) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.getLocked(sessionID)...)
}

func (c *ContextStore) getLocked(sessionID string) []Turn {
	turns, ok := c.sessions[sessionID]
	if !ok {
		turns = []Turn{{Role: "system", Content: c.systemPrompt}}
		c.sessions[sessionID] = turns
	}
	return turns
}

// Append adds a message and trims to the system message plus the last
// maxTurns entries, evicting the oldest non-system turn first.
func (c *ContextStore) Append(sessionID, role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := c.getLocked(sessionID)
	turns = append(turns, Turn{Role: role, Content: content})
	if len(turns)-1 > maxTurns {
		system := turns[0]
		rest := turns[len(turns)-maxTurns:]
		turns = append([]Turn{system}, rest...)
	}
	c.sessions[sessionID] = turns
}

// SetSystemPrompt updates the prompt seeded into sessions created or
// Clear'd from this point on. Sessions with history already materialized
// keep whatever system message they started with.
func (c *ContextStore) SetSystemPrompt(systemPrompt string) {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systemPrompt = systemPrompt
}

// Clear resets sessionID's history back to just the system message.
func (c *ContextStore) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = []Turn{{Role: "system", Content: c.systemPrompt}}
}

// Drop removes sessionID's history entirely, e.g. when its Terminal closes.
func (c *ContextStore) Drop(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

// TruncateOutput truncates long command output to its first and last
// truncLen bytes, joined by a marker.
func TruncateOutput(output string, truncLen int) string {
	if len(output) <= 2*truncLen {
		return output
	}
	return output[:truncLen] + "...[output truncated]..." + output[len(output)-truncLen:]
}
