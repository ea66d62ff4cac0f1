package llm

// Conversation builds a CompletionRequest's message list incrementally.
// Grounded on the teacher's pkg/llm.Conversation, trimmed to what the
// Agent and QueryRewriter actually need — no tool-call message shapes,
// since this domain's tool calls are parsed out of plain assistant text
// (spec §4.10) rather than carried as structured provider fields.
type Conversation struct {
	messages []Message
	system   string
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{messages: make([]Message, 0, 8)}
}

// SetSystem sets the system prompt.
func (c *Conversation) SetSystem(system string) *Conversation {
	c.system = system
	return c
}

// AddUser appends a user message.
func (c *Conversation) AddUser(content string) *Conversation {
	c.messages = append(c.messages, UserMessage(content))
	return c
}

// AddAssistant appends an assistant message.
func (c *Conversation) AddAssistant(content string) *Conversation {
	c.messages = append(c.messages, AssistantMessage(content))
	return c
}

// AddTool appends a tool-result message.
func (c *Conversation) AddTool(content string) *Conversation {
	c.messages = append(c.messages, ToolMessage(content))
	return c
}

// Messages returns the accumulated messages.
func (c *Conversation) Messages() []Message { return c.messages }

// ToRequest builds a CompletionRequest from the conversation.
func (c *Conversation) ToRequest(model string, maxTokens int) *CompletionRequest {
	return &CompletionRequest{
		Model:     model,
		Messages:  c.messages,
		System:    c.system,
		MaxTokens: maxTokens,
	}
}

// EstimateTokens provides a rough token estimate for text (~4 chars/token).
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TruncateChars truncates text to at most n runes, matching FileReader's
// and Searcher's truncation convention of cutting on a rune boundary.
func TruncateChars(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}
