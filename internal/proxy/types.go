package proxy

// ChatMessage is one prior turn sent as chat history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /ai/chat.
type ChatRequest struct {
	Message     string        `json:"message"`
	Filename    string        `json:"filename"`
	PageNum     int           `json:"page_num"`
	ChatHistory []ChatMessage `json:"chat_history,omitempty"`
}

// AnalyzeRequest is the body of POST /ai/analyze/stream.
type AnalyzeRequest struct {
	Filename string `json:"filename"`
	PageNum  int    `json:"page_num"`
	Context  string `json:"context,omitempty"`
}

// Health is the response of GET /health.
type Health struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
	Ollama string `json:"ollama,omitempty"`
}
