package ollama

import (
	"context"
	"fmt"
	"time"
)

// ChatClient sends single-turn prompts to Ollama's /api/chat.
type ChatClient struct {
	base
	seed int
}

// NewChatClient creates a chat client. seed is sent with every request so a
// given prompt at temperature 0 yields a stable completion.
func NewChatClient(baseURL, model string, seed int, timeout time.Duration) *ChatClient {
	return &ChatClient{base: newBase(baseURL, model, timeout), seed: seed}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatOptions always carries temperature, including zero.
type chatOptions struct {
	Temperature float64 `json:"temperature"`
	Seed        int     `json:"seed"`
}

type chatReq struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResp struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Model returns the configured chat model name.
func (c *ChatClient) Model() string { return c.model }

// Complete sends prompt as a user message and returns the assistant reply.
func (c *ChatClient) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	req := chatReq{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Options:  chatOptions{Temperature: temperature, Seed: c.seed},
	}
	var resp chatResp
	if err := c.post(ctx, "/api/chat", req, &resp); err != nil {
		return "", err
	}
	if !resp.Done {
		return "", fmt.Errorf("ollama chat: incomplete response")
	}
	return resp.Message.Content, nil
}
