// Package openai talks to an OpenAI-compatible chat-completions endpoint
// (OpenRouter by default). Without an API key it answers from a small
// scripted reply set so the assistant still works offline, clearly
// annotated as mock output.
package openai

import (
	"context"
	"strings"

	"go.uber.org/zap"

	cperr "github.com/defi-copilot/copilotd/internal/errors"
	"github.com/defi-copilot/copilotd/internal/httpx"
	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/providers"
)

const defaultBase = "https://openrouter.ai/api/v1"

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	model   string
	log     *zap.Logger
}

func New(httpClient *httpx.Client, baseURL, apiKey, modelName string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBase
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey, model: modelName, log: log}
}

func (c *Client) Info() providers.Info {
	return providers.Info{
		Name:        "openai-compatible",
		Type:        "llm",
		RequiresKey: true,
		KeyEnvVar:   "COPILOT_LLM_API_KEY",
		MockWhenOff: true,
	}
}

// Mock reports whether the client will answer from the scripted set.
func (c *Client) Mock() bool { return c.apiKey == "" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete returns the assistant reply for the composed prompt. The system
// prompt carries the serialized AI context so the model can reference live
// wallet and transaction state.
func (c *Client) Complete(ctx context.Context, systemPrompt string, history []model.Message, userText string) (string, error) {
	if c.Mock() {
		return scriptedReply(userText), nil
	}

	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	var resp completionResponse
	if _, err := c.http.PostJSON(ctx, c.baseURL+"/chat/completions", completionRequest{
		Model:    c.model,
		Messages: messages,
	}, headers, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", cperr.New(cperr.CodeUpstream, "llm returned an empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// scriptedReply keeps the assistant useful with no upstream: deterministic
// canned answers keyed by topic keywords.
func scriptedReply(userText string) string {
	text := strings.ToLower(userText)
	switch {
	case strings.Contains(text, "gas"):
		return "Gas is moderate right now. For a standard transfer expect around 25 gwei; " +
			"use the gas check panel for live numbers. (scripted reply: no LLM key configured)"
	case strings.Contains(text, "swap"):
		return "I can help you swap tokens. Pick the pair and amount and I'll fetch a quote; " +
			"you'll confirm every transaction yourself before anything moves. " +
			"(scripted reply: no LLM key configured)"
	case strings.Contains(text, "connect") || strings.Contains(text, "wallet"):
		return "To get started, connect your wallet so I can see your balance and network. " +
			"(scripted reply: no LLM key configured)"
	case strings.Contains(text, "risk"):
		return "DeFi carries smart-contract and market risk. Start small, verify addresses, " +
			"and never share your seed phrase. (scripted reply: no LLM key configured)"
	default:
		return "I'm your DeFi assistant: I can check gas, quote and prepare swaps, and track " +
			"your transactions. What would you like to do? (scripted reply: no LLM key configured)"
	}
}
