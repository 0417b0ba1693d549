// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package collab

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// FallbackReply is substituted whenever the LLM collaborator fails.
const FallbackReply = "Comms degraded. Retry in a moment."

// LLM turns a transcript into a reply. Callers apply FallbackReply
// themselves on error so the substitution is visible at the turn-
// pipeline level.
type LLM interface {
	Reply(ctx context.Context, transcript string) (string, error)
}

// HTTPLLM POSTs {model, input} with a bearer token and an opaque
// session header, reading the reply out of output[0].content[0].text.
// Grounded on loqalabs' internal/llm/ollama.go HTTP+JSON call shape,
// adapted from streaming NDJSON chunks to a one-shot request.
type HTTPLLM struct {
	client       *resty.Client
	url          string
	apiKey       string
	model        string
	sessionKey   string
	sessionValue string
}

// NewHTTPLLM builds the LLM collaborator. sessionValue is the opaque
// per-call session identifier relayed under the sessionKey header name.
func NewHTTPLLM(client *resty.Client, url, apiKey, model, sessionKey, sessionValue string) *HTTPLLM {
	return &HTTPLLM{client: client, url: url, apiKey: apiKey, model: model, sessionKey: sessionKey, sessionValue: sessionValue}
}

type llmResponse struct {
	Output []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

func (l *HTTPLLM) Reply(ctx context.Context, transcript string) (string, error) {
	if l.url == "" {
		return "", fmt.Errorf("collab: llm endpoint not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, LlmTimeout)
	defer cancel()

	var result llmResponse
	req := l.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"model": l.model, "input": transcript}).
		SetResult(&result)
	if l.apiKey != "" {
		req.SetAuthToken(l.apiKey)
	}
	if l.sessionKey != "" {
		req.SetHeader(l.sessionKey, l.sessionValue)
	}

	resp, err := req.Post(l.url)
	if err != nil {
		return "", fmt.Errorf("collab: llm request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("collab: llm status %d", resp.StatusCode())
	}
	if len(result.Output) == 0 || len(result.Output[0].Content) == 0 {
		return "", fmt.Errorf("collab: llm response missing output[0].content[0].text")
	}
	return result.Output[0].Content[0].Text, nil
}
