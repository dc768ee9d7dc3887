package transformer

import (
	"encoding/json"
	"fmt"

	"github.com/porticodev/portico/internal/util"
)

const openaiChatCompletionsPath = "/v1/chat/completions"

// OpenAI rewrites native messages-format requests into the
// OpenAI-compatible chat-completions format most aggregator upstreams
// speak. One instance can be pinned to a specific upstream domain or act
// as the default (empty domain).
type OpenAI struct {
	name   string
	domain string
}

// NewOpenAI creates the default OpenAI-compatible transformer.
func NewOpenAI() *OpenAI {
	return &OpenAI{name: "openai"}
}

// NewOpenAIForDomain pins an OpenAI-compatible transformer to one upstream
// hostname.
func NewOpenAIForDomain(name, domain string) *OpenAI {
	return &OpenAI{name: name, domain: domain}
}

func (t *OpenAI) Name() string {
	return t.name
}

func (t *OpenAI) Domain() string {
	return t.domain
}

// TransformRequestIn converts a native messages body to chat-completions
// and builds the outbound call. Bearer auth is the OpenAI convention; the
// native x-api-key shape never reaches this upstream.
func (t *OpenAI) TransformRequestIn(body []byte, id Identity) (*TransformedRequest, error) {
	var native map[string]any
	if err := json.Unmarshal(body, &native); err != nil {
		return nil, fmt.Errorf("parse native request: %w", err)
	}

	out := make(map[string]any)

	if id.Model != "" {
		out["model"] = id.Model
	} else if model, ok := native["model"].(string); ok {
		out["model"] = model
	}

	messages := convertMessages(native)

	// the native format carries the system prompt out of band; OpenAI
	// wants it as the leading message
	if system := systemPrompt(native); system != "" {
		messages = append([]any{map[string]any{"role": "system", "content": system}}, messages...)
	}
	out["messages"] = messages

	if maxTokens, ok := native["max_tokens"].(float64); ok {
		out["max_tokens"] = int(maxTokens)
	}
	if temperature, ok := native["temperature"].(float64); ok {
		out["temperature"] = temperature
	}
	if topP, ok := native["top_p"].(float64); ok {
		out["top_p"] = topP
	}
	if stream, ok := native["stream"].(bool); ok {
		out["stream"] = stream
	}
	if stop, ok := native["stop_sequences"].([]any); ok && len(stop) > 0 {
		out["stop"] = stop
	}

	converted, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	return &TransformedRequest{
		Body: converted,
		URL:  util.ResolveURLPath(id.BaseURL, openaiChatCompletionsPath),
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + id.APIKey,
		},
	}, nil
}

// TransformResponseOut converts a non-streaming chat-completion response
// back to the native messages shape.
func (t *OpenAI) TransformResponseOut(body []byte, id Identity) ([]byte, error) {
	var resp struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse upstream response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("upstream response has no choices")
	}

	choice := resp.Choices[0]
	native := map[string]any{
		"id":    resp.ID,
		"type":  "message",
		"role":  "assistant",
		"model": resp.Model,
		"content": []any{
			map[string]any{"type": "text", "text": choice.Message.Content},
		},
		"stop_reason": mapStopReason(choice.FinishReason),
		"usage": map[string]any{
			"input_tokens":  resp.Usage.PromptTokens,
			"output_tokens": resp.Usage.CompletionTokens,
		},
	}
	return json.Marshal(native)
}

// convertMessages flattens single text-block contents to plain strings and
// keeps multi-part contents as-is (the vision-style array both formats
// accept).
func convertMessages(native map[string]any) []any {
	messages, ok := native["messages"].([]any)
	if !ok {
		return []any{}
	}

	converted := make([]any, 0, len(messages))
	for _, msg := range messages {
		msgMap, ok := msg.(map[string]any)
		if !ok {
			continue
		}
		out := map[string]any{"role": msgMap["role"]}

		switch content := msgMap["content"].(type) {
		case string:
			out["content"] = content
		case []any:
			if text, flat := flattenSingleText(content); flat {
				out["content"] = text
			} else {
				out["content"] = content
			}
		}
		converted = append(converted, out)
	}
	return converted
}

func flattenSingleText(content []any) (string, bool) {
	if len(content) != 1 {
		return "", false
	}
	block, ok := content[0].(map[string]any)
	if !ok {
		return "", false
	}
	if blockType, _ := block["type"].(string); blockType != "text" {
		return "", false
	}
	text, ok := block["text"].(string)
	return text, ok
}

// systemPrompt handles both shapes of the native system field: a plain
// string or an array of text blocks.
func systemPrompt(native map[string]any) string {
	switch system := native["system"].(type) {
	case string:
		return system
	case []any:
		joined := ""
		for _, part := range system {
			if block, ok := part.(map[string]any); ok {
				if text, ok := block["text"].(string); ok {
					if joined != "" {
						joined += "\n"
					}
					joined += text
				}
			}
		}
		return joined
	}
	return ""
}

func mapStopReason(finishReason string) string {
	switch finishReason {
	case "length":
		return "max_tokens"
	case "stop", "":
		return "end_turn"
	case "tool_calls":
		return "tool_use"
	default:
		return "end_turn"
	}
}
