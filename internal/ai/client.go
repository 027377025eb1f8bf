package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatConfig is a fully resolved completion target: endpoint, credential,
// model and sampling settings. Temperature is nil when the vendor ignores it.
type ChatConfig struct {
	Vendor      string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
}

// OpenAICompatibleClient speaks the OpenAI chat-completions wire protocol.
// All supported vendors expose compatible endpoints, so one client serves
// every vendor; only base URL, credential and sampling handling differ.
type OpenAICompatibleClient struct {
	httpClient *http.Client
}

func NewOpenAICompatibleClient() *OpenAICompatibleClient {
	return &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *OpenAICompatibleClient) requestBody(cfg ChatConfig, messages []ChatMessage, stream bool) map[string]interface{} {
	body := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
		"stream":   stream,
	}
	if cfg.Temperature != nil {
		body["temperature"] = *cfg.Temperature
	}
	return body
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	bodyBytes, err := json.Marshal(c.requestBody(cfg, messages, false))
	if err != nil {
		return "", fmt.Errorf("%s: marshal completion request failed: %w", cfg.Vendor, err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("%s: build completion request failed: %w", cfg.Vendor, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: completion request failed: %w", cfg.Vendor, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read completion response failed: %w", cfg.Vendor, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s: completion status %d: %s", cfg.Vendor, resp.StatusCode, string(raw))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%s: parse completion json failed: %w", cfg.Vendor, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s: empty completion choices", cfg.Vendor)
	}
	return parsed.Choices[0].Message.Content, nil
}

// StreamComplete drives a streaming completion, invoking onChunk for each
// text delta in arrival order. The consumer pulls: returning an error from
// onChunk stops the stream, and cancelling ctx aborts the vendor call.
// The full concatenated answer is returned on success.
func (c *OpenAICompatibleClient) StreamComplete(
	ctx context.Context,
	cfg ChatConfig,
	messages []ChatMessage,
	onChunk func(chunk string) error,
) (string, error) {
	bodyBytes, err := json.Marshal(c.requestBody(cfg, messages, true))
	if err != nil {
		return "", fmt.Errorf("%s: marshal stream request failed: %w", cfg.Vendor, err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("%s: build stream request failed: %w", cfg.Vendor, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: stream request failed: %w", cfg.Vendor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%s: stream status %d: %s", cfg.Vendor, resp.StatusCode, string(raw))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}

		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return "", err
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%s: scan stream failed: %w", cfg.Vendor, err)
	}
	return full.String(), nil
}
