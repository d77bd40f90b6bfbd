package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/youruser/orgai/internal/logging"
)

var (
	ErrRequestFailed = errors.New("API request failed")
	ErrStreamError   = errors.New("stream error")
	ErrNoChoices     = errors.New("no choices in response")
	log              = logging.Get()
)

// Client handles communication with the completion API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewClient creates a new completion client.
func NewClient(baseURL, apiKey, model string, maxTokens int) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{},
	}
}

// StreamCallback is called for each event of a completion call.
type StreamCallback func(event StreamEvent)

// Complete sends one prompt and delivers the model's output through callback.
// With streaming true, content arrives incrementally via SSE; otherwise a
// single content event carries the full text. A final "done" event marks
// completion in both modes. No timeout is enforced; cancel via ctx.
func (c *Client) Complete(ctx context.Context, promptText string, streaming bool, callback StreamCallback) error {
	reqBody := ChatRequest{
		Model:     c.model,
		Messages:  []Message{{Role: "user", Content: promptText}},
		Stream:    streaming,
		MaxTokens: c.maxTokens,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Debug("HTTP POST %s/chat/completions (model: %s, streaming: %v, prompt: %d bytes)",
		c.baseURL, c.model, streaming, len(promptText))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("HTTP request failed: %v", err)
		return err
	}
	defer resp.Body.Close()

	log.Debug("HTTP response status: %d", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Error("API error %d: %s", resp.StatusCode, string(body))
		return fmt.Errorf("%w: %d - %s", ErrRequestFailed, resp.StatusCode, string(body))
	}

	if streaming {
		return c.processStream(ctx, resp.Body, callback)
	}
	return c.processBatch(resp.Body, callback)
}

// processBatch decodes a non-streaming response and emits content + done.
func (c *Client) processBatch(reader io.Reader, callback StreamCallback) error {
	var chatResp ChatResponse
	if err := json.NewDecoder(reader).Decode(&chatResp); err != nil {
		return err
	}

	if chatResp.Error != nil {
		callback(StreamEvent{Type: "error", Error: chatResp.Error.Message})
		return fmt.Errorf("%w: %s", ErrStreamError, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return ErrNoChoices
	}
	msg := chatResp.Choices[0].Message
	if msg == nil {
		return ErrNoChoices
	}

	callback(StreamEvent{Type: "content", Content: msg.Content})
	callback(StreamEvent{Type: "done", Usage: chatResp.Usage})
	return nil
}

// processStream reads SSE events and calls the callback for each.
func (c *Client) processStream(ctx context.Context, reader io.Reader, callback StreamCallback) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lastUsage *Usage
	log.Debug("Starting SSE stream processing")

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()

		// SSE format: "data: {json}"
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")

		// Stream end marker
		if data == "[DONE]" {
			log.Debug("SSE stream received [DONE]")
			callback(StreamEvent{Type: "done", Usage: lastUsage})
			return nil
		}

		var resp ChatResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			continue // Skip malformed chunks
		}

		if resp.Error != nil {
			callback(StreamEvent{
				Type:  "error",
				Error: resp.Error.Message,
			})
			return fmt.Errorf("%w: %s", ErrStreamError, resp.Error.Message)
		}

		// Capture usage if present (typically in the final chunk)
		if resp.Usage != nil {
			lastUsage = resp.Usage
			log.Debug("Captured usage: prompt=%d, completion=%d",
				resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}

		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		delta := choice.Delta
		if delta == nil {
			delta = choice.Message
		}
		if delta == nil {
			continue
		}

		if delta.Content != "" {
			callback(StreamEvent{
				Type:    "content",
				Content: delta.Content,
			})
		}
	}

	if err := scanner.Err(); err != nil {
		// When the context is canceled (user abort), the HTTP body closes and
		// the scanner sees an IO error. Return the context error so callers
		// can detect the cancellation.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("SSE scanner error: %v", err)
		return err
	}

	// Stream ended without [DONE]; still signal completion.
	log.Debug("SSE stream ended without [DONE]")
	callback(StreamEvent{Type: "done", Usage: lastUsage})

	return nil
}
