package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// client is a minimal OpenAI HTTP client covering the chat completions
// endpoint in both unary and streaming modes.
type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newClient(apiKey, baseURL string, httpClient *http.Client) *client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &client{apiKey: apiKey, baseURL: baseURL, httpClient: httpClient}
}

func (c *client) newRequest(ctx context.Context, body *chatRequest, userAgent string) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req, nil
}

// createChatCompletion performs a unary completion call.
func (c *client) createChatCompletion(ctx context.Context, body *chatRequest, userAgent string) (*chatResponse, error) {
	body.Stream = false
	req, err := c.newRequest(ctx, body, userAgent)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.ClassifyError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrStreamingFailed(err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, data)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, domain.ErrProvider(fmt.Sprintf("decode response: %v", err))
	}
	return &out, nil
}

// streamChatCompletion opens a streaming completion call and invokes emit for
// each decoded chunk until the upstream terminates. It returns once the
// stream ends or fails.
func (c *client) streamChatCompletion(ctx context.Context, body *chatRequest, userAgent string, emit func(*chatChunk)) error {
	body.Stream = true
	body.StreamOptions = &streamOptions{IncludeUsage: true}
	req, err := c.newRequest(ctx, body, userAgent)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ClassifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return c.statusError(resp, data)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return nil
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Skip malformed frames rather than killing the stream.
			continue
		}
		emit(&chunk)
	}
	if err := scanner.Err(); err != nil {
		return domain.ErrStreamingFailed(err.Error())
	}
	return nil
}

// statusError folds a non-2xx response into the canonical taxonomy,
// preferring the structured upstream error message when present.
func (c *client) statusError(resp *http.Response, data []byte) error {
	detail := string(data)
	if apiErr := parseError(data); apiErr != nil {
		detail = apiErr.Message
	}
	ge := domain.ClassifyStatus(resp.StatusCode, detail)
	if ge.Kind == domain.ErrorKindRateLimited {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				ge.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	}
	return ge
}
