package anthropic

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

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

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
	return &client{apiKey: apiKey, baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

func (c *client) newRequest(ctx context.Context, body *messagesRequest, userAgent string) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req, nil
}

// createMessage performs a unary messages call.
func (c *client) createMessage(ctx context.Context, body *messagesRequest, userAgent string) (*messagesResponse, error) {
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
		return nil, statusError(resp.StatusCode, data)
	}

	var out messagesResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, domain.ErrProvider(fmt.Sprintf("decode response: %v", err))
	}
	return &out, nil
}

// namedEvent is one SSE frame with its event name attached.
type namedEvent struct {
	name string
	data []byte
}

// streamMessage opens a streaming messages call and invokes emit for each
// named SSE event. It returns once message_stop arrives or the stream fails.
func (c *client) streamMessage(ctx context.Context, body *messagesRequest, userAgent string, emit func(namedEvent) error) error {
	body.Stream = true
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
		return statusError(resp.StatusCode, data)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var current string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "event: ") {
			current = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if err := emit(namedEvent{name: current, data: []byte(data)}); err != nil {
			return err
		}
		if current == "message_stop" {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.ErrStreamingFailed(err.Error())
	}
	return nil
}

func statusError(status int, data []byte) error {
	detail := string(data)
	if msg, ok := parseError(data); ok {
		detail = msg
	}
	return domain.ClassifyStatus(status, detail)
}
