package glean

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

type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newClient(apiKey, baseURL string, httpClient *http.Client) *client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &client{apiKey: apiKey, baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

func (c *client) newRequest(ctx context.Context, body *chatRequest, userAgent string) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/api/v1/chat", bytes.NewReader(payload))
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

// chat performs a unary chat call.
func (c *client) chat(ctx context.Context, body *chatRequest, userAgent string) (*chatLine, error) {
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
		return nil, domain.ClassifyStatus(resp.StatusCode, string(data))
	}

	var out chatLine
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, domain.ErrProvider(fmt.Sprintf("decode response: %v", err))
	}
	return &out, nil
}

// chatStream opens a streaming chat call and invokes emit for each NDJSON
// frame. Lines that fail to decode are skipped; a stream is only an error
// when the transport itself fails.
func (c *client) chatStream(ctx context.Context, body *chatRequest, userAgent string, emit func(*chatLine)) error {
	body.Stream = true
	req, err := c.newRequest(ctx, body, userAgent)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ClassifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return domain.ClassifyStatus(resp.StatusCode, string(data))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var frame chatLine
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			continue
		}
		emit(&frame)
	}
	if err := scanner.Err(); err != nil {
		return domain.ErrStreamingFailed(err.Error())
	}
	return nil
}
