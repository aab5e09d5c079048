// Package assistant adapts the workspace-assistant platform. The upstream
// API is blocking JSON only; streaming is synthesized from the unary
// response. Models are workspace-scoped agent ids of the form
// "assistant/<agent-id>".
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/stream"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/tokens"
)

const providerName = "assistant"

const modelPrefix = "assistant/"

type chatRequest struct {
	Messages []wireMessage `json:"messages"`
	System   string        `json:"system,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Content string `json:"content"`
	Usage   *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
}

// Provider adapts the workspace-assistant platform API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.httpClient = hc }
}

// New creates an assistant provider.
func New(apiKey, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) IsConfigured() bool { return p.apiKey != "" && p.baseURL != "" }

// Models lists only the stable general agent; workspace agents are
// dynamically named and resolve by prefix.
func (p *Provider) Models() []string { return []string{modelPrefix + "general"} }

func (p *Provider) checkRequest(req *domain.Request) error {
	if !p.IsConfigured() {
		return domain.ErrNotConfigured(providerName)
	}
	if !strings.HasPrefix(req.Model, modelPrefix) || len(req.Model) == len(modelPrefix) {
		return domain.ErrModelNotFound(providerName, req.Model)
	}
	return nil
}

// Complete performs a blocking chat call against the agent named by the
// model id.
func (p *Provider) Complete(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if err := p.checkRequest(req); err != nil {
		return nil, err
	}
	start := time.Now()

	agentID := strings.TrimPrefix(req.Model, modelPrefix)
	body := &chatRequest{System: req.System}
	for i := range req.Messages {
		m := &req.Messages[i]
		if m.Role == domain.RoleTool {
			continue
		}
		if text := m.Text(); text != "" {
			body.Messages = append(body.Messages, wireMessage{Role: string(m.Role), Content: text})
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/v1/agents/"+agentID+"/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}

	resp, err := p.httpClient.Do(httpReq)
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

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, domain.ErrProvider(fmt.Sprintf("decode response: %v", err))
	}

	var acc tokens.Accumulator
	if out.Usage != nil {
		acc.Record(out.Usage.InputTokens, out.Usage.OutputTokens)
	} else {
		acc.RecordInput(tokens.EstimateInput(req.Model, req.Messages))
		acc.RecordOutput(tokens.EstimateInput(req.Model, []domain.Message{
			{Role: domain.RoleAssistant, Content: out.Content},
		}))
	}

	return &domain.Response{
		Content: &out.Content,
		Usage:   acc.Usage(req.Model),
		Metadata: domain.ResponseMetadata{
			Model:        req.Model,
			Provider:     providerName,
			ElapsedMs:    time.Since(start).Milliseconds(),
			FinishReason: domain.FinishStop,
		},
	}, nil
}

// Stream synthesizes the canonical lifecycle from the blocking API: one
// start, a single delta carrying the full text, one done.
func (p *Provider) Stream(ctx context.Context, req *domain.Request) (<-chan stream.Event, error) {
	if err := p.checkRequest(req); err != nil {
		return nil, err
	}

	events := make(chan stream.Event, 4)
	go func() {
		defer close(events)
		events <- stream.NewStart(uuid.NewString(), req.Model, providerName)

		resp, err := p.Complete(ctx, req)
		if err != nil {
			events <- stream.NewError(err)
			return
		}
		if resp.Content != nil && *resp.Content != "" {
			events <- stream.NewContentDelta(*resp.Content)
		}
		events <- stream.NewDone(stream.DoneData{
			Content:  resp.Content,
			Usage:    resp.Usage,
			Metadata: resp.Metadata,
		})
	}()
	return events, nil
}
