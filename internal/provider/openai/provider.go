package openai

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/stream"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/tokens"
)

const providerName = "openai"

var knownModels = map[string]bool{
	"gpt-4o":      true,
	"gpt-4o-mini": true,
	"o1-mini":     true,
}

// Provider adapts the OpenAI Chat Completions API.
type Provider struct {
	client *client
	apiKey string
}

// Option customizes a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL, mainly for tests and proxies.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.client.baseURL = baseURL }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.client.httpClient = hc }
}

// New creates an OpenAI provider. An empty apiKey produces an adapter that
// reports IsConfigured() == false and fails all calls with a configuration
// error.
func New(apiKey, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		client: newClient(apiKey, baseURL, nil),
		apiKey: apiKey,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) IsConfigured() bool { return p.apiKey != "" }

func (p *Provider) Models() []string {
	out := make([]string, 0, len(knownModels))
	for m := range knownModels {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// servesModel accepts the static list plus any model carrying an OpenAI
// family prefix, so newer snapshots route without a code change.
func servesModel(model string) bool {
	if knownModels[model] {
		return true
	}
	for _, prefix := range []string{"gpt-", "o1-", "o3-", "o4-"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (p *Provider) checkRequest(req *domain.Request) error {
	if !p.IsConfigured() {
		return domain.ErrNotConfigured(providerName)
	}
	if !servesModel(req.Model) {
		return domain.ErrModelNotFound(providerName, req.Model)
	}
	return nil
}

// Complete performs a unary chat completion.
func (p *Provider) Complete(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if err := p.checkRequest(req); err != nil {
		return nil, err
	}
	start := time.Now()

	out, err := p.client.createChatCompletion(ctx, buildRequest(req), req.UserAgent)
	if err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, domain.ErrProvider("response contained no choices")
	}
	ch := out.Choices[0]

	var acc tokens.Accumulator
	if out.Usage != nil {
		acc.Record(out.Usage.PromptTokens, out.Usage.CompletionTokens)
	} else {
		acc.RecordInput(tokens.EstimateInput(req.Model, req.Messages))
	}

	resp := &domain.Response{
		Content:   ch.Message.Content,
		ToolCalls: translateToolCalls(ch.Message.ToolCalls),
		Usage:     acc.Usage(req.Model),
		Metadata: domain.ResponseMetadata{
			Model:        req.Model,
			Provider:     providerName,
			ElapsedMs:    time.Since(start).Milliseconds(),
			FinishReason: mapFinishReason(ch.FinishReason),
		},
	}
	return resp, nil
}

// Stream performs a streaming chat completion. The returned channel follows
// the canonical lifecycle and is always closed by this adapter.
func (p *Provider) Stream(ctx context.Context, req *domain.Request) (<-chan stream.Event, error) {
	if err := p.checkRequest(req); err != nil {
		return nil, err
	}

	events := make(chan stream.Event, 16)
	go func() {
		defer close(events)
		events <- stream.NewStart(uuid.NewString(), req.Model, providerName)

		start := time.Now()
		var (
			content      strings.Builder
			calls        = newToolCallAccumulator()
			acc          tokens.Accumulator
			finishReason = domain.FinishStop
			sawFinish    bool
		)

		err := p.client.streamChatCompletion(ctx, buildRequest(req), req.UserAgent, func(chunk *chatChunk) {
			if chunk.Usage != nil {
				acc.Record(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
			}
			if len(chunk.Choices) == 0 {
				return
			}
			ch := chunk.Choices[0]
			if ch.Delta.Content != "" {
				content.WriteString(ch.Delta.Content)
				events <- stream.NewContentDelta(ch.Delta.Content)
			}
			if ch.Delta.ReasoningContent != "" {
				events <- stream.NewThinkingDelta(ch.Delta.ReasoningContent)
			}
			for _, tc := range ch.Delta.ToolCalls {
				d := calls.add(tc)
				events <- stream.NewToolCallDelta(d)
			}
			if ch.FinishReason != nil && *ch.FinishReason != "" {
				finishReason = mapFinishReason(*ch.FinishReason)
				sawFinish = true
			}
		})
		if err != nil {
			events <- stream.NewError(err)
			return
		}

		toolCalls := calls.finish()
		if !sawFinish && len(toolCalls) > 0 {
			finishReason = domain.FinishToolCalls
		}
		if acc.Usage(req.Model).InputTokens == 0 {
			acc.RecordInput(tokens.EstimateInput(req.Model, req.Messages))
		}

		var text *string
		if content.Len() > 0 {
			s := content.String()
			text = &s
		}
		events <- stream.NewDone(stream.DoneData{
			Content:   text,
			ToolCalls: toolCalls,
			Usage:     acc.Usage(req.Model),
			Metadata: domain.ResponseMetadata{
				Model:        req.Model,
				Provider:     providerName,
				ElapsedMs:    time.Since(start).Milliseconds(),
				FinishReason: finishReason,
			},
		})
	}()
	return events, nil
}

// buildRequest translates a canonical request into the OpenAI wire shape.
func buildRequest(req *domain.Request) *chatRequest {
	out := &chatRequest{
		Model:               req.Model,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         req.Temperature,
		ToolChoice:          string(req.ToolChoice),
	}
	if req.System != "" {
		out.Messages = append(out.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for i := range req.Messages {
		out.Messages = append(out.Messages, translateMessage(&req.Messages[i]))
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, tool{
			Type: "function",
			Function: functionTool{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

func translateMessage(m *domain.Message) chatMessage {
	out := chatMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}

	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, toolCall{
			ID:   tc.ID,
			Type: "function",
			Function: functionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	if m.HasImageContent() {
		out.Content = multimodalContent(m)
		return out
	}
	if text := m.Text(); text != "" || len(m.ToolCalls) == 0 {
		out.Content = text
	}
	return out
}

// multimodalContent builds the content-part array form for messages carrying
// images, folding attachments in alongside explicit parts.
func multimodalContent(m *domain.Message) []contentPart {
	var parts []contentPart
	if m.Content != "" && len(m.Parts) == 0 {
		parts = append(parts, contentPart{Type: "text", Text: m.Content})
	}
	for _, p := range m.Parts {
		switch p.Type {
		case domain.PartText:
			if p.Text != "" {
				parts = append(parts, contentPart{Type: "text", Text: p.Text})
			}
		case domain.PartImage:
			url := p.ImageURL
			if url == "" && p.Data != "" {
				url = "data:" + p.MediaType + ";base64," + p.Data
			}
			if url != "" {
				parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: url}})
			}
		}
	}
	for _, a := range m.Attachments {
		if a.Kind != domain.AttachmentImage {
			continue
		}
		url := a.URL
		if url == "" && a.Data != "" {
			url = "data:" + a.MediaType + ";base64," + a.Data
		}
		if url != "" {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: url}})
		}
	}
	return parts
}

func translateToolCalls(in []toolCall) []domain.ToolCall {
	out := make([]domain.ToolCall, 0, len(in))
	for _, tc := range in {
		out = append(out, domain.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: domain.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

// toolCallAccumulator assembles streamed tool-call fragments keyed by index.
// The first fragment for an index carries the id and name; argument text
// accumulates across later fragments.
type toolCallAccumulator struct {
	order []int
	byIdx map[int]*pendingCall
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIdx: make(map[int]*pendingCall)}
}

// add folds one fragment in and returns the canonical delta to forward.
func (a *toolCallAccumulator) add(tc toolCallChunk) stream.ToolCallDelta {
	pc, ok := a.byIdx[tc.Index]
	if !ok {
		pc = &pendingCall{}
		a.byIdx[tc.Index] = pc
		a.order = append(a.order, tc.Index)
	}
	d := stream.ToolCallDelta{Index: tc.Index}
	if tc.ID != "" {
		pc.id = tc.ID
		d.ID = tc.ID
	}
	if tc.Function != nil {
		if tc.Function.Name != "" {
			pc.name = tc.Function.Name
			d.Name = tc.Function.Name
		}
		if tc.Function.Arguments != "" {
			pc.args.WriteString(tc.Function.Arguments)
			d.Arguments = tc.Function.Arguments
		}
	}
	return d
}

// finish materializes the accumulated calls in first-seen index order.
func (a *toolCallAccumulator) finish() []domain.ToolCall {
	sort.Ints(a.order)
	var out []domain.ToolCall
	for _, idx := range a.order {
		pc := a.byIdx[idx]
		args := pc.args.String()
		if args == "" {
			args = "{}"
		}
		out = append(out, domain.ToolCall{
			ID:   pc.id,
			Type: "function",
			Function: domain.FunctionCall{
				Name:      pc.name,
				Arguments: args,
			},
		})
	}
	return out
}
