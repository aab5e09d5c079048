package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/stream"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/tokens"
)

const providerName = "anthropic"

// The API rejects requests without max_tokens.
const defaultMaxTokens = 4096

var knownModels = map[string]bool{
	"claude-sonnet-4-20250514":  true,
	"claude-3-5-haiku-20241022": true,
}

// Provider adapts the Anthropic Messages API.
type Provider struct {
	client *client
	apiKey string
}

// Option customizes a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL, mainly for tests and proxies.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.client.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.client.httpClient = hc }
}

// New creates an Anthropic provider.
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

func servesModel(model string) bool {
	return knownModels[model] || strings.HasPrefix(model, "claude-")
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

// Complete performs a unary messages call.
func (p *Provider) Complete(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if err := p.checkRequest(req); err != nil {
		return nil, err
	}
	start := time.Now()

	out, err := p.client.createMessage(ctx, buildRequest(req), req.UserAgent)
	if err != nil {
		return nil, err
	}

	var (
		content   strings.Builder
		toolCalls []domain.ToolCall
	)
	for _, block := range out.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, domain.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: domain.FunctionCall{
					Name:      block.Name,
					Arguments: argumentsJSON(block.Input),
				},
			})
		}
	}

	var acc tokens.Accumulator
	acc.Record(out.Usage.InputTokens, out.Usage.OutputTokens)

	var text *string
	if content.Len() > 0 {
		s := content.String()
		text = &s
	}
	return &domain.Response{
		Content:   text,
		ToolCalls: toolCalls,
		Usage:     acc.Usage(req.Model),
		Metadata: domain.ResponseMetadata{
			Model:        req.Model,
			Provider:     providerName,
			ElapsedMs:    time.Since(start).Milliseconds(),
			FinishReason: mapStopReason(out.StopReason),
		},
	}, nil
}

// Stream performs a streaming messages call. Input usage arrives on
// message_start and output usage on message_delta; the two halves merge into
// a single final report.
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
			acc          tokens.Accumulator
			finishReason = domain.FinishStop
			calls        []domain.ToolCall
			// Anthropic block index → position in calls, for routing
			// input_json_delta fragments.
			callByBlock = map[int]int{}
		)

		err := p.client.streamMessage(ctx, buildRequest(req), req.UserAgent, func(ev namedEvent) error {
			switch ev.name {
			case "message_start":
				var e messageStartEvent
				if err := json.Unmarshal(ev.data, &e); err != nil {
					return nil
				}
				acc.RecordInput(e.Message.Usage.InputTokens)

			case "content_block_start":
				var e contentBlockStartEvent
				if err := json.Unmarshal(ev.data, &e); err != nil {
					return nil
				}
				if e.ContentBlock.Type == "tool_use" {
					idx := len(calls)
					callByBlock[e.Index] = idx
					calls = append(calls, domain.ToolCall{
						ID:       e.ContentBlock.ID,
						Type:     "function",
						Function: domain.FunctionCall{Name: e.ContentBlock.Name},
					})
					events <- stream.NewToolCallDelta(stream.ToolCallDelta{
						Index: idx,
						ID:    e.ContentBlock.ID,
						Name:  e.ContentBlock.Name,
					})
				}

			case "content_block_delta":
				var e contentBlockDeltaEvent
				if err := json.Unmarshal(ev.data, &e); err != nil {
					return nil
				}
				switch e.Delta.Type {
				case "text_delta":
					content.WriteString(e.Delta.Text)
					events <- stream.NewContentDelta(e.Delta.Text)
				case "thinking_delta":
					events <- stream.NewThinkingDelta(e.Delta.Thinking)
				case "input_json_delta":
					if idx, ok := callByBlock[e.Index]; ok {
						calls[idx].Function.Arguments += e.Delta.PartialJSON
						events <- stream.NewToolCallDelta(stream.ToolCallDelta{
							Index:     idx,
							Arguments: e.Delta.PartialJSON,
						})
					}
				}

			case "message_delta":
				var e messageDeltaEvent
				if err := json.Unmarshal(ev.data, &e); err != nil {
					return nil
				}
				if e.Delta.StopReason != "" {
					finishReason = mapStopReason(e.Delta.StopReason)
				}
				if e.Usage != nil {
					acc.RecordOutput(e.Usage.OutputTokens)
				}

			case "error":
				var e errorEvent
				if err := json.Unmarshal(ev.data, &e); err != nil {
					return domain.ErrStreamingFailed(string(ev.data))
				}
				return domain.ErrProvider(e.Error.Message)
			}
			return nil
		})
		if err != nil {
			events <- stream.NewError(err)
			return
		}

		for i := range calls {
			if calls[i].Function.Arguments == "" {
				calls[i].Function.Arguments = "{}"
			}
		}

		var text *string
		if content.Len() > 0 {
			s := content.String()
			text = &s
		}
		events <- stream.NewDone(stream.DoneData{
			Content:   text,
			ToolCalls: calls,
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

// buildRequest translates a canonical request into the Anthropic wire shape.
// Tool results travel as tool_result blocks inside user messages; consecutive
// tool results merge into one user message.
func buildRequest(req *domain.Request) *messagesRequest {
	out := &messagesRequest{
		Model:       req.Model,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}

	for i := range req.Messages {
		m := &req.Messages[i]
		switch m.Role {
		case domain.RoleSystem:
			if out.System == "" {
				out.System = m.Text()
			} else {
				out.System += "\n" + m.Text()
			}
		case domain.RoleTool:
			block := contentBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			}
			if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == "user" &&
				len(out.Messages[n-1].Content) > 0 && out.Messages[n-1].Content[0].Type == "tool_result" {
				out.Messages[n-1].Content = append(out.Messages[n-1].Content, block)
			} else {
				out.Messages = append(out.Messages, wireMessage{Role: "user", Content: []contentBlock{block}})
			}
		default:
			out.Messages = append(out.Messages, wireMessage{
				Role:    string(m.Role),
				Content: messageBlocks(m),
			})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	switch req.ToolChoice {
	case domain.ToolChoiceNone:
		out.ToolChoice = &toolChoice{Type: "none"}
	case domain.ToolChoiceRequired:
		out.ToolChoice = &toolChoice{Type: "any"}
	}
	return out
}

func messageBlocks(m *domain.Message) []contentBlock {
	var blocks []contentBlock

	if len(m.Parts) == 0 {
		if m.Content != "" {
			blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
		}
	}
	for _, p := range m.Parts {
		switch p.Type {
		case domain.PartText:
			if p.Text != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: p.Text})
			}
		case domain.PartImage:
			blocks = append(blocks, imageBlock(p.ImageURL, p.MediaType, p.Data))
		}
	}
	for _, a := range m.Attachments {
		if a.Kind == domain.AttachmentImage {
			blocks = append(blocks, imageBlock(a.URL, a.MediaType, a.Data))
		}
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, contentBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(argumentsJSON(json.RawMessage(tc.Function.Arguments))),
		})
	}
	if len(blocks) == 0 {
		blocks = append(blocks, contentBlock{Type: "text", Text: ""})
	}
	return blocks
}

func imageBlock(url, mediaType, data string) contentBlock {
	if url != "" && !strings.HasPrefix(url, "data:") {
		return contentBlock{Type: "image", Source: &imageSource{Type: "url", URL: url}}
	}
	return contentBlock{Type: "image", Source: &imageSource{
		Type:      "base64",
		MediaType: mediaType,
		Data:      data,
	}}
}

// argumentsJSON guards against empty or invalid argument strings; the API
// requires tool_use input to be a JSON object.
func argumentsJSON(raw json.RawMessage) string {
	if len(raw) == 0 || !json.Valid(raw) {
		return "{}"
	}
	return string(raw)
}
