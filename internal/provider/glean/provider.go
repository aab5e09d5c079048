package glean

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/stream"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/tokens"
)

const providerName = "glean"

const assistantModel = "glean-assistant"

// Provider adapts the Glean Assistant chat API. Glean threads conversation
// continuity through an opaque session tracking token rather than resending
// history; the provider caches the latest token per conversation id.
type Provider struct {
	client *client
	apiKey string

	mu       sync.Mutex
	sessions map[string]string // conversation id → session tracking token
}

// Option customizes a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.client.httpClient = hc }
}

// New creates a Glean provider. Glean is instance-scoped, so both the API
// key and the instance base URL are required for a configured adapter.
func New(apiKey, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		client:   newClient(apiKey, baseURL, nil),
		apiKey:   apiKey,
		sessions: make(map[string]string),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) IsConfigured() bool { return p.apiKey != "" && p.client.baseURL != "" }

func (p *Provider) Models() []string { return []string{assistantModel} }

func servesModel(model string) bool {
	return model == assistantModel || strings.HasPrefix(model, "glean-")
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

// sessionToken returns the cached continuation token for a conversation, or
// "" for a fresh conversation.
func (p *Provider) sessionToken(conversationID string) string {
	if conversationID == "" {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[conversationID]
}

// storeSessionToken records the latest continuation token for a conversation.
// Concurrent requests on one conversation race benignly: last write wins.
func (p *Provider) storeSessionToken(conversationID, token string) {
	if conversationID == "" || token == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[conversationID] = token
}

// Complete performs a unary chat call.
func (p *Provider) Complete(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if err := p.checkRequest(req); err != nil {
		return nil, err
	}
	start := time.Now()

	out, err := p.client.chat(ctx, buildRequest(req, p.sessionToken(req.ConversationID)), req.UserAgent)
	if err != nil {
		return nil, err
	}
	p.storeSessionToken(req.ConversationID, out.SessionToken)

	var (
		content   strings.Builder
		citations []domain.Citation
	)
	foldLine(out, &content, &citations, nil)

	text := content.String()
	return &domain.Response{
		Content:   &text,
		Citations: citations,
		Usage:     estimateUsage(req, text),
		Metadata: domain.ResponseMetadata{
			Model:        req.Model,
			Provider:     providerName,
			ElapsedMs:    time.Since(start).Milliseconds(),
			FinishReason: domain.FinishStop,
		},
	}, nil
}

// Stream performs a streaming chat call over NDJSON frames.
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
			content   strings.Builder
			citations []domain.Citation
			token     string
		)

		body := buildRequest(req, p.sessionToken(req.ConversationID))
		err := p.client.chatStream(ctx, body, req.UserAgent, func(frame *chatLine) {
			if frame.SessionToken != "" {
				token = frame.SessionToken
			}
			foldLine(frame, &content, &citations, func(text string) {
				events <- stream.NewContentDelta(text)
			})
		})
		if err != nil {
			events <- stream.NewError(err)
			return
		}
		p.storeSessionToken(req.ConversationID, token)

		text := content.String()
		events <- stream.NewDone(stream.DoneData{
			Content:   &text,
			Citations: citations,
			Usage:     estimateUsage(req, text),
			Metadata: domain.ResponseMetadata{
				Model:        req.Model,
				Provider:     providerName,
				ElapsedMs:    time.Since(start).Milliseconds(),
				FinishReason: domain.FinishStop,
			},
		})
	}()
	return events, nil
}

// foldLine merges one response frame into the accumulated content and
// citations, invoking onText for each new text fragment when set.
func foldLine(frame *chatLine, content *strings.Builder, citations *[]domain.Citation, onText func(string)) {
	for _, m := range frame.Messages {
		if m.MessageType != "" && m.MessageType != "CONTENT" {
			continue
		}
		for _, f := range m.Fragments {
			if f.Text == "" {
				continue
			}
			content.WriteString(f.Text)
			if onText != nil {
				onText(f.Text)
			}
		}
		for _, c := range m.Citations {
			*citations = append(*citations, c.toCanonical())
		}
	}
}

// buildRequest translates a canonical request into the Glean wire shape.
// When a continuation token is present only the latest user message travels;
// Glean reconstructs context server-side.
func buildRequest(req *domain.Request, token string) *chatRequest {
	out := &chatRequest{SessionToken: token}

	if token != "" {
		if text := req.LastUserText(); text != "" {
			out.Messages = append(out.Messages, wireMessage{
				Author:    "USER",
				Fragments: []fragment{{Text: text}},
			})
		}
		return out
	}

	if req.System != "" {
		out.Messages = append(out.Messages, wireMessage{
			Author:    "USER",
			Fragments: []fragment{{Text: req.System}},
		})
	}
	for i := range req.Messages {
		m := &req.Messages[i]
		// No tool protocol: tool turns are dropped rather than surfaced as
		// user text.
		if m.Role == domain.RoleTool {
			continue
		}
		text := m.Text()
		if m.HasImageContent() {
			if text != "" {
				text += "\n"
			}
			text += "[image attachment omitted]"
		}
		if text == "" {
			continue
		}
		author := "USER"
		if m.Role == domain.RoleAssistant {
			author = "GLEAN_AI"
		}
		out.Messages = append(out.Messages, wireMessage{
			Author:    author,
			Fragments: []fragment{{Text: text}},
		})
	}
	return out
}

// estimateUsage synthesizes usage for an API that reports none.
func estimateUsage(req *domain.Request, output string) domain.Usage {
	var acc tokens.Accumulator
	acc.RecordInput(tokens.EstimateInput(req.Model, req.Messages))
	acc.RecordOutput(tokens.EstimateInput(req.Model, []domain.Message{
		{Role: domain.RoleAssistant, Content: output},
	}))
	return acc.Usage(req.Model)
}
