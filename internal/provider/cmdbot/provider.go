// Package cmdbot runs an internal bot as an external process: the flattened
// conversation goes to stdin, the reply comes back on stdout. The process
// runs under a hard wall-clock timeout and is killed when it expires.
package cmdbot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/stream"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/tokens"
)

const providerName = "cmdbot"

const modelName = "cmdbot"

const defaultTimeout = 60 * time.Second

// Provider runs the configured bot command per request.
type Provider struct {
	command string
	args    []string
	timeout time.Duration
}

// New creates a cmdbot provider. An empty command produces an unconfigured
// adapter. A zero timeout means the 60 second default.
func New(command string, args []string, timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Provider{command: command, args: args, timeout: timeout}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) IsConfigured() bool { return p.command != "" }

func (p *Provider) Models() []string { return []string{modelName} }

func (p *Provider) checkRequest(req *domain.Request) error {
	if !p.IsConfigured() {
		return domain.ErrNotConfigured(providerName)
	}
	if req.Model != modelName {
		return domain.ErrModelNotFound(providerName, req.Model)
	}
	return nil
}

// Complete runs the bot process once for the request.
func (p *Provider) Complete(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if err := p.checkRequest(req); err != nil {
		return nil, err
	}
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	input := flatten(req)
	cmd := exec.CommandContext(runCtx, p.command, p.args...)
	cmd.Stdin = strings.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrStreamingFailed(
				fmt.Sprintf("bot command timed out after %s", p.timeout))
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, domain.ErrProvider(fmt.Sprintf("bot command failed: %s", detail))
	}

	content := strings.TrimRight(stdout.String(), "\n")

	var acc tokens.Accumulator
	acc.RecordInput(tokens.EstimateInput(modelName, req.Messages))
	acc.RecordOutput(tokens.EstimateInput(modelName, []domain.Message{
		{Role: domain.RoleAssistant, Content: content},
	}))

	return &domain.Response{
		Content: &content,
		Usage:   acc.Usage(req.Model),
		Metadata: domain.ResponseMetadata{
			Model:        req.Model,
			Provider:     providerName,
			ElapsedMs:    time.Since(start).Milliseconds(),
			FinishReason: domain.FinishStop,
		},
	}, nil
}

// Stream synthesizes the canonical lifecycle around one process run.
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

// flatten renders the conversation as role-prefixed lines for the process.
func flatten(req *domain.Request) string {
	var sb strings.Builder
	if req.System != "" {
		sb.WriteString("system: ")
		sb.WriteString(req.System)
		sb.WriteString("\n")
	}
	for i := range req.Messages {
		m := &req.Messages[i]
		if m.Role == domain.RoleTool {
			continue
		}
		text := m.Text()
		if text == "" {
			continue
		}
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}
