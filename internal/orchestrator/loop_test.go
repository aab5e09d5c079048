package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/provider"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/stream"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/tool"
)

// scriptedAdapter replays one pre-built event sequence per Stream call.
type scriptedAdapter struct {
	rounds [][]stream.Event
	calls  int
	// requests records the history each round was called with
	requests []*domain.Request
}

func (a *scriptedAdapter) Name() string       { return "scripted" }
func (a *scriptedAdapter) IsConfigured() bool { return true }
func (a *scriptedAdapter) Models() []string   { return []string{"scripted-model"} }
func (a *scriptedAdapter) Complete(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	return nil, fmt.Errorf("not used")
}

func (a *scriptedAdapter) Stream(ctx context.Context, req *domain.Request) (<-chan stream.Event, error) {
	if a.calls >= len(a.rounds) {
		return nil, fmt.Errorf("no scripted round %d", a.calls)
	}
	round := a.rounds[a.calls]
	a.calls++
	a.requests = append(a.requests, req)

	out := make(chan stream.Event, len(round))
	for _, ev := range round {
		out <- ev
	}
	close(out)
	return out, nil
}

func doneWith(content string, calls ...domain.ToolCall) stream.Event {
	d := stream.DoneData{
		ToolCalls: calls,
		Usage:     domain.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		Metadata: domain.ResponseMetadata{
			Model: "scripted-model", Provider: "scripted",
			FinishReason: domain.FinishStop,
		},
	}
	if len(calls) > 0 {
		d.Metadata.FinishReason = domain.FinishToolCalls
	}
	if content != "" {
		d.Content = &content
	}
	return stream.NewDone(d)
}

func toolCall(id, name, args string) domain.ToolCall {
	return domain.ToolCall{
		ID: id, Type: "function",
		Function: domain.FunctionCall{Name: name, Arguments: args},
	}
}

func newLoop(t *testing.T, adapter provider.Adapter, reg *tool.Registry, maxRounds int) *Loop {
	t.Helper()
	providers := provider.NewRegistry()
	providers.Register("scripted", func() provider.Adapter { return adapter })
	return NewLoop(providers, tool.NewExecutor(reg, 0), maxRounds, nil)
}

func run(t *testing.T, l *Loop, req *domain.Request) ([]domain.Message, []stream.Event, error) {
	t.Helper()
	sink := make(chan stream.Event, 64)
	history, err := l.Run(context.Background(), req, sink)
	close(sink)
	var events []stream.Event
	for ev := range sink {
		events = append(events, ev)
	}
	return history, events, err
}

func baseRequest() *domain.Request {
	return &domain.Request{
		Provider: "scripted",
		Model:    "scripted-model",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "what time is it in Tokyo and Paris?"}},
	}
}

func TestDeterministicHistoryOrder(t *testing.T) {
	// tool A is slow, tool B fast: completion order is B then A, but history
	// order must stay A then B.
	tools := tool.NewRegistry()
	tools.Register(tool.Definition{
		Name: "slow_tool",
		Execute: func(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
			time.Sleep(50 * time.Millisecond)
			return &domain.ToolResult{Success: true, Output: "slow done"}, nil
		},
	})
	tools.Register(tool.Definition{
		Name: "fast_tool",
		Execute: func(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
			return &domain.ToolResult{Success: true, Output: "fast done"}, nil
		},
	})

	adapter := &scriptedAdapter{rounds: [][]stream.Event{
		{
			stream.NewStart("s1", "scripted-model", "scripted"),
			doneWith("", toolCall("call_a", "slow_tool", `{}`), toolCall("call_b", "fast_tool", `{}`)),
		},
		{
			stream.NewStart("s2", "scripted-model", "scripted"),
			stream.NewContentDelta("All done."),
			doneWith("All done."),
		},
	}}

	history, events, err := run(t, newLoop(t, adapter, tools, 0), baseRequest())
	require.NoError(t, err)

	roles := make([]domain.Role, len(history))
	for i, m := range history {
		roles[i] = m.Role
	}
	require.Equal(t, []domain.Role{
		domain.RoleUser,
		domain.RoleAssistant, // carries the two tool calls
		domain.RoleTool,      // A, despite finishing second
		domain.RoleTool,      // B
		domain.RoleAssistant, // final
	}, roles)
	require.Equal(t, "call_a", history[2].ToolCallID)
	require.Equal(t, "slow done", history[2].Content)
	require.Equal(t, "call_b", history[3].ToolCallID)
	require.Equal(t, "All done.", history[4].Content)

	// one logical stream: one start, deltas, one terminal done
	require.Equal(t, stream.EventStart, events[0].Type)
	var starts, dones int
	for _, ev := range events {
		switch ev.Type {
		case stream.EventStart:
			starts++
		case stream.EventDone:
			dones++
		}
	}
	require.Equal(t, 1, starts)
	require.Equal(t, 1, dones)

	// second round was called with the extended history
	require.Len(t, adapter.requests, 2)
	require.Len(t, adapter.requests[1].Messages, 4)
}

func TestToolFailureContainment(t *testing.T) {
	tools := tool.NewRegistry()
	tools.Register(tool.Definition{
		Name: "broken",
		Execute: func(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
			return nil, fmt.Errorf("kaboom")
		},
	})
	tools.Register(tool.Definition{
		Name: "working",
		Execute: func(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
			return &domain.ToolResult{Success: true, Output: "fine"}, nil
		},
	})

	adapter := &scriptedAdapter{rounds: [][]stream.Event{
		{
			stream.NewStart("s1", "scripted-model", "scripted"),
			doneWith("", toolCall("call_a", "broken", `{}`), toolCall("call_b", "working", `{}`)),
		},
		{
			stream.NewStart("s2", "scripted-model", "scripted"),
			doneWith("Recovered."),
		},
	}}

	history, _, err := run(t, newLoop(t, adapter, tools, 0), baseRequest())
	require.NoError(t, err)

	require.Len(t, history, 5)
	require.Contains(t, history[2].Content, "kaboom")
	require.Equal(t, "fine", history[3].Content)
	require.Equal(t, "Recovered.", history[4].Content)
	// the loop recursed: the model saw both results and produced a final turn
	require.Equal(t, 2, adapter.calls)
}

func TestToolLoopBound(t *testing.T) {
	tools := tool.NewRegistry()
	tools.Register(tool.Definition{
		Name: "again",
		Execute: func(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
			return &domain.ToolResult{Success: true, Output: "more"}, nil
		},
	})

	// every round requests another tool call, forever
	var rounds [][]stream.Event
	for i := 0; i < 10; i++ {
		rounds = append(rounds, []stream.Event{
			stream.NewStart(fmt.Sprintf("s%d", i), "scripted-model", "scripted"),
			doneWith("", toolCall(fmt.Sprintf("call_%d", i), "again", `{}`)),
		})
	}
	adapter := &scriptedAdapter{rounds: rounds}

	history, events, err := run(t, newLoop(t, adapter, tools, 3), baseRequest())
	require.NoError(t, err)
	require.Equal(t, 3, adapter.calls)

	last := events[len(events)-1]
	require.Equal(t, stream.EventDone, last.Type)
	require.NotNil(t, last.Done.Content)
	require.Contains(t, *last.Done.Content, "Tool loop exceeded")
	require.Equal(t, domain.FinishStop, last.Done.Metadata.FinishReason)
	require.Contains(t, history[len(history)-1].Content, "Tool loop exceeded")
}

func TestMidTurnErrorKeepsPartialResults(t *testing.T) {
	tools := tool.NewRegistry()
	tools.Register(tool.Definition{
		Name: "lookup",
		Execute: func(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
			return &domain.ToolResult{Success: true, Output: "found it"}, nil
		},
	})

	adapter := &scriptedAdapter{rounds: [][]stream.Event{
		{
			stream.NewStart("s1", "scripted-model", "scripted"),
			doneWith("", toolCall("call_a", "lookup", `{}`)),
		},
		{
			stream.NewStart("s2", "scripted-model", "scripted"),
			stream.NewError(domain.ErrRateLimited("upstream said no", 0)),
		},
	}}

	history, events, err := run(t, newLoop(t, adapter, tools, 0), baseRequest())
	require.NoError(t, err)

	last := events[len(events)-1]
	require.Equal(t, stream.EventError, last.Type)
	require.Equal(t, domain.ErrorKindRateLimited, last.Error.Kind)

	// partial tool result retained, synthesized assistant error appended
	require.Equal(t, "found it", history[2].Content)
	require.Contains(t, history[len(history)-1].Content, "Error:")
}

func TestUsageAggregatedAcrossRounds(t *testing.T) {
	tools := tool.NewRegistry()
	tools.Register(tool.Definition{
		Name: "noop",
		Execute: func(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
			return &domain.ToolResult{Success: true}, nil
		},
	})

	adapter := &scriptedAdapter{rounds: [][]stream.Event{
		{
			stream.NewStart("s1", "scripted-model", "scripted"),
			doneWith("", toolCall("call_a", "noop", `{}`)),
		},
		{
			stream.NewStart("s2", "scripted-model", "scripted"),
			doneWith("final"),
		},
	}}

	_, events, err := run(t, newLoop(t, adapter, tools, 0), baseRequest())
	require.NoError(t, err)

	last := events[len(events)-1]
	require.Equal(t, stream.EventDone, last.Type)
	// each scripted round reports 10 in / 5 out
	require.Equal(t, 20, last.Done.Usage.InputTokens)
	require.Equal(t, 10, last.Done.Usage.OutputTokens)
	require.Equal(t, 30, last.Done.Usage.TotalTokens)
}

func TestPreStreamResolutionErrors(t *testing.T) {
	providers := provider.NewRegistry()
	l := NewLoop(providers, tool.NewExecutor(tool.NewRegistry(), 0), 0, nil)

	sink := make(chan stream.Event, 4)
	_, err := l.Run(context.Background(), &domain.Request{Model: "mystery-model"}, sink)
	var ge *domain.GatewayError
	require.ErrorAs(t, err, &ge)
	require.Equal(t, domain.ErrorKindProviderNotFound, ge.Kind)
	require.Empty(t, sink)
}
