// Package orchestrator drives the tool-call loop for one user turn: stream
// from the resolved adapter, execute requested tools, extend history, and
// call again until the model stops requesting tools.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/provider"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/stream"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/tool"
)

// DefaultMaxRounds bounds tool round-trips per user turn. The loop is
// explicitly bounded: exceeding the limit is reported as a normal turn end
// with an explanatory message, not as a provider error.
const DefaultMaxRounds = 10

// Loop runs the tool-call orchestration for single user turns.
type Loop struct {
	registry  *provider.Registry
	executor  *tool.Executor
	maxRounds int
	logger    *slog.Logger
}

// NewLoop creates a loop. maxRounds <= 0 means DefaultMaxRounds.
func NewLoop(registry *provider.Registry, executor *tool.Executor, maxRounds int, logger *slog.Logger) *Loop {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		registry:  registry,
		executor:  executor,
		maxRounds: maxRounds,
		logger:    logger,
	}
}

// Run executes one user turn and returns the full message history including
// everything the turn appended. Events flow to sink as one logical stream:
// the first round's start, every round's deltas, and a single terminal done
// or error. Intermediate per-round done events (the ones carrying tool
// calls) are consumed by the loop itself.
//
// History appends are strictly causal: assistant-with-tool-calls, then one
// tool message per call in call order, then the next assistant turn.
// Concurrent tool execution never reorders the record. On a terminal error
// the turn ends with a synthesized assistant error message; partial tool
// results already appended stay appended.
func (l *Loop) Run(ctx context.Context, req *domain.Request, sink chan<- stream.Event) ([]domain.Message, error) {
	adapter, err := l.registry.ResolveRequest(req)
	if err != nil {
		return nil, err
	}

	history := append([]domain.Message(nil), req.Messages...)
	var totalUsage domain.Usage
	startForwarded := false

	for round := 0; round < l.maxRounds; round++ {
		events, err := adapter.Stream(ctx, req.WithMessages(history))
		if err != nil {
			if round == 0 && !startForwarded {
				// Nothing has reached the caller yet; fail the turn outright
				// so the transport can report a status instead of a stream.
				return nil, err
			}
			history = l.failTurn(sink, history, err)
			return history, nil
		}

		done, errEvent := l.forwardRound(sink, events, &startForwarded)
		if errEvent != nil {
			sink <- *errEvent
			history = append(history, domain.Message{
				Role:    domain.RoleAssistant,
				Content: fmt.Sprintf("Error: %s", errEvent.Error.Message),
			})
			return history, nil
		}
		if done == nil {
			// Channel closed without a terminal event; treat as a broken
			// stream.
			history = l.failTurn(sink, history, domain.ErrStreamingFailed("stream ended without a terminal event"))
			return history, nil
		}

		accumulateUsage(&totalUsage, done.Done.Usage)

		if len(done.Done.ToolCalls) == 0 {
			final := *done
			final.Done.Usage = totalUsage
			sink <- final

			msg := domain.Message{Role: domain.RoleAssistant}
			if done.Done.Content != nil {
				msg.Content = *done.Done.Content
			}
			history = append(history, msg)
			return history, nil
		}

		history = l.runTools(ctx, history, done.Done)
	}

	// Bound reached: close the turn with an explanation rather than loop on.
	l.logger.Warn("tool loop exceeded round limit",
		"model", req.Model, "max_rounds", l.maxRounds)
	note := fmt.Sprintf("Tool loop exceeded the maximum of %d rounds; stopping without a final tool-free response.", l.maxRounds)
	history = append(history, domain.Message{Role: domain.RoleAssistant, Content: note})
	sink <- stream.NewDone(stream.DoneData{
		Content: &note,
		Usage:   totalUsage,
		Metadata: domain.ResponseMetadata{
			Model:        req.Model,
			Provider:     adapter.Name(),
			FinishReason: domain.FinishStop,
		},
	})
	return history, nil
}

// forwardRound relays one adapter stream to the sink, suppressing duplicate
// start events across rounds and holding back the terminal event for the
// loop to act on. Deltas pass through unmodified and unbuffered.
func (l *Loop) forwardRound(sink chan<- stream.Event, events <-chan stream.Event, startForwarded *bool) (done, errEvent *stream.Event) {
	for ev := range events {
		switch ev.Type {
		case stream.EventStart:
			if !*startForwarded {
				*startForwarded = true
				sink <- ev
			}
		case stream.EventDelta:
			sink <- ev
		case stream.EventDone:
			e := ev
			done = &e
		case stream.EventError:
			e := ev
			errEvent = &e
		}
	}
	return done, errEvent
}

// runTools appends the assistant tool-call message, executes the batch, and
// appends one tool message per call in call order.
func (l *Loop) runTools(ctx context.Context, history []domain.Message, done *stream.DoneData) []domain.Message {
	assistant := domain.Message{
		Role:      domain.RoleAssistant,
		ToolCalls: done.ToolCalls,
	}
	if done.Content != nil {
		assistant.Content = *done.Content
	}
	history = append(history, assistant)

	records := l.executor.ExecuteBatch(ctx, done.ToolCalls)
	for _, rec := range records {
		content := rec.Result.Output
		if !rec.Result.Success {
			content = fmt.Sprintf("Tool execution failed: %s", rec.Result.Error)
		}
		l.logger.Debug("tool executed",
			"tool", rec.ToolName, "id", rec.ID,
			"success", rec.Result.Success, "duration_ms", rec.DurationMs)
		history = append(history, domain.Message{
			Role:       domain.RoleTool,
			Content:    content,
			ToolCallID: rec.ID,
		})
	}
	return history
}

// failTurn reports a mid-turn failure as a terminal error event plus a
// synthesized assistant message, keeping whatever the turn already appended.
func (l *Loop) failTurn(sink chan<- stream.Event, history []domain.Message, err error) []domain.Message {
	ge := domain.ClassifyError(err)
	l.logger.Error("turn failed", "kind", string(ge.Kind), "error", err)
	sink <- stream.NewError(err)
	return append(history, domain.Message{
		Role:    domain.RoleAssistant,
		Content: fmt.Sprintf("Error: %s", ge.Message),
	})
}

func accumulateUsage(total *domain.Usage, u domain.Usage) {
	total.InputTokens += u.InputTokens
	total.OutputTokens += u.OutputTokens
	total.TotalTokens = total.InputTokens + total.OutputTokens
	if u.EstimatedCost != nil {
		cost := u.EstimatedCost
		if total.EstimatedCost != nil {
			c := *total.EstimatedCost + *cost
			total.EstimatedCost = &c
		} else {
			c := *cost
			total.EstimatedCost = &c
		}
	}
}
