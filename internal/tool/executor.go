package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
)

const defaultCallTimeout = 30 * time.Second

// Executor runs batches of tool calls against a registry.
type Executor struct {
	registry    *Registry
	callTimeout time.Duration
}

// NewExecutor creates an executor. A zero timeout means the 30 second
// default per call.
func NewExecutor(registry *Registry, callTimeout time.Duration) *Executor {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Executor{registry: registry, callTimeout: callTimeout}
}

// ExecuteBatch runs every call concurrently and waits for all of them.
// Records come back in input order regardless of completion order, exactly
// one per call id. Individual failures (unknown tool, bad arguments, execute
// error, timeout) produce Success:false records; the batch itself never
// aborts.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []domain.ToolCall) []domain.ToolExecutionRecord {
	records := make([]domain.ToolExecutionRecord, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call domain.ToolCall) {
			defer wg.Done()
			records[i] = e.executeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return records
}

func (e *Executor) executeOne(ctx context.Context, call domain.ToolCall) domain.ToolExecutionRecord {
	start := time.Now()
	record := domain.ToolExecutionRecord{
		ID:       call.ID,
		ToolName: call.Function.Name,
	}
	finish := func(result domain.ToolResult) domain.ToolExecutionRecord {
		record.Result = result
		record.DurationMs = time.Since(start).Milliseconds()
		return record
	}

	def, ok := e.registry.Get(call.Function.Name)
	if !ok {
		return finish(domain.ToolResult{
			Error: fmt.Sprintf("unknown tool %q", call.Function.Name),
		})
	}

	args := parseArguments(call.Function.Arguments)

	if def.InputSchema != nil {
		if err := validateArguments(def.InputSchema, args); err != nil {
			return finish(domain.ToolResult{
				Error: fmt.Sprintf("invalid arguments: %v", err),
			})
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	result, err := def.Execute(callCtx, args)
	if err != nil {
		return finish(domain.ToolResult{Error: err.Error()})
	}
	if result == nil {
		result = &domain.ToolResult{Success: true}
	}
	return finish(*result)
}

// parseArguments decodes the raw argument JSON, treating empty or malformed
// input as an empty object so schema validation reports the real problem.
func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

func validateArguments(schema map[string]any, args map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}
