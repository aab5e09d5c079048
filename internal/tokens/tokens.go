// Package tokens tracks token usage across a stream and estimates input
// tokens for providers that report none.
package tokens

import (
	"strings"

	"github.com/tiktoken-go/tokenizer"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
)

// Accumulator merges partial usage reports from a stream. Providers differ
// on when usage becomes available: some report only on the final frame, some
// split input and output across frames. Absent reports leave zeros; the last
// report for each side wins.
type Accumulator struct {
	input  int
	output int
}

// RecordInput records an input-token report.
func (a *Accumulator) RecordInput(n int) {
	if n > 0 {
		a.input = n
	}
}

// RecordOutput records an output-token report.
func (a *Accumulator) RecordOutput(n int) {
	if n > 0 {
		a.output = n
	}
}

// Record records a combined report.
func (a *Accumulator) Record(input, output int) {
	a.RecordInput(input)
	a.RecordOutput(output)
}

// Usage finalizes the accumulated counts for the model, attaching an
// estimated cost when pricing is known. TotalTokens is always the sum of the
// two sides.
func (a *Accumulator) Usage(model string) domain.Usage {
	u := domain.Usage{
		InputTokens:  a.input,
		OutputTokens: a.output,
		TotalTokens:  a.input + a.output,
	}
	if cost, ok := estimateCost(model, a.input, a.output); ok {
		u.EstimatedCost = &cost
	}
	return u
}

// modelPricing is USD per million tokens. Derived, not authoritative.
type modelPricing struct {
	input  float64
	output float64
}

var pricing = map[string]modelPricing{
	"gpt-4o":                    {2.50, 10.00},
	"gpt-4o-mini":               {0.15, 0.60},
	"o1-mini":                   {1.10, 4.40},
	"claude-sonnet-4-20250514":  {3.00, 15.00},
	"claude-3-5-haiku-20241022": {0.80, 4.00},
}

func estimateCost(model string, input, output int) (float64, bool) {
	p, ok := pricing[model]
	if !ok {
		return 0, false
	}
	return (float64(input)*p.input + float64(output)*p.output) / 1e6, true
}

// charsPerToken is the fallback estimate for models without a tokenizer.
const charsPerToken = 4.0

// EstimateInput estimates the input token count for a request. OpenAI-family
// models use tiktoken; everything else falls back to a character heuristic.
// Used when a provider never reports usage.
func EstimateInput(model string, messages []domain.Message) int {
	var sb strings.Builder
	for i := range messages {
		sb.WriteString(string(messages[i].Role))
		sb.WriteString("\n")
		sb.WriteString(messages[i].Text())
		sb.WriteString("\n")
	}
	text := sb.String()

	if isOpenAIFamily(model) {
		if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
			if ids, _, err := codec.Encode(text); err == nil {
				return len(ids)
			}
		}
		// Unknown snapshot names still tokenize fine with the o200k base.
		if codec, err := tokenizer.Get(tokenizer.O200kBase); err == nil {
			if ids, _, err := codec.Encode(text); err == nil {
				return len(ids)
			}
		}
	}

	return int(float64(len(text)) / charsPerToken)
}

func isOpenAIFamily(model string) bool {
	model = strings.ToLower(model)
	for _, prefix := range []string{"gpt-", "o1", "o3", "o4", "text-"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
