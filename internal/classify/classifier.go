// Package classify implements the rule-based request classifier used for
// automatic provider/model routing. Classification is a pure function of
// conversation content: it carries no side effects and its result is a
// routing hint, never ground truth.
package classify

import (
	"fmt"
	"strings"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
)

// Intent is the classifier's guess at the purpose of a user message.
type Intent string

const (
	IntentGeneralChat    Intent = "general_chat"
	IntentKnowledgeQuery Intent = "knowledge_query"
	IntentCodeAssist     Intent = "code_assist"
	IntentDataAnalysis   Intent = "data_analysis"
	IntentActionRequest  Intent = "action_request"
)

// Mode selects the classification strategy.
type Mode string

const (
	ModeRuleBased Mode = "rule_based"
	// ModeLLMHybrid is a documented extension point. It currently falls back
	// to rule-based scoring.
	ModeLLMHybrid Mode = "llm_hybrid"
)

// Config carries caller-supplied classification options.
type Config struct {
	Mode                Mode
	ConfidenceThreshold float64
}

// Result is the classifier output. Confidence is in [0,1] and is capped at
// 0.95: rule-based heuristics never claim certainty.
type Result struct {
	Intent            Intent  `json:"intent"`
	Confidence        float64 `json:"confidence"`
	SuggestedProvider string  `json:"suggested_provider"`
	SuggestedModel    string  `json:"suggested_model"`
	Reasoning         string  `json:"reasoning"`
}

// scaling constant for normalizing match counts; a group scores 1.0 once
// matches reach 40% of its pattern count.
const matchScale = 0.4

const confidenceCap = 0.95

var patternGroups = map[Intent][]string{
	IntentKnowledgeQuery: {
		"what is our", "what's our", "where can i find", "do we have",
		"policy", "confluence", "wiki", "documentation for", "handbook",
		"knowledge base", "who owns", "internal docs", "runbook", "onboarding",
	},
	IntentCodeAssist: {
		"code", "function", "debug", "stack trace", "compile", "refactor",
		"unit test", "golang", "python", "typescript", "javascript", "sql query",
		"regex", "implement", "bug in", "error message", "exception",
	},
	IntentDataAnalysis: {
		"analyze", "analysis", "dataset", "csv", "spreadsheet", "chart",
		"trend", "average", "median", "correlation", "summarize the data",
		"metrics", "statistics", "forecast",
	},
	IntentActionRequest: {
		"create a ticket", "file a ticket", "schedule", "send a message",
		"open a pr", "deploy", "restart", "set a reminder", "update the status",
		"assign", "post to", "trigger",
	},
}

// defaults maps the winning intent to a provider/model pair.
var defaults = map[Intent]struct{ provider, model string }{
	IntentGeneralChat:    {"openai", "gpt-4o-mini"},
	IntentKnowledgeQuery: {"glean", "glean-assistant"},
	IntentCodeAssist:     {"anthropic", "claude-sonnet-4-20250514"},
	IntentDataAnalysis:   {"openai", "gpt-4o"},
	IntentActionRequest:  {"assistant", "assistant/general"},
}

// visionCapable lists providers that accept image content.
var visionCapable = map[string]bool{
	"openai":    true,
	"anthropic": true,
}

const (
	visionProvider = "openai"
	visionModel    = "gpt-4o"
)

// Classifier scores conversations against fixed pattern groups.
type Classifier struct {
	cfg Config
}

// New creates a classifier. ModeLLMHybrid falls back to rule-based today.
func New(cfg Config) *Classifier {
	if cfg.Mode == "" {
		cfg.Mode = ModeRuleBased
	}
	return &Classifier{cfg: cfg}
}

// Classify inspects the most recent user message and proposes an intent,
// provider, and model with a confidence score. It always returns a usable
// result; it never fails.
func (c *Classifier) Classify(messages []domain.Message) Result {
	text := lastUserText(messages)

	if strings.TrimSpace(text) == "" {
		res := Result{
			Intent:     IntentGeneralChat,
			Confidence: 1.0,
			Reasoning:  "no user text to classify; defaulting to general chat",
		}
		res.SuggestedProvider = defaults[IntentGeneralChat].provider
		res.SuggestedModel = defaults[IntentGeneralChat].model
		return c.applyMultimodalOverride(messages, res)
	}

	lower := strings.ToLower(text)

	type score struct {
		intent  Intent
		matches int
		value   float64
	}
	scores := make([]score, 0, len(patternGroups))
	for intent, patterns := range patternGroups {
		matches := 0
		for _, p := range patterns {
			if strings.Contains(lower, p) {
				matches++
			}
		}
		value := float64(matches) / (float64(len(patterns)) * matchScale)
		if value > 1.0 {
			value = 1.0
		}
		scores = append(scores, score{intent: intent, matches: matches, value: value})
	}

	best, runnerUp := score{}, score{}
	for _, s := range scores {
		if s.value > best.value || (s.value == best.value && s.intent < best.intent) {
			runnerUp = best
			best = s
		} else if s.value > runnerUp.value {
			runnerUp = s
		}
	}

	if best.matches == 0 {
		res := Result{
			Intent:            IntentGeneralChat,
			Confidence:        0.5,
			SuggestedProvider: defaults[IntentGeneralChat].provider,
			SuggestedModel:    defaults[IntentGeneralChat].model,
			Reasoning:         "no routing signal matched; defaulting to general chat",
		}
		return c.applyMultimodalOverride(messages, res)
	}

	margin := best.value - runnerUp.value
	confidence := 0.4 + 0.4*best.value + 0.2*margin
	if confidence > confidenceCap {
		confidence = confidenceCap
	}

	def := defaults[best.intent]
	res := Result{
		Intent:            best.intent,
		Confidence:        confidence,
		SuggestedProvider: def.provider,
		SuggestedModel:    def.model,
		Reasoning: fmt.Sprintf("matched %d %s pattern(s) (score %.2f, margin %.2f over runner-up)",
			best.matches, best.intent, best.value, margin),
	}
	return c.applyMultimodalOverride(messages, res)
}

// applyMultimodalOverride reroutes to a vision-capable provider when the
// conversation contains image or file content. The override always takes
// precedence over the raw classification.
func (c *Classifier) applyMultimodalOverride(messages []domain.Message, res Result) Result {
	if !hasMultimodalContent(messages) || visionCapable[res.SuggestedProvider] {
		return res
	}
	res.SuggestedProvider = visionProvider
	res.SuggestedModel = visionModel
	res.Reasoning += fmt.Sprintf("; adjusted to vision-capable provider %s because the conversation contains image or file content", visionProvider)
	return res
}

func hasMultimodalContent(messages []domain.Message) bool {
	for i := range messages {
		if messages[i].HasImageContent() || messages[i].HasFileContent() {
			return true
		}
	}
	return false
}

func lastUserText(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Text()
		}
	}
	return ""
}
