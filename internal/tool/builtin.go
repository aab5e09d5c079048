package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
)

// webFetchMaxBytes caps how much of a fetched page is returned to the model.
const webFetchMaxBytes = 64 * 1024

// RegisterBuiltins installs the built-in tools into a registry.
func RegisterBuiltins(r *Registry) {
	r.Register(currentTimeTool())
	r.Register(webFetchTool(http.DefaultClient))
	r.Register(calculateTool())
}

func currentTimeTool() Definition {
	return Definition{
		Name:        "current_time",
		Description: "Returns the current date and time, optionally in a named IANA timezone.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tz": map[string]any{
					"type":        "string",
					"description": "IANA timezone name, e.g. America/New_York. Defaults to UTC.",
				},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
			loc := time.UTC
			if tz, ok := args["tz"].(string); ok && tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return &domain.ToolResult{Error: fmt.Sprintf("unknown timezone %q", tz)}, nil
				}
				loc = l
			}
			return &domain.ToolResult{
				Success: true,
				Output:  time.Now().In(loc).Format(time.RFC3339),
			}, nil
		},
	}
}

func webFetchTool(client *http.Client) Definition {
	return Definition{
		Name:        "web_fetch",
		Description: "Fetches a URL over HTTP GET and returns the response body, truncated to 64KB.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"url"},
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Absolute http or https URL to fetch.",
				},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
			url, _ := args["url"].(string)
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				return &domain.ToolResult{Error: "url must be absolute http(s)"}, nil
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return &domain.ToolResult{Error: err.Error()}, nil
			}
			resp, err := client.Do(req)
			if err != nil {
				return &domain.ToolResult{Error: err.Error()}, nil
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, webFetchMaxBytes))
			if err != nil {
				return &domain.ToolResult{Error: err.Error()}, nil
			}
			if resp.StatusCode >= 400 {
				return &domain.ToolResult{
					Error: fmt.Sprintf("fetch failed with status %d", resp.StatusCode),
				}, nil
			}
			return &domain.ToolResult{Success: true, Output: string(body)}, nil
		},
	}
}

func calculateTool() Definition {
	return Definition{
		Name:        "calculate",
		Description: "Evaluates a basic arithmetic expression with +, -, *, /, and parentheses.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"expression"},
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Arithmetic expression, e.g. (2+3)*4.",
				},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
			expr, _ := args["expression"].(string)
			value, err := evalExpression(expr)
			if err != nil {
				return &domain.ToolResult{Error: err.Error()}, nil
			}
			return &domain.ToolResult{
				Success: true,
				Output:  strconv.FormatFloat(value, 'g', -1, 64),
			}, nil
		},
	}
}

// evalExpression is a small recursive-descent evaluator over +, -, *, /, and
// parentheses. Kept local: pulling an expression-language dependency for
// four operators is not worth its surface.
func evalExpression(expr string) (float64, error) {
	p := &exprParser{input: strings.ReplaceAll(expr, " ", "")}
	if p.input == "" {
		return 0, fmt.Errorf("empty expression")
	}
	v, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return v, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) parseSum() (float64, error) {
	v, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			rhs, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			v += rhs
		case '-':
			p.pos++
			rhs, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			v -= rhs
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			v *= rhs
		case '/':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= rhs
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, error) {
	if p.peek() == '(' {
		p.pos++
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}
	start := p.pos
	for p.pos < len(p.input) && (p.input[p.pos] >= '0' && p.input[p.pos] <= '9' || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	return strconv.ParseFloat(p.input[start:p.pos], 64)
}
