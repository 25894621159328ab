package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/tickerscope/internal/market"
)

// SignalError is the reserved signal for tasks that could not be resolved or
// failed during execution.
const SignalError = "Error"

// Params carries indicator-specific settings.
type Params map[string]any

// Clone returns a shallow copy; nil stays nil.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// TaskSpec identifies one unit of work in a plan.
type TaskSpec struct {
	Name   string `json:"name"`
	Params Params `json:"params"`
}

// TaskResult is the output of a single indicator computation.
type TaskResult struct {
	Indicator string         `json:"indicator"`
	Signal    string         `json:"signal"`
	Details   string         `json:"details"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// IsError reports whether the result carries the reserved Error signal.
func (r TaskResult) IsError() bool { return r.Signal == SignalError }

// ErrorResult synthesizes the result for a task that failed.
func ErrorResult(name string, params Params, cause error) TaskResult {
	details := "unknown failure"
	if cause != nil {
		details = cause.Error()
	}
	return TaskResult{
		Indicator: name,
		Signal:    SignalError,
		Details:   fmt.Sprintf("%s failed: %s", name, details),
		Meta:      map[string]any{"params": params.Clone()},
	}
}

// Unit computes one indicator over a shared, read-only dataset.
type Unit interface {
	Compute(ctx context.Context, ds *market.Dataset, params Params) (TaskResult, error)
}

// UnitFunc adapts a function to Unit.
type UnitFunc func(ctx context.Context, ds *market.Dataset, params Params) (TaskResult, error)

func (f UnitFunc) Compute(ctx context.Context, ds *market.Dataset, params Params) (TaskResult, error) {
	return f(ctx, ds, params)
}

// Mode selects the flavour of analysis.
type Mode string

const (
	ModeTechnical Mode = "technical"
	ModeValue     Mode = "value"
	ModeNews      Mode = "news"
)

// ParseMode accepts a mode name case-insensitively; empty means technical.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeTechnical, nil
	case ModeTechnical, ModeValue, ModeNews:
		return m, nil
	default:
		return "", fmt.Errorf("unknown analysis mode %q (want technical, value or news)", s)
	}
}

// Title is the human label used in report headers.
func (m Mode) Title() string {
	switch m {
	case ModeValue:
		return "Value Analysis"
	case ModeNews:
		return "News Analysis"
	default:
		return "Technical Analysis"
	}
}

// PlanSource records which planning path produced a plan.
type PlanSource string

const (
	PlanExternal PlanSource = "external"
	PlanFallback PlanSource = "fallback"
)

// Plan is the ordered, parameterized task list for one run.
type Plan struct {
	Subject    string     `json:"subject"`
	Period     string     `json:"period"`
	Mode       Mode       `json:"mode"`
	Requested  []string   `json:"requested"`
	Items      []TaskSpec `json:"items"`
	Rationale  string     `json:"rationale,omitempty"`
	Strategy   string     `json:"strategy,omitempty"`
	MaxWorkers int        `json:"max_workers,omitempty"`
	Source     PlanSource `json:"source"`
}

// Names lists planned indicator names in order.
func (p Plan) Names() []string {
	out := make([]string, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.Name
	}
	return out
}

// SummaryMethod records which summarization path produced the text.
type SummaryMethod string

const (
	SummaryExternal SummaryMethod = "external"
	SummaryFallback SummaryMethod = "fallback"
)

// SummaryResult is the narrative for a run. Text is never empty.
type SummaryResult struct {
	Text           string        `json:"text"`
	Method         SummaryMethod `json:"method"`
	Model          string        `json:"model,omitempty"`
	FallbackReason string        `json:"fallback_reason,omitempty"`
}

// Report is the complete output of one orchestration run.
type Report struct {
	ID          string        `json:"id"`
	Subject     string        `json:"subject"`
	Period      string        `json:"period"`
	Mode        Mode          `json:"mode"`
	GeneratedAt time.Time     `json:"generated_at"`
	Results     []TaskResult  `json:"results"`
	Sentiment   Sentiment     `json:"sentiment"`
	Summary     SummaryResult `json:"summary"`
	Plan        *Plan         `json:"plan,omitempty"`
}
