package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/indicator"
	"github.com/mohammad-safakhou/tickerscope/internal/llm"
	"github.com/mohammad-safakhou/tickerscope/internal/market"
)

const (
	fallbackRationale = "Fallback plan: the requested indicators run with their default parameters."
	fallbackStrategy  = "fallback: independent tasks with registry defaults"
)

// Request is the input to planning.
type Request struct {
	Subject   string
	Requested []string
	Period    string
	Mode      analysis.Mode
}

// Catalog exposes the registered indicators and their default parameters.
type Catalog interface {
	Cards() []indicator.Card
	Lookup(name string) (indicator.Card, bool)
}

// Planner turns a request into an ordered plan. It never fails.
type Planner interface {
	Plan(ctx context.Context, req Request) analysis.Plan
}

// DefaultIndicators returns the indicators a mode runs when none are requested.
func DefaultIndicators(mode analysis.Mode) []string {
	switch mode {
	case analysis.ModeValue:
		return []string{"Value Analysis"}
	case analysis.ModeNews:
		return []string{"News"}
	default:
		return []string{"RSI", "MACD", "Bollinger Bands", "Moving Average"}
	}
}

// Generator plans with the external planning service and falls back to a
// deterministic plan when the service fails or answers unusably.
type Generator struct {
	client     llm.Client
	catalog    Catalog
	model      string
	logger     *zap.Logger
	onFallback func(reason error)
}

// Option configures a Generator.
type Option func(*Generator)

func WithLogger(l *zap.Logger) Option { return func(g *Generator) { g.logger = l } }

// WithModel selects the routing key used for planning requests.
func WithModel(model string) Option { return func(g *Generator) { g.model = model } }

// WithFallbackHook is called with the reason whenever the fallback plan is used.
func WithFallbackHook(fn func(reason error)) Option {
	return func(g *Generator) { g.onFallback = fn }
}

func New(client llm.Client, catalog Catalog, opts ...Option) *Generator {
	g := &Generator{client: client, catalog: catalog, model: "planning", logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Plan(ctx context.Context, req Request) analysis.Plan {
	req = withDefaults(req)
	if g.client == nil {
		return g.fallback(req, llm.ErrNoCredentials)
	}
	out := g.client.Complete(ctx, llm.Request{
		System:      "You are a planning assistant for a stock analysis engine. Respond with JSON only.",
		Prompt:      g.prompt(req),
		Model:       g.model,
		Temperature: 0,
		JSON:        true,
	})
	if !out.OK() {
		return g.fallback(req, out.Reason())
	}
	resp, err := ParseResponse(out.Text())
	if err != nil {
		return g.fallback(req, err)
	}

	plan := analysis.Plan{
		Subject:   req.Subject,
		Period:    req.Period,
		Mode:      req.Mode,
		Requested: append([]string(nil), req.Requested...),
		Items:     make([]analysis.TaskSpec, 0, len(resp.Items)),
		Rationale: resp.Rationale,
		Strategy:  resp.Strategy,
		Source:    analysis.PlanExternal,
	}
	if resp.MaxWorkers > 0 {
		plan.MaxWorkers = resp.MaxWorkers
	}
	for _, it := range resp.Items {
		spec, warn := taskFor(g.catalog, it.Name, it.Params, req.Subject)
		if warn != nil {
			g.logger.Warn("planned params replaced by defaults",
				zap.String("indicator", it.Name), zap.Error(warn))
		}
		plan.Items = append(plan.Items, spec)
	}
	g.logger.Debug("plan generated",
		zap.String("subject", req.Subject),
		zap.Strings("items", plan.Names()),
		zap.String("model", out.Model()))
	return plan
}

func (g *Generator) fallback(req Request, reason error) analysis.Plan {
	g.logger.Info("using fallback plan", zap.String("subject", req.Subject), zap.Error(reason))
	if g.onFallback != nil {
		g.onFallback(reason)
	}
	return FallbackPlan(g.catalog, req)
}

// FallbackPlan builds the deterministic plan: requested indicators (or the
// mode's defaults) in order, each with its registered default parameters.
func FallbackPlan(catalog Catalog, req Request) analysis.Plan {
	req = withDefaults(req)
	items := make([]analysis.TaskSpec, 0, len(req.Requested))
	for _, name := range req.Requested {
		spec, _ := taskFor(catalog, name, nil, req.Subject)
		items = append(items, spec)
	}
	return analysis.Plan{
		Subject:   req.Subject,
		Period:    req.Period,
		Mode:      req.Mode,
		Requested: append([]string(nil), req.Requested...),
		Items:     items,
		Rationale: fallbackRationale,
		Strategy:  fallbackStrategy,
		Source:    analysis.PlanFallback,
	}
}

func withDefaults(req Request) Request {
	req.Subject = market.NormalizeSubject(req.Subject)
	if req.Mode == "" {
		req.Mode = analysis.ModeTechnical
	}
	var names []string
	for _, n := range req.Requested {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		names = DefaultIndicators(req.Mode)
	}
	req.Requested = names
	return req
}

// taskFor resolves params for one item. Missing params take the registered
// defaults; params that fail validation are replaced by the defaults and the
// validation error is returned as a warning. Unknown names pass through with
// empty params.
func taskFor(catalog Catalog, name string, params analysis.Params, subject string) (analysis.TaskSpec, error) {
	var card indicator.Card
	ok := false
	if catalog != nil {
		card, ok = catalog.Lookup(name)
	}
	if !ok {
		return analysis.TaskSpec{Name: name, Params: analysis.Params{}}, nil
	}
	var warn error
	out := card.Params.Defaults()
	if len(params) > 0 {
		norm, err := card.Params.Normalize(params)
		if err != nil {
			warn = err
		} else {
			out = norm
		}
	}
	if card.Kind == indicator.KindNews || card.Kind == indicator.KindFundamental {
		if t, _ := out["ticker"].(string); t == "" {
			out["ticker"] = subject
		}
	}
	return analysis.TaskSpec{Name: name, Params: out}, warn
}

type catalogEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Defaults    analysis.Params `json:"default_params"`
}

func (g *Generator) prompt(req Request) string {
	var entries []catalogEntry
	if g.catalog != nil {
		for _, c := range g.catalog.Cards() {
			entries = append(entries, catalogEntry{Name: c.Name, Description: c.Description, Defaults: c.Params.Defaults()})
		}
	}
	catalog, _ := json.MarshalIndent(entries, "", "  ")
	var b strings.Builder
	fmt.Fprintf(&b, "Plan a %s for %s over the period %s.\n", strings.ToLower(req.Mode.Title()), req.Subject, req.Period)
	fmt.Fprintf(&b, "Requested indicators: %s\n\n", strings.Join(req.Requested, ", "))
	fmt.Fprintf(&b, "Available indicators:\n%s\n\n", catalog)
	b.WriteString("Choose parameters for each requested indicator and explain briefly. ")
	b.WriteString("Respond with a single JSON object matching this schema:\n")
	b.WriteString(planSchemaJSON)
	return b.String()
}
