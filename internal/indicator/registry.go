package indicator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
)

// Kind groups indicators by the data they need.
type Kind string

const (
	KindTechnical   Kind = "technical"
	KindFundamental Kind = "fundamental"
	KindNews        Kind = "news"
)

// ParamSet is a unit's typed configuration record.
type ParamSet interface {
	Defaults() analysis.Params
	Normalize(in analysis.Params) (analysis.Params, error)
}

// Card describes a registered indicator.
type Card struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Kind        Kind     `json:"kind"`
	Params      ParamSet `json:"-"`
}

// ErrNotRegistered indicates no unit matches a requested name.
var ErrNotRegistered = errors.New("indicator not registered")

// ErrDuplicate is returned when registering an ID twice.
var ErrDuplicate = errors.New("indicator already registered")

// ResolutionError reports the candidate keys tried for a name.
type ResolutionError struct {
	Name  string
	Tried []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no indicator registered for %q (tried %s)", e.Name, strings.Join(e.Tried, ", "))
}

func (e *ResolutionError) Unwrap() error { return ErrNotRegistered }

type entry struct {
	card Card
	unit analysis.Unit
}

// Registry maps canonical indicator IDs to computation units. Units are
// registered at start-up; lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	units map[string]entry
	fold  map[string]string // lower-cased ID and display name -> ID
}

func NewRegistry() *Registry {
	return &Registry{units: make(map[string]entry), fold: make(map[string]string)}
}

// Register adds a unit under card.ID. The display name also resolves.
func (r *Registry) Register(card Card, unit analysis.Unit) error {
	if strings.TrimSpace(card.ID) == "" || unit == nil {
		return fmt.Errorf("indicator card requires an id and a unit")
	}
	if card.Name == "" {
		card.Name = card.ID
	}
	if card.Params == nil {
		card.Params = noParams{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[card.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, card.ID)
	}
	r.units[card.ID] = entry{card: card, unit: unit}
	r.fold[strings.ToLower(card.ID)] = card.ID
	r.fold[strings.ToLower(card.Name)] = card.ID
	return nil
}

// MustRegister panics on registration errors; for start-up wiring only.
func (r *Registry) MustRegister(card Card, unit analysis.Unit) {
	if err := r.Register(card, unit); err != nil {
		panic(err)
	}
}

// Candidates derives the keys tried for name, in order: the trimmed name
// itself (matched case-insensitively), its title-cased join, and its
// upper-cased acronym. Duplicates and empties are dropped.
func Candidates(name string) []string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil
	}
	words := strings.FieldsFunc(trimmed, func(r rune) bool {
		return unicode.IsSpace(r) || r == '_' || r == '-'
	})
	var title, upper strings.Builder
	for _, w := range words {
		rs := []rune(strings.ToLower(w))
		rs[0] = unicode.ToUpper(rs[0])
		title.WriteString(string(rs))
		upper.WriteString(strings.ToUpper(w))
	}
	out := make([]string, 0, 3)
	seen := map[string]bool{}
	for _, c := range []string{trimmed, title.String(), upper.String()} {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func (r *Registry) lookup(name string) (entry, []string, bool) {
	cands := Candidates(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, c := range cands {
		if i == 0 {
			if id, ok := r.fold[strings.ToLower(c)]; ok {
				return r.units[id], cands, true
			}
			continue
		}
		if e, ok := r.units[c]; ok {
			return e, cands, true
		}
	}
	return entry{}, cands, false
}

// Resolve returns the unit for name or a *ResolutionError.
func (r *Registry) Resolve(name string) (analysis.Unit, error) {
	e, tried, ok := r.lookup(name)
	if !ok {
		return nil, &ResolutionError{Name: name, Tried: tried}
	}
	return e.unit, nil
}

// Lookup returns the card registered for name.
func (r *Registry) Lookup(name string) (Card, bool) {
	e, _, ok := r.lookup(name)
	return e.card, ok
}

// NormalizeParams fills the registered defaults for name and validates params.
func (r *Registry) NormalizeParams(name string, params analysis.Params) (analysis.Params, error) {
	e, tried, ok := r.lookup(name)
	if !ok {
		return nil, &ResolutionError{Name: name, Tried: tried}
	}
	if e.card.Params == nil {
		return params, nil
	}
	return e.card.Params.Normalize(params)
}

// Cards lists every registration sorted by ID.
func (r *Registry) Cards() []Card {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Card, 0, len(r.units))
	for _, e := range r.units {
		out = append(out, e.card)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type noParams struct{}

func (noParams) Defaults() analysis.Params { return analysis.Params{} }
func (noParams) Normalize(in analysis.Params) (analysis.Params, error) {
	if in == nil {
		return analysis.Params{}, nil
	}
	return in.Clone(), nil
}
