package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
)

//go:embed plan_response.json
var planSchemaJSON string

// ErrInvalidResponse marks planning-service output that cannot be used.
var ErrInvalidResponse = errors.New("invalid plan response")

// Response is the document the planning service returns.
type Response struct {
	Items      []ResponseItem `json:"items"`
	Rationale  string         `json:"rationale,omitempty"`
	Strategy   string         `json:"strategy,omitempty"`
	MaxWorkers int            `json:"max_workers,omitempty"`
}

// ResponseItem is one planned indicator.
type ResponseItem struct {
	Name   string          `json:"name"`
	Params analysis.Params `json:"params,omitempty"`
}

var (
	compileOnce sync.Once
	planSchema  *jsonschema.Schema
	compileErr  error
)

// ResponseSchema returns the compiled JSON Schema for plan responses.
func ResponseSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("plan_response.json", strings.NewReader(planSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("plan_response.json")
		if err != nil {
			compileErr = fmt.Errorf("compile plan response schema: %w", err)
			return
		}
		planSchema = schema
	})
	return planSchema, compileErr
}

// ParseResponse extracts the first JSON object from text, validates it
// against the schema and decodes it.
func ParseResponse(text string) (Response, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	schema, err := ResponseSchema()
	if err != nil {
		return Response{}, err
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Response{}, fmt.Errorf("%w: not valid JSON: %v", ErrInvalidResponse, err)
	}
	if err := schema.Validate(doc); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return resp, nil
}
