package llm

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNoCredentials means no API key is configured for the provider.
	ErrNoCredentials = errors.New("llm credentials not configured")
	// ErrEmptyResponse means the service answered without usable text.
	ErrEmptyResponse = errors.New("llm returned no content")
)

// Request is a single chat completion call.
type Request struct {
	System      string
	Prompt      string
	Model       string // routing key into the provider's model table
	Temperature float64
	MaxTokens   int
	JSON        bool // ask for a JSON object response
}

// Outcome is the result of an external call: either text from a model or the
// reason the call failed. Callers choose their fallback on !OK().
type Outcome struct {
	text   string
	model  string
	reason error
}

func Success(text, model string) Outcome { return Outcome{text: text, model: model} }

// Failure wraps reason; a nil reason is recorded as ErrEmptyResponse.
func Failure(reason error) Outcome {
	if reason == nil {
		reason = ErrEmptyResponse
	}
	return Outcome{reason: reason}
}

func (o Outcome) OK() bool      { return o.reason == nil }
func (o Outcome) Text() string  { return o.text }
func (o Outcome) Model() string { return o.model }
func (o Outcome) Reason() error { return o.reason }

// Client is implemented by text-generation backends.
type Client interface {
	Complete(ctx context.Context, req Request) Outcome
}

// Lazy defers building the underlying client until first use and shares it
// afterwards. It is safe for concurrent use.
type Lazy struct {
	once   sync.Once
	build  func() (Client, error)
	client Client
	err    error
}

func NewLazy(build func() (Client, error)) *Lazy {
	return &Lazy{build: build}
}

func (l *Lazy) get() (Client, error) {
	l.once.Do(func() {
		if l.build == nil {
			l.err = ErrNoCredentials
			return
		}
		l.client, l.err = l.build()
	})
	return l.client, l.err
}

func (l *Lazy) Complete(ctx context.Context, req Request) Outcome {
	c, err := l.get()
	if err != nil {
		return Failure(err)
	}
	return c.Complete(ctx, req)
}

// Unavailable is a Client that always fails with reason.
type Unavailable struct{ Reason error }

func (u Unavailable) Complete(ctx context.Context, req Request) Outcome {
	return Failure(u.Reason)
}
