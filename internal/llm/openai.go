package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/tickerscope/config"
)

// OpenAI talks to an OpenAI compatible chat completions endpoint.
type OpenAI struct {
	config config.LLMProvider
	client *http.Client
}

// NewOpenAI validates credentials up front so a missing key surfaces as
// ErrNoCredentials on first use.
func NewOpenAI(cfg config.LLMProvider) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoCredentials
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAI{config: cfg, client: &http.Client{Timeout: timeout}}, nil
}

// FromConfig returns a lazily constructed client for the active provider.
func FromConfig(cfg config.LLMConfig) *Lazy {
	return NewLazy(func() (Client, error) {
		p, ok := cfg.Active()
		if !ok {
			return nil, fmt.Errorf("%w: provider %q not configured", ErrNoCredentials, cfg.Provider)
		}
		switch p.Type {
		case "", "openai":
			return NewOpenAI(p)
		default:
			return nil, fmt.Errorf("unsupported llm provider type %q", p.Type)
		}
	})
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatReq struct {
	Model          string          `json:"model"`
	Messages       []chatMsg       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResp struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenAI) resolveModel(key string) (string, config.LLMModel) {
	if m, ok := p.config.Models[key]; ok {
		name := m.APIName
		if name == "" {
			name = m.Name
		}
		if name == "" {
			name = key
		}
		return name, m
	}
	return key, config.LLMModel{}
}

func (p *OpenAI) Complete(ctx context.Context, req Request) Outcome {
	apiModel, m := p.resolveModel(req.Model)
	if apiModel == "" {
		return Failure(fmt.Errorf("no model selected"))
	}
	temperature := m.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := m.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	msgs := make([]chatMsg, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMsg{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMsg{Role: "user", Content: req.Prompt})
	body := chatReq{Model: apiModel, Messages: msgs, Temperature: temperature, MaxTokens: maxTokens}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Failure(fmt.Errorf("marshal: %w", err))
	}

	baseURL := strings.TrimRight(p.config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			case <-ctx.Done():
				return Failure(ctx.Err())
			}
		}
		text, model, retry, err := p.send(ctx, baseURL, payload)
		if err == nil {
			if strings.TrimSpace(text) == "" {
				return Failure(ErrEmptyResponse)
			}
			if model == "" {
				model = apiModel
			}
			return Success(text, model)
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return Failure(lastErr)
}

// send performs one HTTP round trip; retry reports whether the failure is
// transient.
func (p *OpenAI) send(ctx context.Context, baseURL string, payload []byte) (text, model string, retry bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", "", false, fmt.Errorf("request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", "", true, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", "", transient, fmt.Errorf("openai status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out chatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", false, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", "", false, ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, out.Model, false, nil
}
