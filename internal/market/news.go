package market

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ErrNoAPIKey is returned by sources that need credentials and have none.
var ErrNoAPIKey = errors.New("api key not configured")

// Headline is one news item about a subject.
type Headline struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	Publisher   string    `json:"publisher"`
	PublishedAt time.Time `json:"published_at"`
}

type article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

type newsResponse struct {
	Status       string    `json:"status"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	TotalResults int       `json:"totalResults"`
	Articles     []article `json:"articles"`
}

// NewsAPI reads headlines from the newsapi.org "everything" endpoint.
type NewsAPI struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	HTTP       *HTTPClient
}

// Headlines returns up to limit articles mentioning subject published after since,
// newest first.
func (n NewsAPI) Headlines(ctx context.Context, subject string, since time.Time, limit int) ([]Headline, error) {
	if n.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	endpoint := n.Endpoint
	if endpoint == "" {
		endpoint = "https://newsapi.org/v2/everything"
	}
	client := n.HTTP
	if client == nil {
		client = NewHTTPClient(10*time.Second, 1, 0)
	}
	if limit <= 0 || (n.MaxResults > 0 && limit > n.MaxResults) {
		limit = n.MaxResults
	}
	if limit <= 0 {
		limit = 20
	}

	params := url.Values{}
	params.Add("q", fmt.Sprintf(`"%s"`, NormalizeSubject(subject)))
	params.Add("language", "en")
	params.Add("sortBy", "publishedAt")
	params.Add("pageSize", strconv.Itoa(limit))
	if !since.IsZero() {
		params.Add("from", since.UTC().Format(time.DateOnly))
	}

	var result newsResponse
	headers := map[string]string{"X-Api-Key": n.APIKey}
	if err := client.DoJSON(ctx, "GET", endpoint+"?"+params.Encode(), headers, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}
	if result.Status != "" && result.Status != "ok" {
		return nil, fmt.Errorf("newsapi error: %s %s", result.Code, result.Message)
	}

	out := make([]Headline, 0, len(result.Articles))
	for _, a := range result.Articles {
		if a.Title == "" {
			continue
		}
		if !since.IsZero() && a.PublishedAt.Before(since) {
			continue
		}
		out = append(out, Headline{
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			Publisher:   a.Source.Name,
			PublishedAt: a.PublishedAt,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
