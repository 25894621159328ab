package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// YahooProvider reads daily bars from the Yahoo Finance chart API.
type YahooProvider struct {
	BaseURL string
	HTTP    *HTTPClient
	Logger  *zap.Logger
}

func NewYahooProvider(baseURL string, client *HTTPClient, logger *zap.Logger) *YahooProvider {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	if client == nil {
		client = NewHTTPClient(0, 2, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YahooProvider{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: client, Logger: logger}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *YahooProvider) Fetch(ctx context.Context, subject, period string) (*Dataset, error) {
	symbol := NormalizeSubject(subject)
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrDataset)
	}
	q := url.Values{}
	q.Set("range", period)
	q.Set("interval", "1d")
	q.Set("includePrePost", "false")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.BaseURL, url.PathEscape(symbol), q.Encode())

	var resp chartResponse
	if err := y.HTTP.DoJSON(ctx, "GET", endpoint, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrDataset, symbol, err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrDataset, resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: no chart data for %s", ErrDataset, symbol)
	}
	res := resp.Chart.Result[0]
	quote := res.Indicators.Quote[0]

	bars := make([]Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		c := at(quote.Close, i)
		if c == nil {
			continue
		}
		bars = append(bars, Bar{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   deref(at(quote.Open, i), *c),
			High:   deref(at(quote.High, i), *c),
			Low:    deref(at(quote.Low, i), *c),
			Close:  *c,
			Volume: deref(at(quote.Volume, i), 0),
		})
	}
	ds := NewDataset(symbol, period, "yahoo", bars)
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	y.Logger.Debug("fetched prices", zap.String("subject", symbol), zap.String("period", period), zap.Int("bars", ds.Len()))
	return ds, nil
}

func at(xs []*float64, i int) *float64 {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

func deref(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
