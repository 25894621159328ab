package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Fundamentals holds the valuation figures used by value analysis. Nil
// fields were not reported by the source.
type Fundamentals struct {
	Symbol     string   `json:"symbol"`
	Name       string   `json:"name,omitempty"`
	TrailingPE *float64 `json:"trailing_pe,omitempty"`
	ForwardPE  *float64 `json:"forward_pe,omitempty"`
	PriceBook  *float64 `json:"price_to_book,omitempty"`
	PEG        *float64 `json:"peg_ratio,omitempty"`
	MarketCap  *float64 `json:"market_cap,omitempty"`
}

// PE prefers the trailing figure.
func (f Fundamentals) PE() *float64 {
	if f.TrailingPE != nil {
		return f.TrailingPE
	}
	return f.ForwardPE
}

// YahooFundamentals reads the quoteSummary endpoint.
type YahooFundamentals struct {
	BaseURL string
	HTTP    *HTTPClient
}

type rawValue struct {
	Raw *float64 `json:"raw"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			SummaryDetail struct {
				TrailingPE rawValue `json:"trailingPE"`
				ForwardPE  rawValue `json:"forwardPE"`
				MarketCap  rawValue `json:"marketCap"`
			} `json:"summaryDetail"`
			DefaultKeyStatistics struct {
				PriceToBook rawValue `json:"priceToBook"`
				PegRatio    rawValue `json:"pegRatio"`
			} `json:"defaultKeyStatistics"`
			Price struct {
				ShortName string `json:"shortName"`
				LongName  string `json:"longName"`
			} `json:"price"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

func (y YahooFundamentals) Fundamentals(ctx context.Context, subject string) (Fundamentals, error) {
	symbol := NormalizeSubject(subject)
	base := strings.TrimRight(y.BaseURL, "/")
	if base == "" {
		base = "https://query2.finance.yahoo.com"
	}
	client := y.HTTP
	if client == nil {
		client = NewHTTPClient(0, 1, 0)
	}
	q := url.Values{}
	q.Set("modules", "summaryDetail,defaultKeyStatistics,price")
	endpoint := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?%s", base, url.PathEscape(symbol), q.Encode())

	var resp quoteSummaryResponse
	if err := client.DoJSON(ctx, "GET", endpoint, nil, nil, &resp); err != nil {
		return Fundamentals{}, fmt.Errorf("fetch fundamentals %s: %w", symbol, err)
	}
	if resp.QuoteSummary.Error != nil {
		return Fundamentals{}, fmt.Errorf("quote summary %s: %s", resp.QuoteSummary.Error.Code, resp.QuoteSummary.Error.Description)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return Fundamentals{}, fmt.Errorf("no fundamentals for %s", symbol)
	}
	r := resp.QuoteSummary.Result[0]
	name := r.Price.ShortName
	if name == "" {
		name = r.Price.LongName
	}
	return Fundamentals{
		Symbol:     symbol,
		Name:       name,
		TrailingPE: r.SummaryDetail.TrailingPE.Raw,
		ForwardPE:  r.SummaryDetail.ForwardPE.Raw,
		PriceBook:  r.DefaultKeyStatistics.PriceToBook.Raw,
		PEG:        r.DefaultKeyStatistics.PegRatio.Raw,
		MarketCap:  r.SummaryDetail.MarketCap.Raw,
	}, nil
}
