package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

var fixedNow = func() time.Time { return time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC) }

func TestDatasetValidate(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		bars []Bar
		ok   bool
	}{
		{"empty", nil, false},
		{"ascending", []Bar{{Time: t0, Close: 1}, {Time: t0.Add(24 * time.Hour), Close: 2}}, true},
		{"duplicate time", []Bar{{Time: t0, Close: 1}, {Time: t0, Close: 2}}, false},
	}
	for _, tc := range cases {
		err := NewDataset("x", "1y", "test", tc.bars).Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrDataset) {
			t.Fatalf("%s: expected ErrDataset, got %v", tc.name, err)
		}
	}
}

func TestDatasetClosesIsCopy(t *testing.T) {
	ds := NewDataset("abc", "1y", "test", []Bar{{Time: time.Unix(1, 0), Close: 10}})
	closes := ds.Closes()
	closes[0] = 99
	if ds.Closes()[0] != 10 {
		t.Fatalf("dataset mutated through Closes")
	}
	if ds.Subject() != "ABC" {
		t.Fatalf("expected normalized subject, got %q", ds.Subject())
	}
}

func TestSyntheticProviderDeterministic(t *testing.T) {
	p := NewSyntheticProvider()
	p.Now = fixedNow
	a, err := p.Fetch(context.Background(), "aapl", "1y")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	b, _ := p.Fetch(context.Background(), "AAPL", "1y")
	if a.Len() != 252 {
		t.Fatalf("expected 252 bars, got %d", a.Len())
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("synthetic data invalid: %v", err)
	}
	ac, bc := a.Closes(), b.Closes()
	for i := range ac {
		if ac[i] != bc[i] {
			t.Fatalf("series differ at %d", i)
		}
	}
	other, _ := p.Fetch(context.Background(), "MSFT", "1y")
	if other.Closes()[10] == ac[10] {
		t.Fatalf("expected different series per subject")
	}
}

func TestYahooProviderParsesChart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v8/finance/chart/AAPL") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("range") != "6mo" {
			t.Errorf("unexpected range %q", r.URL.Query().Get("range"))
		}
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"AAPL"},
			"timestamp":[1700000000,1700086400,1700172800],
			"indicators":{"quote":[{"open":[1,2,3],"high":[1,2,3],"low":[1,2,3],"close":[10,null,12],"volume":[5,6,7]}]}}],"error":null}}`))
	}))
	defer srv.Close()

	p := NewYahooProvider(srv.URL, NewHTTPClient(time.Second, 0, 0), nil)
	ds, err := p.Fetch(context.Background(), "aapl", "6mo")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("expected null close skipped, got %d bars", ds.Len())
	}
	if ds.Source() != "yahoo" {
		t.Fatalf("unexpected source %q", ds.Source())
	}
}

func TestYahooProviderEmptyIsDatasetError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[],"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	p := NewYahooProvider(srv.URL, NewHTTPClient(time.Second, 0, 0), nil)
	if _, err := p.Fetch(context.Background(), "ZZZZ", "1y"); !errors.Is(err, ErrDataset) {
		t.Fatalf("expected ErrDataset, got %v", err)
	}
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	c := NewHTTPClient(time.Second, 2, time.Millisecond)
	if err := c.DoJSON(context.Background(), "GET", srv.URL, nil, nil, &out); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if !out.OK || calls != 3 {
		t.Fatalf("expected success on third call, calls=%d", calls)
	}
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewHTTPClient(time.Second, 3, time.Millisecond).DoJSON(context.Background(), "GET", srv.URL, nil, nil, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

type memCache struct {
	data   map[string][]byte
	gets   int
	setErr error
}

func (m *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.gets++
	b, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (m *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

type countingProvider struct {
	inner Provider
	calls int
	err   error
}

func (c *countingProvider) Fetch(ctx context.Context, subject, period string) (*Dataset, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Fetch(ctx, subject, period)
}

func TestCachedProviderFillsAndServes(t *testing.T) {
	syn := NewSyntheticProvider()
	syn.Now = fixedNow
	next := &countingProvider{inner: syn}
	cache := &memCache{data: map[string][]byte{}}
	p := &CachedProvider{Next: next, Cache: cache, TTL: time.Minute}

	first, err := p.Fetch(context.Background(), "nvda", "3mo")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	second, err := p.Fetch(context.Background(), "NVDA", "3mo")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}
	if _, ok := cache.data["tickerscope:dataset:NVDA:3mo"]; !ok {
		t.Fatalf("expected cache key written, got %v", cache.data)
	}
	if first.Len() != second.Len() || first.Closes()[5] != second.Closes()[5] {
		t.Fatalf("cached dataset differs from original")
	}
}

func TestCachedProviderIgnoresCacheWriteFailure(t *testing.T) {
	syn := NewSyntheticProvider()
	cache := &memCache{data: map[string][]byte{}, setErr: errors.New("read only")}
	p := &CachedProvider{Next: syn, Cache: cache}
	if _, err := p.Fetch(context.Background(), "IBM", "1mo"); err != nil {
		t.Fatalf("cache failure should not fail fetch: %v", err)
	}
}

func TestFallbackProviderSubstitutes(t *testing.T) {
	primary := &countingProvider{err: errors.New("network down")}
	syn := NewSyntheticProvider()
	p := &FallbackProvider{Primary: primary, Secondary: syn}
	ds, err := p.Fetch(context.Background(), "AMD", "1y")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ds.Source() != "synthetic" {
		t.Fatalf("expected synthetic source, got %q", ds.Source())
	}
}

func TestNewsAPIHeadlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" {
			t.Errorf("missing api key header")
		}
		if got := r.URL.Query().Get("q"); got != `"TSLA"` {
			t.Errorf("unexpected query %q", got)
		}
		_, _ = w.Write([]byte(`{"status":"ok","totalResults":3,"articles":[
			{"source":{"name":"Wire"},"title":"Tesla deliveries surge","url":"http://a","publishedAt":"2025-03-13T10:00:00Z"},
			{"source":{"name":"Wire"},"title":"","url":"http://b","publishedAt":"2025-03-13T09:00:00Z"},
			{"source":{"name":"Old"},"title":"Stale story","url":"http://c","publishedAt":"2024-01-01T00:00:00Z"}]}`))
	}))
	defer srv.Close()

	n := NewsAPI{APIKey: "k", Endpoint: srv.URL, HTTP: NewHTTPClient(time.Second, 0, 0)}
	items, err := n.Headlines(context.Background(), "tsla", fixedNow().AddDate(0, 0, -7), 5)
	if err != nil {
		t.Fatalf("Headlines: %v", err)
	}
	if len(items) != 1 || items[0].Publisher != "Wire" {
		t.Fatalf("unexpected headlines %+v", items)
	}
}

func TestNewsAPIWithoutKey(t *testing.T) {
	if _, err := (NewsAPI{}).Headlines(context.Background(), "X", time.Time{}, 1); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestYahooFundamentals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quoteSummary":{"result":[{
			"summaryDetail":{"trailingPE":{"raw":12.5},"marketCap":{"raw":1000000}},
			"defaultKeyStatistics":{"priceToBook":{"raw":1.2},"pegRatio":{}},
			"price":{"shortName":"Acme Corp"}}],"error":null}}`))
	}))
	defer srv.Close()

	f, err := YahooFundamentals{BaseURL: srv.URL, HTTP: NewHTTPClient(time.Second, 0, 0)}.Fundamentals(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Fundamentals: %v", err)
	}
	if f.Name != "Acme Corp" || f.PE() == nil || *f.PE() != 12.5 {
		t.Fatalf("unexpected fundamentals %+v", f)
	}
	if f.PEG != nil {
		t.Fatalf("expected missing peg, got %v", *f.PEG)
	}
}
