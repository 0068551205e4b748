package sale

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Quote is one price observation as reported by a feed.
type Quote struct {
	Price     *big.Int
	Decimals  uint8
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote.
func (q Quote) Clone() Quote {
	clone := Quote{Decimals: q.Decimals, Timestamp: q.Timestamp, Source: q.Source}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// QuoteFeed resolves the latest quote for an oracle asset reference.
type QuoteFeed interface {
	LatestQuote(asset string) (Quote, error)
}

// ErrNoFreshQuote indicates no registered feed returned a quote within the
// configured freshness window.
var ErrNoFreshQuote = errors.New("sale: no fresh oracle quote available")

// FeedAggregator consults registered feeds in priority order until a fresh,
// positive quote is obtained. It implements PriceFeed for the normalizer.
type FeedAggregator struct {
	mu       sync.RWMutex
	priority []string
	feeds    map[string]QuoteFeed
	maxAge   time.Duration
	nowFn    func() time.Time
}

// NewFeedAggregator constructs an aggregator with the provided priority and
// freshness window.
func NewFeedAggregator(priority []string, maxAge time.Duration) *FeedAggregator {
	return &FeedAggregator{
		priority: append([]string{}, priority...),
		feeds:    make(map[string]QuoteFeed),
		maxAge:   maxAge,
		nowFn:    time.Now,
	}
}

// SetNowFunc overrides the clock used for freshness checks. Intended for
// tests.
func (a *FeedAggregator) SetNowFunc(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.mu.Lock()
	a.nowFn = now
	a.mu.Unlock()
}

// Register adds or replaces a feed under the supplied identifier. Unknown
// identifiers are appended to the priority list.
func (a *FeedAggregator) Register(name string, feed QuoteFeed) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feeds[trimmed] = feed
	for _, entry := range a.priority {
		if strings.EqualFold(entry, trimmed) {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// LatestQuote fetches a quote respecting the priority ordering and freshness
// window.
func (a *FeedAggregator) LatestQuote(asset string) (Quote, error) {
	if a == nil {
		return Quote{}, fmt.Errorf("sale: feed aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	now := a.nowFn()
	a.mu.RUnlock()

	ref := strings.TrimSpace(asset)
	if ref == "" {
		return Quote{}, fmt.Errorf("sale: oracle asset reference required")
	}

	var lastErr error
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = now.Add(-maxAge)
	}
	for _, name := range priority {
		a.mu.RLock()
		feed := a.feeds[strings.ToLower(name)]
		a.mu.RUnlock()
		if feed == nil {
			continue
		}
		quote, err := feed.LatestQuote(ref)
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Price == nil || quote.Price.Sign() <= 0 {
			lastErr = fmt.Errorf("sale: feed %s returned invalid price", name)
			continue
		}
		if maxAge > 0 && quote.Timestamp.Before(cutoff) {
			lastErr = ErrNoFreshQuote
			continue
		}
		result := quote.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = strings.ToLower(name)
		}
		return result, nil
	}
	if lastErr == nil {
		lastErr = ErrNoFreshQuote
	}
	return Quote{}, lastErr
}

// LatestPrice implements PriceFeed.
func (a *FeedAggregator) LatestPrice(asset string) (*big.Int, uint8, error) {
	quote, err := a.LatestQuote(asset)
	if err != nil {
		return nil, 0, err
	}
	return quote.Price, quote.Decimals, nil
}

// ManualFeed is an in-memory feed used for tests and manual overrides during
// incident response.
type ManualFeed struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{quotes: make(map[string]Quote)}
}

// Set stores a quote for the given asset reference.
func (m *ManualFeed) Set(asset string, price *big.Int, decimals uint8, ts time.Time) {
	if m == nil || price == nil {
		return
	}
	key := strings.ToUpper(strings.TrimSpace(asset))
	if key == "" {
		return
	}
	m.mu.Lock()
	m.quotes[key] = Quote{Price: new(big.Int).Set(price), Decimals: decimals, Timestamp: ts, Source: "manual"}
	m.mu.Unlock()
}

// LatestQuote retrieves the stored quote for the asset reference.
func (m *ManualFeed) LatestQuote(asset string) (Quote, error) {
	if m == nil {
		return Quote{}, fmt.Errorf("sale: manual feed not configured")
	}
	key := strings.ToUpper(strings.TrimSpace(asset))
	m.mu.RLock()
	stored, ok := m.quotes[key]
	m.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("sale: manual feed: quote for %s not found", asset)
	}
	return stored.Clone(), nil
}

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// httpFeedDecimals is the fixed precision HTTP feed quotes are parsed to.
const httpFeedDecimals uint8 = 8

// HTTPFeed adapts a simple-price HTTP endpoint that responds with
// {"<id>": {"usd": <price>, "last_updated_at": <unix>}}.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	idMap    map[string]string
}

// NewHTTPFeed constructs an adapter for the provided endpoint. idMap maps
// oracle asset references to the provider's asset identifiers; unmapped
// references are lowered and used verbatim. A nil client falls back to
// http.DefaultClient.
func NewHTTPFeed(client HTTPDoer, endpoint string, idMap map[string]string) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	mapped := make(map[string]string, len(idMap))
	for k, v := range idMap {
		mapped[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return &HTTPFeed{client: client, endpoint: strings.TrimSpace(endpoint), idMap: mapped}
}

func (f *HTTPFeed) assetID(asset string) string {
	if id, ok := f.idMap[strings.ToUpper(strings.TrimSpace(asset))]; ok && id != "" {
		return id
	}
	return strings.ToLower(strings.TrimSpace(asset))
}

// LatestQuote fetches and parses the provider's quote, scaling the decimal
// price to httpFeedDecimals.
func (f *HTTPFeed) LatestQuote(asset string) (Quote, error) {
	if f == nil || f.endpoint == "" {
		return Quote{}, fmt.Errorf("sale: http feed not configured")
	}
	id := f.assetID(asset)
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	values := url.Values{}
	values.Set("ids", id)
	values.Set("vs_currencies", "usd")
	values.Set("include_last_updated_at", "true")
	req.URL.RawQuery = values.Encode()
	resp, err := f.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("sale: http feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]json.Number
	if err := decoder.Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("sale: http feed: decode: %w", err)
	}
	entry, ok := payload[id]
	if !ok {
		return Quote{}, fmt.Errorf("sale: http feed: quote missing for %s", asset)
	}
	raw, ok := entry["usd"]
	if !ok {
		return Quote{}, fmt.Errorf("sale: http feed: empty price for %s", asset)
	}
	rat, ok := new(big.Rat).SetString(raw.String())
	if !ok || rat.Sign() <= 0 {
		return Quote{}, fmt.Errorf("sale: http feed: invalid price %q", raw.String())
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(pow10(httpFeedDecimals)))
	price := new(big.Int).Quo(scaled.Num(), scaled.Denom())

	ts := time.Now().UTC()
	if rawTs, ok := entry["last_updated_at"]; ok {
		if parsed, err := rawTs.Int64(); err == nil && parsed > 0 {
			ts = time.Unix(parsed, 0).UTC()
		}
	}
	return Quote{Price: price, Decimals: httpFeedDecimals, Timestamp: ts, Source: "http"}, nil
}
