package fetcher

import (
	"context"
	"hash/fnv"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/vpnmerger/aggregator/pkg/models"
	"github.com/vpnmerger/aggregator/pkg/pubsub"
)

// Config controls the fetcher's timeouts, cache sizing, and politeness
// limits. The callers in this repo build it with DefaultConfig; values from
// sources.yaml's processing/cache sections are not copied into it.
type Config struct {
	L1MaxEntries  int
	DefaultTTL    time.Duration
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	GlobalConcurrency int
	HostRPS       float64
	HostBurst     int
	RetryAttempts int
	RetryBase     time.Duration
	RetryCap      time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultConfig returns the spec-default timeouts and limits.
func DefaultConfig() Config {
	return Config{
		L1MaxEntries:      10000,
		DefaultTTL:        5 * time.Minute,
		ConnectTimeout:    5 * time.Second,
		RequestTimeout:    30 * time.Second,
		GlobalConcurrency: 50,
		HostRPS:           1,
		HostBurst:         2,
		RetryAttempts:     3,
		RetryBase:         100 * time.Millisecond,
		RetryCap:          10 * time.Second,
		BreakerThreshold:  5,
		BreakerCooldown:   60 * time.Second,
	}
}

// Service implements the cache-backed fetch pipeline.
//
//encore:service
type Service struct {
	config    Config
	l1        *L1Cache
	l2        RemoteCache
	l3        *L3Store
	coalescer *RequestCoalescer
	breakers  *BreakerRegistry
	limiters  *HostLimiterRegistry
	sem       chan struct{}
	client    *http.Client

	mu      sync.Mutex
	metrics Metrics
}

// Metrics tracks fetch outcomes for the monitoring service.
type Metrics struct {
	L1Hits, L1Misses   int64
	L2Hits, L2Misses   int64
	L3Hits, L3Misses   int64
	OriginSuccess      int64
	OriginFailure      int64
	CircuitShortCircuit int64
}

var svc *Service
var once sync.Once

// initService builds the fetcher with an L1-only configuration; callers in
// production wire SetL2Cache/SetL3Store after construction once Redis and
// the SQLite shard paths are known.
func initService() (*Service, error) {
	once.Do(func() {
		svc = NewService(DefaultConfig())
	})
	return svc, nil
}

// NewService constructs a fetcher with the given configuration.
func NewService(cfg Config) *Service {
	return &Service{
		config:    cfg,
		l1:        NewL1Cache(cfg.L1MaxEntries),
		coalescer: NewRequestCoalescer(),
		breakers:  NewBreakerRegistry(cfg.BreakerThreshold, cfg.BreakerCooldown),
		limiters:  NewHostLimiterRegistry(cfg.HostRPS, cfg.HostBurst),
		sem:       make(chan struct{}, cfg.GlobalConcurrency),
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		},
	}
}

// SetL2Cache injects the Redis-backed L2 tier.
func (s *Service) SetL2Cache(l2 RemoteCache) { s.l2 = l2 }

// SetL3Store injects the sharded SQLite L3 tier.
func (s *Service) SetL3Store(l3 *L3Store) { s.l3 = l3 }

// ClearCache drops every L1 entry. L2/L3 are left to their own TTL expiry:
// a distributed scan-and-delete over Redis or every SQLite shard is out of
// scope for an interactive cache-clear call, the same "L1 remains
// authoritative, lower tiers are best-effort" posture the fetch path
// already takes on L2/L3 write failures.
//
//encore:api public method=POST path=/api/v1/cache/clear
func ClearCache(ctx context.Context) (*ClearCacheResponse, error) {
	s, err := initService()
	if err != nil {
		return nil, err
	}
	return &ClearCacheResponse{Cleared: s.ClearCache()}, nil
}

// ClearCache drops every L1 entry on this instance and reports how many
// were dropped. Exposed as a method so standalone deployments (cmd/
// vpnmerger server) can clear the exact fetcher instance they constructed
// rather than the separate package-level Encore singleton.
func (s *Service) ClearCache() int {
	cleared := s.l1.Size()
	s.l1.Clear()
	return cleared
}

// ClearCacheResponse reports how many L1 entries were dropped.
type ClearCacheResponse struct {
	Cleared int `json:"cleared"`
}

// FetchRequest is the input to the fetch-all endpoint.
type FetchRequest struct {
	URLs []string `json:"urls"`
}

// FetchResponse wraps per-URL results.
type FetchResponse struct {
	Results []models.FetchResult `json:"results"`
}

// SingleFetchRequest is the input to the single-URL fetch endpoint.
type SingleFetchRequest struct {
	URL string `json:"url"`
}

// Fetch retrieves a single URL's subscription payload through the cache
// tiers, falling back to the origin on a full miss.
//
//encore:api private method=POST path=/internal/fetch
func Fetch(ctx context.Context, req *SingleFetchRequest) (*models.FetchResult, error) {
	s, err := initService()
	if err != nil {
		return nil, err
	}
	return s.Fetch(ctx, req.URL)
}

func urlHash(raw string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(raw))
	return fmt.Sprintf("%x", h.Sum64())
}

func cacheKey(rawURL string) string {
	return "fetch:" + urlHash(rawURL)
}

// Fetch returns the cached or freshly-fetched payload for rawURL.
func (s *Service) Fetch(ctx context.Context, rawURL string) (*models.FetchResult, error) {
	key := cacheKey(rawURL)
	tag := "fetch:" + urlHash(rawURL)

	if entry, ok := s.l1.Get(key); ok {
		s.mu.Lock()
		s.metrics.L1Hits++
		s.mu.Unlock()
		return decodeFetchResult(entry.Value, true)
	}
	s.mu.Lock()
	s.metrics.L1Misses++
	s.mu.Unlock()

	raw, err := s.coalescer.Do(key, func() (interface{}, error) {
		return s.fetchWithFallback(ctx, rawURL, key, tag)
	})
	if err != nil {
		return nil, err
	}
	return raw.(*models.FetchResult), nil
}

// FetchAll fetches every URL, each under its own rate limit, breaker, and
// coalescing key, bounded by the global concurrency semaphore.
//
//encore:api private method=POST path=/internal/fetch-all
func FetchAll(ctx context.Context, req *FetchRequest) (*FetchResponse, error) {
	s, err := initService()
	if err != nil {
		return nil, err
	}
	return s.FetchAll(ctx, req.URLs)
}

// FetchAll concurrently fetches every URL and returns results in input order.
func (s *Service) FetchAll(ctx context.Context, urls []string) (*FetchResponse, error) {
	results := make([]models.FetchResult, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		i, u := i, u
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.Fetch(ctx, u)
			if err != nil {
				results[i] = models.FetchResult{URL: u, Success: false, Error: err.Error()}
				return
			}
			results[i] = *result
		}()
	}
	wg.Wait()
	return &FetchResponse{Results: results}, nil
}

func (s *Service) fetchWithFallback(ctx context.Context, rawURL, key, tag string) (*models.FetchResult, error) {
	if data, ok, err := s.l2Get(ctx, key); err == nil && ok {
		s.mu.Lock()
		s.metrics.L2Hits++
		s.mu.Unlock()
		result, err := decodeFetchResult(data, true)
		if err == nil {
			s.l1.Set(key, &models.CacheEntry{Key: key, Value: data, ExpiresAt: time.Now().Add(s.config.DefaultTTL), Tags: tagSet(tag)})
			return result, nil
		}
	} else {
		s.mu.Lock()
		s.metrics.L2Misses++
		s.mu.Unlock()
	}

	if s.l3 != nil {
		if data, ok, err := s.l3.Get(ctx, key); err == nil && ok {
			s.mu.Lock()
			s.metrics.L3Hits++
			s.mu.Unlock()
			result, err := decodeFetchResult(data, true)
			if err == nil {
				s.l1.Set(key, &models.CacheEntry{Key: key, Value: data, ExpiresAt: time.Now().Add(s.config.DefaultTTL), Tags: tagSet(tag)})
				return result, nil
			}
		} else {
			s.mu.Lock()
			s.metrics.L3Misses++
			s.mu.Unlock()
		}
	}

	result := s.fetchFromOrigin(ctx, rawURL)

	data, encErr := encodeFetchResult(result)
	if encErr == nil {
		s.l1.Set(key, &models.CacheEntry{Key: key, Value: data, ExpiresAt: time.Now().Add(s.config.DefaultTTL), Tags: tagSet(tag)})
		if s.l2 != nil {
			go func() { _ = s.l2.Set(context.Background(), key, data, s.config.DefaultTTL) }()
		}
		if s.l3 != nil {
			go func() { _ = s.l3.Set(context.Background(), key, data, s.config.DefaultTTL, tag) }()
		}
	}

	if result.Success {
		s.mu.Lock()
		s.metrics.OriginSuccess++
		s.mu.Unlock()
	} else {
		s.mu.Lock()
		s.metrics.OriginFailure++
		s.mu.Unlock()
	}
	return result, nil
}

func (s *Service) l2Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.l2 == nil {
		return nil, false, nil
	}
	return s.l2.Get(ctx, key)
}

func tagSet(tags ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		out[t] = struct{}{}
	}
	return out
}

// fetchFromOrigin performs the actual HTTP request with per-host rate
// limiting, a circuit breaker, and bounded retry with exponential backoff
// and jitter. Network errors and 5xx are retried; 4xx are terminal.
func (s *Service) fetchFromOrigin(ctx context.Context, rawURL string) *models.FetchResult {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &models.FetchResult{URL: rawURL, Success: false, Error: err.Error()}
	}
	host := parsed.Hostname()

	breaker := s.breakers.Get(host)
	if !breaker.Allow(time.Now()) {
		s.mu.Lock()
		s.metrics.CircuitShortCircuit++
		s.mu.Unlock()
		return &models.FetchResult{URL: rawURL, Success: false, Error: "circuit breaker open for host"}
	}

	limiter := s.limiters.Get(host)

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return &models.FetchResult{URL: rawURL, Success: false, Error: ctx.Err().Error()}
	}

	var lastErr error
	var statusCode int
	for attempt := 0; attempt < s.config.RetryAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return &models.FetchResult{URL: rawURL, Success: false, Error: err.Error()}
		}

		start := time.Now()
		body, code, err := s.doRequest(ctx, rawURL)
		elapsed := time.Since(start)
		statusCode = code

		if err == nil && code < 500 {
			if code >= 400 {
				if breaker.RecordFailure(time.Now()) {
					s.publishCircuitTrip(host)
				}
				return &models.FetchResult{URL: rawURL, Success: false, StatusCode: code, Error: fmt.Sprintf("http %d", code), ResponseTime: elapsed}
			}
			breaker.RecordSuccess()
			return &models.FetchResult{URL: rawURL, Success: true, Configs: splitLines(body), StatusCode: code, ResponseTime: elapsed}
		}

		lastErr = err
		if err == nil {
			lastErr = fmt.Errorf("http %d", code)
		}
		if breaker.RecordFailure(time.Now()) {
			s.publishCircuitTrip(host)
		}

		if attempt < s.config.RetryAttempts-1 {
			sleepWithJitter(ctx, backoffDelay(attempt, s.config.RetryBase, s.config.RetryCap))
		}
	}

	return &models.FetchResult{URL: rawURL, Success: false, StatusCode: statusCode, Error: errString(lastErr)}
}

func (s *Service) publishCircuitTrip(host string) {
	_, _ = CircuitBreakerTripTopic.Publish(context.Background(), &CircuitBreakerTripEvent{
		Host:      host,
		Timestamp: time.Now(),
	})
}

func errString(err error) string {
	if err == nil {
		return "unknown fetch error"
	}
	return err.Error()
}

func (s *Service) doRequest(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// backoffDelay computes exponential backoff (base * 2^attempt), capped.
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		d = cap
	}
	return d
}

// sleepWithJitter sleeps for a random duration in [d/2, d), respecting
// context cancellation.
func sleepWithJitter(ctx context.Context, d time.Duration) {
	jittered := d/2 + time.Duration(rand.Int63n(int64(d/2+1)))
	timer := time.NewTimer(jittered)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func splitLines(body []byte) []string {
	var lines []string
	var current []byte
	for _, b := range body {
		if b == '\n' {
			if len(current) > 0 {
				lines = append(lines, string(current))
			}
			current = nil
			continue
		}
		if b == '\r' {
			continue
		}
		current = append(current, b)
	}
	if len(current) > 0 {
		lines = append(lines, string(current))
	}
	return lines
}

func encodeFetchResult(r *models.FetchResult) ([]byte, error) {
	return json.Marshal(r)
}

func decodeFetchResult(data []byte, cacheHit bool) (*models.FetchResult, error) {
	var r models.FetchResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	r.CacheHit = cacheHit
	return &r, nil
}

// PublishSourceUpdate reports a fetch outcome on the sources.update topic so
// the source manager can update reputation and the monitoring service can
// track per-source success rates.
func (s *Service) PublishSourceUpdate(ctx context.Context, rawURL string, result *models.FetchResult) error {
	event := &pubsub.SourceUpdateEvent{
		Version:     pubsub.EventVersion1,
		Service:     "fetcher",
		URL:         rawURL,
		URLHash:     urlHash(rawURL),
		Success:     result.Success,
		TriggeredAt: time.Now(),
	}
	if err := event.Validate(); err != nil {
		return err
	}
	_, err := SourceUpdateTopic.Publish(ctx, event)
	return err
}
