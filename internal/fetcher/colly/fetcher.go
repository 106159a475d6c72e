// Package collyfetcher implements crawler.PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
	"github.com/JakeFAU/topcv-job-insights/internal/metrics"
)

// DefaultUserAgents is the browser pool rotated across attempts.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
}

// DefaultQuery holds the fixed listing filters sent with every page request.
var DefaultQuery = map[string]string{
	"sort":             "new",
	"type_keyword":     "1",
	"sba":              "1",
	"domain_knowledge": "3",
}

// Config controls collector behavior.
type Config struct {
	UserAgents  []string
	Query       map[string]string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// Waiter paces requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher fetches and parses listing pages.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	retry         *crawler.ExponentialRetryPolicy
	limiter       Waiter
	pauser        crawler.Pauser
	pick          func(n int) int
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type attemptResult struct {
	statusCode int
	body       []byte
	err        error
}

// New builds a Fetcher. limiter and pauser may be nil.
func New(cfg Config, limiter Waiter, pauser crawler.Pauser, logger *zap.Logger) *Fetcher {
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultUserAgents
	}
	if cfg.Query == nil {
		cfg.Query = DefaultQuery
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	// Each attempt re-requests the same URL on a clone sharing the visit store.
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = false
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		retry:         crawler.NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BackoffBase, 0),
		limiter:       limiter,
		pauser:        pauser,
		pick:          rand.IntN,
		logger:        logger,
	}
}

// FetchPage implements crawler.PageFetcher. It retries 429 responses and
// transport errors with exponential backoff and returns a page with no jobs
// once every attempt has failed.
func (f *Fetcher) FetchPage(ctx context.Context, sourceURL string, page int) crawler.Page {
	empty := crawler.Page{URL: sourceURL, Number: page, Jobs: []crawler.RawJob{}}
	target, err := PageURL(sourceURL, page, f.cfg.Query)
	if err != nil {
		f.logger.Error("invalid listing url", zap.String("url", sourceURL), zap.Error(err))
		return empty
	}
	empty.URL = target

	for attempt := 0; attempt < f.retry.Attempts(); attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, target); err != nil {
				f.logger.Warn("rate limiter wait aborted", zap.String("url", target), zap.Error(err))
				return empty
			}
		}
		res := f.attempt(ctx, target, f.userAgent())
		if res.err == nil {
			jobs, perr := ParseListing(res.body, page)
			if perr == nil {
				metrics.ObserveFetch(target, "ok", len(res.body))
				return crawler.Page{URL: target, Number: page, StatusCode: res.statusCode, Body: res.body, Jobs: jobs}
			}
			res.err = perr
		}

		if res.statusCode == http.StatusTooManyRequests {
			metrics.ObserveFetch(target, "rate_limited", 0)
			f.logger.Warn("rate limited by listing site",
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", f.retry.Backoff(attempt)),
			)
		} else {
			metrics.ObserveFetch(target, "error", 0)
			f.logger.Warn("fetch attempt failed",
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
				zap.Int("status", res.statusCode),
				zap.Error(res.err),
			)
		}
		if !f.retry.ShouldRetry(res.err, attempt) || ctx.Err() != nil {
			break
		}
		f.pauser.Pause(ctx, f.retry.Backoff(attempt))
	}
	f.logger.Error("listing page unavailable", zap.String("url", target), zap.Int("page", page))
	return empty
}

func (f *Fetcher) userAgent() string {
	return f.cfg.UserAgents[f.pick(len(f.cfg.UserAgents))]
}

func (f *Fetcher) attempt(ctx context.Context, target, userAgent string) attemptResult {
	collector := f.buildCollector(userAgent)
	var res attemptResult
	f.configureCollectorHooks(collector, &res)
	if err := f.runCollector(ctx, collector, target); err != nil && res.err == nil {
		res.err = err
	}
	return res
}

func (f *Fetcher) buildCollector(userAgent string) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = userAgent
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, res *attemptResult) {
	hooks.OnResponse(func(r *colly.Response) {
		res.statusCode = r.StatusCode
		res.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.statusCode = r.StatusCode
		}
		if err == nil {
			err = errors.New("listing request failed")
		}
		res.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// PageURL renders the listing URL for page with the fixed query filters.
func PageURL(sourceURL string, page int, query map[string]string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("parse listing url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("listing url %q is not absolute", sourceURL)
	}
	values := u.Query()
	for k, v := range query {
		values.Set(k, v)
	}
	values.Set("page", strconv.Itoa(page))
	u.RawQuery = values.Encode()
	return u.String(), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
