// Package collyfetcher downloads order documents over plain HTTP using the
// cookies of a live browser session.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// ErrUnexpectedStatus is returned for any non-2xx document response.
var ErrUnexpectedStatus = errors.New("unexpected document status")

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// Request names a document and the session state needed to fetch it.
type Request struct {
	URL       string
	Referer   string
	UserAgent string
	Cookies   []*http.Cookie
}

// Document is a downloaded body.
type Document struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Fetcher downloads documents using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 50 << 20
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	c.IgnoreRobotsTxt = true
	// Cookies come from the browser session on every request, never from a jar.
	c.DisableCookies()
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET for the document.
func (f *Fetcher) Fetch(ctx context.Context, request Request) (Document, error) {
	var (
		result   Document
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	if ua := f.userAgent(request); ua != "" {
		collector.UserAgent = ua
	}
	f.configureCollectorHooks(collector, request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return Document{}, err
	}
	return result, nil
}

func (f *Fetcher) userAgent(request Request) string {
	if request.UserAgent != "" {
		return request.UserAgent
	}
	return f.cfg.UserAgent
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request Request,
	start time.Time,
	result *Document,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		applyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Document{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("%w %d: %w", ErrUnexpectedStatus, r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func applyHeaders(request Request, r *colly.Request) {
	r.Headers.Set("Accept", "application/pdf,*/*;q=0.8")
	if request.Referer != "" {
		r.Headers.Set("Referer", request.Referer)
	}
	if header := cookieHeader(request.Cookies); header != "" {
		r.Headers.Set("Cookie", header)
	}
}

func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
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
