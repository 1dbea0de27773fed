package seo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/residencyreview/eras-review-api/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultIndexNowEngines are the IndexNow endpoints that accept URL submissions.
var DefaultIndexNowEngines = map[string]string{
	"indexnow": "https://api.indexnow.org/indexnow",
	"bing":     "https://www.bing.com/indexnow",
	"yandex":   "https://yandex.com/indexnow",
}

// Pinger notifies search engines that a URL changed.
type Pinger struct {
	Key     string
	Engines map[string]string
	Client  *http.Client
	Log     logrus.FieldLogger
}

func NewPinger(key string, log logrus.FieldLogger) *Pinger {
	return &Pinger{
		Key:     key,
		Engines: DefaultIndexNowEngines,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Log:     log,
	}
}

// PingResult is the outcome for one engine.
type PingResult struct {
	Engine string `json:"engine"`
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

// maxConcurrentPings bounds outbound requests per Ping call.
const maxConcurrentPings = 4

// Ping submits pageURL to every engine concurrently and returns one result per
// engine. A failing engine does not cancel the others; the first failure is
// also returned as the error.
func (p *Pinger) Ping(ctx context.Context, pageURL string) ([]PingResult, error) {
	if p.Key == "" {
		p.Log.WithField("url", pageURL).Debug("INDEXNOW_KEY not set, skipping search engine pings")
		return nil, nil
	}

	names := make([]string, 0, len(p.Engines))
	for name := range p.Engines {
		names = append(names, name)
	}
	sort.Strings(names)
	results := make([]PingResult, len(names))

	// A plain Group, not WithContext: one engine failing must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(maxConcurrentPings)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			r := p.pingOne(ctx, name, p.Engines[name], pageURL)
			results[i] = r

			outcome := "ok"
			if r.Error != "" {
				outcome = "error"
			}
			metrics.RecordSEOPing(r.Engine, outcome)
			if r.Error != "" {
				p.Log.WithFields(logrus.Fields{"engine": r.Engine, "url": pageURL}).Warn("search engine ping failed: " + r.Error)
				return fmt.Errorf("ping %s: %s", r.Engine, r.Error)
			}
			return nil
		})
	}
	return results, g.Wait()
}

func (p *Pinger) pingOne(ctx context.Context, name, endpoint, pageURL string) PingResult {
	q := url.Values{}
	q.Set("url", pageURL)
	q.Set("key", p.Key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return PingResult{Engine: name, Error: err.Error()}
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return PingResult{Engine: name, Error: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// IndexNow answers 200 or 202 on success.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return PingResult{Engine: name, Status: resp.StatusCode, Error: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	return PingResult{Engine: name, Status: resp.StatusCode}
}
