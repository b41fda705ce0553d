// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package td

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	gax "github.com/googleapis/gax-go/v2"
	"github.com/googleapis/gax-go/v2/internallog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/treasure-data/td-client-go/internal"
	"github.com/treasure-data/td-client-go/internal/version"
)

const userAgentPrefix = "TD-Client-Go"

// Client talks to the Treasure Data API.
//
// A Client is safe for concurrent use. Clients derived with WithAPIKey or
// Authenticate share the connection pool of the Client they came from.
// Closing a derived Client affects only that Client; closing the originating
// Client closes the pool, after which every Client sharing it returns
// ErrClientClosed.
type Client struct {
	cfg     Config
	apiKey  string
	baseURL string

	pool   *connPool
	owner  bool
	closed *atomic.Bool
	hc     *http.Client

	logger  *slog.Logger
	metrics *metrics
	backoff *backoff

	// sleep waits between attempts and pollBackoff paces WaitJob; tests
	// replace both.
	sleep       func(context.Context, time.Duration) error
	pollBackoff func() internal.Pauser
}

// ClientOption configures a Client.
type ClientOption interface {
	applyClientOption(*clientSettings)
}

type clientSettings struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	transport  http.RoundTripper
}

type clientOptionFunc func(*clientSettings)

func (f clientOptionFunc) applyClientOption(s *clientSettings) { f(s) }

// WithLogger sets the logger for request, response and retry records. Without
// it the logger is configured from the GOOGLE_SDK_GO_LOGGING_LEVEL
// environment variable and is silent by default.
func WithLogger(l *slog.Logger) ClientOption {
	return clientOptionFunc(func(s *clientSettings) { s.logger = l })
}

// WithMetricsRegisterer registers the client's Prometheus collectors on reg.
func WithMetricsRegisterer(reg prometheus.Registerer) ClientOption {
	return clientOptionFunc(func(s *clientSettings) { s.registerer = reg })
}

// WithHTTPTransport replaces the pooled transport built from the Config.
// Authentication is still applied on top of rt.
func WithHTTPTransport(rt http.RoundTripper) ClientOption {
	return clientOptionFunc(func(s *clientSettings) { s.transport = rt })
}

// NewClient creates a Client from cfg. If cfg has no API key but carries a
// user and password, NewClient exchanges them for an API key first.
func NewClient(ctx context.Context, cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	var s clientSettings
	for _, o := range opts {
		o.applyClientOption(&s)
	}
	if cfg.Proxy != nil {
		p := *cfg.Proxy
		cfg.Proxy = &p
	}
	pool := newConnPool(cfg, s.transport)
	logger := internallog.New(s.logger)
	c := &Client{
		cfg:     cfg,
		apiKey:  cfg.APIKey,
		baseURL: cfg.baseURL(),
		pool:    pool,
		owner:   true,
		closed:  new(atomic.Bool),
		hc:      pool.httpClient(cfg.APIKey),
		logger:  logger,
		metrics: newMetrics(s.registerer, logger),
		backoff: newBackoff(cfg),
		sleep:   gax.Sleep,

		pollBackoff: defaultPollBackoff,
	}
	if c.apiKey == "" && cfg.User != "" {
		key, err := c.authenticate(ctx, cfg.User, cfg.Password)
		if err != nil {
			pool.close()
			return nil, err
		}
		c.apiKey = key
		c.hc = pool.httpClient(key)
	}
	return c, nil
}

// Config returns the configuration the Client was built from. The API key
// reflects the key the Client authenticates with.
func (c *Client) Config() Config {
	cfg := c.cfg
	cfg.APIKey = c.apiKey
	if cfg.Proxy != nil {
		p := *cfg.Proxy
		cfg.Proxy = &p
	}
	return cfg
}

// WithAPIKey returns a Client that authenticates with apiKey and shares c's
// connection pool.
func (c *Client) WithAPIKey(apiKey string) *Client {
	d := *c
	d.apiKey = apiKey
	d.owner = false
	d.closed = new(atomic.Bool)
	d.hc = c.pool.httpClient(apiKey)
	return &d
}

// Authenticate exchanges an email and password for an API key and returns a
// Client derived from c that uses that key.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*Client, error) {
	key, err := c.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return c.WithAPIKey(key), nil
}

func (c *Client) authenticate(ctx context.Context, email, password string) (string, error) {
	var res struct {
		APIKey string `json:"apikey"`
	}
	err := c.call(ctx, &request{
		op:         "td.user.authenticate",
		resource:   "user:" + email,
		method:     http.MethodPost,
		path:       "/v3/user/authenticate",
		form:       url.Values{"user": {email}, "password": {password}},
		idempotent: true,
	}, &res)
	if err != nil {
		return "", err
	}
	if res.APIKey == "" {
		return "", malformedResponse("td.user.authenticate", "user:"+email, errMissingField("apikey"))
	}
	return res.APIKey, nil
}

// ServerStatus returns the status string reported by the API, "ok" when the
// service is healthy.
func (c *Client) ServerStatus(ctx context.Context) (string, error) {
	var res struct {
		Status string `json:"status"`
	}
	err := c.call(ctx, &request{
		op:         "td.system.status",
		method:     http.MethodGet,
		path:       "/v3/system/server_status",
		idempotent: true,
	}, &res)
	return res.Status, err
}

// Close releases the Client. Closing the Client returned by NewClient also
// closes the shared connection pool. Close is idempotent.
func (c *Client) Close() error {
	c.closed.Store(true)
	if c.owner {
		c.pool.close()
	}
	return nil
}

func (c *Client) checkOpen() error {
	if c.closed.Load() || c.pool.closed.Load() {
		return ErrClientClosed
	}
	return nil
}

func userAgent() string {
	return userAgentPrefix + "/" + version.Repo + " go/" + version.Go()
}
