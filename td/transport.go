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
	"net"
	"net/http"
	"sync/atomic"

	"golang.org/x/oauth2"
)

// tokenTypeTD1 is the Authorization scheme for API keys.
const tokenTypeTD1 = "TD1"

// connPool owns the pooled transport shared by a Client and every Client
// derived from it. Only the originating Client closes it.
type connPool struct {
	base   http.RoundTripper
	closed atomic.Bool
}

func newConnPool(cfg Config, rt http.RoundTripper) *connPool {
	if rt == nil {
		rt = newHTTPTransport(cfg)
	}
	return &connPool{base: rt}
}

func newHTTPTransport(cfg Config) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: cfg.IdleTimeout,
	}
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        cfg.ConnectionPoolSize,
		MaxIdleConnsPerHost: cfg.ConnectionPoolSize,
		MaxConnsPerHost:     cfg.ConnectionPoolSize,
		IdleConnTimeout:     cfg.IdleTimeout,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
	}
	if cfg.Proxy != nil {
		t.Proxy = http.ProxyURL(cfg.Proxy.URL())
	}
	return t
}

func (p *connPool) close() {
	if p.closed.Swap(true) {
		return
	}
	if ci, ok := p.base.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
}

// httpClient returns an *http.Client that authenticates with apiKey over the
// shared transport. An empty key sends unauthenticated requests.
func (p *connPool) httpClient(apiKey string) *http.Client {
	if apiKey == "" {
		return &http.Client{Transport: p.base}
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: apiKey,
				TokenType:   tokenTypeTD1,
			}),
			Base: p.base,
		},
	}
}
