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
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/treasure-data/td-client-go/internal/optional"
)

const (
	// EnvAPIKey names the environment variable holding the API key.
	EnvAPIKey = "TD_API_KEY"
	// EnvConfigFile names the environment variable that overrides the
	// location of the local config file.
	EnvConfigFile = "TD_CONFIG_FILE"

	// DefaultEndpoint is the API host used when no endpoint is configured.
	DefaultEndpoint = "api.treasuredata.com"
)

// Config is the resolved client configuration. Obtain one from
// Builder.Build; a Config is a plain value and is copied into every Client.
type Config struct {
	Endpoint string
	Port     int
	UseSSL   bool

	APIKey   string
	User     string
	Password string

	// Proxy is nil unless at least one proxy setting was supplied.
	Proxy *ProxyConfig

	// RetryLimit is the number of retries after the first attempt.
	RetryLimit           int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	ConnectTimeout     time.Duration
	IdleTimeout        time.Duration
	ConnectionPoolSize int
}

// ProxyConfig describes a forward HTTP proxy.
type ProxyConfig struct {
	Host     string
	Port     int
	UseSSL   bool
	User     string
	Password string
}

// URL returns the proxy URL, including credentials when a user is set.
func (p ProxyConfig) URL() *url.URL {
	scheme := "http"
	if p.UseSSL {
		scheme = "https"
	}
	u := &url.URL{Scheme: scheme, Host: p.Host}
	if p.Port > 0 {
		u.Host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u
}

// baseURL returns scheme://host:port for the API endpoint. An endpoint that
// already carries a scheme keeps it.
func (c Config) baseURL() string {
	host := c.Endpoint
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	if i := strings.Index(host, "://"); i >= 0 {
		scheme, host = host[:i], host[i+3:]
	}
	host = strings.TrimRight(host, "/")
	if c.Port > 0 {
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		host = net.JoinHostPort(host, strconv.Itoa(c.Port))
	}
	return scheme + "://" + host
}

// configLayer is one source of settings. A nil field is unset.
type configLayer struct {
	endpoint optional.String
	port     optional.Int
	useSSL   optional.Bool
	apiKey   optional.String
	user     optional.String
	password optional.String

	proxyHost     optional.String
	proxyPort     optional.Int
	proxyUseSSL   optional.Bool
	proxyUser     optional.String
	proxyPassword optional.String

	retryLimit      optional.Int
	retryInitial    optional.Duration
	retryMax        optional.Duration
	retryMultiplier optional.Float64
	connectTimeout  optional.Duration
	idleTimeout     optional.Duration
	poolSize        optional.Int
}

// mergeLayers keeps every field set in base and fills the rest from fallback.
func mergeLayers(base, fallback configLayer) configLayer {
	return configLayer{
		endpoint:        optional.First(base.endpoint, fallback.endpoint),
		port:            optional.First(base.port, fallback.port),
		useSSL:          optional.First(base.useSSL, fallback.useSSL),
		apiKey:          optional.First(base.apiKey, fallback.apiKey),
		user:            optional.First(base.user, fallback.user),
		password:        optional.First(base.password, fallback.password),
		proxyHost:       optional.First(base.proxyHost, fallback.proxyHost),
		proxyPort:       optional.First(base.proxyPort, fallback.proxyPort),
		proxyUseSSL:     optional.First(base.proxyUseSSL, fallback.proxyUseSSL),
		proxyUser:       optional.First(base.proxyUser, fallback.proxyUser),
		proxyPassword:   optional.First(base.proxyPassword, fallback.proxyPassword),
		retryLimit:      optional.First(base.retryLimit, fallback.retryLimit),
		retryInitial:    optional.First(base.retryInitial, fallback.retryInitial),
		retryMax:        optional.First(base.retryMax, fallback.retryMax),
		retryMultiplier: optional.First(base.retryMultiplier, fallback.retryMultiplier),
		connectTimeout:  optional.First(base.connectTimeout, fallback.connectTimeout),
		idleTimeout:     optional.First(base.idleTimeout, fallback.idleTimeout),
		poolSize:        optional.First(base.poolSize, fallback.poolSize),
	}
}

func defaultLayer() configLayer {
	return configLayer{
		endpoint:        DefaultEndpoint,
		useSSL:          true,
		retryLimit:      7,
		retryInitial:    500 * time.Millisecond,
		retryMax:        60 * time.Second,
		retryMultiplier: 2.0,
		connectTimeout:  15 * time.Second,
		idleTimeout:     60 * time.Second,
		poolSize:        64,
	}
}

func stringOr(v optional.String) string {
	if v == nil {
		return ""
	}
	return optional.ToString(v)
}

// resolve converts a fully merged layer into a Config.
func (l configLayer) resolve() Config {
	cfg := Config{
		Endpoint:             optional.ToString(l.endpoint),
		UseSSL:               optional.ToBool(l.useSSL),
		APIKey:               stringOr(l.apiKey),
		User:                 stringOr(l.user),
		Password:             stringOr(l.password),
		RetryLimit:           optional.ToInt(l.retryLimit),
		RetryInitialInterval: optional.ToDuration(l.retryInitial),
		RetryMaxInterval:     optional.ToDuration(l.retryMax),
		RetryMultiplier:      optional.ToFloat64(l.retryMultiplier),
		ConnectTimeout:       optional.ToDuration(l.connectTimeout),
		IdleTimeout:          optional.ToDuration(l.idleTimeout),
		ConnectionPoolSize:   optional.ToInt(l.poolSize),
	}
	if l.port != nil {
		cfg.Port = optional.ToInt(l.port)
	} else if cfg.UseSSL {
		cfg.Port = 443
	} else {
		cfg.Port = 80
	}
	if l.proxyHost != nil || l.proxyPort != nil || l.proxyUseSSL != nil || l.proxyUser != nil || l.proxyPassword != nil {
		p := &ProxyConfig{
			Host:     stringOr(l.proxyHost),
			User:     stringOr(l.proxyUser),
			Password: stringOr(l.proxyPassword),
		}
		if l.proxyPort != nil {
			p.Port = optional.ToInt(l.proxyPort)
		}
		if l.proxyUseSSL != nil {
			p.UseSSL = optional.ToBool(l.proxyUseSSL)
		}
		cfg.Proxy = p
	}
	return cfg
}

func (c Config) validate() error {
	const op = "td.config"
	for _, f := range []struct {
		name string
		v    int64
	}{
		{"port", int64(c.Port)},
		{"retry.limit", int64(c.RetryLimit)},
		{"retry.initial_interval_ms", int64(c.RetryInitialInterval)},
		{"retry.max_interval_ms", int64(c.RetryMaxInterval)},
		{"connect_timeout_ms", int64(c.ConnectTimeout)},
		{"idle_timeout_ms", int64(c.IdleTimeout)},
		{"connection_pool_size", int64(c.ConnectionPoolSize)},
	} {
		if f.v <= 0 {
			return validationError(op, f.name, "must be positive")
		}
	}
	if c.RetryMultiplier <= 1.0 {
		return validationError(op, "retry.multiplier", "must be greater than 1.0, got %v", c.RetryMultiplier)
	}
	if c.RetryMaxInterval < c.RetryInitialInterval {
		return validationError(op, "retry.max_interval_ms", "must not be less than retry.initial_interval_ms")
	}
	if c.Endpoint == "" {
		return validationError(op, "endpoint", "must not be empty")
	}
	if c.Proxy != nil && c.Proxy.Host == "" {
		return validationError(op, "proxy.host", "must be set when other proxy settings are given")
	}
	return nil
}

// Builder collects settings from explicit calls, the environment and the
// local config file. Explicit calls take precedence over the environment,
// which takes precedence over the file; a lower source never replaces a value
// supplied by a higher one.
type Builder struct {
	explicit   configLayer
	confPath   string
	noConfFile bool
	noEnv      bool
	lookupEnv  func(string) (string, bool)
}

// NewBuilder returns a Builder that reads TD_API_KEY and $HOME/.td/td.conf
// when Build is called.
func NewBuilder() *Builder {
	return &Builder{lookupEnv: os.LookupEnv}
}

func (b *Builder) SetEndpoint(endpoint string) *Builder {
	b.explicit.endpoint = endpoint
	return b
}

func (b *Builder) SetPort(port int) *Builder {
	b.explicit.port = port
	return b
}

func (b *Builder) SetUseSSL(useSSL bool) *Builder {
	b.explicit.useSSL = useSSL
	return b
}

func (b *Builder) SetAPIKey(apiKey string) *Builder {
	b.explicit.apiKey = apiKey
	return b
}

func (b *Builder) SetUser(user string) *Builder {
	b.explicit.user = user
	return b
}

func (b *Builder) SetPassword(password string) *Builder {
	b.explicit.password = password
	return b
}

func (b *Builder) SetRetryLimit(n int) *Builder {
	b.explicit.retryLimit = n
	return b
}

func (b *Builder) SetConnectionPoolSize(n int) *Builder {
	b.explicit.poolSize = n
	return b
}

func (b *Builder) SetRetryInitialInterval(d time.Duration) *Builder {
	b.explicit.retryInitial = d
	return b
}

func (b *Builder) SetRetryMaxInterval(d time.Duration) *Builder {
	b.explicit.retryMax = d
	return b
}

func (b *Builder) SetRetryMultiplier(m float64) *Builder {
	b.explicit.retryMultiplier = m
	return b
}

func (b *Builder) SetConnectTimeout(d time.Duration) *Builder {
	b.explicit.connectTimeout = d
	return b
}

func (b *Builder) SetIdleTimeout(d time.Duration) *Builder {
	b.explicit.idleTimeout = d
	return b
}

// SetProxy sets every proxy field at once.
func (b *Builder) SetProxy(p ProxyConfig) *Builder {
	b.explicit.proxyHost = p.Host
	b.explicit.proxyPort = p.Port
	b.explicit.proxyUseSSL = p.UseSSL
	b.explicit.proxyUser = p.User
	b.explicit.proxyPassword = p.Password
	return b
}

// SetConfigFile reads settings from path instead of the default location. A
// missing file named here is an error.
func (b *Builder) SetConfigFile(path string) *Builder {
	b.confPath = path
	b.noConfFile = false
	return b
}

// WithoutConfigFile disables reading the local config file.
func (b *Builder) WithoutConfigFile() *Builder {
	b.noConfFile = true
	return b
}

// WithoutEnv disables reading the environment.
func (b *Builder) WithoutEnv() *Builder {
	b.noEnv = true
	return b
}

// Build merges all sources and validates the result.
func (b *Builder) Build() (Config, error) {
	layer := b.explicit
	if !b.noEnv {
		layer = mergeLayers(layer, b.envLayer())
	}
	if !b.noConfFile {
		fl, err := b.fileLayer()
		if err != nil {
			return Config{}, err
		}
		layer = mergeLayers(layer, fl)
	}
	cfg := mergeLayers(layer, defaultLayer()).resolve()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (b *Builder) getenv(key string) (string, bool) {
	if b.noEnv || b.lookupEnv == nil {
		return "", false
	}
	return b.lookupEnv(key)
}

func (b *Builder) envLayer() configLayer {
	var l configLayer
	if v, ok := b.getenv(EnvAPIKey); ok && v != "" {
		l.apiKey = v
	}
	return l
}

func (b *Builder) fileLayer() (configLayer, error) {
	path, explicit := b.confPath, b.confPath != ""
	if !explicit {
		if v, ok := b.getenv(EnvConfigFile); ok && v != "" {
			path, explicit = v, true
		} else {
			path = defaultConfPath()
		}
	}
	if path == "" {
		return configLayer{}, nil
	}
	props, err := readConfFile(path)
	if os.IsNotExist(err) && !explicit {
		return configLayer{}, nil
	}
	if err != nil {
		return configLayer{}, fmt.Errorf("td: reading config file %s: %w", path, err)
	}
	return layerFromProperties(props)
}
