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
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// defaultConfPath returns $HOME/.td/td.conf, or "" if there is no home
// directory.
func defaultConfPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".td", "td.conf")
}

// readConfFile reads key = value pairs from a td.conf file. Section headers
// such as "[account]" are dropped.
func readConfFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseConf(data)
}

func parseConf(data []byte) (map[string]string, error) {
	var buf bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return godotenv.Unmarshal(buf.String())
}

// layerFromProperties converts td.conf properties into a config layer.
// Unknown keys are ignored.
func layerFromProperties(props map[string]string) (configLayer, error) {
	const op = "td.config"
	var l configLayer
	str := func(key string) (string, bool) {
		v, ok := props[key]
		return strings.TrimSpace(v), ok
	}
	intVal := func(key string) (interface{}, error) {
		v, ok := str(key)
		if !ok {
			return nil, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, validationError(op, key, "cannot parse %q as an integer", v)
		}
		return n, nil
	}
	msVal := func(key string) (interface{}, error) {
		n, err := intVal(key)
		if n == nil || err != nil {
			return nil, err
		}
		return time.Duration(n.(int)) * time.Millisecond, nil
	}
	boolVal := func(key string) (interface{}, error) {
		v, ok := str(key)
		if !ok {
			return nil, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, validationError(op, key, "cannot parse %q as a boolean", v)
		}
		return b, nil
	}

	if v, ok := str("endpoint"); ok {
		l.endpoint = v
	}
	if v, ok := str("apikey"); ok {
		l.apiKey = v
	} else if v, ok := str("api_key"); ok {
		l.apiKey = v
	}
	if v, ok := str("user"); ok {
		l.user = v
	}
	if v, ok := str("password"); ok {
		l.password = v
	}
	if v, ok := str("proxy.host"); ok {
		l.proxyHost = v
	}
	if v, ok := str("proxy.user"); ok {
		l.proxyUser = v
	}
	if v, ok := str("proxy.password"); ok {
		l.proxyPassword = v
	}

	var firstErr error
	parse := func(f func(string) (interface{}, error), key string) interface{} {
		v, err := f(key)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	}
	l.port = parse(intVal, "port")
	l.useSSL = parse(boolVal, "usessl")
	l.proxyPort = parse(intVal, "proxy.port")
	l.proxyUseSSL = parse(boolVal, "proxy.usessl")
	l.retryLimit = parse(intVal, "retry.limit")
	l.retryInitial = parse(msVal, "retry.initial_interval_ms")
	l.retryMax = parse(msVal, "retry.max_interval_ms")
	l.connectTimeout = parse(msVal, "connect_timeout_ms")
	l.idleTimeout = parse(msVal, "idle_timeout_ms")
	l.poolSize = parse(intVal, "connection_pool_size")
	if firstErr != nil {
		return configLayer{}, firstErr
	}
	if v, ok := str("retry.multiplier"); ok {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return configLayer{}, validationError(op, "retry.multiplier", "cannot parse %q as a number", v)
		}
		l.retryMultiplier = m
	}
	return l, nil
}
