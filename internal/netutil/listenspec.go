/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package netutil normalises the listen-spec syntax described in spec.md §6:
// "host:port", ":port", "port" (all digits), or "*:port".
package netutil

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeListenSpec turns a raw listen directive value into a canonical
// "host:port" key, defaulting an absent or "*" host to "0.0.0.0". Two specs
// that normalise to the same key share one listener (spec.md §4.1).
func NormalizeListenSpec(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty listen spec")
	}

	host, port, err := splitHostPort(raw)
	if err != nil {
		return "", err
	}

	if host == "" || host == "*" {
		host = "0.0.0.0"
	}

	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("invalid port %q", port)
	}

	return fmt.Sprintf("%s:%d", host, p), nil
}

// splitHostPort accepts "host:port", ":port", "port", or "*:port".
func splitHostPort(raw string) (host, port string, err error) {
	if idx := strings.LastIndexByte(raw, ':'); idx >= 0 {
		return raw[:idx], raw[idx+1:], nil
	}

	// bare "port": must be all digits.
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", "", fmt.Errorf("invalid listen spec %q", raw)
		}
	}
	return "", raw, nil
}
