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

// Package httpparse is the C3 request parser: incremental head extraction,
// request-line validation, header coalescing, and body-mode classification
// (spec.md §4.3).
package httpparse

import (
	"strconv"
	"strings"

	"github.com/nabbar/webserv/internal/httpmsg"
)

// MaxHeadBytes is the 16 KiB cap on buffered bytes before the header
// terminator must have been found (spec.md §3 invariants, §8 boundary).
const MaxHeadBytes = 16 * 1024

// ParseError carries the HTTP status a malformed request maps to.
type ParseError = httpmsg.StatusError

func newErr(status int, reason string, forceClose bool) *ParseError {
	return httpmsg.NewStatusError(status, reason, forceClose)
}

const crlfcrlf = "\r\n\r\n"

// ExtractHead strips leading empty heads (repeated CRLFCRLF) and locates the
// first header terminator. It returns the head (without the terminator),
// the number of bytes consumed from buf (including the terminator and any
// stripped empty heads), and whether a complete head was found.
//
// If MaxHeadBytes is exceeded without finding a terminator, err is a 431.
func ExtractHead(buf []byte) (head []byte, consumed int, ok bool, err *ParseError) {
	start := 0
	for strings.HasPrefix(string(buf[start:]), crlfcrlf) {
		start += len(crlfcrlf)
	}

	rest := buf[start:]
	idx := strings.Index(string(rest), crlfcrlf)
	if idx < 0 {
		if len(buf) > MaxHeadBytes {
			return nil, 0, false, newErr(431, "Request Header Fields Too Large", true)
		}
		return nil, 0, false, nil
	}

	head = rest[:idx]
	consumed = start + idx + len(crlfcrlf)
	return head, consumed, true, nil
}

var tcharAllowed = func(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	switch b {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

func isTChar(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !tcharAllowed(s[i]) {
			return false
		}
	}
	return true
}

// ParseHead parses a complete header block (request-line + headers, no
// terminator) into a Request. It does not read any body bytes.
func ParseHead(head []byte) (*httpmsg.Request, *ParseError) {
	lines := splitCRLFLines(string(head))
	if len(lines) == 0 || lines[0] == "" {
		return nil, newErr(400, "Bad Request", true)
	}

	req := httpmsg.NewRequest()
	if err := parseRequestLine(lines[0], req); err != nil {
		return nil, err
	}

	if err := parseHeaders(lines[1:], req); err != nil {
		return nil, err
	}

	if err := applyHostRule(req); err != nil {
		return nil, err
	}
	applyConnectionRule(req)

	if err := applyContentLengthRule(req); err != nil {
		return nil, err
	}
	if err := applyTransferEncodingRule(req); err != nil {
		return nil, err
	}

	selectBodyMode(req)
	return req, nil
}

func splitCRLFLines(s string) []string {
	return strings.Split(s, "\r\n")
}

func parseRequestLine(line string, req *httpmsg.Request) *ParseError {
	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == '\t' })
	if len(fields) != 3 {
		return newErr(400, "Bad Request", true)
	}

	method, target, version := fields[0], fields[1], fields[2]

	if !isTChar(method) {
		return newErr(400, "Bad Request", true)
	}
	for i := 0; i < len(line); i++ {
		if line[i] < 0x20 && line[i] != '\t' {
			return newErr(400, "Bad Request", true)
		}
	}

	if target == "" {
		return newErr(400, "Bad Request", true)
	}
	if target == "*" && method != "OPTIONS" {
		return newErr(400, "Bad Request", true)
	}

	switch version {
	case "HTTP/1.0":
		req.Version = version
		req.KeepAlive = false
	case "HTTP/1.1":
		req.Version = version
		req.KeepAlive = true
	default:
		return newErr(505, "HTTP Version Not Supported", true)
	}

	req.Method = method
	req.Target = target

	path, query, perr := ParseTarget(method, target)
	if perr != nil {
		return perr
	}
	req.Path = path
	req.Query = query

	return nil
}

// ParseTarget derives (path, query) from a request-target per spec.md §4.6.
func ParseTarget(method, target string) (path, query string, err *ParseError) {
	if target == "*" {
		return "/", "", nil
	}

	t := target
	if strings.Contains(t, "://") {
		idx := strings.Index(t, "://")
		rest := t[idx+3:]
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			t = rest[slash:]
		} else {
			t = "/"
		}
	}

	if t == "" || t[0] != '/' {
		return "", "", newErr(400, "Bad Request", true)
	}

	if q := strings.IndexByte(t, '?'); q >= 0 {
		return t[:q], t[q+1:], nil
	}
	return t, "", nil
}

func parseHeaders(lines []string, req *httpmsg.Request) *ParseError {
	var lastKey string

	for _, line := range lines {
		if line == "" {
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			if lastKey == "" {
				return newErr(400, "Bad Request", true)
			}
			req.Headers[lastKey] = req.Headers[lastKey] + " " + strings.TrimSpace(line)
			continue
		}

		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			return newErr(400, "Bad Request", true)
		}

		key := line[:idx]
		if !isTChar(key) {
			return newErr(400, "Bad Request", true)
		}
		key = strings.ToLower(key)
		val := strings.TrimSpace(line[idx+1:])

		if existing, ok := req.Headers[key]; ok {
			req.Headers[key] = existing + ", " + val
		} else {
			req.Headers[key] = val
		}
		lastKey = key
	}

	return nil
}

func applyHostRule(req *httpmsg.Request) *ParseError {
	host, ok := req.Header("host")
	if !ok {
		if req.Version == "HTTP/1.1" {
			return newErr(400, "Bad Request", true)
		}
		return nil
	}

	if strings.Contains(host, ",") {
		parts := strings.Split(host, ",")
		first := strings.TrimSpace(parts[0])
		for _, p := range parts[1:] {
			if !strings.EqualFold(strings.TrimSpace(p), first) {
				return newErr(400, "Bad Request", true)
			}
		}
		host = first
	}

	req.Host = host
	return nil
}

func applyConnectionRule(req *httpmsg.Request) {
	conn, ok := req.Header("connection")
	if !ok {
		return
	}

	hasClose, hasKeepAlive := false, false
	for _, tok := range strings.Split(conn, ",") {
		switch strings.ToLower(strings.TrimSpace(tok)) {
		case "close":
			hasClose = true
		case "keep-alive":
			hasKeepAlive = true
		}
	}

	// close wins over keep-alive when both are present (spec.md §9 Open
	// Questions resolution).
	if hasClose {
		req.KeepAlive = false
	} else if hasKeepAlive {
		req.KeepAlive = true
	}
}

func applyContentLengthRule(req *httpmsg.Request) *ParseError {
	cl, ok := req.Header("content-length")
	if !ok {
		return nil
	}

	parts := strings.Split(cl, ",")
	first := strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		if strings.TrimSpace(p) != first {
			return newErr(400, "Bad Request", true)
		}
	}

	if first == "" {
		return newErr(400, "Bad Request", true)
	}
	for i := 0; i < len(first); i++ {
		if first[i] < '0' || first[i] > '9' {
			return newErr(400, "Bad Request", true)
		}
	}

	n, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return newErr(413, "Payload Too Large", true)
	}

	req.ContentLength = n
	return nil
}

func applyTransferEncodingRule(req *httpmsg.Request) *ParseError {
	te, ok := req.Header("transfer-encoding")
	if !ok {
		return nil
	}

	if _, hasCL := req.Header("content-length"); hasCL {
		return newErr(400, "Bad Request", true)
	}

	toks := strings.Split(te, ",")
	for _, tok := range toks {
		if strings.ToLower(strings.TrimSpace(tok)) != "chunked" {
			return newErr(501, "Not Implemented", true)
		}
	}

	req.HasTE = true
	return nil
}

func selectBodyMode(req *httpmsg.Request) {
	switch {
	case req.HasTE:
		req.Mode = httpmsg.BodyChunked
	case req.ContentLength > 0:
		req.Mode = httpmsg.BodyContentLength
	default:
		req.Mode = httpmsg.BodyNone
	}
}
