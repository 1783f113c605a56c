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

// Package respond is the C9 response builder: status line, standard
// headers, custom/fallback error pages, redirects, and connection handling
// (spec.md §4.9).
package respond

import (
	"bytes"
	"fmt"
	"net/http"
	"net/textproto"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

// Response is a fully built response awaiting serialisation.
type Response struct {
	Status    int
	Reason    string
	Headers   map[string]string
	Body      []byte
	KeepAlive bool
}

var reasonPhrases = map[int]string{
	200: "OK", 201: "Created", 204: "No Content",
	301: "Moved Permanently", 302: "Found", 303: "See Other", 307: "Temporary Redirect", 308: "Permanent Redirect",
	400: "Bad Request", 403: "Forbidden", 404: "Not Found", 405: "Method Not Allowed",
	409: "Conflict", 411: "Length Required", 413: "Payload Too Large", 414: "URI Too Long",
	431: "Request Header Fields Too Large", 500: "Internal Server Error",
	501: "Not Implemented", 502: "Bad Gateway", 504: "Gateway Timeout", 505: "HTTP Version Not Supported",
}

// ReasonFor returns the standard reason phrase for status, or "Unknown".
func ReasonFor(status int) string {
	if r, ok := reasonPhrases[status]; ok {
		return r
	}
	return "Unknown"
}

// New builds a Response with the standard headers the core always sets
// (spec.md §6: "Responses always include Server, Date, Content-Length,
// Content-Type, and a Connection header").
func New(status int, contentType string, body []byte, keepAlive bool) *Response {
	return &Response{
		Status:    status,
		Reason:    ReasonFor(status),
		Headers:   map[string]string{"Content-Type": contentType},
		Body:      body,
		KeepAlive: keepAlive,
	}
}

// Redirect builds a 3xx response with a Location header and a minimal HTML
// body (spec.md §4.6, "Redirect short-circuit").
func Redirect(status int, target string, keepAlive bool) *Response {
	body := []byte(fmt.Sprintf(
		"<!DOCTYPE html><html><head><title>%d %s</title></head><body><h1>%d %s</h1><p>Redirecting to <a href=\"%s\">%s</a></p></body></html>",
		status, ReasonFor(status), status, ReasonFor(status), htmlEscape(target), htmlEscape(target)))
	r := New(status, "text/html", body, keepAlive)
	r.Headers["Location"] = target
	return r
}

// ErrorPageConfig is the minimal view of the effective config respond needs
// to resolve a custom error page.
type ErrorPageConfig struct {
	Root      string
	ErrorPage map[string]string
}

// Error builds an error Response: a custom error page when the effective
// config names one and it is readable, or a minimal fallback page
// otherwise (spec.md §4.9, "Error responses").
func Error(status int, cfg ErrorPageConfig, keepAlive bool, forceClose bool) *Response {
	if keepAlive && forceClose {
		keepAlive = false
	}

	if uri, ok := cfg.ErrorPage[strconv.Itoa(status)]; ok {
		if body, ok := readErrorPage(cfg.Root, uri); ok {
			return New(status, "text/html", body, keepAlive)
		}
	}

	return New(status, "text/html", fallbackErrorBody(status), keepAlive)
}

func readErrorPage(root, uri string) ([]byte, bool) {
	var fsPath string
	if strings.HasPrefix(uri, "/") {
		fsPath = path.Join(root, uri)
	} else {
		fsPath = uri
	}

	b, err := os.ReadFile(fsPath)
	if err != nil {
		return nil, false
	}
	return b, true
}

func fallbackErrorBody(status int) []byte {
	return []byte(fmt.Sprintf(
		"<!DOCTYPE html><html><head><title>%d %s</title></head><body><h1>%d %s</h1></body></html>",
		status, ReasonFor(status), status, ReasonFor(status)))
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;", "'", "&#39;")
	return r.Replace(s)
}

// Serialize renders resp as wire bytes: status line, Server, Date, the
// response's own headers, the Connection header, a blank line, and the
// body (spec.md §4.9, §6).
func Serialize(resp *Response, skipBody bool) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", resp.Status, resp.Reason)
	fmt.Fprintf(&buf, "Server: webserv\r\n")
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(http.TimeFormat))

	for k, v := range resp.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", textproto.CanonicalMIMEHeaderKey(k), v)
	}

	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(resp.Body))

	if resp.KeepAlive {
		buf.WriteString("Connection: keep-alive\r\n")
		buf.WriteString("Keep-Alive: timeout=5\r\n")
	} else {
		buf.WriteString("Connection: close\r\n")
	}

	buf.WriteString("\r\n")

	if !skipBody {
		buf.Write(resp.Body)
	}

	return buf.Bytes()
}
