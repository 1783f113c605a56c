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

// Package httpmsg holds the wire-level request representation shared by the
// parser (internal/httpparse), the body reader (internal/bodyread), and the
// dispatcher (internal/dispatch).
package httpmsg

// BodyMode classifies how a request's body is framed (spec.md §4.3).
type BodyMode uint8

const (
	BodyNone BodyMode = iota
	BodyContentLength
	BodyChunked
)

// ChunkedState is the chunked-decoder sub-state (spec.md §4.4).
type ChunkedState uint8

const (
	ChunkSize ChunkedState = iota
	ChunkData
	ChunkDataCRLF
	ChunkTrailers
	ChunkDone
)

// Request is a progressively populated HTTP request.
type Request struct {
	Method  string
	Target  string // raw request-target
	Path    string
	Query   string
	Version string // "HTTP/1.0" or "HTTP/1.1"
	Host    string

	// Headers are case-folded (lowercase) keys; duplicate values are
	// coalesced with ", ".
	Headers map[string]string

	KeepAlive     bool
	ContentLength int64
	HasTE         bool // Transfer-Encoding present (always "chunked" once accepted)

	Body []byte

	Mode BodyMode

	// Chunked decode state.
	ChunkState     ChunkedState
	ChunkRemaining int64
}

// NewRequest returns a fresh, empty request, matching the value a Connection
// resets to on keep-alive reuse (spec.md §3, "Invariants").
func NewRequest() *Request {
	return &Request{Headers: make(map[string]string)}
}

// Header returns the case-folded header value and whether it was present.
func (r *Request) Header(key string) (string, bool) {
	v, ok := r.Headers[key]
	return v, ok
}

// Equal reports whether r and o represent the same parsed request. The
// chunked-decoder state (ChunkState, ChunkRemaining) is not compared.
func (r *Request) Equal(o *Request) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.Method != o.Method || r.Target != o.Target || r.Path != o.Path ||
		r.Query != o.Query || r.Version != o.Version || r.Host != o.Host ||
		r.KeepAlive != o.KeepAlive || r.ContentLength != o.ContentLength ||
		r.HasTE != o.HasTE || r.Mode != o.Mode || string(r.Body) != string(o.Body) {
		return false
	}
	if len(r.Headers) != len(o.Headers) {
		return false
	}
	for k, v := range r.Headers {
		if ov, ok := o.Headers[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
