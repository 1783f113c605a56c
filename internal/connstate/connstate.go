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

// Package connstate is the C5 connection state machine: per-connection
// read/parse/body/write/close lifecycle, timeouts, and keep-alive reset
// (spec.md §4.5).
package connstate

import (
	"time"

	"github.com/google/uuid"

	"github.com/nabbar/webserv/internal/httpmsg"
)

// State is one of the lifecycle states in spec.md §4.5.
type State uint8

const (
	ReadingHeaders State = iota
	ReadingBody
	Writing
	Closing
)

const (
	HeaderTimeout          = 15 * time.Second
	BodyTimeout            = 30 * time.Second
	KeepAliveIdleTimeout   = 5 * time.Second
)

// Connection owns one accepted socket descriptor and all per-client
// mutable state (spec.md §3, "Connection").
type Connection struct {
	ID uuid.UUID

	Fd int

	ReadBuf  []byte
	WriteBuf []byte
	WriteOff int

	State State
	Req   *httpmsg.Request

	EffectiveBodyCap int64

	LastActive         time.Time
	KeepAliveIdleStart time.Time
	RequestStart       time.Time

	ListenerKey string

	RemoteAddr string
}

// New returns a fresh Connection for an accepted fd.
func New(fd int, listenerKey, remoteAddr string, now time.Time) *Connection {
	return &Connection{
		ID:          uuid.New(),
		Fd:          fd,
		State:       ReadingHeaders,
		Req:         httpmsg.NewRequest(),
		ListenerKey: listenerKey,
		RemoteAddr:  remoteAddr,
		LastActive:  now,
	}
}

// MarkActive updates LastActive and clears the keep-alive idle clock (spec.md
// §4.5, "Any activity on the connection updates last_active and clears
// keepalive_idle_start").
func (c *Connection) MarkActive(now time.Time) {
	c.LastActive = now
	c.KeepAliveIdleStart = time.Time{}
}

// ResetForKeepAlive clears buffers and the parsed request, returning the
// connection to READING_HEADERS (spec.md §4.5, §8 property 6).
func (c *Connection) ResetForKeepAlive(now time.Time) {
	c.ReadBuf = nil
	c.WriteBuf = nil
	c.WriteOff = 0
	c.Req = httpmsg.NewRequest()
	c.State = ReadingHeaders
	c.KeepAliveIdleStart = now
}

// TimedOut reports whether the connection has exceeded the timeout bound
// for its current state, given the current tick time (spec.md §4.5,
// "Timeouts").
func (c *Connection) TimedOut(now time.Time) bool {
	if !c.KeepAliveIdleStart.IsZero() {
		return now.Sub(c.KeepAliveIdleStart) > KeepAliveIdleTimeout
	}

	switch c.State {
	case ReadingHeaders:
		return now.Sub(c.LastActive) > HeaderTimeout
	case ReadingBody:
		return now.Sub(c.LastActive) > BodyTimeout
	default:
		return false
	}
}

// PendingWrite returns the unsent tail of WriteBuf.
func (c *Connection) PendingWrite() []byte {
	if c.WriteOff >= len(c.WriteBuf) {
		return nil
	}
	return c.WriteBuf[c.WriteOff:]
}

// Advance records n more bytes as sent.
func (c *Connection) Advance(n int) {
	c.WriteOff += n
}

// WriteComplete reports whether the entire write buffer has been flushed.
func (c *Connection) WriteComplete() bool {
	return c.WriteOff >= len(c.WriteBuf)
}
