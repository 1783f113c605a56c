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

// Package pollreg is the C2 poll registry: an epoll-backed set of watched
// descriptors with O(1) add/remove via swap-with-last, and a single blocking
// wait per tick (spec.md §4.2).
package pollreg

import (
	"time"

	liberr "github.com/nabbar/webserv/internal/errors"
	"golang.org/x/sys/unix"
)

const (
	ErrorEpollCreate liberr.CodeError = iota + liberr.MinPkgPollReg
	ErrorEpollCtl
	ErrorEpollWait
)

func init() {
	if !liberr.ExistInMapMessage(ErrorEpollCreate) {
		liberr.RegisterIdFctMessage(ErrorEpollCreate, getMessage)
	}
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorEpollCreate:
		return "cannot create epoll instance"
	case ErrorEpollCtl:
		return "cannot register descriptor with epoll"
	case ErrorEpollWait:
		return "epoll_wait failed"
	}
	return ""
}

// Interest is the event mask requested for a descriptor.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

func (i Interest) toEpollEvents() uint32 {
	var ev uint32
	if i&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if i&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Event is one readiness notification returned from Wait.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Err      bool
}

// Registry maps file descriptors to requested event interest. Tick is the
// fixed wait duration (250 ms per spec.md §4.2); Wait still returns
// (possibly empty) on tick expiry so housekeeping can run.
type Registry struct {
	epfd int
	tick time.Duration

	// slot maps fd -> index into fds/interest for O(1) removal.
	slot     map[int]int
	fds      []int
	interest []Interest
}

// New creates an epoll instance and a registry ticking every d.
func New(d time.Duration) (*Registry, liberr.Error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, ErrorEpollCreate.Error(err)
	}

	return &Registry{
		epfd: epfd,
		tick: d,
		slot: make(map[int]int),
	}, nil
}

// Add registers fd with the given interest. Registering an already-present
// fd is a no-op that returns nil, so a descriptor is never registered twice
// (spec.md §3 invariants).
func (r *Registry) Add(fd int, interest Interest) liberr.Error {
	if _, ok := r.slot[fd]; ok {
		return nil
	}

	ev := &unix.EpollEvent{Events: interest.toEpollEvents(), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return ErrorEpollCtl.Error(err)
	}

	r.slot[fd] = len(r.fds)
	r.fds = append(r.fds, fd)
	r.interest = append(r.interest, interest)
	return nil
}

// Modify changes the requested interest for an already-registered fd.
func (r *Registry) Modify(fd int, interest Interest) liberr.Error {
	idx, ok := r.slot[fd]
	if !ok {
		return nil
	}

	ev := &unix.EpollEvent{Events: interest.toEpollEvents(), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return ErrorEpollCtl.Error(err)
	}
	r.interest[idx] = interest
	return nil
}

// Remove unregisters fd, swapping the last slot into its place for O(1)
// removal. Removing an fd not present is a no-op.
func (r *Registry) Remove(fd int) liberr.Error {
	idx, ok := r.slot[fd]
	if !ok {
		return nil
	}

	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)

	last := len(r.fds) - 1
	if idx != last {
		r.fds[idx] = r.fds[last]
		r.interest[idx] = r.interest[last]
		r.slot[r.fds[idx]] = idx
	}

	r.fds = r.fds[:last]
	r.interest = r.interest[:last]
	delete(r.slot, fd)
	return nil
}

// Len reports how many descriptors are currently registered.
func (r *Registry) Len() int { return len(r.fds) }

// Wait blocks for up to one tick and returns the ready events. A zero-length
// result on tick expiry is not an error — callers use it to drive
// housekeeping (timeouts).
func (r *Registry) Wait() ([]Event, liberr.Error) {
	buf := make([]unix.EpollEvent, 64)

	n, err := unix.EpollWait(r.epfd, buf, int(r.tick/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, ErrorEpollWait.Error(err)
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := buf[i]
		out = append(out, Event{
			Fd:       int(e.Fd),
			Readable: e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
			Writable: e.Events&unix.EPOLLOUT != 0,
			Err:      e.Events&unix.EPOLLERR != 0,
		})
	}
	return out, nil
}

// Close releases the epoll instance.
func (r *Registry) Close() error {
	return unix.Close(r.epfd)
}
