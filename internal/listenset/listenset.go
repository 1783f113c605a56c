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

// Package listenset is the C1 listener set: it opens, binds, and listens on
// each unique normalised host:port, deduplicating aliases (spec.md §4.1).
package listenset

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"

	"github.com/nabbar/webserv/internal/conf"
	liberr "github.com/nabbar/webserv/internal/errors"
	"github.com/nabbar/webserv/internal/netutil"
)

const (
	ErrorNoListener liberr.CodeError = iota + liberr.MinPkgListenSet
	ErrorSocket
	ErrorBind
)

func init() {
	if !liberr.ExistInMapMessage(ErrorNoListener) {
		liberr.RegisterIdFctMessage(ErrorNoListener, getMessage)
	}
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorNoListener:
		return "no listener could be started"
	case ErrorSocket:
		return "cannot create listening socket"
	case ErrorBind:
		return "cannot bind/listen on socket"
	}
	return ""
}

// Listener is a bound, listening, non-blocking socket paired with the
// servers whose listen specs normalise to its key. Vhost selection in
// internal/dispatch does not consult this list.
type Listener struct {
	Key     string // normalised "host:port"
	Fd      int
	Servers []*conf.Server
}

// Open normalises every listen spec across servers, dedupes them, and opens
// one non-blocking listening socket per unique key. A spec that fails to
// normalise or to bind/listen is passed to warn and skipped; startup goes on.
// Only when every spec failed does Open return ErrorNoListener, carrying the
// aggregate of all those failures.
func Open(servers []conf.Server, warn func(err error)) ([]*Listener, liberr.Error) {
	byKey := make(map[string]*Listener)
	var order []string
	var errs *multierror.Error

	for i := range servers {
		srv := &servers[i]
		for _, raw := range srv.Listen {
			key, err := netutil.NormalizeListenSpec(raw)
			if err != nil {
				nerr := fmt.Errorf("listen %q: %w", raw, err)
				if warn != nil {
					warn(nerr)
				}
				errs = multierror.Append(errs, nerr)
				continue
			}

			l, ok := byKey[key]
			if !ok {
				l = &Listener{Key: key}
				byKey[key] = l
				order = append(order, key)
			}
			l.Servers = append(l.Servers, srv)
		}
	}

	var out []*Listener
	for _, key := range order {
		l := byKey[key]
		fd, err := bindAndListen(l.Key)
		if err != nil {
			if warn != nil {
				warn(err)
			}
			errs = multierror.Append(errs, err)
			continue
		}
		l.Fd = fd
		out = append(out, l)
	}

	if len(out) == 0 {
		e := ErrorNoListener.Error(nil)
		if errs != nil {
			e.AddParentError(errs)
		}
		return nil, e
	}

	return out, nil
}

func bindAndListen(hostport string) (int, error) {
	host, port, err := splitNormalized(hostport)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("setsockopt(SO_REUSEADDR): %w", err)
	}

	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("set nonblocking: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: port}
	copy(addr.Addr[:], host)

	if err = unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", hostport, err)
	}

	if err = unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listen %s: %w", hostport, err)
	}

	return fd, nil
}

// splitNormalized parses a normalised "a.b.c.d:port" key produced by
// netutil.NormalizeListenSpec into a 4-byte IPv4 address and numeric port.
func splitNormalized(hostport string) (ip [4]byte, port int, err error) {
	var h string
	var p int
	if _, err = fmt.Sscanf(hostport, "%s", &h); err != nil {
		return ip, 0, err
	}

	idx := lastColon(hostport)
	h = hostport[:idx]
	if _, err = fmt.Sscanf(hostport[idx+1:], "%d", &p); err != nil {
		return ip, 0, err
	}

	parsed, err := parseIPv4(h)
	if err != nil {
		return ip, 0, err
	}
	return parsed, p, nil
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

func parseIPv4(s string) ([4]byte, error) {
	var out [4]byte
	var parts [4]int
	n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &parts[0], &parts[1], &parts[2], &parts[3])
	if err != nil || n != 4 {
		return out, fmt.Errorf("invalid IPv4 address %q", s)
	}
	for i, p := range parts {
		if p < 0 || p > 255 {
			return out, fmt.Errorf("invalid IPv4 address %q", s)
		}
		out[i] = byte(p)
	}
	return out, nil
}

// Close closes every listening socket in ls.
func Close(ls []*Listener) {
	for _, l := range ls {
		_ = unix.Close(l.Fd)
	}
}
