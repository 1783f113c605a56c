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

// Package engine wires listenset, pollreg, httpparse, bodyread, dispatch,
// statichandler, cgi, and respond into the single-threaded, readiness-driven
// event loop described in spec.md §4 and §5: one poll-wait per tick, all
// sockets non-blocking, housekeeping run after every tick.
package engine

import (
	"path"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/nabbar/webserv/internal/bodyread"
	"github.com/nabbar/webserv/internal/cgi"
	"github.com/nabbar/webserv/internal/conf"
	"github.com/nabbar/webserv/internal/connstate"
	"github.com/nabbar/webserv/internal/dispatch"
	liberr "github.com/nabbar/webserv/internal/errors"
	"github.com/nabbar/webserv/internal/httpmsg"
	"github.com/nabbar/webserv/internal/httpparse"
	"github.com/nabbar/webserv/internal/listenset"
	"github.com/nabbar/webserv/internal/logging"
	"github.com/nabbar/webserv/internal/metrics"
	"github.com/nabbar/webserv/internal/pollreg"
	"github.com/nabbar/webserv/internal/respond"
	"github.com/nabbar/webserv/internal/statichandler"
)

const (
	ErrorListen liberr.CodeError = iota + liberr.MinPkgEngine
	ErrorPoll
)

func init() {
	if !liberr.ExistInMapMessage(ErrorListen) {
		liberr.RegisterIdFctMessage(ErrorListen, getMessage)
	}
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorListen:
		return "cannot start listener set"
	case ErrorPoll:
		return "cannot start poll registry"
	}
	return ""
}

// DefaultTick is the event loop's poll-wait period (spec.md §4.2).
const DefaultTick = 250 * time.Millisecond

const readChunk = 64 * 1024

// Engine is the running server: one listener set, one poll registry, and
// the table of live connections it multiplexes.
type Engine struct {
	servers   []conf.Server
	listeners []*listenset.Listener
	listenFd  map[int]*listenset.Listener

	poll *pollreg.Registry

	conns map[int]*connstate.Connection

	log *logrus.Logger
	met *metrics.Collectors
}

// New opens every listener named by servers and creates the poll registry.
func New(servers []conf.Server, log *logrus.Logger, met *metrics.Collectors) (*Engine, liberr.Error) {
	if log == nil {
		log = logging.New(logging.Options{})
	}

	warn := func(err error) {
		log.WithError(err).Warn("listener failed to start")
	}

	listeners, err := listenset.Open(servers, warn)
	if err != nil {
		return nil, err
	}

	reg, err := pollreg.New(DefaultTick)
	if err != nil {
		listenset.Close(listeners)
		return nil, err
	}

	e := &Engine{
		servers:   servers,
		listeners: listeners,
		listenFd:  make(map[int]*listenset.Listener, len(listeners)),
		poll:      reg,
		conns:     make(map[int]*connstate.Connection),
		log:       log,
		met:       met,
	}

	for _, l := range listeners {
		e.listenFd[l.Fd] = l
		if aerr := reg.Add(l.Fd, pollreg.Readable); aerr != nil {
			return nil, aerr
		}
	}

	return e, nil
}

// Run drives the event loop until stop is closed.
func (e *Engine) Run(stop <-chan struct{}) liberr.Error {
	e.log.WithField("listeners", len(e.listeners)).Info("engine started")

	for {
		select {
		case <-stop:
			e.shutdown()
			return nil
		default:
		}

		tickStart := time.Now()
		events, err := e.poll.Wait()
		if err != nil {
			return err
		}

		for _, ev := range events {
			if l, ok := e.listenFd[ev.Fd]; ok {
				e.acceptAll(l)
				continue
			}

			conn, ok := e.conns[ev.Fd]
			if !ok {
				continue
			}

			if ev.Err {
				e.closeConn(conn)
				continue
			}
			if ev.Readable {
				e.handleReadable(conn)
			}
			if conn.State == connstate.Writing && ev.Writable {
				e.handleWritable(conn)
			}
		}

		e.runHousekeeping(time.Now())
		e.met.ObservePollTick(time.Since(tickStart).Seconds())
	}
}

func (e *Engine) shutdown() {
	for _, c := range e.conns {
		_ = unix.Close(c.Fd)
	}
	_ = e.poll.Close()
	listenset.Close(e.listeners)
	e.log.Info("engine stopped")
}

func (e *Engine) acceptAll(l *listenset.Listener) {
	for {
		fd, sa, err := unix.Accept(l.Fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			e.log.WithError(err).Warn("accept failed")
			return
		}

		_ = unix.SetNonblock(fd, true)

		remote := remoteAddrOf(sa)
		conn := connstate.New(fd, l.Key, remote, time.Now())
		conn.ReadBuf = make([]byte, 0, readChunk)
		e.conns[fd] = conn
		e.met.IncConnections()

		if aerr := e.poll.Add(fd, pollreg.Readable); aerr != nil {
			e.closeConn(conn)
			continue
		}

		logging.ForConnection(e.log, conn.ID.String(), remote).Debug("accepted connection")
	}
}

func remoteAddrOf(sa unix.Sockaddr) string {
	if v4, ok := sa.(*unix.SockaddrInet4); ok {
		a := v4.Addr
		return ip4String(a) + ":" + itoa(v4.Port)
	}
	return "unknown"
}

func ip4String(a [4]byte) string {
	return itoa(int(a[0])) + "." + itoa(int(a[1])) + "." + itoa(int(a[2])) + "." + itoa(int(a[3]))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (e *Engine) handleReadable(conn *connstate.Connection) {
	chunk := make([]byte, readChunk)
	n, err := unix.Read(conn.Fd, chunk)

	if n > 0 {
		conn.MarkActive(time.Now())
		conn.ReadBuf = append(conn.ReadBuf, chunk[:n]...)
		e.progress(conn)
	}

	if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
		e.closeConn(conn)
		return
	}
	if n == 0 && err == nil {
		e.closeConn(conn)
	}
}

// progress advances conn's state machine as far as the currently buffered
// bytes allow: parse the head once complete, then stream the body, then
// build and queue the response (spec.md §4.5, "READING_HEADERS"/
// "READING_BODY").
func (e *Engine) progress(conn *connstate.Connection) {
	for {
		switch conn.State {
		case connstate.ReadingHeaders:
			if !e.progressHeaders(conn) {
				return
			}
		case connstate.ReadingBody:
			if !e.progressBody(conn) {
				return
			}
		default:
			return
		}
	}
}

func (e *Engine) progressHeaders(conn *connstate.Connection) bool {
	head, consumed, ok, perr := httpparse.ExtractHead(conn.ReadBuf)
	if perr != nil {
		e.sendStatusAndMaybeClose(conn, perr)
		return false
	}
	if !ok {
		return false
	}

	conn.ReadBuf = conn.ReadBuf[consumed:]

	req, perr := httpparse.ParseHead(head)
	if perr != nil {
		e.sendStatusAndMaybeClose(conn, perr)
		return false
	}

	conn.Req = req
	conn.RequestStart = time.Now()

	srv := dispatch.SelectVhost(e.servers, req.Host)
	if srv == nil {
		e.sendStatusAndMaybeClose(conn, httpmsg.NewStatusError(500, "Internal Server Error", true))
		return false
	}
	loc := dispatch.SelectLocation(srv, req.Path)
	ec := dispatch.BuildEffective(srv, loc)
	conn.EffectiveBodyCap = ec.ClientMaxBodySize

	if implemented, allowed := dispatch.MethodAllowed(req.Method, ec); !implemented {
		e.sendError(conn, 501, srv, ec, req.KeepAlive, true)
		return false
	} else if !allowed {
		e.sendError(conn, 405, srv, ec, req.KeepAlive, false)
		return false
	}

	if berr := dispatch.CheckBodyPolicy(req, ec); berr != nil {
		e.sendStatusAndMaybeClose(conn, berr)
		return false
	}

	if req.Mode == httpmsg.BodyNone {
		e.finishRequest(conn, srv, loc, ec)
		return true
	}

	conn.State = connstate.ReadingBody
	return true
}

func (e *Engine) progressBody(conn *connstate.Connection) bool {
	req := conn.Req
	var consumed int
	var done bool
	var berr *httpmsg.StatusError

	switch req.Mode {
	case httpmsg.BodyContentLength:
		consumed, done, berr = bodyread.FeedContentLength(req, conn.ReadBuf, conn.EffectiveBodyCap)
	case httpmsg.BodyChunked:
		consumed, done, berr = bodyread.FeedChunked(req, conn.ReadBuf, conn.EffectiveBodyCap)
	default:
		done = true
	}

	conn.ReadBuf = conn.ReadBuf[consumed:]

	if berr != nil {
		e.sendStatusAndMaybeClose(conn, berr)
		return false
	}
	if !done {
		return false
	}

	srv := dispatch.SelectVhost(e.servers, req.Host)
	loc := dispatch.SelectLocation(srv, req.Path)
	ec := dispatch.BuildEffective(srv, loc)
	e.finishRequest(conn, srv, loc, ec)
	return false
}

// finishRequest classifies and handles the now-complete request, builds the
// wire response, and transitions the connection to WRITING.
func (e *Engine) finishRequest(conn *connstate.Connection, srv *conf.Server, loc *conf.Location, ec dispatch.EffectiveConfig) {
	req := conn.Req

	if ec.ReturnStatus != 0 {
		e.queueResponse(conn, respond.Redirect(ec.ReturnStatus, ec.ReturnTarget, req.KeepAlive))
		return
	}

	fsPath, ok := dispatch.MapFilesystemPath(loc, ec.Root, req.Path)
	if !ok {
		e.sendError(conn, 403, srv, ec, req.KeepAlive, false)
		return
	}

	class := dispatch.Classify(req.Method, ec, fsPath)

	var resp *respond.Response
	switch class {
	case dispatch.ClassCGI:
		resp = e.runCGI(conn, srv, loc, ec, fsPath)

	case dispatch.ClassUpload:
		filename, ok := statichandler.UploadFilename(req.Path)
		if !ok {
			resp = respond.New(400, "text/plain", nil, req.KeepAlive)
			break
		}
		ct, _ := req.Header("content-type")
		resp = statichandler.Upload(ec.UploadStore, filename, ct, req.Body, req.Target, req.KeepAlive)

	case dispatch.ClassDirectory:
		resp = statichandler.ServeDirectory(fsPath, ec, req.KeepAlive)

	case dispatch.ClassStatic:
		if req.Method == "DELETE" {
			resp = statichandler.Delete(fsPath, req.KeepAlive)
		} else {
			resp = statichandler.ServeStatic(fsPath, req.KeepAlive)
		}

	case dispatch.ClassForbidden:
		e.sendError(conn, 403, srv, ec, req.KeepAlive, false)
		return

	default:
		e.sendError(conn, 404, srv, ec, req.KeepAlive, false)
		return
	}

	e.queueResponse(conn, resp)
}

// runCGI maps the request onto a cgi.Request and runs the interpreter. The
// event loop itself stays single-threaded: the goroutine/timeout pairing
// inside cgi.Run bounds how long this call can block the tick, matching the
// configured cgi_timeout.
func (e *Engine) runCGI(conn *connstate.Connection, srv *conf.Server, loc *conf.Location, ec dispatch.EffectiveConfig, fsPath string) *respond.Response {
	req := conn.Req
	ext := extOf(fsPath)
	interpreter := ec.CGIPass[ext]

	if implemented := methodIn(req.Method, ec.CGIAllowedMethods); !implemented {
		return respond.New(405, "text/plain", nil, req.KeepAlive)
	}

	host := srv.Names
	serverName := req.Host
	if serverName == "" && len(host) > 0 {
		serverName = host[0]
	}

	scriptName := req.Path
	if loc != nil && loc.Path != "" {
		scriptName = loc.Path
	}
	r := cgi.Request{
		Interpreter:   interpreter,
		ScriptPath:    fsPath,
		Method:        req.Method,
		RequestURI:    req.Target,
		QueryString:   req.Query,
		ScriptName:    scriptName,
		PathInfo:      req.Path,
		DocumentRoot:  ec.Root,
		ServerProto:   req.Version,
		ServerName:    serverName,
		ServerPort:    listenPort(conn.ListenerKey),
		ContentLength: req.ContentLength,
		Headers:       req.Headers,
		Body:          req.Body,
		Timeout:       time.Duration(ec.CGITimeoutSeconds) * time.Second,
	}
	if ct, ok := req.Header("content-type"); ok {
		r.ContentType = ct
	}

	start := time.Now()
	raw, rerr := cgi.Run(r)
	e.met.ObserveCGI(time.Since(start).Seconds())

	if rerr != nil {
		if rerr.IsCode(cgi.ErrorTimeout) {
			return respond.New(504, "text/plain", nil, false)
		}
		if rerr.IsCode(cgi.ErrorExitStatus) {
			return respond.New(500, "text/plain", nil, false)
		}
		return respond.New(502, "text/plain", nil, false)
	}

	out, errResp := cgi.ParseOutput(raw)
	if errResp != nil {
		return errResp
	}

	resp := respond.New(out.Status, "", out.Body, req.KeepAlive)
	delete(resp.Headers, "Content-Type")
	for k, v := range out.Headers {
		resp.Headers[k] = v
	}
	if _, ok := resp.Headers["content-type"]; !ok {
		resp.Headers["Content-Type"] = "text/html"
	}
	return resp
}

func methodIn(method string, allowed []string) bool {
	for _, m := range allowed {
		if m == method {
			return true
		}
	}
	return false
}

func extOf(p string) string {
	base := path.Base(p)
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 {
		return ""
	}
	return base[dot:]
}

func listenPort(key string) string {
	idx := strings.LastIndexByte(key, ':')
	if idx < 0 {
		return ""
	}
	return key[idx+1:]
}

func (e *Engine) sendError(conn *connstate.Connection, status int, srv *conf.Server, ec dispatch.EffectiveConfig, keepAlive, forceClose bool) {
	cfg := respond.ErrorPageConfig{Root: ec.Root, ErrorPage: ec.ErrorPage}
	e.queueResponse(conn, respond.Error(status, cfg, keepAlive, forceClose))
}

// sendStatusAndMaybeClose builds a minimal error response directly from a
// parser/body-reader StatusError, which predates vhost/location selection.
func (e *Engine) sendStatusAndMaybeClose(conn *connstate.Connection, serr *httpmsg.StatusError) {
	keepAlive := conn.Req != nil && conn.Req.KeepAlive && !serr.ForceClose
	e.queueResponse(conn, respond.Error(serr.Status, respond.ErrorPageConfig{}, keepAlive, serr.ForceClose))
}

func (e *Engine) queueResponse(conn *connstate.Connection, resp *respond.Response) {
	skipBody := conn.Req != nil && conn.Req.Method == "HEAD"
	conn.WriteBuf = respond.Serialize(resp, skipBody)
	conn.WriteOff = 0
	conn.State = connstate.Writing
	conn.Req.KeepAlive = resp.KeepAlive

	e.met.ObserveRequest(resp.Status)
	e.logAccess(conn, resp)

	if merr := e.poll.Modify(conn.Fd, pollreg.Readable|pollreg.Writable); merr != nil {
		e.closeConn(conn)
		return
	}
	e.handleWritable(conn)
}

// logAccess emits one combined-log-format-inspired line per completed
// response (SPEC_FULL.md Supplemented Features §3).
func (e *Engine) logAccess(conn *connstate.Connection, resp *respond.Response) {
	var dur time.Duration
	if !conn.RequestStart.IsZero() {
		dur = time.Since(conn.RequestStart)
	}

	logging.ForConnection(e.log, conn.ID.String(), conn.RemoteAddr).WithFields(logrus.Fields{
		"method":   conn.Req.Method,
		"path":     conn.Req.Path,
		"status":   resp.Status,
		"bytes":    len(resp.Body),
		"duration": dur.String(),
	}).Info("request completed")
}

func (e *Engine) handleWritable(conn *connstate.Connection) {
	for !conn.WriteComplete() {
		n, err := unix.Write(conn.Fd, conn.PendingWrite())
		if n > 0 {
			conn.Advance(n)
			conn.MarkActive(time.Now())
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			e.closeConn(conn)
			return
		}
		if n == 0 {
			return
		}
	}

	if !conn.Req.KeepAlive {
		e.closeConn(conn)
		return
	}

	conn.ResetForKeepAlive(time.Now())
	_ = e.poll.Modify(conn.Fd, pollreg.Readable)
	if len(conn.ReadBuf) > 0 {
		e.progress(conn)
	}
}

func (e *Engine) runHousekeeping(now time.Time) {
	var timedOut []*connstate.Connection
	for _, conn := range e.conns {
		if conn.TimedOut(now) {
			timedOut = append(timedOut, conn)
		}
	}

	sort.Slice(timedOut, func(i, j int) bool { return timedOut[i].Fd < timedOut[j].Fd })
	for _, conn := range timedOut {
		e.closeConn(conn)
	}
}

func (e *Engine) closeConn(conn *connstate.Connection) {
	_ = e.poll.Remove(conn.Fd)
	_ = unix.Close(conn.Fd)
	delete(e.conns, conn.Fd)
	e.met.DecConnections()
}
