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

// Package cgi is the C8 launcher: a CGI/1.1 process spawn with pipe-fed
// stdin, timed non-blocking stdout collection, and the small output header
// parser (spec.md §4.8).
package cgi

import (
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	liberr "github.com/nabbar/webserv/internal/errors"
	"github.com/nabbar/webserv/internal/respond"
)

const (
	ErrorSpawn liberr.CodeError = iota + liberr.MinPkgCGI
	ErrorTimeout
	ErrorBadOutput
	ErrorExitStatus
)

func init() {
	if !liberr.ExistInMapMessage(ErrorSpawn) {
		liberr.RegisterIdFctMessage(ErrorSpawn, getMessage)
	}
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorSpawn:
		return "cannot spawn CGI process"
	case ErrorTimeout:
		return "CGI process timed out"
	case ErrorBadOutput:
		return "CGI output missing header terminator"
	case ErrorExitStatus:
		return "CGI process exited abnormally with no usable output"
	}
	return ""
}

// Request is everything the launcher needs to build the environment and
// run the interpreter (spec.md §4.8, "Environment").
type Request struct {
	Interpreter   string
	ScriptPath    string
	Method        string
	RequestURI    string
	QueryString   string
	ScriptName    string
	PathInfo      string
	DocumentRoot  string
	ServerProto   string
	ServerName    string
	ServerPort    string
	ContentLength int64
	ContentType   string
	Headers       map[string]string // already case-folded, as parsed
	Body          []byte
	Timeout       time.Duration
}

// BuildEnviron constructs the NAME=VALUE list described in spec.md §4.8.
func BuildEnviron(r Request) []string {
	env := []string{
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_SOFTWARE=webserv",
		"SERVER_PROTOCOL=" + r.ServerProto,
		"REQUEST_METHOD=" + r.Method,
		"REQUEST_URI=" + r.RequestURI,
		"QUERY_STRING=" + r.QueryString,
		"SCRIPT_NAME=" + r.ScriptName,
		"SCRIPT_FILENAME=" + r.ScriptPath,
		"PATH_TRANSLATED=" + r.ScriptPath,
		"PATH_INFO=" + r.PathInfo,
		"DOCUMENT_ROOT=" + r.DocumentRoot,
		"CONTENT_LENGTH=" + strconv.FormatInt(r.ContentLength, 10),
		"SERVER_PORT=" + r.ServerPort,
		"SERVER_NAME=" + r.ServerName,
		"REMOTE_ADDR=127.0.0.1",
		"REDIRECT_STATUS=200",
	}

	if r.ContentType != "" {
		env = append(env, "CONTENT_TYPE="+r.ContentType)
	}

	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := headerEnvName(k)
		if name == "" {
			continue
		}
		env = append(env, "HTTP_"+name+"="+r.Headers[k])
	}

	return env
}

func headerEnvName(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '-':
			b.WriteByte('_')
		default:
			return ""
		}
	}
	return b.String()
}

// Run spawns the interpreter against the script, feeds the body over
// stdin, and collects stdout with a bounded timeout (spec.md §4.8, "I/O
// protocol"). It returns the raw combined stdout bytes.
func Run(r Request) ([]byte, liberr.Error) {
	cmd := exec.Command(r.Interpreter, r.ScriptPath)
	cmd.Env = BuildEnviron(r)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, ErrorSpawn.Error(err)
	}
	stdoutR, err := cmd.StdoutPipe()
	if err != nil {
		return nil, ErrorSpawn.Error(err)
	}

	if err := cmd.Start(); err != nil {
		return nil, ErrorSpawn.Error(err)
	}

	writeDone := make(chan error, 1)
	go func() {
		if len(r.Body) > 0 {
			_, werr := stdin.Write(r.Body)
			writeDone <- werr
		} else {
			writeDone <- nil
		}
		_ = stdin.Close()
	}()

	type readResult struct {
		data []byte
		err  error
	}
	readDone := make(chan readResult, 1)
	go func() {
		buf := make([]byte, 0, 4096)
		chunk := make([]byte, 4096)
		for {
			n, rerr := stdoutR.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
			}
			if rerr != nil {
				readDone <- readResult{data: buf, err: nil}
				return
			}
		}
	}()

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case res := <-readDone:
		<-writeDone
		if waitErr := cmd.Wait(); waitErr != nil {
			if exitErr, ok := waitErr.(*exec.ExitError); ok {
				code := exitErr.ExitCode()
				if code < 0 || (code != 0 && len(res.data) == 0) {
					return nil, ErrorExitStatus.Error(waitErr)
				}
			} else {
				return nil, ErrorExitStatus.Error(waitErr)
			}
		}
		return res.data, nil

	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, ErrorTimeout.Error(nil)
	}
}

// Output is the decoded CGI response (spec.md §4.8, "Output parsing").
type Output struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

var managedHeaders = map[string]bool{
	"content-length":    true,
	"connection":        true,
	"transfer-encoding": true,
}

// ParseOutput splits raw on the first header terminator (CRLFCRLF, falling
// back to LFLF), decodes the header block, and applies the Status/Location
// defaulting rules.
func ParseOutput(raw []byte) (*Output, *respond.Response) {
	head, body, ok := splitHeaderTerminator(raw)
	if !ok {
		return nil, badGateway()
	}

	headers := map[string]string{}
	status := 0

	for _, line := range strings.Split(head, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		val := strings.TrimSpace(line[idx+1:])

		if name == "status" {
			status = parseStatusValue(val)
			continue
		}
		if managedHeaders[name] {
			continue
		}
		headers[name] = val
	}

	if status == 0 {
		if _, ok := headers["location"]; ok {
			status = 302
		} else {
			status = 200
		}
	}

	if _, hasCT := headers["content-type"]; !hasCT {
		if _, hasLoc := headers["location"]; !hasLoc {
			return nil, respond.New(500, "text/plain", nil, false)
		}
	}

	return &Output{Status: status, Headers: headers, Body: body}, nil
}

func parseStatusValue(v string) int {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return n
}

func splitHeaderTerminator(raw []byte) (head string, body []byte, ok bool) {
	s := string(raw)
	if idx := strings.Index(s, "\r\n\r\n"); idx >= 0 {
		return s[:idx], raw[idx+4:], true
	}
	if idx := strings.Index(s, "\n\n"); idx >= 0 {
		return s[:idx], raw[idx+2:], true
	}
	return "", nil, false
}

func badGateway() *respond.Response {
	return respond.New(502, "text/plain", nil, false)
}
