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

// Package errors provides a lightweight code-carrying error type shared by
// every webserv package, in place of ad-hoc fmt.Errorf call sites.
package errors

import (
	"fmt"
	"strconv"
)

// CodeError is a numeric error code, namespaced per package via the MinPkg*
// offsets below so that two packages never collide on the same code value.
type CodeError uint16

const (
	UnknownError CodeError = 0
	UnknownMessage         = "unknown error"
)

// Package offsets. Each package owns a 100-wide block starting at its
// constant and declares its own iota-based CodeError block on top of it.
const (
	MinPkgConfig     CodeError = 100
	MinPkgListenSet  CodeError = 200
	MinPkgPollReg    CodeError = 300
	MinPkgHTTPParse  CodeError = 400
	MinPkgBodyRead   CodeError = 500
	MinPkgConnState  CodeError = 600
	MinPkgDispatch   CodeError = 700
	MinPkgStatic     CodeError = 800
	MinPkgCGI        CodeError = 900
	MinPkgRespond    CodeError = 1000
	MinPkgEngine     CodeError = 1100
	MinAvailable     CodeError = 2000
)

var idMsgFct = make(map[CodeError]func(CodeError) string)

// RegisterIdFctMessage registers the message function for every code in the
// 100-wide block that owns code. Call once from each package's init().
func RegisterIdFctMessage(code CodeError, fct func(CodeError) string) {
	base := (code / 100) * 100
	idMsgFct[base] = fct
}

// ExistInMapMessage reports whether a message function is already registered
// for the block owning code.
func ExistInMapMessage(code CodeError) bool {
	base := (code / 100) * 100
	_, ok := idMsgFct[base]
	return ok
}

func (c CodeError) Uint16() uint16 { return uint16(c) }
func (c CodeError) Int() int       { return int(c) }
func (c CodeError) String() string { return strconv.Itoa(c.Int()) }

// Message returns the registered human-readable text for c, or UnknownMessage.
func (c CodeError) Message() string {
	if c == UnknownError {
		return UnknownMessage
	}

	base := (c / 100) * 100
	if f, ok := idMsgFct[base]; ok {
		if m := f(c); m != "" {
			return m
		}
	}

	return UnknownMessage
}

// Error wraps c and an optional chain of parent errors into an Error value.
func (c CodeError) Error(parent error) Error {
	e := &errCode{code: c}
	if parent != nil {
		e.parents = append(e.parents, parent)
	}
	return e
}

// Error is the interface every webserv error satisfies.
type Error interface {
	error
	Code() CodeError
	IsCode(c CodeError) bool
	HasParent() bool
	AddParentError(err ...error)
	Unwrap() error
}

type errCode struct {
	code    CodeError
	parents []error
}

func (e *errCode) Code() CodeError      { return e.code }
func (e *errCode) IsCode(c CodeError) bool { return e.code == c }
func (e *errCode) HasParent() bool      { return len(e.parents) > 0 }

func (e *errCode) AddParentError(err ...error) {
	for _, p := range err {
		if p != nil {
			e.parents = append(e.parents, p)
		}
	}
}

func (e *errCode) Unwrap() error {
	if len(e.parents) == 0 {
		return nil
	}
	return e.parents[0]
}

func (e *errCode) Error() string {
	msg := e.code.Message()
	if len(e.parents) == 0 {
		return fmt.Sprintf("[%d] %s", e.code.Int(), msg)
	}

	s := fmt.Sprintf("[%d] %s", e.code.Int(), msg)
	for _, p := range e.parents {
		s += ": " + p.Error()
	}
	return s
}
