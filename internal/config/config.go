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

// Package config turns the nginx-style grammar (spec.md §6: "server { ...
// location <prefix> { ... } }") into []conf.Server records: a small
// hand-written tokeniser and recursive-descent block parser, since the
// brace-delimited, positional grammar does not fit a viper key-space
// (viper is used instead for the ambient settings overlay in settings.go).
package config

import (
	"os"
	"strings"

	liberr "github.com/nabbar/webserv/internal/errors"

	"github.com/nabbar/webserv/internal/conf"
)

const (
	ErrorRead liberr.CodeError = iota + liberr.MinPkgConfig
	ErrorSyntax
	ErrorValidate
)

func init() {
	if !liberr.ExistInMapMessage(ErrorRead) {
		liberr.RegisterIdFctMessage(ErrorRead, getMessage)
	}
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorRead:
		return "cannot read configuration file"
	case ErrorSyntax:
		return "configuration syntax error"
	case ErrorValidate:
		return "configuration validation failed"
	}
	return ""
}

// Load reads path, tokenises and parses the nginx-style grammar, and
// validates every decoded Server (spec.md §6, "CLI and config").
func Load(path string) ([]conf.Server, liberr.Error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrorRead.Error(err)
	}

	toks, terr := tokenize(string(raw))
	if terr != nil {
		e := ErrorSyntax.Error(nil)
		e.AddParentError(terr)
		return nil, e
	}

	p := &parser{toks: toks}
	servers, perr := p.parseFile()
	if perr != nil {
		e := ErrorSyntax.Error(nil)
		e.AddParentError(perr)
		return nil, e
	}

	if verr := Validate(servers); verr != nil {
		return nil, verr
	}

	return servers, nil
}

type tokKind uint8

const (
	tokWord tokKind = iota
	tokLBrace
	tokRBrace
	tokSemi
	tokEOF
)

type token struct {
	kind tokKind
	text string
	line int
}

// tokenize splits raw into words, `{`, `}`, and `;`, dropping `#`-to-EOL
// comments. `;`/`{`/`}` are always their own token even when glued directly
// to a preceding word (e.g. "root ./www;").
func tokenize(raw string) ([]token, error) {
	var toks []token
	line := 1
	i := 0
	n := len(raw)

	flushWord := func(w *strings.Builder) {
		if w.Len() > 0 {
			toks = append(toks, token{kind: tokWord, text: w.String(), line: line})
			w.Reset()
		}
	}

	var word strings.Builder
	for i < n {
		c := raw[i]
		switch {
		case c == '\n':
			flushWord(&word)
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			flushWord(&word)
			i++
		case c == '#':
			flushWord(&word)
			for i < n && raw[i] != '\n' {
				i++
			}
		case c == '{':
			flushWord(&word)
			toks = append(toks, token{kind: tokLBrace, text: "{", line: line})
			i++
		case c == '}':
			flushWord(&word)
			toks = append(toks, token{kind: tokRBrace, text: "}", line: line})
			i++
		case c == ';':
			flushWord(&word)
			toks = append(toks, token{kind: tokSemi, text: ";", line: line})
			i++
		default:
			word.WriteByte(c)
			i++
		}
	}
	flushWord(&word)

	toks = append(toks, token{kind: tokEOF, line: line})
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseFile() ([]conf.Server, *syntaxError) {
	var servers []conf.Server

	for p.peek().kind != tokEOF {
		t := p.next()
		if t.kind != tokWord || t.text != "server" {
			return nil, &syntaxError{line: t.line, msg: "expected 'server' block at top level"}
		}

		if p.next().kind != tokLBrace {
			return nil, &syntaxError{line: t.line, msg: "expected '{' after 'server'"}
		}

		srv, err := p.parseServerBody()
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}

	return servers, nil
}

func (p *parser) parseServerBody() (conf.Server, *syntaxError) {
	srv := conf.Server{Directive: map[string]string{}, ErrorPage: map[string]string{}}

	for {
		t := p.peek()
		if t.kind == tokRBrace {
			p.next()
			return srv, nil
		}
		if t.kind != tokWord {
			return srv, &syntaxError{line: t.line, msg: "expected directive or '}'"}
		}

		name := p.next().text

		if name == "location" {
			locPathTok := p.next()
			if locPathTok.kind != tokWord {
				return srv, &syntaxError{line: locPathTok.line, msg: "expected location prefix"}
			}
			if p.next().kind != tokLBrace {
				return srv, &syntaxError{line: locPathTok.line, msg: "expected '{' after location prefix"}
			}
			loc, err := p.parseLocationBody(locPathTok.text)
			if err != nil {
				return srv, err
			}
			srv.Locations = append(srv.Locations, loc)
			continue
		}

		values, semiLine, err := p.parseDirectiveValues()
		if err != nil {
			return srv, err
		}

		switch name {
		case "listen":
			srv.Listen = append(srv.Listen, values...)
		case "server_name":
			srv.Names = append(srv.Names, values...)
		case "error_page":
			if len(values) < 2 {
				return srv, &syntaxError{line: semiLine, msg: "error_page requires at least one status and a uri"}
			}
			uri := values[len(values)-1]
			for _, code := range values[:len(values)-1] {
				srv.ErrorPage[code] = uri
			}
		default:
			srv.Directive[name] = strings.Join(values, " ")
		}
	}
}

func (p *parser) parseLocationBody(path string) (conf.Location, *syntaxError) {
	loc := conf.Location{Path: path, Directive: map[string]string{}}

	for {
		t := p.peek()
		if t.kind == tokRBrace {
			p.next()
			return loc, nil
		}
		if t.kind != tokWord {
			return loc, &syntaxError{line: t.line, msg: "expected directive or '}' inside location"}
		}

		name := p.next().text
		values, _, err := p.parseDirectiveValues()
		if err != nil {
			return loc, err
		}

		loc.Directive[name] = strings.Join(values, " ")
	}
}

// parseDirectiveValues reads words up to (and consuming) the terminating
// `;` (spec.md §9 Supplemented Features: missing `;` is always a parse
// error, regardless of how the original source's ambiguous check reads).
func (p *parser) parseDirectiveValues() (values []string, semiLine int, err *syntaxError) {
	for {
		t := p.peek()
		switch t.kind {
		case tokSemi:
			p.next()
			return values, t.line, nil
		case tokWord:
			values = append(values, p.next().text)
		default:
			return nil, 0, &syntaxError{line: t.line, msg: "expected ';' to terminate directive"}
		}
	}
}

type syntaxError struct {
	line int
	msg  string
}

func (e *syntaxError) Error() string {
	return e.msg + " (line " + itoa(e.line) + ")"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
