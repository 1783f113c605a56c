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

// Package dispatch is the C6 request dispatcher: virtual-host and location
// selection, directive merge into an effective configuration, filesystem
// mapping with traversal protection, and request classification
// (spec.md §4.6).
package dispatch

import (
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/nabbar/webserv/internal/conf"
	"github.com/nabbar/webserv/internal/httpmsg"
)

// Class is the outcome of Classify.
type Class uint8

const (
	ClassStatic Class = iota
	ClassDirectory
	ClassUpload
	ClassCGI
	ClassNotFound
	ClassForbidden
)

// EffectiveConfig is the merged view of server- and location-level
// directives applicable to a single request (spec.md §4.6, "Effective
// configuration").
type EffectiveConfig struct {
	Root               string
	Autoindex          bool
	Index              []string
	Methods            []string
	ErrorPage          map[string]string
	ClientMaxBodySize  int64
	UploadStore        string
	CGIPass            map[string]string // ext -> interpreter path
	CGITimeoutSeconds  int
	CGIAllowedMethods  []string
	ReturnStatus       int
	ReturnTarget       string
}

// SelectVhost picks the server whose server_name list contains host, or the
// first server overall (spec.md §4.6, "Vhost selection").
func SelectVhost(servers []conf.Server, host string) *conf.Server {
	for i := range servers {
		for _, n := range servers[i].Names {
			if n == host {
				return &servers[i]
			}
		}
	}
	if len(servers) > 0 {
		return &servers[0]
	}
	return nil
}

// SelectLocation returns the longest-prefix location match for reqPath, or
// nil when none match (spec.md §4.6, "Location selection").
func SelectLocation(srv *conf.Server, reqPath string) *conf.Location {
	var best *conf.Location
	for i := range srv.Locations {
		loc := &srv.Locations[i]
		if !locationMatches(loc.Path, reqPath) {
			continue
		}
		if best == nil || len(loc.Path) > len(best.Path) {
			best = loc
		}
	}
	return best
}

func locationMatches(locPath, reqPath string) bool {
	if !strings.HasPrefix(reqPath, locPath) {
		return false
	}
	if len(reqPath) == len(locPath) {
		return true
	}
	// boundary: next byte after the prefix must be '/'
	return reqPath[len(locPath)] == '/'
}

// BuildEffective overlays location directives atop server directives
// (spec.md §4.6 table).
func BuildEffective(srv *conf.Server, loc *conf.Location) EffectiveConfig {
	get := func(key string) (string, bool) {
		if loc != nil {
			if v, ok := loc.Get(key); ok {
				return v, true
			}
		}
		return srv.Get(key)
	}

	ec := EffectiveConfig{
		Root:              ".",
		Methods:           []string{"GET", "POST"},
		ErrorPage:         map[string]string{},
		CGIPass:           map[string]string{},
		CGITimeoutSeconds: 30,
	}

	if v, ok := get("root"); ok && v != "" {
		ec.Root = v
	}
	if v, ok := get("autoindex"); ok {
		ec.Autoindex = strings.EqualFold(strings.TrimSpace(v), "on")
	}
	if v, ok := get("index"); ok {
		ec.Index = splitList(v)
	}
	if v, ok := get("methods"); ok {
		ec.Methods = splitMethods(v)
	}
	if v, ok := get("upload_store"); ok {
		ec.UploadStore = v
	}
	if v, ok := get("client_max_body_size"); ok {
		ec.ClientMaxBodySize = parseSize(v)
	}
	if v, ok := get("cgi_pass"); ok {
		if ext, interp, ok := splitTwo(v); ok {
			ec.CGIPass[ext] = interp
		}
	}
	if v, ok := get("cgi_timeout"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			ec.CGITimeoutSeconds = n
		}
	}
	if v, ok := get("cgi_allowed_methods"); ok {
		ec.CGIAllowedMethods = splitMethods(v)
	} else {
		ec.CGIAllowedMethods = ec.Methods
	}
	if v, ok := get("return"); ok {
		if status, target, ok := splitTwo(v); ok {
			if n, err := strconv.Atoi(status); err == nil && n >= 300 && n < 400 {
				ec.ReturnStatus = n
				ec.ReturnTarget = target
			}
		}
	}

	for code, p := range srv.ErrorPage {
		ec.ErrorPage[code] = p
	}
	if v, ok := get("error_page"); ok {
		fields := strings.Fields(v)
		if len(fields) >= 2 {
			uri := fields[len(fields)-1]
			for _, code := range fields[:len(fields)-1] {
				ec.ErrorPage[code] = uri
			}
		}
	}

	return ec
}

func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
	return fields
}

func splitMethods(v string) []string {
	out := splitList(v)
	for i := range out {
		out[i] = strings.ToUpper(out[i])
	}
	return out
}

func splitTwo(v string) (first, second string, ok bool) {
	fields := strings.Fields(v)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// parseSize parses an integer with an optional 1024-based K/M/G suffix.
func parseSize(v string) int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	mult := int64(1)
	suffix := v[len(v)-1]
	switch suffix {
	case 'k', 'K':
		mult = 1024
		v = v[:len(v)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		v = v[:len(v)-1]
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		v = v[:len(v)-1]
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n * mult
}

// MapFilesystemPath strips the matched location prefix from reqPath, joins
// with root, and canonicalises the result so it can never escape root
// (spec.md §4.6, "Filesystem mapping"; §8 property 3).
func MapFilesystemPath(loc *conf.Location, root, reqPath string) (string, bool) {
	stripped := reqPath
	if loc != nil {
		stripped = strings.TrimPrefix(reqPath, loc.Path)
	}
	if stripped == "" {
		stripped = "/"
	}

	// Joined lexically, without lexical cleaning: a plain os.PathSeparator
	// join so that ".." components arriving from the request survive to be
	// resolved against a root-seeded stack below, instead of being
	// collapsed (possibly above root) by path.Join/path.Clean first.
	raw := rootClean(root) + "/" + strings.TrimPrefix(stripped, "/")
	return canonicalize(root, raw)
}

func rootClean(root string) string {
	r := strings.TrimSuffix(root, "/")
	if r == "" {
		r = "/"
	}
	return r
}

// canonicalize resolves "." and ".." components of the raw (uncleaned)
// path p against a stack seeded from root's own components, rejecting any
// path whose stack would go above root (spec.md §8 property 3: "the
// canonicalisation never produces a result whose prefix is not root").
func canonicalize(root, p string) (string, bool) {
	rc := rootClean(root)
	rootParts := splitPath(rc)

	rest := strings.TrimPrefix(p, rc)
	rest = strings.TrimPrefix(rest, "/")

	stack := append([]string{}, rootParts...)
	for _, part := range strings.Split(rest, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) <= len(rootParts) {
				return "", false
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, part)
		}
	}

	rel := strings.Join(stack[len(rootParts):], "/")
	result := rc
	if rel != "" {
		result = strings.TrimSuffix(rc, "/") + "/" + rel
	}

	if !strings.HasPrefix(result, rc) {
		return "", false
	}
	return result, true
}

func splitPath(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}
	return out
}

// Classify determines how a request should be handled, given the method,
// effective config, and filesystem state at fsPath (spec.md §4.6,
// "Classification"). isCgiRequest (here, the CGI branch below) is checked
// only for POST, preserving the asymmetry flagged in spec.md §9: a GET
// against a CGI-mapped extension is served as a static file, not executed.
func Classify(method string, ec EffectiveConfig, fsPath string) Class {
	info, statErr := os.Stat(fsPath)

	cgiEligible := method == "POST" && isCGI(ec, fsPath)

	if method == "POST" && ec.UploadStore != "" && !cgiEligible {
		return ClassUpload
	}

	if statErr == nil {
		if info.Mode().IsRegular() {
			if cgiEligible {
				return ClassCGI
			}
			return ClassStatic
		}
		if info.IsDir() {
			return ClassDirectory
		}
		return ClassForbidden
	}

	if os.IsPermission(statErr) {
		return ClassForbidden
	}
	if os.IsNotExist(statErr) {
		return ClassNotFound
	}
	return ClassForbidden
}

func isCGI(ec EffectiveConfig, fsPath string) bool {
	ext := extOf(fsPath)
	if ext == "" {
		return false
	}
	_, ok := ec.CGIPass[ext]
	return ok
}

func extOf(p string) string {
	base := path.Base(p)
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 {
		return ""
	}
	return base[dot:]
}

// MethodAllowed reports whether method is implemented at all by the core
// and whether it is allowed by the effective configuration (spec.md §4.6,
// "Method gating").
func MethodAllowed(method string, ec EffectiveConfig) (implemented, allowed bool) {
	switch method {
	case "GET", "POST", "DELETE", "HEAD":
		implemented = true
	default:
		return false, false
	}

	for _, m := range ec.Methods {
		if m == method {
			return true, true
		}
	}
	return true, false
}

// CheckBodyPolicy applies spec.md §4.6 "Body policy".
func CheckBodyPolicy(req *httpmsg.Request, ec EffectiveConfig) *httpmsg.StatusError {
	if ec.ClientMaxBodySize > 0 && req.ContentLength > ec.ClientMaxBodySize {
		return httpmsg.NewStatusError(413, "Payload Too Large", true)
	}
	if req.HasTE {
		te, _ := req.Header("transfer-encoding")
		if !strings.EqualFold(strings.TrimSpace(lastToken(te)), "chunked") {
			return httpmsg.NewStatusError(501, "Not Implemented", false)
		}
	}
	return nil
}

func lastToken(v string) string {
	parts := strings.Split(v, ",")
	return parts[len(parts)-1]
}
