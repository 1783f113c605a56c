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

// Package statichandler is the C7 component: static file serving, directory
// listings, simple uploads, and deletes (spec.md §4.7).
package statichandler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nabbar/webserv/internal/dispatch"
	"github.com/nabbar/webserv/internal/mimetype"
	"github.com/nabbar/webserv/internal/respond"
)

// ServeStatic reads fsPath fully and builds a 200 response, or the mapped
// error status on failure (spec.md §4.7, "Static GET/HEAD").
func ServeStatic(fsPath string, keepAlive bool) *respond.Response {
	f, err := os.Open(fsPath)
	if err != nil {
		if os.IsPermission(err) {
			return respond.New(403, "text/plain", nil, keepAlive)
		}
		return respond.New(404, "text/plain", nil, keepAlive)
	}
	defer f.Close()

	data, err := os.ReadFile(fsPath)
	if err != nil {
		return respond.New(500, "text/plain", nil, keepAlive)
	}

	return respond.New(200, mimetype.ForPath(fsPath), data, keepAlive)
}

// Delete removes fsPath (spec.md §4.7, "DELETE").
func Delete(fsPath string, keepAlive bool) *respond.Response {
	err := os.Remove(fsPath)
	if err == nil {
		return respond.New(204, "text/plain", nil, keepAlive)
	}
	if os.IsNotExist(err) {
		return respond.New(404, "text/plain", nil, keepAlive)
	}
	if os.IsPermission(err) {
		return respond.New(403, "text/plain", nil, keepAlive)
	}
	return respond.New(500, "text/plain", nil, keepAlive)
}

// ServeDirectory tries each index candidate as a static file, falling back
// to an autoindex listing, and finally 404 (spec.md §4.7, "DIRECTORY").
func ServeDirectory(fsDir string, ec dispatch.EffectiveConfig, keepAlive bool) *respond.Response {
	for _, candidate := range ec.Index {
		p := filepath.Join(fsDir, candidate)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return ServeStatic(p, keepAlive)
		}
	}

	if !ec.Autoindex {
		return respond.New(404, "text/plain", nil, keepAlive)
	}

	entries, err := os.ReadDir(fsDir)
	if err != nil {
		if os.IsPermission(err) {
			return respond.New(403, "text/plain", nil, keepAlive)
		}
		return respond.New(500, "text/plain", nil, keepAlive)
	}

	return respond.New(200, "text/html", renderAutoindex(fsDir, entries), keepAlive)
}

func renderAutoindex(dir string, entries []os.DirEntry) []byte {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if name == "." || name == ".." || strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>Index of ")
	b.WriteString(htmlEscape(dir))
	b.WriteString("</title></head><body><h1>Index of ")
	b.WriteString(htmlEscape(dir))
	b.WriteString("</h1><ul>")
	for _, n := range names {
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, htmlEscape(n), htmlEscape(n))
	}
	b.WriteString("</ul></body></html>")
	return []byte(b.String())
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;", "'", "&#39;")
	return r.Replace(s)
}

const forbiddenFilenameChars = "/\\:*?\"<>|"

// UploadFilename derives and validates the target filename from the last
// segment of the request path (spec.md §4.7, "UPLOAD").
func UploadFilename(reqPath string) (string, bool) {
	idx := strings.LastIndexByte(reqPath, '/')
	name := reqPath[idx+1:]

	if name == "" || name == "." || name == ".." {
		return "", false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 {
			return "", false
		}
	}
	if strings.ContainsAny(name, forbiddenFilenameChars) {
		return "", false
	}
	return name, true
}

// isMultipartFormData reports whether contentType names the multipart/
// form-data media type, ignoring any boundary/charset parameters.
func isMultipartFormData(contentType string) bool {
	media := contentType
	if idx := strings.IndexByte(media, ';'); idx >= 0 {
		media = media[:idx]
	}
	return strings.EqualFold(strings.TrimSpace(media), "multipart/form-data")
}

// Upload writes body to storeDir/filename, atomically enough that a write
// failure removes the partial file (spec.md §4.7, "UPLOAD"). Requests whose
// Content-Type is multipart/form-data are explicitly rejected with 501
// (spec.md §1, §7): this handler only understands a raw request body as the
// file payload, not multipart encoding.
func Upload(storeDir, filename, contentType string, body []byte, requestTarget string, keepAlive bool) *respond.Response {
	if isMultipartFormData(contentType) {
		return respond.New(501, "text/plain", nil, keepAlive)
	}

	info, err := os.Stat(storeDir)
	if err != nil || !info.IsDir() {
		return respond.New(500, "text/plain", nil, keepAlive)
	}

	target := filepath.Join(storeDir, filename)
	if st, err := os.Stat(target); err == nil {
		if st.IsDir() {
			return respond.New(403, "text/plain", nil, keepAlive)
		}
		return respond.New(409, "text/plain", nil, keepAlive)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsPermission(err) {
			return respond.New(403, "text/plain", nil, keepAlive)
		}
		return respond.New(500, "text/plain", nil, keepAlive)
	}

	if _, err := f.Write(body); err != nil {
		f.Close()
		_ = os.Remove(target)
		return respond.New(500, "text/plain", nil, keepAlive)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(target)
		return respond.New(500, "text/plain", nil, keepAlive)
	}

	r := respond.New(201, "text/plain", nil, keepAlive)
	r.Headers["Location"] = requestTarget
	return r
}
