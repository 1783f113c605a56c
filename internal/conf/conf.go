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

// Package conf holds the immutable configuration records the dispatcher
// consumes: Server and Location. Nothing in this package parses the
// nginx-style grammar — that lives in internal/config — it only models the
// already-decoded result.
package conf

// Location is one `location <prefix> { ... }` block merged onto its owning
// Server.
type Location struct {
	// Path is the location prefix, e.g. "/upload".
	Path string `mapstructure:"path" validate:"required"`

	// Directive holds the recognised directive set verbatim (root,
	// autoindex, index, methods, error_page, client_max_body_size,
	// upload_store, cgi_pass, cgi_timeout, cgi_allowed_methods, return).
	Directive map[string]string `mapstructure:"directive"`
}

// Server is one `server { ... }` block. Immutable after startup.
type Server struct {
	// Listen is the ordered list of listen specs: "host:port", ":port",
	// "port", or "*:port".
	Listen []string `mapstructure:"listen" validate:"required,min=1"`

	// Names is the ordered list of server_name values used for Host
	// matching.
	Names []string `mapstructure:"server_name"`

	// Locations is the ordered list of location blocks.
	Locations []Location `mapstructure:"location"`

	// Directive holds server-level directives, overridden per-location.
	Directive map[string]string `mapstructure:"directive"`

	// ErrorPage maps a status code string ("404") to a page path.
	ErrorPage map[string]string `mapstructure:"error_page"`
}

// Get returns a server-level directive and whether it was set.
func (s Server) Get(key string) (string, bool) {
	if s.Directive == nil {
		return "", false
	}
	v, ok := s.Directive[key]
	return v, ok
}

// Get returns a location-level directive and whether it was set.
func (l Location) Get(key string) (string, bool) {
	if l.Directive == nil {
		return "", false
	}
	v, ok := l.Directive[key]
	return v, ok
}
