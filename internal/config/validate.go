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

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/nabbar/webserv/internal/conf"
	liberr "github.com/nabbar/webserv/internal/errors"
)

// Validate runs go-playground/validator struct-tag validation over every
// decoded Server and its Locations, aggregating every failure onto one
// Error rather than stopping at the first (mirrors httpserver/config.go's
// PoolServerConfig.Validate fan-in).
func Validate(servers []conf.Server) liberr.Error {
	val := validator.New()
	out := ErrorValidate.Error(nil)

	for i, srv := range servers {
		if err := val.Struct(srv); err != nil {
			addValidationErrors(out, i, -1, err)
		}
		for j, loc := range srv.Locations {
			if err := val.Struct(loc); err != nil {
				addValidationErrors(out, i, j, err)
			}
		}
	}

	if !out.HasParent() {
		return nil
	}
	return out
}

func addValidationErrors(out liberr.Error, serverIdx, locationIdx int, err error) {
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			if locationIdx >= 0 {
				out.AddParentError(fmt.Errorf("server[%d].location[%d]: field %q fails %q", serverIdx, locationIdx, fe.Field(), fe.ActualTag()))
			} else {
				out.AddParentError(fmt.Errorf("server[%d]: field %q fails %q", serverIdx, fe.Field(), fe.ActualTag()))
			}
		}
		return
	}
	out.AddParentError(err)
}
