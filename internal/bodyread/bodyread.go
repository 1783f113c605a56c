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

// Package bodyread is the C4 body reader: streaming decoders for
// content-length and chunked bodies, both enforcing a byte cap (spec.md
// §4.4).
package bodyread

import (
	"strconv"
	"strings"

	"github.com/nabbar/webserv/internal/httpmsg"
)

func tooLarge() *httpmsg.StatusError {
	return httpmsg.NewStatusError(413, "Payload Too Large", true)
}

func badRequest() *httpmsg.StatusError {
	return httpmsg.NewStatusError(400, "Bad Request", true)
}

// FeedContentLength transfers up to min(len(buf), remaining) bytes from buf
// into req.Body. It returns the number of bytes consumed and whether the
// body is now complete.
func FeedContentLength(req *httpmsg.Request, buf []byte, cap int64) (consumed int, done bool, err *httpmsg.StatusError) {
	remaining := req.ContentLength - int64(len(req.Body))
	if remaining <= 0 {
		return 0, true, nil
	}

	n := int64(len(buf))
	if n > remaining {
		n = remaining
	}

	if cap > 0 && int64(len(req.Body))+n > cap {
		return 0, false, tooLarge()
	}

	req.Body = append(req.Body, buf[:n]...)
	done = int64(len(req.Body)) >= req.ContentLength
	return int(n), done, nil
}

// FeedChunked drives the chunked state machine (spec.md §4.4) over buf,
// consuming as many complete steps as are available and returning once it
// needs more input or has finished.
func FeedChunked(req *httpmsg.Request, buf []byte, cap int64) (consumed int, done bool, err *httpmsg.StatusError) {
	pos := 0

	for pos < len(buf) || req.ChunkState == httpmsg.ChunkData {
		switch req.ChunkState {
		case httpmsg.ChunkSize:
			idx := indexCRLF(buf[pos:])
			if idx < 0 {
				return pos, false, nil
			}
			line := string(buf[pos : pos+idx])
			pos += idx + 2

			if semi := strings.IndexByte(line, ';'); semi >= 0 {
				line = line[:semi]
			}
			line = strings.TrimSpace(line)

			size, perr := strconv.ParseInt(line, 16, 64)
			if perr != nil || size < 0 {
				return pos, false, badRequest()
			}

			if size == 0 {
				req.ChunkState = httpmsg.ChunkTrailers
			} else {
				req.ChunkRemaining = size
				req.ChunkState = httpmsg.ChunkData
			}

		case httpmsg.ChunkData:
			avail := len(buf) - pos
			n := int64(avail)
			if n > req.ChunkRemaining {
				n = req.ChunkRemaining
			}
			if n <= 0 {
				if req.ChunkRemaining == 0 {
					req.ChunkState = httpmsg.ChunkDataCRLF
					continue
				}
				return pos, false, nil
			}

			if cap > 0 && int64(len(req.Body))+n > cap {
				return pos, false, tooLarge()
			}

			req.Body = append(req.Body, buf[pos:pos+int(n)]...)
			pos += int(n)
			req.ChunkRemaining -= n

			if req.ChunkRemaining == 0 {
				req.ChunkState = httpmsg.ChunkDataCRLF
			}

		case httpmsg.ChunkDataCRLF:
			avail := len(buf) - pos
			if avail < 2 {
				if avail == 1 && buf[pos] != '\r' {
					return pos, false, badRequest()
				}
				return pos, false, nil
			}
			if buf[pos] != '\r' || buf[pos+1] != '\n' {
				return pos, false, badRequest()
			}
			pos += 2
			req.ChunkState = httpmsg.ChunkSize

		case httpmsg.ChunkTrailers:
			idx := indexCRLF(buf[pos:])
			if idx < 0 {
				return pos, false, nil
			}
			line := buf[pos : pos+idx]
			pos += idx + 2
			if len(line) == 0 {
				req.ChunkState = httpmsg.ChunkDone
				return pos, true, nil
			}
			// trailer values are discarded.

		case httpmsg.ChunkDone:
			return pos, true, nil
		}
	}

	return pos, req.ChunkState == httpmsg.ChunkDone, nil
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}
