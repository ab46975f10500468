/*
	Vestry
	Copyright (c) 2025 The Vestry Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package vstapp

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// responseRecorder is a pass-through http.ResponseWriter that remembers
// the status code and body size for the request log.
type responseRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w}
}

func (rec *responseRecorder) WriteHeader(statusCode int) {
	if rec.status == 0 {
		rec.status = statusCode
	}
	rec.ResponseWriter.WriteHeader(statusCode)
}

func (rec *responseRecorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(p)
	rec.size += n
	return n, err
}

// Hijack lets handlers that take over the connection (the logs
// websocket) work through the recorder. Once hijacked, nothing more is
// recorded.
func (rec *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter (%T) is not a Hijacker", rec.ResponseWriter)
	}
	if rec.status == 0 {
		rec.status = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rec *responseRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// Status returns the status code that was written, or 200 if the handler
// wrote a body without an explicit header, or 0 if nothing was written.
func (rec *responseRecorder) Status() int { return rec.status }

// Size returns the number of body bytes written.
func (rec *responseRecorder) Size() int { return rec.size }
