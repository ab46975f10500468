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
	"encoding/json"
	"errors"
	"fmt"
	mathrand "math/rand"
	"net/http"
	"strconv"
	"strings"

	"github.com/vestryhq/vestry/cms"
	"go.uber.org/zap"
)

// Error is a JSON-serializable representation of an error.
type Error struct {
	Err        error  `json:"-"`
	HTTPStatus int    `json:"http_status"`       // recommended HTTP status to send to the client
	Log        string `json:"-"`                 // optional; for logs, technical context in which the error was produced
	Message    string `json:"message,omitempty"` // optional; a human-readable sentence
	Data       any    `json:"data,omitempty"`    // optional; any extra data that should be included or handled specially

	// generated; don't fill these out
	ID        string `json:"id,omitempty"` // for associating log entries
	ErrString string `json:"error"`        // to ensure string serialization
}

func (e Error) Error() string {
	var msg strings.Builder
	if e.Log != "" {
		msg.WriteString(e.Log)
		if e.Err != nil {
			msg.WriteString(": ")
		}
	}
	if e.Err != nil {
		msg.WriteString(e.Err.Error())
	}
	if e.Message != "" {
		msg.WriteString(fmt.Sprintf(" (%s)", e.Message))
	}
	if e.ID != "" {
		msg.WriteString(fmt.Sprintf(" {id=%s}", e.ID))
	}
	return msg.String()
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var errVal Error
	if !errors.As(err, &errVal) {
		errVal = Error{
			Err: err,
			Log: "error was not well-structured",
		}
	}

	// give this error a unique ID so we can investigate bug reports more easily
	errVal.ID = newErrorID()

	// ensure error is serialized as a string when written to the client
	errVal.ErrString = errVal.Err.Error()

	// a failure of the external API should read as a gateway problem, not ours
	var apiErr cms.APIError
	if errVal.HTTPStatus == 0 && errors.As(errVal.Err, &apiErr) {
		errVal.HTTPStatus = http.StatusBadGateway
		if errVal.Message == "" {
			errVal.Message = apiErr.Message
		}
	}
	if errVal.HTTPStatus == 0 {
		errVal.HTTPStatus = http.StatusInternalServerError
	}
	if errVal.Message == "" && errVal.Err != nil {
		errVal.Message = errVal.Err.Error()
	}

	// log the error
	cms.Log.Named("http").Error(errVal.Log,
		zap.Error(errVal.Err),
		zap.Int("status", errVal.HTTPStatus),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("error_id", errVal.ID),
		zap.Any("data", errVal.Data),
	)

	// write the error to the HTTP response for the frontend
	jsonBytes, err := json.Marshal(errVal)
	if err != nil {
		cms.Log.Error("encoding error response",
			zap.Error(err),
			zap.String("original_error", errVal.Error()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(jsonBytes)))
	status := errVal.HTTPStatus
	if status < http.StatusOK {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	_, _ = w.Write(jsonBytes)
}

func newErrorID() string {
	const idLen = 8
	return randString(idLen)
}

// randString returns a string of n random characters.
// It is not even remotely secure or a proper distribution,
// but it's good enough for correlating log entries. It
// excludes confusing characters like l, 1, 0, and o.
func randString(n int) string {
	if n <= 0 {
		return ""
	}
	const dict = "abcdefghjkmnpqrstvwxyz23456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = dict[mathrand.Int63()%int64(len(dict))] //nolint:gosec
	}
	return string(b)
}
