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
	"fmt"
	"net/http"
)

type handler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request) error
}

// handlerFunc is like http.HandlerFunc, except these handlers return an error.
type handlerFunc func(http.ResponseWriter, *http.Request) error

func (h handlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) error {
	return h(w, r)
}

// wrapErrorHandler turns a handlerFunc (a handler that returns an error)
// into a standard http.HandlerFunc by handling any returned error.
func wrapErrorHandler(h handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.ServeHTTP(w, r); err != nil {
			handleError(w, r, err)
		}
	})
}

// httpWrap wraps a standard http.Handler with a handlerFunc signature.
func httpWrap(h http.Handler) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		h.ServeHTTP(w, r)
		return nil
	}
}

func jsonEncodeErr(err error) error {
	return Error{
		Err:        err,
		HTTPStatus: http.StatusInternalServerError,
		Log:        "Encoding JSON response",
		Message:    "Our program has a bug. It wasn't able to respond with data in JSON format.",
	}
}

func jsonResponse(w http.ResponseWriter, v any, err error) error {
	if err != nil {
		return err
	}
	respBytes, err := json.Marshal(v)
	if err != nil {
		return jsonEncodeErr(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(respBytes)))
	w.Write(respBytes)
	return nil
}
