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
	"net/http"
	"strings"
)

// serveFrontend serves the static admin UI. It is a single-page
// application: any path that is not a static resource gets the SPA
// shell, which then routes to the actual page on the client.
func (s server) serveFrontend(w http.ResponseWriter, r *http.Request) error {
	if !strings.HasPrefix(r.URL.Path, "/pages/") &&
		!strings.HasPrefix(r.URL.Path, "/resources/") {
		r.URL.Path = "/"
	}
	s.staticFiles.ServeHTTP(w, r)
	return nil
}
