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

package media

import (
	"path"
	"strings"

	"github.com/vestryhq/vestry/cms"
)

// Normalizer converts a file with a non-web-standard encoding into a
// web-displayable equivalent, or passes it through unchanged. The concrete
// conversion mechanism is deliberately behind this narrow interface so it
// can be swapped for a no-op or a server-side equivalent without touching
// pipeline logic.
type Normalizer interface {
	Normalize(f cms.File) (cms.File, error)
}

// Suffixes (lowercased) that are not web-displayable and get converted.
const (
	extHeic = ".heic"
	extHeif = ".heif"
	extJpg  = ".jpg"
)

// NeedsConversion reports whether filename's suffix (case-insensitive)
// designates a non-web-standard encoding. Detection is by suffix only,
// never by sniffing content.
func NeedsConversion(filename string) bool {
	switch strings.ToLower(path.Ext(filename)) {
	case extHeic, extHeif:
		return true
	}
	return false
}

// ConvertedName rewrites filename's suffix for its post-conversion encoding.
func ConvertedName(filename string) string {
	ext := path.Ext(filename)
	return filename[:len(filename)-len(ext)] + extJpg
}

// Passthrough is a Normalizer that converts nothing. It is the fallback
// where no conversion capability is available, and the stand-in for tests.
type Passthrough struct{}

func (Passthrough) Normalize(f cms.File) (cms.File, error) { return f, nil }
