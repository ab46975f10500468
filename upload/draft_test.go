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

package upload

import (
	"strings"
	"testing"
)

func TestTitleFromFilename(t *testing.T) {
	for i, test := range []struct {
		input  string
		expect string
	}{
		{"beach.png", "beach"},
		{"beach.PNG", "beach"},
		{"IMG_2041.heic", "IMG_2041"},
		{"no-extension", "no-extension"},
		{"archive.tar.gz", "archive.tar"},
		{"photos/2025/beach.jpg", "beach"},
		{"a-very-long-vacation-photo-name.png", "a-very-long-vacation-photo-..."},
		{strings.Repeat("x", 30) + ".jpg", strings.Repeat("x", 30)},
		{strings.Repeat("x", 31) + ".jpg", strings.Repeat("x", 27) + "..."},
		{strings.Repeat("ä", 31) + ".jpg", strings.Repeat("ä", 27) + "..."},
	} {
		if actual := TitleFromFilename(test.input); actual != test.expect {
			t.Errorf("Test %d (%s): Expected %q, got %q", i, test.input, test.expect, actual)
		}
	}
}
