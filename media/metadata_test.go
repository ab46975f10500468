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
	"bytes"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestParseEXIFTimestamp(t *testing.T) {
	for i, test := range []struct {
		input  string
		expect time.Time
		ok     bool
	}{
		{"2025:05:04 10:30:00", time.Date(2025, 5, 4, 10, 30, 0, 0, time.Local), true},
		{"2025:05:04", time.Date(2025, 5, 4, 0, 0, 0, 0, time.Local), true},
		{"2025:05:04 10:30:00\x00", time.Date(2025, 5, 4, 10, 30, 0, 0, time.Local), true},
		{"  2025:05:04 10:30:00  ", time.Date(2025, 5, 4, 10, 30, 0, 0, time.Local), true},
		{"", time.Time{}, false},
		{"\x00\x00", time.Time{}, false},
		{"not a date", time.Time{}, false},
		{"2025-05-04 10:30:00", time.Time{}, false}, // wrong separator
		{"0000:00:00 00:00:00", time.Time{}, false}, // some cameras write this for "unset"
	} {
		actual, ok := parseEXIFTimestamp(test.input)
		if ok != test.ok {
			t.Errorf("Test %d (%q): Expected ok=%v, got %v", i, test.input, test.ok, ok)
			continue
		}
		if ok && !actual.Equal(test.expect) {
			t.Errorf("Test %d (%q): Expected %v, got %v", i, test.input, test.expect, actual)
		}
	}
}

func TestExtractTimestampGarbageInput(t *testing.T) {
	for i, data := range [][]byte{
		nil,
		{},
		[]byte("definitely not an image"),
		{0xff, 0xd8, 0xff, 0xe0, 0x00}, // truncated JPEG header
	} {
		if _, ok := ExtractTimestamp(zap.NewNop(), bytes.NewReader(data)); ok {
			t.Errorf("Test %d: expected no timestamp from garbage input", i)
		}
	}
}
