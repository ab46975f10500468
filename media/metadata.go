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

// Package media recovers capture timestamps from image files and converts
// non-web-standard image encodings into web-displayable ones. Both concerns
// sit at the front of the upload pipeline and both are best-effort: a file
// that yields no timestamp simply has none, and a file that cannot be
// converted is dropped by the caller rather than crashing the pipeline.
package media

import (
	"io"
	"strings"
	"time"

	"github.com/cozy/goexif2/exif"
	"github.com/cozy/goexif2/mknote"
	"go.uber.org/zap"
)

func init() {
	exif.RegisterParsers(mknote.All...)
}

// timestampFields is the precedence order for candidate capture-time
// fields: original capture time, then creation (digitized) time, then
// modification time, then the GPS date stamp. First non-empty wins.
var timestampFields = []exif.FieldName{
	exif.DateTimeOriginal,
	exif.DateTimeDigitized,
	exif.DateTime,
	exif.GPSDateStamp,
}

// ExtractTimestamp reads EXIF metadata from r and returns the capture
// timestamp, if one can be recovered. It never fails: malformed metadata,
// missing fields, and non-image input all resolve to (zero, false).
func ExtractTimestamp(logger *zap.Logger, r io.Reader) (time.Time, bool) {
	defer func() {
		// the EXIF decoder parses untrusted bytes; a panic in it must
		// not take down the pipeline
		if rec := recover(); rec != nil {
			logger.Warn("exif decoder panicked", zap.Any("panic", rec))
		}
	}()

	ex, err := exif.Decode(r)
	if err != nil && exif.IsCriticalError(err) {
		logger.Debug("no usable exif data", zap.Error(err))
		return time.Time{}, false
	}

	for _, field := range timestampFields {
		tag, err := ex.Get(field)
		if err != nil {
			continue
		}
		raw, err := tag.StringVal()
		if err != nil {
			continue
		}
		if ts, ok := parseEXIFTimestamp(raw); ok {
			return ts, true
		}
	}

	return time.Time{}, false
}

// parseEXIFTimestamp parses the datetime string formats that appear in
// EXIF fields. Timestamps carry no zone, so local time is assumed.
func parseEXIFTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.Trim(s, "\x00"))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		"2006:01:02 15:04:05",
		"2006:01:02",
	} {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
