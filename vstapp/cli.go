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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// flagValPair associates a flag with its value.
type flagValPair struct {
	flag string
	val  interface{}
}

// flagValPairs parses args and associates flags with their values.
// A flag followed by another flag (or by nothing) is boolean true.
func flagValPairs(args []string) []flagValPair {
	var pairs []flagValPair

	var flag string
	for _, arg := range args {
		if isFlag(arg) {
			if flag != "" {
				// two flags in a row? previous one's value must be boolean!
				pairs = append(pairs, flagValPair{flag: flag, val: true})
			}
			flag = arg
			continue
		}

		pairs = append(pairs, flagValPair{flag: flag, val: autoType(arg)})
		flag = ""
	}

	if flag != "" {
		// the last argument must have been a boolean flag
		pairs = append(pairs, flagValPair{flag: flag, val: true})
	}

	return pairs
}

// makeForm parses args and encodes the data as urlencoded-data.
func makeForm(args []string) string {
	formVals := url.Values{}
	for _, pair := range flagValPairs(args) {
		formVals.Add(sanitizeFlag(pair.flag), fmt.Sprintf("%v", pair.val))
	}
	return formVals.Encode()
}

// makeMultipart parses args and encodes the data as a multipart form.
// Values of the repeatable --files flag are paths; each named file is
// read from disk and attached as a file part. Every other flag becomes
// an ordinary form field. The returned content type carries the part
// boundary.
func makeMultipart(args []string) (body []byte, contentType string, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, pair := range flagValPairs(args) {
		name := sanitizeFlag(pair.flag)
		val := fmt.Sprintf("%v", pair.val)

		if name != "files" {
			if err := w.WriteField(name, val); err != nil {
				return nil, "", err
			}
			continue
		}

		f, err := os.Open(val)
		if err != nil {
			return nil, "", fmt.Errorf("flag %s: %w", pair.flag, err)
		}
		part, err := w.CreateFormFile("files", filepath.Base(val))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return nil, "", fmt.Errorf("attaching %s: %w", val, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// makeJSON parses args and encodes the data as JSON. Repeating a flag
// collects its values into an array, so for example
// "--tags choir --tags 2025" becomes {"tags": ["choir", 2025]}.
// Dots in a flag name nest objects.
func makeJSON(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}

	// special case: a single non-flag arg is a simple JSON data type
	if len(args) == 1 && !isFlag(args[0]) {
		return json.Marshal(autoType(args[0]))
	}

	obj := make(map[string]interface{})

	for _, pair := range flagValPairs(args) {
		keyParts := strings.Split(sanitizeFlag(pair.flag), ".")

		// walk down to the innermost object, creating maps as needed
		inner := obj
		for _, part := range keyParts[:len(keyParts)-1] {
			next, ok := inner[part].(map[string]interface{})
			if !ok {
				if _, exists := inner[part]; exists {
					return nil, fmt.Errorf("flag %s: %s is not an object", pair.flag, part)
				}
				next = make(map[string]interface{})
				inner[part] = next
			}
			inner = next
		}

		// a repeated flag accumulates an array
		key := keyParts[len(keyParts)-1]
		switch existing := inner[key].(type) {
		case nil:
			inner[key] = pair.val
		case []interface{}:
			inner[key] = append(existing, pair.val)
		default:
			inner[key] = []interface{}{existing, pair.val}
		}
	}

	return json.Marshal(obj)
}

// sanitizeFlag turns a flag string like "--foo-bar"
// into "foo_bar"; i.e. it strips the flag prefix
// and standardizes its format.
func sanitizeFlag(s string) string {
	name := s
	switch {
	case strings.HasPrefix(s, "--"):
		name = s[2:]
	case strings.HasPrefix(s, "-"):
		name = s[1:]
	}
	return strings.ReplaceAll(name, "-", "_")
}

// isFlag returns whether s looks like a flag argument.
func isFlag(s string) bool {
	return len(s) > 2 && s[:2] == "--"
}

// autoType returns the value of str in its JSON type.
func autoType(str string) interface{} {
	s := strings.TrimSpace(strings.ToLower(str))
	if s == "true" {
		return true
	} else if s == "false" {
		return false
	}
	if num, err := strconv.Atoi(s); err == nil {
		return num
	}
	if dec, err := strconv.ParseFloat(s, 64); err == nil {
		return dec
	}
	return str
}
