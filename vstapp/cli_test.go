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
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFlagValuePairs(t *testing.T) {
	for i, test := range []struct {
		input  []string
		expect []flagValPair
	}{
		{
			input: []string{"--foo", "bar"},
			expect: []flagValPair{
				{flag: "--foo", val: "bar"},
			},
		},
		{
			input: []string{"--foo", "1"},
			expect: []flagValPair{
				{flag: "--foo", val: 1},
			},
		},
		{
			input: []string{"--foo", "true"},
			expect: []flagValPair{
				{flag: "--foo", val: true},
			},
		},
		{
			input: []string{"--foo"},
			expect: []flagValPair{
				{flag: "--foo", val: true},
			},
		},
		{
			input: []string{"--foo", "--bar", "42"},
			expect: []flagValPair{
				{flag: "--foo", val: true},
				{flag: "--bar", val: 42},
			},
		},
		{
			input: []string{"--foo", ""},
			expect: []flagValPair{
				{flag: "--foo", val: ""},
			},
		},
	} {
		if actual, expected := flagValPairs(test.input), test.expect; !reflect.DeepEqual(actual, expected) {
			t.Errorf("Test %d: Expected %+v, got %+v", i, expected, actual)
		}
	}
}

func TestMakeForm(t *testing.T) {
	for i, tc := range []struct {
		input    []string
		expected string
	}{
		{
			input:    []string{"--foo", "bar"},
			expected: "foo=bar",
		},
		{
			input:    []string{"--foo"},
			expected: "foo=true",
		},
		{
			input:    []string{"--foo", "1"},
			expected: "foo=1",
		},
		{
			input:    []string{"--foo", "bar", "--key", "val"},
			expected: "foo=bar&key=val",
		},
		{
			input:    []string{"--bool1", "--bool2"},
			expected: "bool1=true&bool2=true",
		},
		{
			input:    []string{"--tags", "choir", "--tags", "picnic"},
			expected: "tags=choir&tags=picnic",
		},
	} {
		actual := makeForm(tc.input)
		if actual != tc.expected {
			t.Errorf("Test %d: Expected '%s' but got '%s'", i, tc.expected, actual)
		}
	}
}

func TestMakeMultipart(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "one.jpg")
	p2 := filepath.Join(dir, "two.jpg")
	if err := os.WriteFile(p1, []byte("first"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p2, []byte("second"), 0o600); err != nil {
		t.Fatal(err)
	}

	body, ct, err := makeMultipart([]string{"--session-id", "abc", "--files", p1, "--files", p2})
	if err != nil {
		t.Fatalf("makeMultipart: %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("Bad content type '%s': %v", ct, err)
	}

	form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("Parsing form: %v", err)
	}
	defer form.RemoveAll()

	if got := form.Value["session_id"]; len(got) != 1 || got[0] != "abc" {
		t.Errorf("Expected session_id 'abc', got %v", got)
	}

	fhs := form.File["files"]
	if len(fhs) != 2 {
		t.Fatalf("Expected 2 file parts, got %d", len(fhs))
	}
	for i, want := range []struct{ name, data string }{
		{"one.jpg", "first"},
		{"two.jpg", "second"},
	} {
		if fhs[i].Filename != want.name {
			t.Errorf("Part %d: expected filename %s, got %s", i, want.name, fhs[i].Filename)
		}
		f, err := fhs[i].Open()
		if err != nil {
			t.Fatalf("Opening part %d: %v", i, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			t.Fatalf("Reading part %d: %v", i, err)
		}
		if string(data) != want.data {
			t.Errorf("Part %d: expected contents %q, got %q", i, want.data, data)
		}
	}
}

func TestMakeMultipartMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.jpg")
	if _, _, err := makeMultipart([]string{"--files", missing}); err == nil {
		t.Error("Expected an error for a nonexistent file, got nil")
	}
}

func TestMakeJSON(t *testing.T) {
	for i, tc := range []struct {
		input     []string
		expected  string
		shouldErr bool
	}{
		{
			input:    []string{"--foo", "bar"},
			expected: `{"foo":"bar"}`,
		},
		{
			input:    []string{"--bool"},
			expected: `{"bool":true}`,
		},
		{
			input:    []string{"--top.sub", "val"},
			expected: `{"top":{"sub":"val"}}`,
		},
		{
			input:    []string{"--top", "1"},
			expected: `{"top":1}`,
		},
		{
			input:    []string{"--top.sub1.sub2", "val", "--float", "1.5"},
			expected: `{"float":1.5,"top":{"sub1":{"sub2":"val"}}}`,
		},
		{
			input:    []string{"--tags", "choir", "--tags", "2025"},
			expected: `{"tags":["choir",2025]}`,
		},
		{
			input:    []string{"--tags", "a", "--tags", "b", "--tags", "c"},
			expected: `{"tags":["a","b","c"]}`,
		},
		{
			input:    []string{"--foo-bar"},
			expected: `{"foo_bar":true}`,
		},
		{
			input:    []string{"42"},
			expected: `42`,
		},
		{
			input:     []string{"--top", "val", "--top.sub", "x"},
			shouldErr: true,
		},
	} {
		actual, err := makeJSON(tc.input)
		if err == nil && tc.shouldErr {
			t.Errorf("Test %d: Should have errored, but did not", i)
		} else if err != nil && !tc.shouldErr {
			t.Errorf("Test %d: Should NOT have errored, but did: %v", i, err)
		}
		if string(actual) != tc.expected {
			t.Errorf("Test %d: %v\nExpected: '%s'\n     Got: '%s'", i, tc.input, tc.expected, actual)
		}
	}
}

func TestSanitizeFlag(t *testing.T) {
	want := "foo_bar"
	if got := sanitizeFlag("--foo-bar"); got != want {
		t.Errorf("Wanted '%s' but got '%s'", want, got)
	}

	want = "foo_bar.flub_dub"
	if got := sanitizeFlag("--foo-bar.flub-dub"); got != want {
		t.Errorf("Wanted '%s' but got '%s'", want, got)
	}
}
