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
	"net/http/httptest"
	"net/url"
	"testing"

	"go.uber.org/zap"
)

func testServer(t *testing.T, listenAddr string) *server {
	t.Helper()
	s := &server{log: zap.NewNop()}
	s.fillAllowedOrigins(nil, listenAddr)
	return s
}

func TestFillAllowedOriginsLoopback(t *testing.T) {
	t.Setenv("VESTRY_ORIGIN", "")
	s := testServer(t, "127.0.0.1:12019")

	for _, host := range []string{"localhost:12019", "127.0.0.1:12019", "[::1]:12019"} {
		if !s.originAllowed(&url.URL{Scheme: "http", Host: host}) {
			t.Errorf("Expected origin %s to be allowed", host)
		}
	}
	if s.originAllowed(&url.URL{Scheme: "http", Host: "evil.example.com"}) {
		t.Error("Expected a foreign origin to be denied")
	}
	if s.originAllowed(&url.URL{Scheme: "http", Host: "localhost:9999"}) {
		t.Error("Expected a wrong-port origin to be denied")
	}
}

func TestFillAllowedOriginsEnv(t *testing.T) {
	t.Setenv("VESTRY_ORIGIN", "https://admin.example.com, other.example.com:8080")
	s := testServer(t, "127.0.0.1:12019")

	if !s.originAllowed(&url.URL{Scheme: "https", Host: "admin.example.com"}) {
		t.Error("Expected configured https origin to be allowed")
	}
	// a full-URL origin pins the scheme
	if s.originAllowed(&url.URL{Scheme: "http", Host: "admin.example.com"}) {
		t.Error("Expected http on an https-only origin to be denied")
	}
	// a bare host origin matches any scheme
	if !s.originAllowed(&url.URL{Scheme: "http", Host: "other.example.com:8080"}) {
		t.Error("Expected bare-host origin to be allowed")
	}
}

func TestIsLoopback(t *testing.T) {
	for i, test := range []struct {
		addr   string
		expect bool
	}{
		{"localhost:12019", true},
		{"127.0.0.1:12019", true},
		{"[::1]:12019", true},
		{"127.0.0.5", true},
		{"192.168.1.10:12019", false},
		{"example.com:443", false},
	} {
		if got := (server{}).isLoopback(test.addr); got != test.expect {
			t.Errorf("Test %d: isLoopback(%s) = %v, expected %v", i, test.addr, got, test.expect)
		}
	}
}

func TestEnforceHost(t *testing.T) {
	t.Setenv("VESTRY_ORIGIN", "")
	s := testServer(t, "127.0.0.1:12019")

	next := handlerFunc(func(http.ResponseWriter, *http.Request) error { return nil })
	h := s.enforceHost(next)

	r := httptest.NewRequest(http.MethodGet, "http://localhost:12019/", nil)
	if err := h.ServeHTTP(httptest.NewRecorder(), r); err != nil {
		t.Errorf("Expected trusted Host to pass, got %v", err)
	}

	// DNS rebinding: the attacker's name resolves to our loopback
	r = httptest.NewRequest(http.MethodGet, "http://evil.example.com:12019/", nil)
	if err := h.ServeHTTP(httptest.NewRecorder(), r); err == nil {
		t.Error("Expected unknown Host to be rejected")
	}
}

func TestEnforceMethod(t *testing.T) {
	t.Setenv("VESTRY_ORIGIN", "")
	s := testServer(t, "127.0.0.1:12019")

	var called bool
	next := handlerFunc(func(http.ResponseWriter, *http.Request) error {
		called = true
		return nil
	})
	h := s.enforceOriginAndMethod(http.MethodGet, next)

	// HEAD is always acceptable where GET is expected
	r := httptest.NewRequest(http.MethodHead, "http://127.0.0.1:12019/api/photo-tags", nil)
	if err := h.ServeHTTP(httptest.NewRecorder(), r); err != nil {
		t.Errorf("Expected HEAD on a GET route to pass, got %v", err)
	}
	if !called {
		t.Error("Expected the handler to run for HEAD")
	}

	called = false
	r = httptest.NewRequest(http.MethodPost, "http://127.0.0.1:12019/api/photo-tags", nil)
	if err := h.ServeHTTP(httptest.NewRecorder(), r); err == nil {
		t.Error("Expected POST on a GET route to be rejected")
	}
	if called {
		t.Error("Expected the handler not to run for POST")
	}
}

func TestEnforceOrigin(t *testing.T) {
	t.Setenv("VESTRY_ORIGIN", "")
	s := testServer(t, "127.0.0.1:12019")

	next := handlerFunc(func(http.ResponseWriter, *http.Request) error { return nil })
	h := s.enforceOriginAndMethod(http.MethodGet, next)

	r := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:12019/api/photo-tags", nil)
	r.Header.Set("Origin", "http://127.0.0.1:12019")
	if err := h.ServeHTTP(httptest.NewRecorder(), r); err != nil {
		t.Errorf("Expected own origin to pass, got %v", err)
	}

	r.Header.Set("Origin", "http://evil.example.com")
	if err := h.ServeHTTP(httptest.NewRecorder(), r); err == nil {
		t.Error("Expected foreign origin to be rejected")
	}
}
