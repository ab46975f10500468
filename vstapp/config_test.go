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

import "testing"

func TestAPIBaseDefault(t *testing.T) {
	t.Setenv("VESTRY_API_BASE", "")

	cfg := new(Config)

	// the backend roots its resources at /api/v1, so the default base
	// must include the version prefix or every call 404s
	want := "http://127.0.0.1:8080/api/v1"
	if got := cfg.apiBase(); got != want {
		t.Errorf("Expected default API base '%s', got '%s'", want, got)
	}

	cfg.APIBase = "http://cms.example.com/api/v1"
	if got := cfg.apiBase(); got != cfg.APIBase {
		t.Errorf("Expected configured API base to win, got '%s'", got)
	}

	t.Setenv("VESTRY_API_BASE", "http://localhost:9999/api/v1")
	if got := cfg.apiBase(); got != "http://localhost:9999/api/v1" {
		t.Errorf("Expected env var to win, got '%s'", got)
	}
}

func TestListenAddrDefault(t *testing.T) {
	t.Setenv("VESTRY_ADMIN_ADDR", "")

	cfg := new(Config)
	if got := cfg.listenAddr(); got != defaultAdminAddr {
		t.Errorf("Expected default listen address '%s', got '%s'", defaultAdminAddr, got)
	}

	cfg.Listen = "127.0.0.1:7777"
	if got := cfg.listenAddr(); got != "127.0.0.1:7777" {
		t.Errorf("Expected configured listen address to win, got '%s'", got)
	}
}
