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
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

type server struct {
	app *App

	log *zap.Logger

	adminLn    net.Listener // plaintext, no authentication (loopback-only by default)
	httpServer *http.Server

	// enforce CORS and prevent DNS rebinding for the unauthenticated admin listener
	allowedOrigins []*url.URL

	mux         *http.ServeMux
	staticFiles http.Handler
	frontend    fs.FS // the file system that static assets are served from
}

func (s server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// don't do any actual handling yet; just set up the request middleware stuff, logging, etc...
	start := time.Now()

	rec := newResponseRecorder(w)

	w.Header().Set("Server", "Vestry")

	var err error
	defer func() {
		logFn := s.log.Info
		if err != nil || rec.Status() >= lowestErrorStatus {
			logFn = s.log.Error
		}

		// the log message is intentionally specific to bust log sampling here
		logFn(r.Method+" "+r.RequestURI,
			zap.String("method", r.Method),
			zap.String("uri", r.RequestURI),
			zap.Int("status", rec.Status()),
			zap.Int("size", rec.Size()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
	}()

	// ok, we're all set up, so actual handling can happen now
	s.mux.ServeHTTP(rec, r)
}

// fillAllowedOrigins computes the origins that Host and Origin
// enforcement accept: every loopback spelling of the listen port,
// the listen address itself when it is not loopback, any configured
// origins, and any origins named in the VESTRY_ORIGIN environment
// variable (comma-separated).
func (s *server) fillAllowedOrigins(configuredOrigins []string, listenAddr string) {
	_, listenPort, err := net.SplitHostPort(listenAddr)
	if err != nil {
		listenPort = listenAddr // assume just a port
	}

	origins := map[string]struct{}{
		net.JoinHostPort("localhost", listenPort): {},
		net.JoinHostPort("127.0.0.1", listenPort): {},
		net.JoinHostPort("::1", listenPort):       {},
	}
	if !s.isLoopback(listenAddr) {
		origins[listenAddr] = struct{}{}
	}
	for _, o := range configuredOrigins {
		origins[o] = struct{}{}
	}
	for _, o := range strings.Split(os.Getenv("VESTRY_ORIGIN"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}

	s.allowedOrigins = make([]*url.URL, 0, len(origins))
	for o := range origins {
		if !strings.Contains(o, "://") {
			// a bare host[:port] matches any scheme
			s.allowedOrigins = append(s.allowedOrigins, &url.URL{Host: o})
			continue
		}
		u, err := url.Parse(o)
		if err != nil {
			s.log.Warn("skipping unparsable origin", zap.String("origin", o), zap.Error(err))
			continue
		}
		u.Path, u.RawPath = "", ""
		u.RawQuery, u.Fragment, u.RawFragment = "", "", ""
		s.allowedOrigins = append(s.allowedOrigins, u)
	}
}

func (server) isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr // assume no port
	}
	if host == "localhost" {
		return true
	}
	ip, err := netip.ParseAddr(host)
	return err == nil && ip.IsLoopback()
}

// enforceHost returns a handler that wraps next such that
// it will only be called if the request's Host header matches
// a trustworthy/expected value. This helps to mitigate DNS
// rebinding attacks.
func (s server) enforceHost(next handler) handler {
	return handlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		allowed := slices.ContainsFunc(s.allowedOrigins, func(u *url.URL) bool {
			return r.Host == u.Host
		})
		if !allowed {
			return Error{
				Err:        fmt.Errorf("unrecognized Host header value '%s'", r.Host),
				HTTPStatus: http.StatusForbidden,
				Log:        "Host not allowed",
				Message:    "This endpoint can only be accessed via a trusted host.",
			}
		}
		return next.ServeHTTP(w, r)
	})
}

// enforceOriginAndMethod ensures that the Origin header matches the expected value(s),
// sets CORS headers, and also enforces the proper/expected method for the route.
// This prevents arbitrary sites from issuing requests to our listener.
func (s server) enforceOriginAndMethod(method string, next handler) handler {
	return handlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		origin := s.getOrigin(r)
		if origin != nil {
			if !s.originAllowed(origin) {
				return Error{
					Err:        fmt.Errorf("unrecognized origin '%s'", origin),
					HTTPStatus: http.StatusForbidden,
					Log:        "Origin not allowed",
					Message:    "You can only access this API from a recognized origin.",
				}
			}
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Origin", origin.String())
				w.Header().Set("Access-Control-Allow-Methods", "OPTIONS, "+method)
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Access-Control-Allow-Origin", origin.String())
		}
		if r.Method == http.MethodOptions {
			return nil
		}
		// method must match, except HEAD is always fine where GET is expected
		if r.Method != method && !(method == http.MethodGet && r.Method == http.MethodHead) {
			return Error{
				Err:        fmt.Errorf("method '%s' not allowed", r.Method),
				HTTPStatus: http.StatusMethodNotAllowed,
			}
		}
		return next.ServeHTTP(w, r)
	})
}

// getOrigin returns the request's origin reduced to scheme and host,
// or nil if there is none. Some browsers omit Origin on same-origin
// requests; Referer is close enough for our enforcement.
func (s server) getOrigin(r *http.Request) *url.URL {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return nil
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}
}

func (s server) originAllowed(origin *url.URL) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed.Scheme != "" && origin.Scheme != allowed.Scheme {
			continue
		}
		if origin.Host == allowed.Host {
			return true
		}
	}
	return false
}
