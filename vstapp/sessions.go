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
	"sync"

	"github.com/vestryhq/vestry/cms"
	"github.com/vestryhq/vestry/media"
	"github.com/vestryhq/vestry/upload"
)

// sessionStore tracks the upload sessions that are currently open
// in the application. Sessions live in memory only; they do not
// survive a restart.
type sessionStore struct {
	mu         sync.Mutex
	sessions   map[string]*upload.Session
	normalizer media.Normalizer
}

func newSessionStore(normalizer media.Normalizer) *sessionStore {
	return &sessionStore{
		sessions:   make(map[string]*upload.Session),
		normalizer: normalizer,
	}
}

func (ss *sessionStore) open() *upload.Session {
	sess := upload.NewSession(ss.normalizer, cms.Log.Named("upload"))
	ss.mu.Lock()
	ss.sessions[sess.ID] = sess
	ss.mu.Unlock()
	return sess
}

func (ss *sessionStore) get(id string) (*upload.Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	sess, ok := ss.sessions[id]
	return sess, ok
}

// close discards the session with the given ID, releasing its
// buffered file data. Closing an unknown ID is a no-op.
func (ss *sessionStore) close(id string) {
	ss.mu.Lock()
	sess, ok := ss.sessions[id]
	delete(ss.sessions, id)
	ss.mu.Unlock()
	if ok {
		sess.Close()
	}
}

func (ss *sessionStore) closeAll() {
	ss.mu.Lock()
	sessions := ss.sessions
	ss.sessions = make(map[string]*upload.Session)
	ss.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
}
