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

package cms

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the main process log. All named logs should be derivatives of
// this logger, and all log emissions should go through it or one of its
// derivatives.
var Log = newLogger()

// newLogger builds the process logger: a human-readable console core on
// stderr, teed with a JSON core that broadcasts to any websocket clients
// watching the logs page. Both cores share a sampler so a hot loop
// cannot flood either output.
func newLogger() *zap.Logger {
	consoleCfg := zap.NewProductionEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleCfg.EncodeTime = func(ts time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(ts.UTC().Format("2006/01/02 15:04:05.000"))
	}

	core := zapcore.NewTee(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.Lock(os.Stderr),
			zap.DebugLevel),
		zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.Lock(zapcore.AddSync(logConns)),
			zap.InfoLevel), // shown in the web UI
	)

	const firstNMsgs, everyNthMsg = 10, 100
	core = zapcore.NewSamplerWithOptions(core, time.Second, firstNMsgs, everyNthMsg)

	return zap.New(core)
}

// logConns is the pool of websocket connections currently receiving
// process logs.
var logConns = new(connPool)

// AddLogConn subscribes conn to the log output. When the conn is
// closed, it should be removed with RemoveLogConn().
func AddLogConn(conn *websocket.Conn) {
	logConns.add(conn)
}

// RemoveLogConn removes conn from receiving logs. It is idempotent.
func RemoveLogConn(conn *websocket.Conn) {
	logConns.remove(conn)
}

// connPool fans a write out to every subscribed websocket connection,
// best-effort: an error writing to one conn never prevents writing to
// the others. Write errors are discarded, except that a conn found to
// be closed is dropped from the pool.
type connPool struct {
	mu    sync.RWMutex
	conns []*websocket.Conn
}

func (p *connPool) Write(b []byte) (int, error) {
	var closed []*websocket.Conn
	p.mu.RLock()
	for _, conn := range p.conns {
		err := conn.WriteMessage(websocket.TextMessage, b)
		// the handler that subscribed this conn should unsubscribe it
		// when it closes, but it may not have gotten there yet
		if errors.Is(err, websocket.ErrCloseSent) {
			closed = append(closed, conn)
		}
	}
	p.mu.RUnlock()
	for _, conn := range closed {
		p.remove(conn)
	}
	return len(b), nil
}

func (p *connPool) add(conn *websocket.Conn) {
	p.mu.Lock()
	p.conns = append(p.conns, conn)
	p.mu.Unlock()
}

func (p *connPool) remove(conn *websocket.Conn) {
	p.mu.Lock()
	for i, c := range p.conns {
		if c == conn {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
}
