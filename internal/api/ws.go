// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scorecast/scorecast/internal/log"
	"github.com/scorecast/scorecast/internal/recording"
)

const wsWriteTimeout = 10 * time.Second

// statusFanout distributes recorder status changes to websocket
// subscribers without ever blocking the recorder.
type statusFanout struct {
	mu   sync.Mutex
	subs map[chan recording.Status]struct{}
}

func newStatusFanout() *statusFanout {
	return &statusFanout{subs: make(map[chan recording.Status]struct{})}
}

func (f *statusFanout) subscribe() (<-chan recording.Status, func()) {
	ch := make(chan recording.Status, 16)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
		})
	}
}

func (f *statusFanout) publish(st recording.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		for {
			select {
			case ch <- st:
			default:
				// Full buffer: drop the oldest pending status.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

func (s *Server) handleScoreboardWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "ws.upgrade_failed").
			Msg("scoreboard websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	sub, snapshot := s.deps.Hub.Subscribe()
	defer sub.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}

	done := readUntilClose(conn)
	for {
		select {
		case <-done:
			return
		case state, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(state); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleRecordingWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "ws.upgrade_failed").
			Msg("recording websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	ch, unsubscribe := s.status.subscribe()
	defer unsubscribe()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(s.deps.Recorder.Status()); err != nil {
		return
	}

	done := readUntilClose(conn)
	for {
		select {
		case <-done:
			return
		case st := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(st); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleVideoWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "ws.upgrade_failed").
			Msg("video websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	events, unsubscribe := s.deps.Generator.Subscribe()
	defer unsubscribe()

	done := readUntilClose(conn)
	for {
		select {
		case <-done:
			return
		case p := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(p); err != nil {
				return
			}
		}
	}
}

// readUntilClose drains inbound frames so close handshakes and pings
// are processed; the returned channel closes when the peer goes away.
func readUntilClose(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}
