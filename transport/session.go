// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/bureau-foundation/clusterbridge/executor"
)

// session is one connected controller. Outstanding request ids live
// on the Server, not here, so they outlive a reconnect.
type session struct {
	controller string
	conn       net.Conn
	server     *Server
	logger     *slog.Logger

	writeMu sync.Mutex
}

func newSession(server *Server, controller string, conn net.Conn) *session {
	return &session{
		controller: controller,
		conn:       conn,
		server:     server,
		logger:     server.logger.With("controller", controller),
	}
}

// readRequests reads request frames until the connection fails. It
// returns the read error.
func (s *session) readRequests(reader *frameReader, queue Submitter) error {
	for {
		f, err := reader.read()
		if err != nil {
			return err
		}
		if f.Type != frameRequest {
			return fmt.Errorf("unexpected %s frame", f.Type)
		}

		if !s.server.reserve(s, f.ID) {
			s.logger.Warn("rejecting duplicate request id", "request_id", f.ID)
			if err := s.write(frame{
				Type:  frameRejected,
				ID:    f.ID,
				Error: fmt.Sprintf("request id %d is already outstanding", f.ID),
			}); err != nil {
				return err
			}
			continue
		}

		command := executor.Command{
			Controller: s.controller,
			RequestID:  f.ID,
			Request:    f.request(),
		}
		if err := queue.Push(command); err != nil {
			s.server.release(executor.CorrelationID{Controller: s.controller, RequestID: f.ID})
			message := err.Error()
			if errors.Is(err, executor.ErrQueueClosed) {
				message = "bridge is shutting down"
			}
			if err := s.write(frame{Type: frameRejected, ID: f.ID, Error: message}); err != nil {
				return err
			}
			continue
		}
		s.logger.Debug("request accepted", "request_id", f.ID, "method", f.Method, "uri", f.URI)
	}
}

func (s *session) sendResult(result executor.AsyncResult) error {
	err := s.write(frame{
		Type:    frameResult,
		ID:      result.RequestID,
		Kind:    result.Kind,
		Payload: result.Payload,
	})
	if err != nil {
		// The reader sees the closed connection and ends the session.
		s.conn.Close()
	}
	return err
}

func (s *session) write(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(s.conn, f, writeTimeout)
}
