// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/clusterbridge/executor"
	"github.com/bureau-foundation/clusterbridge/lib/netutil"
)

const (
	// helloTimeout is how long a new connection has to identify
	// itself.
	helloTimeout = 10 * time.Second

	// writeTimeout bounds one frame write. A controller that stops
	// reading for longer is disconnected.
	writeTimeout = 10 * time.Second
)

// ErrNoSession is returned by Deliver when the session that submitted
// the request is no longer connected. A controller that reconnects
// under the same name is a new session and does not inherit results.
var ErrNoSession = errors.New("controller has no session")

// Submitter accepts commands for execution. *executor.CommandQueue
// implements it.
type Submitter interface {
	Push(command executor.Command) error
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// SocketPath is where the Unix socket is created. An existing
	// file at this path is removed first.
	SocketPath string

	// AllowedUIDs, when non-empty, limits connections to peers
	// running as one of these uids.
	AllowedUIDs []uint32

	// MaxFrameSize bounds each inbound frame.
	MaxFrameSize int64

	// Queue receives commands from every session.
	Queue Submitter

	Logger *slog.Logger
}

// Server accepts controller connections on a Unix socket. Each
// connection is a session for one controller name; commands read from
// it are pushed to the queue and their results are written back by
// Deliver.
type Server struct {
	socketPath   string
	allowedUIDs  []uint32
	maxFrameSize int64
	queue        Submitter
	logger       *slog.Logger

	mu          sync.Mutex
	sessions    map[string]*session
	connections map[net.Conn]struct{}

	// outstanding maps every request accepted and not yet delivered
	// to the session that submitted it. Entries survive the session,
	// so a reconnected controller cannot reuse an id whose command is
	// still running.
	outstanding map[executor.CorrelationID]*session

	// activeConnections tracks connection handlers so Serve can wait
	// for them on shutdown.
	activeConnections sync.WaitGroup

	// ready is closed once the socket is listening.
	ready     chan struct{}
	readyOnce sync.Once
}

// NewServer validates config and returns a Server. Call Serve to start
// listening.
func NewServer(config ServerConfig) (*Server, error) {
	if config.SocketPath == "" {
		return nil, errors.New("transport: SocketPath is required")
	}
	if config.Queue == nil {
		return nil, errors.New("transport: Queue is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxFrameSize := config.MaxFrameSize
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Server{
		socketPath:   config.SocketPath,
		allowedUIDs:  slices.Clone(config.AllowedUIDs),
		maxFrameSize: maxFrameSize,
		queue:        config.Queue,
		logger:       logger,
		sessions:     make(map[string]*session),
		connections:  make(map[net.Conn]struct{}),
		outstanding:  make(map[executor.CorrelationID]*session),
		ready:        make(chan struct{}),
	}, nil
}

// Ready is closed once Serve is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Serve listens on the socket and handles connections until ctx is
// cancelled. It then closes every connection, waits for the handlers,
// and removes the socket file.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()
	if err := os.Chmod(s.socketPath, 0660); err != nil {
		return fmt.Errorf("setting socket permissions: %w", err)
	}

	if len(s.allowedUIDs) > 0 && !peerCredentialsSupported {
		s.logger.Warn("allowed_uids ignored: peer credentials unavailable on this platform")
	}

	// Unblock Accept and every session read when the context ends.
	go func() {
		<-ctx.Done()
		listener.Close()
		s.closeConnections()
	}()

	s.logger.Info("controller socket listening",
		"path", s.socketPath,
		"allowed_uids", s.allowedUIDs,
	)
	s.readyOnce.Do(func() { close(s.ready) })

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			break
		}
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}

	s.activeConnections.Wait()
	s.logger.Info("controller socket closed", "path", s.socketPath)
	return nil
}

// Deliver releases the result's request id and writes the result to
// the session that submitted the request, if that session is still
// connected.
func (s *Server) Deliver(result executor.AsyncResult) error {
	s.mu.Lock()
	owner := s.outstanding[result.ID()]
	delete(s.outstanding, result.ID())
	current := s.sessions[result.Controller]
	s.mu.Unlock()
	if current == nil || owner != current {
		return ErrNoSession
	}
	return current.sendResult(result)
}

// Sessions returns the number of connected controllers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connections == nil {
		return false
	}
	s.connections[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, conn)
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connections = nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	if len(s.allowedUIDs) > 0 && peerCredentialsSupported {
		uid, err := peerUID(conn)
		if err != nil {
			s.logger.Warn("rejecting connection: peer credentials unavailable", "error", err)
			return
		}
		if !slices.Contains(s.allowedUIDs, uid) {
			s.logger.Warn("rejecting connection from disallowed uid", "uid", uid)
			writeFrame(conn, frame{Type: frameError, Error: fmt.Sprintf("uid %d is not allowed", uid)}, writeTimeout)
			return
		}
	}

	reader := newFrameReader(conn, s.maxFrameSize)

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	hello, err := reader.read()
	if err != nil {
		if !netutil.IsExpectedCloseError(err) {
			s.logger.Warn("reading hello failed", "error", err)
		}
		return
	}
	conn.SetReadDeadline(time.Time{})

	if hello.Type != frameHello || hello.Controller == "" {
		writeFrame(conn, frame{Type: frameError, Error: "first frame must be hello with a controller name"}, writeTimeout)
		return
	}

	session := newSession(s, hello.Controller, conn)
	if !s.register(session) {
		s.logger.Warn("rejecting duplicate session", "controller", hello.Controller)
		writeFrame(conn, frame{Type: frameError, Error: fmt.Sprintf("controller %q is already connected", hello.Controller)}, writeTimeout)
		return
	}
	defer s.unregister(session)

	if err := session.write(frame{Type: frameReady}); err != nil {
		return
	}
	session.logger.Info("controller connected")

	err = session.readRequests(reader, s.queue)
	if netutil.IsExpectedCloseError(err) {
		session.logger.Info("controller disconnected", "outstanding", s.outstandingCount(session))
		return
	}
	session.logger.Warn("controller session failed",
		"outstanding", s.outstandingCount(session),
		"error", err,
	)
	if errors.Is(err, ErrFrameTooLarge) {
		session.write(frame{Type: frameError, Error: err.Error()})
	}
}

func (s *Server) register(session *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.controller]; exists {
		return false
	}
	s.sessions[session.controller] = session
	return true
}

func (s *Server) unregister(session *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[session.controller] == session {
		delete(s.sessions, session.controller)
	}
}

// reserve records id as outstanding for session's controller. It
// reports false when the id is already outstanding, whether from this
// session or an earlier one under the same name.
func (s *Server) reserve(session *session, id uint64) bool {
	key := executor.CorrelationID{Controller: session.controller, RequestID: id}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.outstanding[key]; exists {
		return false
	}
	s.outstanding[key] = session
	return true
}

func (s *Server) release(key executor.CorrelationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outstanding, key)
}

func (s *Server) outstandingCount(session *session) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, owner := range s.outstanding {
		if owner == session {
			count++
		}
	}
	return count
}
