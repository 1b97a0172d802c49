// Package server owns the per-port listener lifecycle: a state machine, a
// dedicated run loop goroutine, and deferred execution of cross-goroutine
// work on that loop.
package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ErrServerStopped is returned by Start once a server has been stopped.
// A stopped server is terminal; create a new instance to listen again.
var ErrServerStopped = errors.New("server: stopped")

const (
	stateNotStarted int32 = iota
	stateStarting
	stateListening
	stateStopping
	stateStopped
)

// taskQueueSize bounds the run loop inbox. Submissions past a full inbox
// are dropped, never blocking the caller.
const taskQueueSize = 1024

type handlerEntry struct {
	pattern string
	handler http.Handler
}

// Server owns exactly one listening socket on one port and one run loop
// goroutine. Every socket-facing mutation executes on that goroutine; other
// goroutines marshal work onto it with Defer.
//
// Lifecycle: NotStarted -> Starting -> Listening -> Stopping -> Stopped.
// A bind failure returns the instance to NotStarted, so Start may be called
// again after a clean failure. Stopped is terminal.
type Server struct {
	logger Logger
	cfg    Config
	port   int

	state atomic.Int32

	mu         sync.Mutex // guards the fields below
	listener   net.Listener
	httpServer *http.Server
	handlers   []handlerEntry
	tasks      chan func()
	done       chan struct{} // closed when the run loop goroutine exits

	// shutdownHook runs on the loop goroutine as the first step of the
	// deferred shutdown closure; BroadcastServer uses it to drain clients.
	shutdownHook func()

	// loopExit is touched only by the run loop goroutine.
	loopExit bool

	metrics *Metrics
}

// Option customizes a Server at construction time.
type Option func(*Server)

// WithMetrics attaches Prometheus instrumentation to the server.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a server for the given port. It does not bind the port;
// call Start for that. A nil cfg or logger falls back to defaults.
func NewServer(port int, cfg *Config, logger Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	s := &Server{
		logger: ensureLogger(logger),
		cfg:    sanitizeConfig(*cfg),
		port:   port,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debugf("server instance created for port %d", port)
	return s
}

// Port returns the port this server was created for.
func (s *Server) Port() int {
	return s.port
}

// IsListening reports whether the server is currently accepting
// connections. Safe to call from any goroutine.
func (s *Server) IsListening() bool {
	return s.state.Load() == stateListening
}

// running reports whether the run loop is alive (starting or listening).
// The pool uses it as the liveness check for registry entries.
func (s *Server) running() bool {
	st := s.state.Load()
	return st == stateStarting || st == stateListening
}

// AddHandler registers an HTTP handler for a path pattern. Handlers must be
// registered before Start: the run loop builds its mux once, so a handler
// added later is accepted but will never be served, which is logged as a
// warning.
func (s *Server) AddHandler(pattern string, handler http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Load() != stateNotStarted {
		s.logger.Warnf("handler for %q added after server on port %d started; it will not be served", pattern, s.port)
	}
	s.handlers = append(s.handlers, handlerEntry{pattern: pattern, handler: handler})
}

// Start spawns the run loop goroutine and blocks until the bind attempt
// resolves. It returns nil once the server is listening. On a bind failure
// the goroutine is joined before Start returns and the instance goes back
// to NotStarted, so the caller may retry.
//
// Calling Start on a server that is already starting or listening is a
// logged no-op reflecting the current status.
func (s *Server) Start() error {
	s.mu.Lock()
	if !s.state.CompareAndSwap(stateNotStarted, stateStarting) {
		st := s.state.Load()
		s.mu.Unlock()
		switch st {
		case stateListening:
			s.logger.Warnf("server on port %d is already listening; ignoring redundant start", s.port)
			return nil
		case stateStarting:
			s.logger.Warnf("server on port %d is already starting", s.port)
			return fmt.Errorf("server on port %d is still starting", s.port)
		default:
			return ErrServerStopped
		}
	}

	s.tasks = make(chan func(), taskQueueSize)
	s.done = make(chan struct{})
	s.loopExit = false
	tasks, done := s.tasks, s.done
	s.mu.Unlock()

	s.logger.Infof("starting server on port %d", s.port)

	bindResult := make(chan error, 1)
	go s.run(tasks, done, bindResult)

	if err := <-bindResult; err != nil {
		// Join the loop goroutine; it exits right after reporting failure.
		<-done

		s.mu.Lock()
		if st := s.state.Load(); st == stateStopping || st == stateStopped {
			s.state.Store(stateStopped)
		} else {
			// Clean failure: the instance is inert and retry-able.
			s.state.Store(stateNotStarted)
		}
		s.mu.Unlock()

		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}
	return nil
}

// run is the loop goroutine body: bind, report the outcome, then execute
// deferred tasks serially until the shutdown closure asks the loop to exit.
func (s *Server) run(tasks chan func(), done chan struct{}, bindResult chan<- error) {
	defer close(done)

	s.mu.Lock()
	handlers := append([]handlerEntry(nil), s.handlers...)
	s.mu.Unlock()

	mux := http.NewServeMux()
	for _, h := range handlers {
		mux.Handle(h.pattern, h.handler)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		s.logger.Errorf("failed to listen on port %d: %v", s.port, err)
		bindResult <- err
		return
	}

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = httpSrv
	s.mu.Unlock()

	// A concurrent Stop may already have moved the state to Stopping; the
	// loop still has to run so it can execute the queued shutdown closure.
	s.state.CompareAndSwap(stateStarting, stateListening)
	bindResult <- nil
	s.logger.Infof("server listening on port %d", s.port)

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Debugf("accept loop on port %d ended: %v", s.port, err)
		}
	}()

	for fn := range tasks {
		fn()
		if s.loopExit {
			break
		}
	}

	// The shutdown closure normally closed the handles already; this
	// covers a stop that raced the bind, where the closure captured nils.
	// Closing before the serveDone wait is what ends the accept loop.
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
		s.httpServer = nil
	}
	s.mu.Unlock()

	<-serveDone

	s.state.Store(stateStopped)
	s.logger.Infof("run loop stopped on port %d", s.port)
}

// Defer submits fn to run on the loop goroutine. Submissions from a single
// goroutine execute in submission order. It returns false, dropping fn,
// when the server is not running or the inbox is full; it never blocks.
func (s *Server) Defer(fn func()) bool {
	if !s.running() {
		return false
	}

	s.mu.Lock()
	tasks := s.tasks
	s.mu.Unlock()
	if tasks == nil {
		return false
	}

	select {
	case tasks <- fn:
		return true
	default:
		s.logger.Warnf("task inbox full on port %d; dropping deferred work", s.port)
		return false
	}
}

// Stop shuts the server down and blocks until the run loop goroutine has
// exited. The listener and HTTP server captured under a short-lived lock
// are closed by a closure deferred onto the loop, never from the calling
// goroutine. Stop is idempotent: the transition into Stopping happens at
// most once, and redundant calls simply wait for the first to finish.
//
// Stop must not be called from a deferred task: it joins the loop the task
// is running on.
func (s *Server) Stop() {
	s.mu.Lock()
	st := s.state.Load()

	switch st {
	case stateNotStarted, stateStopped:
		s.state.Store(stateStopped)
		s.mu.Unlock()
		s.logger.Infof("server on port %d was already stopped or never started", s.port)
		return
	case stateStopping:
		done := s.done
		s.mu.Unlock()
		s.logger.Infof("server on port %d is already stopping", s.port)
		if done != nil {
			<-done
		}
		return
	}

	s.state.Store(stateStopping)

	ln := s.listener
	httpSrv := s.httpServer
	hook := s.shutdownHook
	tasks := s.tasks
	done := s.done
	s.listener = nil
	s.httpServer = nil
	s.mu.Unlock()

	s.logger.Infof("stopping server on port %d", s.port)

	if tasks != nil {
		shutdown := func() {
			if hook != nil {
				hook()
			}
			if ln != nil {
				s.logger.Debugf("closing listen socket on port %d (deferred)", s.port)
				_ = ln.Close()
			}
			if httpSrv != nil {
				_ = httpSrv.Close()
			}
			s.loopExit = true
		}

		select {
		case tasks <- shutdown:
		case <-done:
			// Loop already gone; nothing left to close it.
		}
	}

	if done != nil {
		s.logger.Debugf("waiting for run loop on port %d to exit", s.port)
		<-done
	}
	s.logger.Infof("server on port %d stopped", s.port)
}
