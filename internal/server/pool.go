// Package server deduplicates broadcast servers by port through the Pool
// registry, so consumers with independent lifetimes can share one listener
// without reasoning about goroutine creation or socket teardown.
package server

import (
	"fmt"
	"sync"
)

// poolEntry is a non-owning registry record: a handle plus a generation
// tag. The entry is stale once its server has stopped; liveness lives with
// the server, never with the pool.
type poolEntry struct {
	srv *BroadcastServer
	gen uint64
}

// Pool is a registry of at most one live broadcast server per port.
// The zero value is not usable; create one with NewPool.
type Pool struct {
	logger Logger
	cfg    Config
	opts   []Option

	mu      sync.Mutex
	servers map[int]*poolEntry
	gen     uint64
}

// NewPool creates a pool whose servers share cfg, logger, and opts.
func NewPool(cfg *Config, logger Logger, opts ...Option) *Pool {
	if cfg == nil {
		cfg = NewConfig()
	}
	p := &Pool{
		logger:  ensureLogger(logger),
		cfg:     sanitizeConfig(*cfg),
		opts:    opts,
		servers: make(map[int]*poolEntry),
	}
	p.logger.Debugf("server pool initialized")
	return p
}

// EnsureServer returns a live broadcast server bound to port, creating and
// starting one when none exists or the previous one has stopped. On
// failure it returns a nil server and an error; callers must treat that as
// recoverable, not fatal.
//
// The registry lock is held across construction and start, not just the
// map lookup, so concurrent calls for the same port can never produce two
// simultaneously live servers. A slow bind on one port therefore stalls
// requests for unrelated ports: fairness is traded for a hard
// no-duplicate-bind guarantee.
func (p *Pool) EnsureServer(port int) (*BroadcastServer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.servers[port]; ok {
		if entry.srv.running() {
			p.logger.Debugf("reusing server generation %d on port %d", entry.gen, port)
			return entry.srv, nil
		}
		p.logger.Infof("evicting stale registry entry for port %d", port)
		delete(p.servers, port)
	}

	srv := NewBroadcastServer(port, &p.cfg, p.logger, p.opts...)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("ensure server on port %d: %w", port, err)
	}

	p.gen++
	p.servers[port] = &poolEntry{srv: srv, gen: p.gen}
	p.logger.Infof("created server generation %d on port %d", p.gen, port)
	return srv, nil
}

// StopAll snapshots the live servers, clears the registry, then stops each
// server outside the registry lock. Stopping outside the lock matters: a
// server's shutdown drains its run loop, and holding a coarse lock across
// an operation that can block on other locks invites deadlock.
func (p *Pool) StopAll() {
	p.mu.Lock()
	live := make([]*BroadcastServer, 0, len(p.servers))
	for port, entry := range p.servers {
		if entry.srv.running() {
			live = append(live, entry.srv)
		} else {
			p.logger.Debugf("dropping stale registry entry for port %d", port)
		}
	}
	p.servers = make(map[int]*poolEntry)
	p.mu.Unlock()

	if len(live) == 0 {
		p.logger.Infof("no live servers to stop")
		return
	}

	p.logger.Infof("stopping %d server(s)", len(live))
	for _, srv := range live {
		srv.Stop()
	}
	p.logger.Infof("all servers stopped")
}

// Size reports the number of registry entries, stale ones included.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.servers)
}
