// Package server implements pooled WebSocket broadcast servers.
//
// A Server owns one listening socket on one port and a dedicated run loop
// goroutine; all socket-facing mutation is marshaled onto that loop as
// deferred closures. BroadcastServer specializes Server so that every
// connecting client joins a single implicit topic and Broadcast fans a text
// frame out to all of them. Pool deduplicates servers by port so callers
// never reason about listener lifetimes or duplicate binds.
package server
