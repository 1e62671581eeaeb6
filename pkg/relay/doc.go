// Copyright 2024-2026 Aiku AI

// Package relay implements a Mattermost reaction notification relay.
//
// The bot listens on the Mattermost v4 WebSocket feed for reaction events.
// Reacting to a post with one of two sentinel emoji registers a watch: a
// thread watch relays every future reaction on that post into the post's
// thread, a DM watch relays them to the subscriber via direct message.
// Removing the sentinel reaction removes the watch again.
//
// # Core Types
//
// [Supervisor] owns the WebSocket session lifecycle: connect, dispatch
// decoded frames, reconnect with a fixed delay on transport failure, and
// terminate on anything else.
//
// [Processor] is the per-event state machine. It resolves event context
// through [Client], relays notifications to existing watchers, and applies
// watch registrations and removals against [WatchStore].
//
// [Client] wraps the Mattermost REST API with process-lifetime memoization
// for the read endpoints.
//
// [WatchStore] is the durable watch registry, a single table managed
// through dbutil with versioned schema upgrades.
//
// # Concurrency
//
// The whole pipeline is a single logical thread: one WebSocket session,
// one event processed to completion before the next frame is read. The
// memo caches and the store are owned by that thread, so none of it needs
// locking.
package relay
