// Copyright 2024-2026 Aiku AI

package relay

import "fmt"

// TransportError marks a WebSocket-level failure: connect refused, socket
// reset, event channel closed. The supervisor recovers from these by
// reconnecting after a fixed delay; every other error terminates the
// process.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("websocket transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError wraps a failed or malformed Mattermost REST call. It
// carries the operation and the entity id so the failing request is
// identifiable in the final log line before termination.
type UpstreamError struct {
	Op  string
	ID  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
