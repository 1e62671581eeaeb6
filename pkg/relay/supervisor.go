// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

var errFeedClosed = errors.New("event channel closed")

// eventFeed is one established WebSocket session. The channel returned by
// Events closing means the session ended; Err reports why.
type eventFeed interface {
	Events() <-chan *model.WebSocketEvent
	Err() error
	Close()
}

// wsFeed adapts model.WebSocketClient to eventFeed. The SDK client sends
// the authentication_challenge frame with the bot token as part of
// connecting.
type wsFeed struct {
	client *model.WebSocketClient
}

func (f *wsFeed) Events() <-chan *model.WebSocketEvent {
	return f.client.EventChannel
}

func (f *wsFeed) Err() error {
	if f.client.ListenError != nil {
		return f.client.ListenError
	}
	return errFeedClosed
}

func (f *wsFeed) Close() {
	f.client.Close()
}

// Supervisor owns the WebSocket session lifecycle: connect, dispatch
// decoded frames to the processor, reconnect with a fixed delay on
// transport failure, terminate on anything else.
type Supervisor struct {
	proc *Processor
	log  zerolog.Logger

	// connect is an injectable seam so tests can supply a fake feed.
	connect    func() (eventFeed, error)
	retryDelay time.Duration
}

// NewSupervisor creates a supervisor connecting to the configured
// WebSocket endpoint.
func NewSupervisor(cfg *Config, proc *Processor, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		proc: proc,
		log:  log.With().Str("component", "supervisor").Logger(),
		connect: func() (eventFeed, error) {
			client, err := model.NewWebSocketClient4(cfg.WebsocketURL, cfg.BotToken)
			if err != nil {
				return nil, err
			}
			client.Listen()
			return &wsFeed{client: client}, nil
		},
		retryDelay: time.Second,
	}
}

// Run drives connect/dispatch sessions until the context is cancelled or a
// non-transport failure occurs. Transport failures are retried
// indefinitely with a fixed delay; everything else terminates Run with the
// session's error.
func (s *Supervisor) Run(ctx context.Context) error {
	operation := func() error {
		err := s.runSession(ctx)
		var transport *TransportError
		if errors.As(err, &transport) {
			s.log.Warn().Err(transport.Err).Msg("Session ended with transport failure, reconnecting")
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	err := backoff.Retry(operation, backoff.WithContext(backoff.NewConstantBackOff(s.retryDelay), ctx))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runSession runs one WebSocket session to completion. It returns nil on
// context cancellation, a *TransportError when the session ends at the
// transport level, and the processor's error otherwise.
func (s *Supervisor) runSession(ctx context.Context) error {
	feed, err := s.connect()
	if err != nil {
		return &TransportError{Err: err}
	}
	defer feed.Close()

	// Identity does not survive a reconnect; it is recaptured from the
	// next hello frame.
	s.proc.SetBotUser("")
	s.log.Info().Msg("Connected, waiting for hello")

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-feed.Events():
			if !ok {
				return &TransportError{Err: feed.Err()}
			}
			if evt == nil {
				continue
			}
			if err := s.proc.HandleEvent(ctx, evt); err != nil {
				return err
			}
		}
	}
}
