// Package feed consumes the live message-event stream over a websocket.
//
// The wire protocol is frame-per-message JSON: immediately after a
// (re)connect the server sends one snapshot frame holding the current
// backlog, then a change frame per mutation. Frames are delivered to the
// session sequentially on the read-loop goroutine, so a session never sees
// event N+1 before it has finished handling event N.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const reconnectDelay = 5 * time.Second

// Session handles the frames of one subscription. A fresh session is
// created per (re)connect, so per-subscription state (such as the
// bootstrap-suppression flag) never leaks across connections.
type Session interface {
	HandleEvent(ctx context.Context, ev *Event)
}

// Subscriber connects to the feed endpoint and pumps frames into sessions
// produced by the factory.
type Subscriber struct {
	url        string
	newSession func() Session
}

// NewSubscriber creates a feed subscriber. newSession is invoked once per
// established connection.
func NewSubscriber(url string, newSession func() Session) *Subscriber {
	return &Subscriber{url: url, newSession: newSession}
}

// Run connects and processes frames until the context is cancelled,
// reconnecting with a fixed backoff on transient errors.
func (s *Subscriber) Run(ctx context.Context) error {
	lg := log.With().Str("component", "feed").Logger()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				lg.Error().Err(err).Msg("feed connection error, reconnecting")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectDelay):
				}
			}
		}
	}
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	lg := log.With().Str("component", "feed").Logger()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()
	lg.Info().Str("url", s.url).Msg("connected to message feed")

	// ReadMessage does not observe the context; closing the connection is
	// what unblocks it on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	session := s.newSession()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		ev, err := ParseEvent(data)
		if err != nil {
			lg.Error().Err(err).Msg("failed to parse feed frame")
			continue
		}

		session.HandleEvent(ctx, ev)
	}
}
